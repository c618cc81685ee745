package service

import (
	"strings"
	"time"

	appErrors "github.com/noah-isme/geoattend-api/pkg/errors"
)

const reportDateLayout = "2006-01-02"

// ReportRange is a half-open [From, To) window of check-in instants. A nil
// bound is unbounded.
type ReportRange struct {
	From *time.Time
	To   *time.Time
}

// Label renders the range for cache keys and report headers.
func (r ReportRange) Label() (string, string) {
	from, to := "all", "all"
	if r.From != nil {
		from = r.From.Format(reportDateLayout)
	}
	if r.To != nil {
		to = r.To.AddDate(0, 0, -1).Format(reportDateLayout)
	}
	return from, to
}

// ParseReportRange resolves either a preset (all, today, week, month) or
// explicit inclusive from/to dates, interpreted in loc.
func ParseReportRange(preset, from, to string, now time.Time, loc *time.Location) (ReportRange, error) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)

	if from != "" || to != "" {
		var r ReportRange
		if from != "" {
			start, err := time.ParseInLocation(reportDateLayout, from, loc)
			if err != nil {
				return ReportRange{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "from must be YYYY-MM-DD")
			}
			r.From = &start
		}
		if to != "" {
			end, err := time.ParseInLocation(reportDateLayout, to, loc)
			if err != nil {
				return ReportRange{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "to must be YYYY-MM-DD")
			}
			end = end.AddDate(0, 0, 1)
			r.To = &end
		}
		if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
			return ReportRange{}, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
		}
		return r, nil
	}

	switch strings.ToLower(strings.TrimSpace(preset)) {
	case "", "all":
		return ReportRange{}, nil
	case "today":
		return ReportRange{From: &today, To: &tomorrow}, nil
	case "week":
		offset := (int(today.Weekday()) + 6) % 7
		start := today.AddDate(0, 0, -offset)
		return ReportRange{From: &start, To: &tomorrow}, nil
	case "month":
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		return ReportRange{From: &start, To: &tomorrow}, nil
	default:
		return ReportRange{}, appErrors.Clone(appErrors.ErrValidation, "range must be one of all, today, week, month")
	}
}
