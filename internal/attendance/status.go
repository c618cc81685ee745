// Package attendance derives attendance statuses from scheduled deadlines and
// the wall-clock time of check-in and check-out events.
//
// Comparisons use the hour:minute component of the event timestamp in the
// timestamp's own location; callers convert to the class timezone first.
package attendance

import (
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/geoattend-api/internal/models"
)

var (
	// ErrMissingTimestamp is returned when an event time is the zero value.
	ErrMissingTimestamp = errors.New("missing event timestamp")
	// ErrMissingPriorStatus is returned when check-out is resolved without a check-in status.
	ErrMissingPriorStatus = errors.New("missing check-in status")
)

// ResolveCheckInStatus returns late when actual is strictly after the
// scheduled check-in time of day, present otherwise. No schedule means present.
func ResolveCheckInStatus(scheduled *models.TimeOfDay, actual time.Time) (models.AttendanceStatus, error) {
	if actual.IsZero() {
		return "", ErrMissingTimestamp
	}
	if scheduled == nil {
		return models.AttendanceStatusPresent, nil
	}
	if models.TimeOfDayOf(actual).After(*scheduled) {
		return models.AttendanceStatusLate, nil
	}
	return models.AttendanceStatusPresent, nil
}

// ResolveCheckOutStatus returns absent when actual is strictly after the
// scheduled check-out time of day, overriding the check-in status. Otherwise,
// or without a schedule, prior is kept.
func ResolveCheckOutStatus(scheduled *models.TimeOfDay, actual time.Time, prior models.AttendanceStatus) (models.AttendanceStatus, error) {
	if !prior.Valid() {
		return "", fmt.Errorf("%w: %q", ErrMissingPriorStatus, prior)
	}
	if actual.IsZero() {
		return "", ErrMissingTimestamp
	}
	if scheduled == nil {
		return prior, nil
	}
	if models.TimeOfDayOf(actual).After(*scheduled) {
		return models.AttendanceStatusAbsent, nil
	}
	return prior, nil
}
