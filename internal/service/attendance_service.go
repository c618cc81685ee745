package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/geoattend-api/internal/attendance"
	"github.com/noah-isme/geoattend-api/internal/dto"
	"github.com/noah-isme/geoattend-api/internal/models"
	appErrors "github.com/noah-isme/geoattend-api/pkg/errors"
	"github.com/noah-isme/geoattend-api/pkg/export"
	"github.com/noah-isme/geoattend-api/pkg/geo"
)

type attendanceRepository interface {
	Create(ctx context.Context, record *models.AttendanceRecord) error
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	FindOpen(ctx context.Context, classID, studentID string) (*models.AttendanceRecord, error)
	CloseCheckOut(ctx context.Context, record *models.AttendanceRecord) (bool, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error)
	ListAll(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error)
	CountByStatus(ctx context.Context, filter models.AttendanceFilter) (map[models.AttendanceStatus]int, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type enrollmentChecker interface {
	Exists(ctx context.Context, classID, studentID string) (bool, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// AttendanceConfig tunes the check-in workflow.
type AttendanceConfig struct {
	// Location is the zone class schedules are written in.
	Location              *time.Location
	CheckOutRequiresFence bool
	ReportCacheTTL        time.Duration
}

// AttendanceService records check-ins and check-outs against class geofences
// and schedules, and builds attendance reports.
type AttendanceService struct {
	repo        attendanceRepository
	classes     classReader
	enrollments enrollmentChecker
	cache       *CacheService
	metrics     *MetricsService
	audit       auditWriter
	csv         csvRenderer
	pdf         pdfRenderer
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         AttendanceConfig
	now         func() time.Time
}

// NewAttendanceService constructs AttendanceService. cache, metrics and audit may be nil.
func NewAttendanceService(repo attendanceRepository, classes classReader, enrollments enrollmentChecker, cache *CacheService, metrics *MetricsService, audit auditWriter, cfg AttendanceConfig, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &AttendanceService{
		repo:        repo,
		classes:     classes,
		enrollments: enrollments,
		cache:       cache,
		metrics:     metrics,
		audit:       audit,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// CheckIn opens an attendance record for an enrolled student standing inside the class fence.
func (s *AttendanceService) CheckIn(ctx context.Context, studentID, classID string, req dto.LocationRequest) (*models.AttendanceRecord, error) {
	point, err := s.point(req)
	if err != nil {
		return nil, err
	}

	class, err := s.findClass(ctx, classID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.enrollments.Exists(ctx, classID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this class")
	}

	if _, err := s.repo.FindOpen(ctx, classID, studentID); err == nil {
		return nil, appErrors.ErrAlreadyCheckedIn
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open attendance")
	}

	if err := s.requireInsideFence(point, class); err != nil {
		s.logger.Info("check-in rejected outside geofence", zap.String("class_id", classID), zap.String("student_id", studentID))
		return nil, err
	}

	now := s.now().In(s.cfg.Location)
	status, err := attendance.ResolveCheckInStatus(class.CheckInTime, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve attendance status")
	}

	record := &models.AttendanceRecord{
		ClassID:          classID,
		StudentID:        studentID,
		CheckInTime:      now,
		CheckInLatitude:  point.Latitude,
		CheckInLongitude: point.Longitude,
		Status:           status,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, appErrors.ErrAlreadyCheckedIn) {
			return nil, appErrors.ErrAlreadyCheckedIn
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-in")
	}

	s.metrics.RecordCheckIn(status)
	s.cache.Invalidate(ctx, classReportCachePattern(classID))
	s.logger.Debug("check-in recorded", zap.String("record_id", record.ID), zap.String("status", string(status)))
	return record, nil
}

// CheckOut closes the student's own open record and applies the check-out status rule.
func (s *AttendanceService) CheckOut(ctx context.Context, studentID, recordID string, req dto.LocationRequest) (*models.AttendanceRecord, error) {
	point, err := s.point(req)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if record.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	if record.CheckedOut() {
		return nil, appErrors.ErrAlreadyCheckedOut
	}

	class, err := s.findClass(ctx, record.ClassID)
	if err != nil {
		return nil, err
	}
	if s.cfg.CheckOutRequiresFence {
		if err := s.requireInsideFence(point, class); err != nil {
			return nil, err
		}
	}

	now := s.now().In(s.cfg.Location)
	status, err := attendance.ResolveCheckOutStatus(class.CheckOutTime, now, record.Status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve attendance status")
	}

	lat, lng := point.Latitude, point.Longitude
	record.CheckOutTime = &now
	record.CheckOutLatitude = &lat
	record.CheckOutLongitude = &lng
	record.Status = status

	closed, err := s.repo.CloseCheckOut(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-out")
	}
	if !closed {
		return nil, appErrors.ErrAlreadyCheckedOut
	}

	s.metrics.RecordCheckOut(status)
	s.cache.Invalidate(ctx, classReportCachePattern(record.ClassID))
	return record, nil
}

// ParseRange resolves report range query values against the service clock and timezone.
func (s *AttendanceService) ParseRange(preset, from, to string) (ReportRange, error) {
	return ParseReportRange(preset, from, to, s.now(), s.cfg.Location)
}

// ListForStudent returns the student's own records, newest first.
func (s *AttendanceService) ListForStudent(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, *models.Pagination, error) {
	filter.StudentID = studentID
	return s.list(ctx, filter)
}

// ListForClass returns records of a class owned by teacherID, newest first.
func (s *AttendanceService) ListForClass(ctx context.Context, teacherID, classID string, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, *models.Pagination, error) {
	if _, err := s.ownedClass(ctx, teacherID, classID); err != nil {
		return nil, nil, err
	}
	filter.ClassID = classID
	return s.list(ctx, filter)
}

// StudentSummary aggregates a student's records. The rate counts only on-time attendance.
func (s *AttendanceService) StudentSummary(ctx context.Context, studentID string) (*models.AttendanceSummary, error) {
	counts, err := s.repo.CountByStatus(ctx, models.AttendanceFilter{StudentID: studentID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}
	summary := summarise(counts)
	summary.Rate = percent(summary.Present, summary.Total)
	return &summary, nil
}

// ClassReport lists a class's records in the range with a summary whose rate
// counts present and late as attended.
func (s *AttendanceService) ClassReport(ctx context.Context, teacherID, classID string, rng ReportRange) (*dto.AttendanceReport, error) {
	class, err := s.ownedClass(ctx, teacherID, classID)
	if err != nil {
		return nil, err
	}

	key := classReportCacheKey(classID, rng)
	var cached dto.AttendanceReport
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	records, err := s.repo.ListAll(ctx, models.AttendanceFilter{ClassID: classID, DateFrom: rng.From, DateTo: rng.To})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance report")
	}
	if records == nil {
		records = []models.AttendanceRecordDetail{}
	}

	counts := make(map[models.AttendanceStatus]int, 3)
	for _, r := range records {
		counts[r.Status]++
	}
	summary := summarise(counts)
	summary.Rate = percent(summary.Present+summary.Late, summary.Total)

	from, to := rng.Label()
	report := &dto.AttendanceReport{
		ClassID:   class.ID,
		ClassName: class.Name,
		From:      from,
		To:        to,
		Summary:   summary,
		Records:   records,
		Generated: s.now().UTC(),
	}
	s.cache.Set(ctx, key, report, s.cfg.ReportCacheTTL)
	return report, nil
}

// ExportClassReport renders the class report as csv or pdf.
func (s *AttendanceService) ExportClassReport(ctx context.Context, teacherID, classID, format string, rng ReportRange) (*dto.ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	report, err := s.ClassReport(ctx, teacherID, classID, rng)
	if err != nil {
		return nil, err
	}

	dataset := s.reportDataset(report)
	file := &dto.ExportFile{
		Filename: fmt.Sprintf("%s_attendance_%s.%s", safeFilename(report.ClassName), s.now().In(s.cfg.Location).Format(reportDateLayout), format),
	}
	switch format {
	case "pdf":
		file.ContentType = "application/pdf"
		file.Data, err = s.pdf.Render(dataset, report.ClassName+" attendance")
	default:
		file.ContentType = "text/csv"
		file.Data, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &teacherID,
			Action:     models.AuditActionReportExport,
			Resource:   "class",
			ResourceID: &classID,
			NewValues:  []byte(fmt.Sprintf(`{"format":%q,"rows":%d}`, format, len(report.Records))),
		}); err != nil {
			s.logger.Warn("failed to record export audit log", zap.Error(err))
		}
	}
	return file, nil
}

var reportHeaders = []string{"Student Name", "Email", "Date", "Check In", "Check Out", "Duration", "Status"}

func (s *AttendanceService) reportDataset(report *dto.AttendanceReport) export.Dataset {
	rows := make([]map[string]string, 0, len(report.Records))
	for _, r := range report.Records {
		in := r.CheckInTime.In(s.cfg.Location)
		row := map[string]string{
			"Student Name": r.StudentName,
			"Email":        r.StudentEmail,
			"Date":         in.Format(reportDateLayout),
			"Check In":     in.Format("03:04 PM"),
			"Check Out":    "-",
			"Duration":     "-",
			"Status":       string(r.Status),
		}
		if r.CheckOutTime != nil {
			row["Check Out"] = r.CheckOutTime.In(s.cfg.Location).Format("03:04 PM")
			row["Duration"] = formatDuration(r.CheckOutTime.Sub(r.CheckInTime))
		}
		rows = append(rows, row)
	}
	sum := report.Summary
	return export.Dataset{
		Headers: reportHeaders,
		Rows:    rows,
		Notes: []string{
			fmt.Sprintf("Period: %s to %s", report.From, report.To),
			fmt.Sprintf("Present: %d  Late: %d  Absent: %d  Total: %d  Attendance rate: %d%%", sum.Present, sum.Late, sum.Absent, sum.Total, sum.Rate),
		},
	}
}

func (s *AttendanceService) list(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, *models.Pagination, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, paginationFor(filter.Page, filter.PageSize, total), nil
}

func (s *AttendanceService) point(req dto.LocationRequest) (geo.Point, error) {
	if err := s.validator.Struct(req); err != nil {
		return geo.Point{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid location payload")
	}
	p := geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := p.Validate(); err != nil {
		return geo.Point{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid location")
	}
	return p, nil
}

func (s *AttendanceService) requireInsideFence(p geo.Point, class *models.Class) error {
	fence := class.Fence()
	inside, err := geo.IsWithinFence(p, fence)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid location")
	}
	if inside {
		return nil
	}
	distance, err := geo.DistanceMeters(p, fence.Center)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid location")
	}
	s.metrics.RecordGeofenceRejection(distance)
	rejection := appErrors.WithDetail(appErrors.ErrOutsideGeofence, "distance_meters", math.Round(distance))
	return appErrors.WithDetail(rejection, "radius_meters", fence.RadiusMeters)
}

func (s *AttendanceService) findClass(ctx context.Context, classID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func (s *AttendanceService) ownedClass(ctx context.Context, teacherID, classID string) (*models.Class, error) {
	class, err := s.findClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if class.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class belongs to another teacher")
	}
	return class, nil
}

func summarise(counts map[models.AttendanceStatus]int) models.AttendanceSummary {
	summary := models.AttendanceSummary{
		Present: counts[models.AttendanceStatusPresent],
		Late:    counts[models.AttendanceStatusLate],
		Absent:  counts[models.AttendanceStatusAbsent],
	}
	summary.Total = summary.Present + summary.Late + summary.Absent
	return summary
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Round(time.Minute) / time.Minute)
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeFilename(name string) string {
	cleaned := strings.Trim(unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(name), "_"), "_")
	if cleaned == "" {
		return "class"
	}
	return cleaned
}
