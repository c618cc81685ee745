package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/geoattend-api/internal/dto"
	"github.com/noah-isme/geoattend-api/internal/models"
	appErrors "github.com/noah-isme/geoattend-api/pkg/errors"
)

type mockAttendanceRepo struct {
	records    map[string]*models.AttendanceRecord
	details    []models.AttendanceRecordDetail
	counts     map[models.AttendanceStatus]int
	lastFilter models.AttendanceFilter
	listAll    int
	closeLost  bool
}

func (m *mockAttendanceRepo) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if m.records == nil {
		m.records = make(map[string]*models.AttendanceRecord)
	}
	record.ID = "att-" + record.StudentID
	m.records[record.ID] = record
	return nil
}

func (m *mockAttendanceRepo) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	if r, ok := m.records[id]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) FindOpen(ctx context.Context, classID, studentID string) (*models.AttendanceRecord, error) {
	for _, r := range m.records {
		if r.ClassID == classID && r.StudentID == studentID && !r.CheckedOut() {
			return r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) CloseCheckOut(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	if m.closeLost {
		return false, nil
	}
	m.records[record.ID] = record
	return true, nil
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	m.lastFilter = filter
	return m.details, len(m.details), nil
}

func (m *mockAttendanceRepo) ListAll(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error) {
	m.lastFilter = filter
	m.listAll++
	return m.details, nil
}

func (m *mockAttendanceRepo) CountByStatus(ctx context.Context, filter models.AttendanceFilter) (map[models.AttendanceStatus]int, error) {
	m.lastFilter = filter
	return m.counts, nil
}

var testClassTZ = time.FixedZone("WIB", 7*3600)

type attendanceFixture struct {
	svc     *AttendanceService
	repo    *mockAttendanceRepo
	metrics *MetricsService
	cache   *memoryCacheRepo
	audit   *mockAuditWriter
	clock   time.Time
}

func newAttendanceFixture(t *testing.T) *attendanceFixture {
	t.Helper()
	checkIn := models.MustParseTimeOfDay("08:00")
	checkOut := models.MustParseTimeOfDay("10:00")
	classes := &mockClassRepo{classes: map[string]*models.Class{
		"class-1": {
			ID:                "class-1",
			Name:              "Physics 10A",
			TeacherID:         "teacher-1",
			LocationLatitude:  -6.2,
			LocationLongitude: 106.816666,
			LocationRadius:    100,
			CheckInTime:       &checkIn,
			CheckOutTime:      &checkOut,
		},
	}}
	roster := &mockRoster{enrolled: map[string]bool{"class-1/student-1": true}}
	f := &attendanceFixture{
		repo:    &mockAttendanceRepo{},
		metrics: NewMetricsService(),
		cache:   newMemoryCacheRepo(),
		audit:   &mockAuditWriter{},
		clock:   time.Date(2024, 3, 14, 7, 55, 0, 0, testClassTZ),
	}
	cache := NewCacheService(f.cache, nil, time.Minute, nil, true)
	f.svc = NewAttendanceService(f.repo, classes, roster, cache, f.metrics, f.audit,
		AttendanceConfig{Location: testClassTZ, ReportCacheTTL: time.Minute}, validator.New(), zap.NewNop())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func locationAt(lat, lng float64) dto.LocationRequest {
	return dto.LocationRequest{Latitude: &lat, Longitude: &lng}
}

var insideFence = locationAt(-6.2, 106.816666)

func TestAttendanceCheckInPresent(t *testing.T) {
	f := newAttendanceFixture(t)

	record, err := f.svc.CheckIn(context.Background(), "student-1", "class-1", insideFence)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	assert.Equal(t, f.clock, record.CheckInTime)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().CheckIns)
}

func TestAttendanceCheckInLateUsesClassTimezone(t *testing.T) {
	f := newAttendanceFixture(t)
	// 01:30 UTC is 08:30 in the class zone.
	f.clock = time.Date(2024, 3, 14, 1, 30, 0, 0, time.UTC)

	record, err := f.svc.CheckIn(context.Background(), "student-1", "class-1", insideFence)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusLate, record.Status)
}

func TestAttendanceCheckInOutsideFence(t *testing.T) {
	f := newAttendanceFixture(t)

	_, err := f.svc.CheckIn(context.Background(), "student-1", "class-1", locationAt(-6.21, 106.816666))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrOutsideGeofence.Code, appErr.Code)
	assert.InDelta(t, 1112, appErr.Details["distance_meters"], 5)
	assert.Equal(t, 100.0, appErr.Details["radius_meters"])
	assert.Empty(t, f.repo.records)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().GeofenceRejections)
	assert.Nil(t, appErrors.ErrOutsideGeofence.Details)
}

func TestAttendanceCheckInRejections(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := f.svc.CheckIn(ctx, "student-2", "class-1", insideFence)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CheckIn(ctx, "student-1", "missing", insideFence)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CheckIn(ctx, "student-1", "class-1", dto.LocationRequest{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CheckIn(ctx, "student-1", "class-1", locationAt(-95, 0))
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CheckIn(ctx, "student-1", "class-1", insideFence)
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, "student-1", "class-1", insideFence)
	assert.Equal(t, appErrors.ErrAlreadyCheckedIn.Code, appErrors.FromError(err).Code)
}

func TestAttendanceCheckOutKeepsStatusBeforeDeadline(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	f.clock = time.Date(2024, 3, 14, 8, 10, 0, 0, testClassTZ)
	record, err := f.svc.CheckIn(ctx, "student-1", "class-1", insideFence)
	require.NoError(t, err)
	require.Equal(t, models.AttendanceStatusLate, record.Status)

	f.clock = time.Date(2024, 3, 14, 9, 40, 0, 0, testClassTZ)
	closed, err := f.svc.CheckOut(ctx, "student-1", record.ID, locationAt(-6.25, 106.9))
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusLate, closed.Status)
	require.NotNil(t, closed.CheckOutTime)
	assert.Equal(t, -6.25, *closed.CheckOutLatitude)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().CheckOuts)

	_, err = f.svc.CheckOut(ctx, "student-1", record.ID, insideFence)
	assert.Equal(t, appErrors.ErrAlreadyCheckedOut.Code, appErrors.FromError(err).Code)
}

func TestAttendanceCheckOutAfterDeadlineIsAbsent(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	record, err := f.svc.CheckIn(ctx, "student-1", "class-1", insideFence)
	require.NoError(t, err)

	f.clock = time.Date(2024, 3, 14, 10, 1, 0, 0, testClassTZ)
	closed, err := f.svc.CheckOut(ctx, "student-1", record.ID, insideFence)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusAbsent, closed.Status)
}

func TestAttendanceCheckOutRejections(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	record, err := f.svc.CheckIn(ctx, "student-1", "class-1", insideFence)
	require.NoError(t, err)

	_, err = f.svc.CheckOut(ctx, "student-2", record.ID, insideFence)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CheckOut(ctx, "student-1", "missing", insideFence)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	f.svc.cfg.CheckOutRequiresFence = true
	_, err = f.svc.CheckOut(ctx, "student-1", record.ID, locationAt(-6.3, 106.816666))
	assert.Equal(t, appErrors.ErrOutsideGeofence.Code, appErrors.FromError(err).Code)

	f.repo.closeLost = true
	_, err = f.svc.CheckOut(ctx, "student-1", record.ID, insideFence)
	assert.Equal(t, appErrors.ErrAlreadyCheckedOut.Code, appErrors.FromError(err).Code)
}

func TestAttendanceStudentSummaryRate(t *testing.T) {
	f := newAttendanceFixture(t)
	f.repo.counts = map[models.AttendanceStatus]int{
		models.AttendanceStatusPresent: 2,
		models.AttendanceStatusLate:    1,
	}

	summary, err := f.svc.StudentSummary(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 67, summary.Rate)
	assert.Equal(t, "student-1", f.repo.lastFilter.StudentID)
}

func sampleDetails() []models.AttendanceRecordDetail {
	in := time.Date(2024, 3, 14, 0, 55, 0, 0, time.UTC)
	out := in.Add(90 * time.Minute)
	return []models.AttendanceRecordDetail{
		{
			AttendanceRecord: models.AttendanceRecord{ID: "a1", ClassID: "class-1", CheckInTime: in, CheckOutTime: &out, Status: models.AttendanceStatusPresent},
			StudentName:      "Ana",
			StudentEmail:     "ana@example.com",
		},
		{
			AttendanceRecord: models.AttendanceRecord{ID: "a2", ClassID: "class-1", CheckInTime: in.Add(20 * time.Minute), Status: models.AttendanceStatusLate},
			StudentName:      "Budi",
			StudentEmail:     "budi@example.com",
		},
		{
			AttendanceRecord: models.AttendanceRecord{ID: "a3", ClassID: "class-1", CheckInTime: in, CheckOutTime: &out, Status: models.AttendanceStatusAbsent},
			StudentName:      "Citra",
			StudentEmail:     "citra@example.com",
		},
	}
}

func TestAttendanceClassReportIsCached(t *testing.T) {
	f := newAttendanceFixture(t)
	f.repo.details = sampleDetails()
	ctx := context.Background()

	report, err := f.svc.ClassReport(ctx, "teacher-1", "class-1", ReportRange{})
	require.NoError(t, err)
	assert.Equal(t, "Physics 10A", report.ClassName)
	assert.Equal(t, models.AttendanceSummary{Present: 1, Late: 1, Absent: 1, Total: 3, Rate: 67}, report.Summary)

	_, err = f.svc.ClassReport(ctx, "teacher-1", "class-1", ReportRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.listAll)

	_, err = f.svc.CheckIn(ctx, "student-1", "class-1", insideFence)
	require.NoError(t, err)
	_, err = f.svc.ClassReport(ctx, "teacher-1", "class-1", ReportRange{})
	require.NoError(t, err)
	assert.Equal(t, 2, f.repo.listAll)
}

func TestAttendanceClassReportRequiresOwner(t *testing.T) {
	f := newAttendanceFixture(t)

	_, err := f.svc.ClassReport(context.Background(), "teacher-2", "class-1", ReportRange{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, _, err = f.svc.ListForClass(context.Background(), "teacher-2", "class-1", models.AttendanceFilter{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAttendanceListForClassScopesFilter(t *testing.T) {
	f := newAttendanceFixture(t)
	f.repo.details = sampleDetails()

	records, pagination, err := f.svc.ListForClass(context.Background(), "teacher-1", "class-1", models.AttendanceFilter{Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, "class-1", f.repo.lastFilter.ClassID)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 3, pagination.TotalCount)
}

func TestAttendanceExportCSV(t *testing.T) {
	f := newAttendanceFixture(t)
	f.repo.details = sampleDetails()

	file, err := f.svc.ExportClassReport(context.Background(), "teacher-1", "class-1", "CSV", ReportRange{})
	require.NoError(t, err)
	assert.Equal(t, "Physics_10A_attendance_2024-03-14.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)

	reader := csv.NewReader(bytes.NewReader(file.Data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, reportHeaders, rows[0])
	assert.Equal(t, []string{"Ana", "ana@example.com", "2024-03-14", "07:55 AM", "09:25 AM", "1h 30m", "present"}, rows[1])
	assert.Equal(t, []string{"Budi", "budi@example.com", "2024-03-14", "08:15 AM", "-", "-", "late"}, rows[2])
	assert.Contains(t, string(file.Data), "Attendance rate: 67%")

	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionReportExport, f.audit.logs[0].Action)
}

func TestAttendanceExportPDFAndFormat(t *testing.T) {
	f := newAttendanceFixture(t)
	f.repo.details = sampleDetails()

	file, err := f.svc.ExportClassReport(context.Background(), "teacher-1", "class-1", "pdf", ReportRange{})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF-")))

	_, err = f.svc.ExportClassReport(context.Background(), "teacher-1", "class-1", "xlsx", ReportRange{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFormatDurationAndFilename(t *testing.T) {
	assert.Equal(t, "0h 45m", formatDuration(45*time.Minute))
	assert.Equal(t, "2h 0m", formatDuration(119*time.Minute+40*time.Second))
	assert.Equal(t, "0h 0m", formatDuration(-time.Minute))
	assert.Equal(t, "Kelas_X_IPA", safeFilename(" Kelas X/IPA "))
	assert.Equal(t, "class", safeFilename("///"))
}
