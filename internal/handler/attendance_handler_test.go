package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/geoattend-api/internal/dto"
	"github.com/noah-isme/geoattend-api/internal/middleware"
	"github.com/noah-isme/geoattend-api/internal/models"
	"github.com/noah-isme/geoattend-api/internal/service"
	appErrors "github.com/noah-isme/geoattend-api/pkg/errors"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func asStudent(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
}

func asTeacher(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *appErrors.Error `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type attendanceServiceMock struct {
	checkInErr error
	lastFilter models.AttendanceFilter
	lastFormat string
	lastRange  service.ReportRange
	studentID  string
	classID    string
}

func (m *attendanceServiceMock) CheckIn(ctx context.Context, studentID, classID string, req dto.LocationRequest) (*models.AttendanceRecord, error) {
	if m.checkInErr != nil {
		return nil, m.checkInErr
	}
	m.studentID, m.classID = studentID, classID
	return &models.AttendanceRecord{ID: "att-1", ClassID: classID, StudentID: studentID, Status: models.AttendanceStatusPresent}, nil
}

func (m *attendanceServiceMock) CheckOut(ctx context.Context, studentID, recordID string, req dto.LocationRequest) (*models.AttendanceRecord, error) {
	return nil, appErrors.ErrAlreadyCheckedOut
}

func (m *attendanceServiceMock) ListForStudent(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, *models.Pagination, error) {
	m.studentID, m.lastFilter = studentID, filter
	return []models.AttendanceRecordDetail{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *attendanceServiceMock) ListForClass(ctx context.Context, teacherID, classID string, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, *models.Pagination, error) {
	m.classID, m.lastFilter = classID, filter
	return []models.AttendanceRecordDetail{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *attendanceServiceMock) StudentSummary(ctx context.Context, studentID string) (*models.AttendanceSummary, error) {
	return &models.AttendanceSummary{Present: 1, Total: 1, Rate: 100}, nil
}

func (m *attendanceServiceMock) ClassReport(ctx context.Context, teacherID, classID string, rng service.ReportRange) (*dto.AttendanceReport, error) {
	m.lastRange = rng
	return &dto.AttendanceReport{ClassID: classID}, nil
}

func (m *attendanceServiceMock) ExportClassReport(ctx context.Context, teacherID, classID, format string, rng service.ReportRange) (*dto.ExportFile, error) {
	m.lastFormat = format
	return &dto.ExportFile{Filename: "Physics_attendance_2024-03-14.csv", ContentType: "text/csv", Data: []byte("a,b\n")}, nil
}

func (m *attendanceServiceMock) ParseRange(preset, from, to string) (service.ReportRange, error) {
	return service.ParseReportRange(preset, from, to, time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC), time.UTC)
}

func TestAttendanceHandlerCheckIn(t *testing.T) {
	mock := &attendanceServiceMock{}
	h := NewAttendanceHandler(mock)

	c, w := newGinContext(http.MethodPost, "/classes/class-1/check-in", []byte(`{"latitude":-6.2,"longitude":106.8}`))
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}
	asStudent(c)

	h.CheckIn(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "class-1", mock.classID)
	assert.Equal(t, "student-1", mock.studentID)
}

func TestAttendanceHandlerCheckInOutsideFence(t *testing.T) {
	rejection := appErrors.WithDetail(appErrors.ErrOutsideGeofence, "distance_meters", 1112.0)
	h := NewAttendanceHandler(&attendanceServiceMock{checkInErr: rejection})

	c, w := newGinContext(http.MethodPost, "/classes/class-1/check-in", []byte(`{"latitude":-6.21,"longitude":106.8}`))
	asStudent(c)

	h.CheckIn(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "OUTSIDE_GEOFENCE", env.Error.Code)
	assert.Equal(t, "outside allowed location", env.Error.Message)
	assert.Equal(t, 1112.0, env.Error.Details["distance_meters"])
}

func TestAttendanceHandlerRequiresClaimsAndBody(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceMock{})

	c, w := newGinContext(http.MethodPost, "/classes/class-1/check-in", []byte(`{}`))
	h.CheckIn(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/attendance/att-1/check-out", []byte(`not json`))
	asStudent(c)
	h.CheckOut(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerCheckOutConflict(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceMock{})

	c, w := newGinContext(http.MethodPost, "/attendance/att-1/check-out", []byte(`{"latitude":-6.2,"longitude":106.8}`))
	c.Params = gin.Params{{Key: "id", Value: "att-1"}}
	asStudent(c)

	h.CheckOut(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_CHECKED_OUT", decodeEnvelope(t, w).Error.Code)
}

func TestAttendanceHandlerMyHistoryFilters(t *testing.T) {
	mock := &attendanceServiceMock{}
	h := NewAttendanceHandler(mock)

	c, w := newGinContext(http.MethodGet, "/attendance/me?status=LATE&range=today&page=2&class_id=class-9", nil)
	asStudent(c)

	h.MyHistory(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.lastFilter.Status)
	assert.Equal(t, models.AttendanceStatusLate, *mock.lastFilter.Status)
	assert.Equal(t, 2, mock.lastFilter.Page)
	assert.Equal(t, "class-9", mock.lastFilter.ClassID)
	require.NotNil(t, mock.lastFilter.DateFrom)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), *mock.lastFilter.DateFrom)

	c, w = newGinContext(http.MethodGet, "/attendance/me?status=excused", nil)
	asStudent(c)
	h.MyHistory(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerClassReportRange(t *testing.T) {
	mock := &attendanceServiceMock{}
	h := NewAttendanceHandler(mock)

	c, w := newGinContext(http.MethodGet, "/classes/class-1/attendance/report?from=2024-03-01&to=2024-03-10", nil)
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}
	asTeacher(c)
	h.ClassReport(c)
	require.Equal(t, http.StatusOK, w.Code)
	from, to := mock.lastRange.Label()
	assert.Equal(t, "2024-03-01", from)
	assert.Equal(t, "2024-03-10", to)

	c, w = newGinContext(http.MethodGet, "/classes/class-1/attendance/report?range=decade", nil)
	asTeacher(c)
	h.ClassReport(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerExport(t *testing.T) {
	mock := &attendanceServiceMock{}
	h := NewAttendanceHandler(mock)

	c, w := newGinContext(http.MethodGet, "/classes/class-1/attendance/export", nil)
	asTeacher(c)
	h.ExportClassReport(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", mock.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="Physics_attendance_2024-03-14.csv"`)
	assert.Equal(t, "a,b\n", w.Body.String())
}

func TestAttendanceHandlerMySummary(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceMock{})
	c, w := newGinContext(http.MethodGet, "/attendance/me/summary", nil)
	asStudent(c)

	h.MySummary(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"present":1,"late":0,"absent":0,"total":1,"rate":100}`, string(decodeEnvelope(t, w).Data))
}
