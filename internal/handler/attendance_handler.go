package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/geoattend-api/internal/dto"
	"github.com/noah-isme/geoattend-api/internal/models"
	"github.com/noah-isme/geoattend-api/internal/service"
	appErrors "github.com/noah-isme/geoattend-api/pkg/errors"
	"github.com/noah-isme/geoattend-api/pkg/response"
)

type attendanceService interface {
	CheckIn(ctx context.Context, studentID, classID string, req dto.LocationRequest) (*models.AttendanceRecord, error)
	CheckOut(ctx context.Context, studentID, recordID string, req dto.LocationRequest) (*models.AttendanceRecord, error)
	ListForStudent(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, *models.Pagination, error)
	ListForClass(ctx context.Context, teacherID, classID string, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, *models.Pagination, error)
	StudentSummary(ctx context.Context, studentID string) (*models.AttendanceSummary, error)
	ClassReport(ctx context.Context, teacherID, classID string, rng service.ReportRange) (*dto.AttendanceReport, error)
	ExportClassReport(ctx context.Context, teacherID, classID, format string, rng service.ReportRange) (*dto.ExportFile, error)
	ParseRange(preset, from, to string) (service.ReportRange, error)
}

// AttendanceHandler exposes check-in, check-out and attendance reporting.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// CheckIn godoc
// @Summary Check in to a class
// @Description Records attendance when the reported position is inside the class geofence
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.LocationRequest true "Device position"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope "OUTSIDE_GEOFENCE or not enrolled"
// @Failure 409 {object} response.Envelope "ALREADY_CHECKED_IN"
// @Security BearerAuth
// @Router /classes/{id}/check-in [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid location payload"))
		return
	}
	record, err := h.service.CheckIn(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// CheckOut godoc
// @Summary Check out of an attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Attendance record ID"
// @Param payload body dto.LocationRequest true "Device position"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "ALREADY_CHECKED_OUT"
// @Security BearerAuth
// @Router /attendance/{id}/check-out [post]
func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid location payload"))
		return
	}
	record, err := h.service.CheckOut(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// MyHistory godoc
// @Summary List own attendance
// @Tags Attendance
// @Produce json
// @Param class_id query string false "Class ID"
// @Param status query string false "present, late or absent"
// @Param range query string false "all, today, week or month"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/me [get]
func (h *AttendanceHandler) MyHistory(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter, err := h.listFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.ClassID = c.Query("class_id")

	records, pagination, err := h.service.ListForStudent(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// MySummary godoc
// @Summary Own attendance summary
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/me/summary [get]
func (h *AttendanceHandler) MySummary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.StudentSummary(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ClassAttendance godoc
// @Summary List class attendance
// @Tags Attendance
// @Produce json
// @Param id path string true "Class ID"
// @Param status query string false "present, late or absent"
// @Param range query string false "all, today, week or month"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/attendance [get]
func (h *AttendanceHandler) ClassAttendance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter, err := h.listFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	records, pagination, err := h.service.ListForClass(c.Request.Context(), claims.UserID, c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// ClassReport godoc
// @Summary Class attendance report
// @Tags Attendance
// @Produce json
// @Param id path string true "Class ID"
// @Param range query string false "all, today, week or month"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/attendance/report [get]
func (h *AttendanceHandler) ClassReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	rng, err := h.service.ParseRange(c.Query("range"), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.ClassReport(c.Request.Context(), claims.UserID, c.Param("id"), rng)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ExportClassReport godoc
// @Summary Download class attendance report
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf" default(csv)
// @Param range query string false "all, today, week or month"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /classes/{id}/attendance/export [get]
func (h *AttendanceHandler) ExportClassReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	rng, err := h.service.ParseRange(c.Query("range"), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.ExportClassReport(c.Request.Context(), claims.UserID, c.Param("id"), c.DefaultQuery("format", "csv"), rng)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

func (h *AttendanceHandler) listFilter(c *gin.Context) (models.AttendanceFilter, error) {
	filter := models.AttendanceFilter{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "limit", 20),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.AttendanceStatus(strings.ToLower(raw))
		if !status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "status must be present, late or absent")
		}
		filter.Status = &status
	}
	rng, err := h.service.ParseRange(c.Query("range"), c.Query("from"), c.Query("to"))
	if err != nil {
		return filter, err
	}
	filter.DateFrom = rng.From
	filter.DateTo = rng.To
	return filter, nil
}
