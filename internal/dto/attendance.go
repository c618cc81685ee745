package dto

import (
	"time"

	"github.com/noah-isme/geoattend-api/internal/models"
)

// LocationRequest carries the device position reported at check-in or check-out.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

// AttendanceReport is a class attendance report for a date range.
type AttendanceReport struct {
	ClassID   string                          `json:"class_id"`
	ClassName string                          `json:"class_name"`
	From      string                          `json:"from"`
	To        string                          `json:"to"`
	Summary   models.AttendanceSummary        `json:"summary"`
	Records   []models.AttendanceRecordDetail `json:"records"`
	Generated time.Time                       `json:"generated_at"`
}

// ExportFile is a rendered report ready to be sent as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
