package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusAbsent:
		return true
	default:
		return false
	}
}

// AttendanceRecord is a single check-in, optionally closed by a check-out.
type AttendanceRecord struct {
	ID                string           `db:"id" json:"id"`
	ClassID           string           `db:"class_id" json:"class_id"`
	StudentID         string           `db:"student_id" json:"student_id"`
	CheckInTime       time.Time        `db:"check_in_time" json:"check_in_time"`
	CheckInLatitude   float64          `db:"check_in_latitude" json:"check_in_latitude"`
	CheckInLongitude  float64          `db:"check_in_longitude" json:"check_in_longitude"`
	CheckOutTime      *time.Time       `db:"check_out_time" json:"check_out_time,omitempty"`
	CheckOutLatitude  *float64         `db:"check_out_latitude" json:"check_out_latitude,omitempty"`
	CheckOutLongitude *float64         `db:"check_out_longitude" json:"check_out_longitude,omitempty"`
	Status            AttendanceStatus `db:"status" json:"status"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// CheckedOut reports whether the record has been closed.
func (r *AttendanceRecord) CheckedOut() bool {
	return r.CheckOutTime != nil
}

// AttendanceRecordDetail joins student and class names onto a record.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	ClassName    string `db:"class_name" json:"class_name"`
}

// AttendanceFilter scopes attendance listings.
type AttendanceFilter struct {
	ClassID   string
	StudentID string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// AttendanceSummary aggregates statuses.
type AttendanceSummary struct {
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
	Rate    int `json:"rate"`
}
