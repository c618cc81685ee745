package models

import (
	"time"

	"github.com/noah-isme/geoattend-api/pkg/geo"
)

// Class is a teacher-owned session bound to a geofence.
type Class struct {
	ID                string     `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	Code              string     `db:"code" json:"code"`
	TeacherID         string     `db:"teacher_id" json:"teacher_id"`
	LocationLatitude  float64    `db:"location_latitude" json:"location_latitude"`
	LocationLongitude float64    `db:"location_longitude" json:"location_longitude"`
	LocationRadius    float64    `db:"location_radius" json:"location_radius"`
	LocationAddress   string     `db:"location_address" json:"location_address"`
	CheckInTime       *TimeOfDay `db:"check_in_time" json:"check_in_time,omitempty"`
	CheckOutTime      *TimeOfDay `db:"check_out_time" json:"check_out_time,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Fence returns the class geofence.
func (c *Class) Fence() geo.Fence {
	return geo.Fence{
		Center:       geo.Point{Latitude: c.LocationLatitude, Longitude: c.LocationLongitude},
		RadiusMeters: c.LocationRadius,
	}
}

// ClassSummary extends Class with the enrolled student count.
type ClassSummary struct {
	Class
	StudentCount int `db:"student_count" json:"student_count"`
}

// EnrolledClass extends Class with the owning teacher's name.
type EnrolledClass struct {
	Class
	TeacherName string    `db:"teacher_name" json:"teacher_name"`
	EnrolledAt  time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	TeacherID string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
