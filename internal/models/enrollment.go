package models

import "time"

// Enrollment captures a student's membership in a class.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// ClassStudent is a roster entry for a class.
type ClassStudent struct {
	StudentID  string    `db:"student_id" json:"student_id"`
	FullName   string    `db:"full_name" json:"full_name"`
	Email      string    `db:"email" json:"email"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// JoinedClass is returned after a student joins a class by code.
type JoinedClass struct {
	Enrollment Enrollment `json:"enrollment"`
	Class      Class      `json:"class"`
}
