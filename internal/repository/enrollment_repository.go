package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/geoattend-api/internal/models"
	"github.com/noah-isme/geoattend-api/pkg/database"
	appErrors "github.com/noah-isme/geoattend-api/pkg/errors"
)

// EnrollmentRepository handles persistence of class memberships.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create persists a new enrollment. A second enrollment of the same student
// into the same class yields appErrors.ErrAlreadyEnrolled.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_enrollments (id, class_id, student_id, enrolled_at) VALUES (:id, :class_id, :student_id, :enrolled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if database.IsUniqueViolation(err, "") {
			return appErrors.ErrAlreadyEnrolled
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Exists reports whether the student belongs to the class.
func (r *EnrollmentRepository) Exists(ctx context.Context, classID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM class_enrollments WHERE class_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// ListForStudent returns the classes a student joined, newest first.
func (r *EnrollmentRepository) ListForStudent(ctx context.Context, studentID string) ([]models.EnrolledClass, error) {
	const query = `SELECT c.id, c.name, c.code, c.teacher_id, c.location_latitude, c.location_longitude, c.location_radius, c.location_address,
        c.check_in_time, c.check_out_time, c.created_at, c.updated_at, u.full_name AS teacher_name, e.enrolled_at
        FROM class_enrollments e
        JOIN classes c ON c.id = e.class_id
        JOIN users u ON u.id = c.teacher_id
        WHERE e.student_id = $1
        ORDER BY e.enrolled_at DESC`
	classes := []models.EnrolledClass{}
	if err := r.db.SelectContext(ctx, &classes, query, studentID); err != nil {
		return nil, fmt.Errorf("list student classes: %w", err)
	}
	return classes, nil
}

// ListStudents returns the roster of a class ordered by name.
func (r *EnrollmentRepository) ListStudents(ctx context.Context, classID string) ([]models.ClassStudent, error) {
	const query = `SELECT e.student_id, u.full_name, u.email, e.enrolled_at
        FROM class_enrollments e
        JOIN users u ON u.id = e.student_id
        WHERE e.class_id = $1
        ORDER BY u.full_name ASC`
	students := []models.ClassStudent{}
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return students, nil
}
