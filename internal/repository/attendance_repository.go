package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/geoattend-api/internal/models"
	"github.com/noah-isme/geoattend-api/pkg/database"
	appErrors "github.com/noah-isme/geoattend-api/pkg/errors"
)

const (
	attendanceColumns = `id, class_id, student_id, check_in_time, check_in_latitude, check_in_longitude, check_out_time, check_out_latitude, check_out_longitude, status, created_at, updated_at`

	openSessionConstraint = "uq_attendance_open_session"
)

// AttendanceRepository persists check-in/check-out records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Create inserts a check-in. A concurrent second open session for the same
// student and class is reported as appErrors.ErrAlreadyCheckedIn.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO attendance_records (id, class_id, student_id, check_in_time, check_in_latitude, check_in_longitude, status, created_at, updated_at)
        VALUES (:id, :class_id, :student_id, :check_in_time, :check_in_latitude, :check_in_longitude, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if database.IsUniqueViolation(err, openSessionConstraint) {
			return appErrors.ErrAlreadyCheckedIn
		}
		return fmt.Errorf("create attendance record: %w", err)
	}
	return nil
}

// FindByID returns a record by its identifier.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE id = $1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindOpen returns the student's session in the class that has not been checked out yet.
func (r *AttendanceRepository) FindOpen(ctx context.Context, classID, studentID string) (*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE class_id = $1 AND student_id = $2 AND check_out_time IS NULL ORDER BY check_in_time DESC LIMIT 1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, classID, studentID); err != nil {
		return nil, err
	}
	return &record, nil
}

// CloseCheckOut records the check-out on an open record. It returns false
// when the record was already closed by another request.
func (r *AttendanceRepository) CloseCheckOut(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance_records SET check_out_time = :check_out_time, check_out_latitude = :check_out_latitude,
        check_out_longitude = :check_out_longitude, status = :status, updated_at = :updated_at
        WHERE id = :id AND check_out_time IS NULL`
	res, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return false, fmt.Errorf("close attendance record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close attendance record: %w", err)
	}
	return affected == 1, nil
}

// List returns records joined with student and class names, newest check-in first.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	base, args := attendanceBase(filter)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, u.full_name AS student_name, u.email AS student_email, c.name AS class_name
        %s ORDER BY a.check_in_time DESC LIMIT %d OFFSET %d`, prefixed("a", attendanceColumns), base, size, offset)
	records := []models.AttendanceRecordDetail{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// ListAll returns every matching record without pagination. Used for reports.
func (r *AttendanceRepository) ListAll(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error) {
	base, args := attendanceBase(filter)
	query := fmt.Sprintf(`SELECT %s, u.full_name AS student_name, u.email AS student_email, c.name AS class_name
        %s ORDER BY a.check_in_time DESC`, prefixed("a", attendanceColumns), base)
	records := []models.AttendanceRecordDetail{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance report rows: %w", err)
	}
	return records, nil
}

type statusCount struct {
	Status models.AttendanceStatus `db:"status"`
	Count  int                     `db:"count"`
}

// CountByStatus aggregates the matching records per status.
func (r *AttendanceRepository) CountByStatus(ctx context.Context, filter models.AttendanceFilter) (map[models.AttendanceStatus]int, error) {
	base, args := attendanceBase(filter)
	query := "SELECT a.status, COUNT(*) AS count " + base + " GROUP BY a.status"
	var rows []statusCount
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count attendance by status: %w", err)
	}
	counts := make(map[models.AttendanceStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func attendanceBase(filter models.AttendanceFilter) (string, []interface{}) {
	base := `FROM attendance_records a
JOIN users u ON u.id = a.student_id
JOIN classes c ON c.id = a.class_id`
	where := []string{"1=1"}
	var args []interface{}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("a.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("a.check_in_time >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("a.check_in_time < $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	return base + " WHERE " + strings.Join(where, " AND "), args
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
