package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/geoattend-api/internal/models"
)

const classColumns = `id, name, code, teacher_id, location_latitude, location_longitude, location_radius, location_address, check_in_time, check_out_time, created_at, updated_at`

// ClassRepository manages persistence for classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// ListByTeacher returns the classes a teacher owns together with their roster size.
func (r *ClassRepository) ListByTeacher(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, int, error) {
	base := "FROM classes c WHERE c.teacher_id = $1"
	args := []interface{}{filter.TeacherID}

	if filter.Search != "" {
		base += fmt.Sprintf(" AND (LOWER(c.name) LIKE $%d OR c.code LIKE $%d)", len(args)+1, len(args)+2)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%", "%"+strings.ToUpper(filter.Search)+"%")
	}

	allowedSorts := map[string]string{
		"name":       "c.name",
		"code":       "c.code",
		"created_at": "c.created_at",
		"updated_at": "c.updated_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.name, c.code, c.teacher_id, c.location_latitude, c.location_longitude, c.location_radius, c.location_address, c.check_in_time, c.check_out_time, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM class_enrollments e WHERE e.class_id = c.id) AS student_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, orderBy, order, size, offset)
	var classes []models.ClassSummary
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class record by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindByCode resolves a join code. Codes are stored upper-case.
func (r *ClassRepository) FindByCode(ctx context.Context, code string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE code = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, strings.ToUpper(strings.TrimSpace(code))); err != nil {
		return nil, err
	}
	return &class, nil
}

// ExistsByCode checks if a join code is already taken.
func (r *ClassRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM classes WHERE code = $1 LIMIT 1", strings.ToUpper(code)); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class code: %w", err)
	}
	return true, nil
}

// Create persists a class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	class.Code = strings.ToUpper(class.Code)

	const query = `INSERT INTO classes (id, name, code, teacher_id, location_latitude, location_longitude, location_radius, location_address, check_in_time, check_out_time, created_at, updated_at)
        VALUES (:id, :name, :code, :teacher_id, :location_latitude, :location_longitude, :location_radius, :location_address, :check_in_time, :check_out_time, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies the editable fields of a class. The join code never changes.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, location_latitude = :location_latitude, location_longitude = :location_longitude,
        location_radius = :location_radius, location_address = :location_address, check_in_time = :check_in_time,
        check_out_time = :check_out_time, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}
