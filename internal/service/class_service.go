package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/geoattend-api/internal/dto"
	"github.com/noah-isme/geoattend-api/internal/models"
	"github.com/noah-isme/geoattend-api/pkg/database"
	appErrors "github.com/noah-isme/geoattend-api/pkg/errors"
	"github.com/noah-isme/geoattend-api/pkg/geo"
)

const (
	classCodeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	classCodeLength      = 6
	classCodeMaxAttempts = 5
)

type classRepository interface {
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindByCode(ctx context.Context, code string) (*models.Class, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	ListByTeacher(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, int, error)
}

type classRosterReader interface {
	Exists(ctx context.Context, classID, studentID string) (bool, error)
	ListStudents(ctx context.Context, classID string) ([]models.ClassStudent, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ClassService manages teacher-owned classes and their geofences.
type ClassService struct {
	repo      classRepository
	roster    classRosterReader
	audit     auditWriter
	cache     *CacheService
	codeTTL   time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	newCode   func() (string, error)
}

// NewClassService constructs ClassService. cache may be nil.
func NewClassService(repo classRepository, roster classRosterReader, audit auditWriter, cache *CacheService, codeTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{
		repo:      repo,
		roster:    roster,
		audit:     audit,
		cache:     cache,
		codeTTL:   codeTTL,
		validator: validate,
		logger:    logger,
		newCode:   generateClassCode,
	}
}

// Create registers a class owned by teacherID. A join code is generated when none is supplied.
func (s *ClassService) Create(ctx context.Context, teacherID string, req dto.ClassRequest) (*models.Class, error) {
	class := &models.Class{TeacherID: teacherID}
	if err := s.apply(class, req); err != nil {
		return nil, err
	}

	code, err := s.reserveCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	class.Code = code

	if err := s.repo.Create(ctx, class); err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "class code already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}

	s.recordAudit(ctx, teacherID, models.AuditActionClassCreate, class.ID, nil, class)
	return class, nil
}

// Update edits the name, fence and schedule of a class. Statuses already
// recorded are left as they are.
func (s *ClassService) Update(ctx context.Context, teacherID, classID string, req dto.ClassRequest) (*models.Class, error) {
	class, err := s.ownedClass(ctx, teacherID, classID)
	if err != nil {
		return nil, err
	}
	before := *class

	if err := s.apply(class, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}

	s.cache.Delete(ctx, classCodeCacheKey(class.Code))
	s.cache.Invalidate(ctx, classReportCachePattern(class.ID))
	s.recordAudit(ctx, teacherID, models.AuditActionClassUpdate, class.ID, &before, class)
	return class, nil
}

// ListByTeacher returns the teacher's classes with roster sizes.
func (s *ClassService) ListByTeacher(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, *models.Pagination, error) {
	classes, total, err := s.repo.ListByTeacher(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	if classes == nil {
		classes = []models.ClassSummary{}
	}
	return classes, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a class visible to the caller: its teacher or an enrolled student.
func (s *ClassService) Get(ctx context.Context, classID string, claims *models.JWTClaims) (*models.Class, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	class, err := s.findClass(ctx, classID)
	if err != nil {
		return nil, err
	}

	switch claims.Role {
	case models.RoleTeacher:
		if class.TeacherID == claims.UserID {
			return class, nil
		}
	case models.RoleStudent:
		enrolled, err := s.roster.Exists(ctx, class.ID, claims.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if enrolled {
			return class, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrForbidden, "no access to this class")
}

// FindByCode resolves a join code case-insensitively.
func (s *ClassService) FindByCode(ctx context.Context, code string) (*models.Class, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class code is required")
	}

	var cached models.Class
	if s.cache.Get(ctx, classCodeCacheKey(code), &cached) {
		return &cached, nil
	}

	class, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	s.cache.Set(ctx, classCodeCacheKey(code), class, s.codeTTL)
	return class, nil
}

// ListStudents returns the roster of a class owned by teacherID.
func (s *ClassService) ListStudents(ctx context.Context, teacherID, classID string) ([]models.ClassStudent, error) {
	if _, err := s.ownedClass(ctx, teacherID, classID); err != nil {
		return nil, err
	}
	students, err := s.roster.ListStudents(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

func (s *ClassService) apply(class *models.Class, req dto.ClassRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	fence := geo.Fence{
		Center:       geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude},
		RadiusMeters: req.RadiusMeters,
	}
	if err := fence.Validate(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class location")
	}

	checkIn, err := parseOptionalTimeOfDay(req.CheckInTime)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check_in_time")
	}
	checkOut, err := parseOptionalTimeOfDay(req.CheckOutTime)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check_out_time")
	}

	class.Name = strings.TrimSpace(req.Name)
	class.LocationLatitude = fence.Center.Latitude
	class.LocationLongitude = fence.Center.Longitude
	class.LocationRadius = fence.RadiusMeters
	class.LocationAddress = strings.TrimSpace(req.Address)
	class.CheckInTime = checkIn
	class.CheckOutTime = checkOut
	return nil
}

func (s *ClassService) reserveCode(ctx context.Context, requested string) (string, error) {
	if requested = strings.ToUpper(strings.TrimSpace(requested)); requested != "" {
		taken, err := s.repo.ExistsByCode(ctx, requested)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class code")
		}
		if taken {
			return "", appErrors.Clone(appErrors.ErrConflict, "class code already in use")
		}
		return requested, nil
	}

	for attempt := 0; attempt < classCodeMaxAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate class code")
		}
		taken, err := s.repo.ExistsByCode(ctx, code)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class code")
		}
		if !taken {
			return code, nil
		}
		s.logger.Debug("generated class code collided", zap.String("code", code), zap.Int("attempt", attempt+1))
	}
	return "", appErrors.Clone(appErrors.ErrConflict, "could not allocate a unique class code")
}

func (s *ClassService) findClass(ctx context.Context, classID string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func (s *ClassService) ownedClass(ctx context.Context, teacherID, classID string) (*models.Class, error) {
	class, err := s.findClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if class.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class belongs to another teacher")
	}
	return class, nil
}

func (s *ClassService) recordAudit(ctx context.Context, userID, action, classID string, before, after *models.Class) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{UserID: &userID, Action: action, Resource: "class", ResourceID: &classID}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record class audit log", zap.String("action", action), zap.Error(err))
	}
}

func parseOptionalTimeOfDay(raw *string) (*models.TimeOfDay, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := models.ParseTimeOfDay(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func generateClassCode() (string, error) {
	limit := big.NewInt(int64(len(classCodeAlphabet)))
	buf := make([]byte, classCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = classCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
