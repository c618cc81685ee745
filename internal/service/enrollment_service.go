package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/geoattend-api/internal/dto"
	"github.com/noah-isme/geoattend-api/internal/models"
	appErrors "github.com/noah-isme/geoattend-api/pkg/errors"
)

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	ListForStudent(ctx context.Context, studentID string) ([]models.EnrolledClass, error)
}

type classCodeResolver interface {
	FindByCode(ctx context.Context, code string) (*models.Class, error)
}

// EnrollmentService lets students join classes by code.
type EnrollmentService struct {
	repo      enrollmentRepository
	classes   classCodeResolver
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, classes classCodeResolver, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, classes: classes, audit: audit, validator: validate, logger: logger}
}

// Join enrolls studentID into the class identified by the join code.
func (s *EnrollmentService) Join(ctx context.Context, studentID string, req dto.JoinClassRequest) (*models.JoinedClass, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid join payload")
	}

	class, err := s.classes.FindByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{ClassID: class.ID, StudentID: studentID}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if errors.Is(err, appErrors.ErrAlreadyEnrolled) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "already enrolled in this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join class")
	}

	if s.audit != nil {
		payload, _ := json.Marshal(map[string]string{"code": class.Code})
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &studentID,
			Action:     models.AuditActionClassJoin,
			Resource:   "class",
			ResourceID: &class.ID,
			NewValues:  payload,
		}); err != nil {
			s.logger.Warn("failed to record join audit log", zap.Error(err))
		}
	}

	return &models.JoinedClass{Enrollment: *enrollment, Class: *class}, nil
}

// ListForStudent returns the classes studentID has joined.
func (s *EnrollmentService) ListForStudent(ctx context.Context, studentID string) ([]models.EnrolledClass, error) {
	classes, err := s.repo.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}
