package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/geoattend-api/internal/dto"
	"github.com/noah-isme/geoattend-api/internal/models"
	appErrors "github.com/noah-isme/geoattend-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	members map[string]bool
	created *models.Enrollment
	joined  []models.EnrolledClass
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	key := enrollment.ClassID + "/" + enrollment.StudentID
	if m.members[key] {
		return appErrors.ErrAlreadyEnrolled
	}
	if m.members == nil {
		m.members = make(map[string]bool)
	}
	m.members[key] = true
	enrollment.ID = "enroll-1"
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) ListForStudent(ctx context.Context, studentID string) ([]models.EnrolledClass, error) {
	return m.joined, nil
}

func newTestEnrollmentService(repo *mockEnrollmentRepo, audit *mockAuditWriter) *EnrollmentService {
	classes := newTestClassService(&mockClassRepo{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Code: "PHYS01", Name: "Physics", TeacherID: "teacher-1"},
	}}, &mockRoster{}, nil, nil)
	return NewEnrollmentService(repo, classes, audit, validator.New(), zap.NewNop())
}

func TestEnrollmentServiceJoin(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	audit := &mockAuditWriter{}
	svc := newTestEnrollmentService(repo, audit)

	joined, err := svc.Join(context.Background(), "student-1", dto.JoinClassRequest{Code: " phys01 "})
	require.NoError(t, err)
	assert.Equal(t, "class-1", joined.Class.ID)
	assert.Equal(t, "student-1", joined.Enrollment.StudentID)
	require.NotNil(t, repo.created)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionClassJoin, audit.logs[0].Action)
	assert.JSONEq(t, `{"code":"PHYS01"}`, string(audit.logs[0].NewValues))
}

func TestEnrollmentServiceJoinTwice(t *testing.T) {
	repo := &mockEnrollmentRepo{members: map[string]bool{"class-1/student-1": true}}
	svc := newTestEnrollmentService(repo, nil)

	_, err := svc.Join(context.Background(), "student-1", dto.JoinClassRequest{Code: "PHYS01"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
}

func TestEnrollmentServiceJoinUnknownCode(t *testing.T) {
	svc := newTestEnrollmentService(&mockEnrollmentRepo{}, nil)

	_, err := svc.Join(context.Background(), "student-1", dto.JoinClassRequest{Code: "NOPE00"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Join(context.Background(), "student-1", dto.JoinClassRequest{Code: "  "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceListForStudent(t *testing.T) {
	repo := &mockEnrollmentRepo{joined: []models.EnrolledClass{{TeacherName: "Ibu Sari"}}}
	svc := newTestEnrollmentService(repo, nil)

	classes, err := svc.ListForStudent(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "Ibu Sari", classes[0].TeacherName)
}
