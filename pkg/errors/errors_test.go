package errors

import (
	"database/sql"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsCodeAndMatches(t *testing.T) {
	err := Clone(ErrOutsideGeofence, "outside allowed location (412m from class)")
	assert.Equal(t, "OUTSIDE_GEOFENCE", err.Code)
	assert.Equal(t, http.StatusForbidden, err.Status)
	assert.True(t, stdErrors.Is(err, ErrOutsideGeofence))
	assert.False(t, stdErrors.Is(err, ErrForbidden))
	assert.Equal(t, "outside allowed location", ErrOutsideGeofence.Message)
}

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	err := FromError(fmt.Errorf("query: %w", sql.ErrConnDone))
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.ErrorIs(t, err, sql.ErrConnDone)

	wrapped := fmt.Errorf("join: %w", ErrAlreadyEnrolled)
	assert.Same(t, ErrAlreadyEnrolled, FromError(wrapped))
	assert.Nil(t, FromError(nil))
}

func TestWithDetailDoesNotMutateTemplate(t *testing.T) {
	first := WithDetail(ErrOutsideGeofence, "distance_meters", 412.5)
	second := WithDetail(first, "radius_meters", 100.0)

	assert.Nil(t, ErrOutsideGeofence.Details)
	assert.Len(t, first.Details, 1)
	assert.Equal(t, 412.5, second.Details["distance_meters"])
	assert.Equal(t, 100.0, second.Details["radius_meters"])
	assert.True(t, stdErrors.Is(second, ErrOutsideGeofence))
}
