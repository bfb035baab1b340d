package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelsMatchByCode(t *testing.T) {
	err := fmt.Errorf("decide step: %w", NewConcurrencyConflict("approval step", "s-1"))

	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.NotErrorIs(t, err, ErrStepAlreadyDecided)
	assert.NotErrorIs(t, errors.New("plain"), ErrNotFound)
}

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"domain error kept", NewRejectionCommentRequired(), CodeRejectionComment, http.StatusBadRequest},
		{"wrapped domain error", fmt.Errorf("outer: %w", NewForbidden("no")), CodeForbidden, http.StatusForbidden},
		{"no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), CodeNotFound, http.StatusNotFound},
		{"unknown", errors.New("connection reset"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDomainError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.status, got.HTTPStatus)
		})
	}
}

func TestToDomainErrorLeavesSentinelsUntouched(t *testing.T) {
	got := ToDomainError(ErrValidation)
	assert.Equal(t, http.StatusInternalServerError, got.HTTPStatus)
	assert.Zero(t, ErrValidation.HTTPStatus)
}

func TestMapErrorNil(t *testing.T) {
	assert.NoError(t, MapError(nil))
	assert.Nil(t, ToDomainError(nil))
}

func TestInvalidTransitionDetails(t *testing.T) {
	var domainErr *DomainError
	require.ErrorAs(t, NewInvalidTransition("CLOSED", "PAID", nil), &domainErr)
	assert.Equal(t, http.StatusConflict, domainErr.HTTPStatus)
	assert.Equal(t, []string{}, domainErr.Details["allowed"])
	assert.Equal(t, "cannot transition from CLOSED to PAID", domainErr.Error())
}
