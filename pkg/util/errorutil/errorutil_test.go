package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{nil, KindNone},
		{NewValidationError("bad", nil), KindValidation},
		{NewUnprocessable("bad", nil), KindValidation},
		{NewUnauthorized("who"), KindAuth},
		{NewForbidden("no"), KindAuth},
		{NewNotFound("ticket", nil), KindNotFound},
		{NewConflict("taken", nil), KindConflict},
		{NewStorageError(errors.New("conn reset")), KindStorage},
		{errors.New("plain"), KindInternal},
		{fmt.Errorf("wrapped: %w", NewConflict("taken", nil)), KindConflict},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, KindOf(tc.err), "%v", tc.err)
	}
}

func TestStorageErrorHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	err := ToDomainError(NewStorageError(cause))

	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
	assert.Equal(t, storageUnavailableMessage, err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	err := ToDomainError(errors.New("boom"))
	assert.Equal(t, CodeInternal, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.Nil(t, ToDomainError(nil))
}

func TestNotFoundMessage(t *testing.T) {
	err := ToDomainError(NewNotFound("ticket", map[string]any{"ticket_id": "TK-2025-HA-001"}))
	assert.Equal(t, "ticket not found", err.Message)
	assert.Equal(t, "TK-2025-HA-001", err.Details["ticket_id"])
}

type sample struct {
	TicketID string `json:"ticket_id" validate:"required"`
	Status   string `json:"status" validate:"omitempty,oneof=yet_to_open in_progress resolved"`
	Count    int    `json:"count" validate:"omitempty,gt=0"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(sample{TicketID: "TK-2025-HA-001"}, http.StatusBadRequest))

	err := ValidateStruct(sample{Status: "lost"}, http.StatusUnprocessableEntity)
	require.Error(t, err)
	domainErr := ToDomainError(err)
	assert.Equal(t, CodeValidation, domainErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, domainErr.HTTPStatus)

	fields := domainErr.Details["fields"].(map[string]any)
	assert.Equal(t, "ticket_id is required", fields["ticket_id"])
	assert.Equal(t, "invalid status. Choose from: yet_to_open, in_progress, resolved", fields["status"])
	assert.NotContains(t, fields, "count")
}
