package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
	"github.com/leapstack-labs/bustracker/internal/migrate"
	"github.com/leapstack-labs/bustracker/internal/provision"
	"github.com/leapstack-labs/bustracker/internal/schema"
	"github.com/leapstack-labs/bustracker/internal/sheets"
	"github.com/leapstack-labs/bustracker/internal/testutil"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"bad request", fmt.Errorf("%w: x", ErrBadRequest), http.StatusBadRequest},
		{"invalid input", accesscode.ErrInvalidInput, http.StatusBadRequest},
		{"invalid provisioning request", &provision.StageError{Stage: provision.StageValidate, Err: provision.ErrInvalidRequest}, http.StatusBadRequest},
		{"no credential", sheets.ErrNoCredential, http.StatusUnauthorized},
		{"no credential inside migration", &migrate.Error{Kind: migrate.ErrResourceRead, Err: sheets.ErrNoCredential}, http.StatusUnauthorized},
		{"race lost", fmt.Errorf("%w: %w", accesscode.ErrInvalidCode, accesscode.ErrRaceLost), http.StatusConflict},
		{"invalid code", accesscode.ErrInvalidCode, http.StatusConflict},
		{"rejected used", fmt.Errorf("%w: %w", accesscode.ErrCodeRejected, accesscode.ErrAlreadyUsed), http.StatusConflict},
		{"rejected expired", fmt.Errorf("%w: %w", accesscode.ErrCodeRejected, accesscode.ErrExpired), http.StatusForbidden},
		{"rejected unknown", fmt.Errorf("%w: %w", accesscode.ErrCodeRejected, accesscode.ErrNotFound), http.StatusForbidden},
		{"schema not loaded", &migrate.Error{Kind: migrate.ErrSchemaNotLoaded, Err: schema.ErrNotLoaded}, http.StatusServiceUnavailable},
		{"registry not loaded", schema.ErrNotLoaded, http.StatusServiceUnavailable},
		{"sheet not found", &migrate.Error{Kind: migrate.ErrResourceRead, Err: sheets.ErrNotFound}, http.StatusNotFound},
		{"remote", sheets.ErrRemote, http.StatusBadGateway},
		{"header write", &migrate.Error{Kind: migrate.ErrHeaderWrite, Err: errors.New("x")}, http.StatusBadGateway},
		{"partial migration", &migrate.Error{Kind: migrate.ErrVersionWrite, Err: errors.New("x"), Partial: true}, http.StatusBadGateway},
		{"deadline", fmt.Errorf("read: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestWriteError(t *testing.T) {
	err := &provision.StageError{
		Stage: provision.StageValidate,
		Err:   fmt.Errorf("%w: expired: %w", accesscode.ErrCodeRejected, accesscode.ErrExpired),
	}

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/provision", nil), testutil.NewTestLogger(t), err)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "validate", body.Stage)
	assert.Equal(t, "expired", body.Reason)
	assert.False(t, body.Retryable)
	assert.Contains(t, body.Error, "provision validate")
}

func TestWriteError_Retryable(t *testing.T) {
	rec := httptest.NewRecorder()
	err := &migrate.Error{ResourceID: "r1", Kind: migrate.ErrVersionWrite, Err: sheets.ErrRemote, Partial: true}
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/sheets/migrate", nil), testutil.NewTestLogger(t), err)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Retryable)
	assert.Contains(t, body.Error, "partial migration")
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Code string `json:"code"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"abc"}`))
	require.NoError(t, DecodeJSON(req, &v))
	assert.Equal(t, "abc", v.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.ErrorIs(t, DecodeJSON(req, &v), ErrBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.ErrorIs(t, DecodeJSON(req, &v), ErrBadRequest)
}

func TestRequired(t *testing.T) {
	assert.NoError(t, Required("a", "x", "b", "y"))

	err := Required("a", "x", "email", "  ")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Contains(t, err.Error(), "email is required")
}
