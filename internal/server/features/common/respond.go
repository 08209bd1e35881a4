// Package common holds helpers shared by the HTTP feature packages.
package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
	"github.com/leapstack-labs/bustracker/internal/migrate"
	"github.com/leapstack-labs/bustracker/internal/provision"
	"github.com/leapstack-labs/bustracker/internal/schema"
	"github.com/leapstack-labs/bustracker/internal/sheets"
)

const maxBodyBytes = 1 << 20

// ErrBadRequest marks malformed or incomplete request bodies.
var ErrBadRequest = errors.New("bad request")

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Stage     string `json:"stage,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// Required returns an ErrBadRequest naming the first empty field, or nil.
// fields alternates names and values.
func Required(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", ErrBadRequest, fields[i])
		}
	}
	return nil
}

// StatusFor maps an error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, accesscode.ErrInvalidInput),
		errors.Is(err, provision.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, sheets.ErrNoCredential):
		return http.StatusUnauthorized
	case errors.Is(err, accesscode.ErrRaceLost),
		errors.Is(err, accesscode.ErrAlreadyUsed),
		errors.Is(err, accesscode.ErrInvalidCode):
		return http.StatusConflict
	case errors.Is(err, accesscode.ErrCodeRejected),
		errors.Is(err, accesscode.ErrNotFound),
		errors.Is(err, accesscode.ErrExpired):
		return http.StatusForbidden
	case errors.Is(err, migrate.ErrSchemaNotLoaded),
		errors.Is(err, schema.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, sheets.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, sheets.ErrRemote),
		errors.Is(err, migrate.ErrResourceRead),
		errors.Is(err, migrate.ErrHeaderWrite),
		errors.Is(err, migrate.ErrVersionWrite):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError logs err and writes it as an ErrorResponse.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(err)

	resp := ErrorResponse{
		Error:     err.Error(),
		Retryable: migrate.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded),
	}
	if stage, ok := provision.FailedStage(err); ok {
		resp.Stage = string(stage)
	}
	for _, reason := range []accesscode.Reason{accesscode.ReasonNotFound, accesscode.ReasonAlreadyUsed, accesscode.ReasonExpired} {
		if errors.Is(err, reason.Err()) {
			resp.Reason = string(reason)
			break
		}
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	WriteJSON(w, status, resp)
}
