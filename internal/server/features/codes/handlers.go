package codes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
	"github.com/leapstack-labs/bustracker/internal/server/features/common"
)

const maxBatch = 500

// ValidateRequest is the body of POST /access-code/validate.
type ValidateRequest struct {
	Code string `json:"code"`
}

// AssignRequest is the body of POST /access-code/assign.
type AssignRequest struct {
	Code       string `json:"code"`
	Email      string `json:"email"`
	SchoolName string `json:"schoolName"`
}

// GenerateResponse is returned by GET /access-code/generate.
type GenerateResponse struct {
	Code  string                   `json:"code"`
	Codes []*accesscode.AccessCode `json:"codes"`
}

// Handlers provides HTTP handlers for access codes.
type Handlers struct {
	lifecycle *accesscode.Lifecycle
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(lifecycle *accesscode.Lifecycle, logger *slog.Logger) *Handlers {
	return &Handlers{lifecycle: lifecycle, logger: logger}
}

// Generate creates one code, or ?count=n codes. ?expiresIn takes a Go
// duration such as 720h.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	count := 1
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxBatch {
			common.WriteError(w, r, h.logger, fmt.Errorf("%w: count must be between 1 and %d", common.ErrBadRequest, maxBatch))
			return
		}
		count = n
	}

	var opts []accesscode.GenerateOption
	if v := q.Get("expiresIn"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			common.WriteError(w, r, h.logger, fmt.Errorf("%w: invalid expiresIn %q", common.ErrBadRequest, v))
			return
		}
		opts = append(opts, accesscode.WithExpiry(d))
	}

	codes, err := h.lifecycle.GenerateBatch(r.Context(), count, opts...)
	if err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}

	common.WriteJSON(w, http.StatusOK, GenerateResponse{Code: codes[0].Code, Codes: codes})
}

// Validate evaluates a code without changing it.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}
	if err := common.Required("code", req.Code); err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}

	res, err := h.lifecycle.Evaluate(r.Context(), req.Code)
	if err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, res)
}

// Assign binds a code to a user and school.
func (h *Handlers) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}
	if err := common.Required("code", req.Code, "email", req.Email); err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}

	code, err := h.lifecycle.Assign(r.Context(), req.Code, req.Email, req.SchoolName)
	if err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, code)
}

// List returns every code for the dashboard.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	codes, err := h.lifecycle.List(r.Context())
	if err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}
	if codes == nil {
		codes = []*accesscode.AccessCode{}
	}
	common.WriteJSON(w, http.StatusOK, codes)
}
