package sheets

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/leapstack-labs/bustracker/internal/server/features/common"
)

// CreateRequest is the body of POST /sheets/create.
type CreateRequest struct {
	SchoolName string `json:"schoolName"`
}

// CreateResponse is returned by POST /sheets/create.
type CreateResponse struct {
	Message string `json:"message"`
	SheetID string `json:"sheetId"`
	Name    string `json:"name"`
}

// MigrateRequest is the body of POST /sheets/migrate.
type MigrateRequest struct {
	SheetID string `json:"sheetId"`
}

// MigrateResponse is returned by POST /sheets/migrate.
type MigrateResponse struct {
	Updated        bool     `json:"updated"`
	Message        string   `json:"message"`
	MissingColumns []string `json:"missingColumns,omitempty"`
	FromVersion    string   `json:"fromVersion"`
	ToVersion      string   `json:"toVersion"`
}

// Handlers provides HTTP handlers for sheets.
type Handlers struct {
	cfg Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg Config) *Handlers {
	if cfg.SheetName == nil {
		cfg.SheetName = func(school string) string { return fmt.Sprintf("%s BusTracker Data", school) }
	}
	return &Handlers{cfg: cfg}
}

// Create copies the master template for a school.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, h.cfg.Logger, err)
		return
	}
	if err := common.Required("schoolName", req.SchoolName); err != nil {
		common.WriteError(w, r, h.cfg.Logger, err)
		return
	}

	cred, err := h.cfg.Credentials.ForRequest(r)
	if err != nil {
		common.WriteError(w, r, h.cfg.Logger, err)
		return
	}

	name := h.cfg.SheetName(req.SchoolName)
	id, err := h.cfg.Store.CopyTemplate(r.Context(), cred, h.cfg.TemplateID, name)
	if err != nil {
		common.WriteError(w, r, h.cfg.Logger, err)
		return
	}

	h.cfg.Logger.Info("sheet created", slog.String("resource", id), slog.String("name", name))
	common.WriteJSON(w, http.StatusOK, CreateResponse{Message: "Sheet created successfully", SheetID: id, Name: name})
}

// Migrate brings a sheet up to the current schema.
func (h *Handlers) Migrate(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, h.cfg.Logger, err)
		return
	}
	if err := common.Required("sheetId", req.SheetID); err != nil {
		common.WriteError(w, r, h.cfg.Logger, err)
		return
	}

	cred, err := h.cfg.Credentials.ForRequest(r)
	if err != nil {
		common.WriteError(w, r, h.cfg.Logger, err)
		return
	}

	res, err := h.cfg.Engine.Migrate(r.Context(), req.SheetID, cred)
	if err != nil {
		common.WriteError(w, r, h.cfg.Logger, err)
		return
	}

	msg := "Sheet is up-to-date."
	if res.Updated {
		msg = "Migration complete"
	}
	common.WriteJSON(w, http.StatusOK, MigrateResponse{
		Updated:        res.Updated,
		Message:        msg,
		MissingColumns: res.MissingColumns,
		FromVersion:    res.FromVersion,
		ToVersion:      res.ToVersion,
	})
}
