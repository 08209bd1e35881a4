package provision

import (
	"log/slog"
	"net/http"

	"github.com/leapstack-labs/bustracker/internal/provision"
	"github.com/leapstack-labs/bustracker/internal/server/features/common"
)

// Handlers provides the provisioning handler.
type Handlers struct {
	orch   *provision.Orchestrator
	creds  *common.Credentials
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(orch *provision.Orchestrator, creds *common.Credentials, logger *slog.Logger) *Handlers {
	return &Handlers{orch: orch, creds: creds, logger: logger}
}

// Provision validates the code, creates and migrates the school's sheet and
// consumes the code. Failures report the stage they happened in.
func (h *Handlers) Provision(w http.ResponseWriter, r *http.Request) {
	var req provision.Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}
	if err := common.Required("accessCode", req.Code, "email", req.Email, "schoolName", req.SchoolName); err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}

	cred, err := h.creds.ForRequest(r)
	if err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}

	res, err := h.orch.Provision(r.Context(), req, cred)
	if err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, res)
}
