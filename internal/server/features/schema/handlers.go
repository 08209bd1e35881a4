package schema

import (
	"log/slog"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/bustracker/internal/schema"
	"github.com/leapstack-labs/bustracker/internal/server/features/common"
)

// Signals are pushed to datastar clients on every schema reload.
type Signals struct {
	SchemaVersion string   `json:"schemaVersion"`
	Columns       []string `json:"columns"`
}

// Response is returned by GET /schema.
type Response struct {
	Version string          `json:"version"`
	Columns []schema.Column `json:"columns"`
}

// Handlers provides HTTP handlers for the schema.
type Handlers struct {
	registry *schema.Registry
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(registry *schema.Registry, logger *slog.Logger) *Handlers {
	return &Handlers{registry: registry, logger: logger}
}

// Current returns the loaded schema definition.
func (h *Handlers) Current(w http.ResponseWriter, r *http.Request) {
	def, err := h.registry.Snapshot()
	if err != nil {
		common.WriteError(w, r, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, Response{Version: def.Version.String(), Columns: def.Columns})
}

// Events streams the schema version and columns, once on connect and again
// after every successful reload.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	// subscribe before the first send so no reload is missed
	updates, cancel := h.registry.Changes().Subscribe()
	defer cancel()

	sse := datastar.NewSSE(w, r)
	if err := h.sendSignals(sse); err != nil {
		_ = sse.ConsoleError(err)
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			if err := h.sendSignals(sse); err != nil {
				_ = sse.ConsoleError(err)
			}
		}
	}
}

func (h *Handlers) sendSignals(sse *datastar.ServerSentEventGenerator) error {
	version, columns, err := h.registry.Current()
	if err != nil {
		return err
	}
	return sse.MarshalAndPatchSignals(Signals{SchemaVersion: version.String(), Columns: columns})
}
