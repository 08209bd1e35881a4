// Package provision provides the one-shot school provisioning handler.
package provision

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/bustracker/internal/provision"
	"github.com/leapstack-labs/bustracker/internal/server/features/common"
)

// SetupRoutes registers the provisioning route.
func SetupRoutes(router chi.Router, orch *provision.Orchestrator, creds *common.Credentials, logger *slog.Logger) error {
	handlers := NewHandlers(orch, creds, logger)
	router.Post("/provision", handlers.Provision)
	return nil
}
