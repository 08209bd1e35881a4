// Package schema provides the schema inspection and live reload handlers.
package schema

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/bustracker/internal/schema"
)

// SetupRoutes registers the schema routes. The events route is long-lived
// and must not sit behind a request timeout.
func SetupRoutes(router chi.Router, registry *schema.Registry, logger *slog.Logger) error {
	handlers := NewHandlers(registry, logger)
	router.Get("/schema", handlers.Current)
	return nil
}

// SetupStreamRoutes registers the SSE routes.
func SetupStreamRoutes(router chi.Router, registry *schema.Registry, logger *slog.Logger) error {
	handlers := NewHandlers(registry, logger)
	router.Get("/schema/events", handlers.Events)
	return nil
}
