// Package codes provides the access code handlers.
package codes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
)

// SetupRoutes registers the access code routes.
func SetupRoutes(router chi.Router, lifecycle *accesscode.Lifecycle, logger *slog.Logger) error {
	handlers := NewHandlers(lifecycle, logger)

	router.Route("/access-code", func(r chi.Router) {
		r.Get("/generate", handlers.Generate)
		r.Post("/validate", handlers.Validate)
		r.Post("/assign", handlers.Assign)
	})

	router.Get("/dashboard/access-codes", handlers.List)

	return nil
}
