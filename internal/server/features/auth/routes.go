// Package auth provides the Google OAuth sign-in handlers.
package auth

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"
)

// SetupRoutes registers the OAuth routes.
func SetupRoutes(router chi.Router, oauth *oauth2.Config, sessionStore sessions.Store, logger *slog.Logger) error {
	handlers := NewHandlers(oauth, sessionStore, logger)

	router.Route("/auth/google", func(r chi.Router) {
		r.Get("/", handlers.Start)
		r.Get("/callback", handlers.Callback)
	})

	return nil
}
