// Package sheets provides the sheet creation and migration handlers.
package sheets

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/bustracker/internal/migrate"
	"github.com/leapstack-labs/bustracker/internal/server/features/common"
	sheetstore "github.com/leapstack-labs/bustracker/internal/sheets"
)

// Config wires the sheet handlers.
type Config struct {
	Store       sheetstore.Store
	Engine      *migrate.Engine
	Credentials *common.Credentials
	TemplateID  string
	// SheetName builds the name of a school's new sheet.
	SheetName func(school string) string
	Logger    *slog.Logger
}

// SetupRoutes registers the sheet routes.
func SetupRoutes(router chi.Router, cfg Config) error {
	handlers := NewHandlers(cfg)

	router.Route("/sheets", func(r chi.Router) {
		r.Post("/create", handlers.Create)
		r.Post("/migrate", handlers.Migrate)
	})

	return nil
}
