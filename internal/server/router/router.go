// Package router sets up HTTP routes for the server.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
	"github.com/leapstack-labs/bustracker/internal/migrate"
	"github.com/leapstack-labs/bustracker/internal/provision"
	"github.com/leapstack-labs/bustracker/internal/schema"
	authFeature "github.com/leapstack-labs/bustracker/internal/server/features/auth"
	codesFeature "github.com/leapstack-labs/bustracker/internal/server/features/codes"
	"github.com/leapstack-labs/bustracker/internal/server/features/common"
	provisionFeature "github.com/leapstack-labs/bustracker/internal/server/features/provision"
	schemaFeature "github.com/leapstack-labs/bustracker/internal/server/features/schema"
	sheetsFeature "github.com/leapstack-labs/bustracker/internal/server/features/sheets"
	"github.com/leapstack-labs/bustracker/internal/sheets"
)

// Deps are the components the routes are served from.
type Deps struct {
	Registry     *schema.Registry
	Lifecycle    *accesscode.Lifecycle
	Engine       *migrate.Engine
	Orchestrator *provision.Orchestrator
	Store        sheets.Store
	TemplateID   string
	OAuth        *oauth2.Config
	Sessions     sessions.Store
	Credentials  *common.Credentials
	// RemoteTimeout bounds every non-streaming request.
	RemoteTimeout time.Duration
	Logger        *slog.Logger
}

// SetupRoutes configures all routes.
func SetupRoutes(router chi.Router, deps Deps) error {
	router.Get("/api", func(w http.ResponseWriter, _ *http.Request) {
		common.WriteJSON(w, http.StatusOK, map[string]string{"message": "Hello from the BusTracker server!"})
	})

	// Streaming routes stay outside the request timeout
	if err := schemaFeature.SetupStreamRoutes(router, deps.Registry, deps.Logger); err != nil {
		return err
	}

	var setupErr error
	router.Group(func(r chi.Router) {
		if deps.RemoteTimeout > 0 {
			r.Use(middleware.Timeout(deps.RemoteTimeout))
		}

		setup := []func() error{
			func() error { return authFeature.SetupRoutes(r, deps.OAuth, deps.Sessions, deps.Logger) },
			func() error { return codesFeature.SetupRoutes(r, deps.Lifecycle, deps.Logger) },
			func() error {
				return sheetsFeature.SetupRoutes(r, sheetsFeature.Config{
					Store:       deps.Store,
					Engine:      deps.Engine,
					Credentials: deps.Credentials,
					TemplateID:  deps.TemplateID,
					SheetName:   deps.Orchestrator.SheetName,
					Logger:      deps.Logger,
				})
			},
			func() error { return provisionFeature.SetupRoutes(r, deps.Orchestrator, deps.Credentials, deps.Logger) },
			func() error { return schemaFeature.SetupRoutes(r, deps.Registry, deps.Logger) },
		}
		for _, fn := range setup {
			if err := fn(); err != nil {
				setupErr = err
				return
			}
		}
	})

	return setupErr
}
