// Package server exposes the provisioning core over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
	"github.com/leapstack-labs/bustracker/internal/migrate"
	"github.com/leapstack-labs/bustracker/internal/provision"
	"github.com/leapstack-labs/bustracker/internal/schema"
	"github.com/leapstack-labs/bustracker/internal/server/features/common"
	"github.com/leapstack-labs/bustracker/internal/server/router"
	"github.com/leapstack-labs/bustracker/internal/sheets"
)

// DefaultRemoteTimeout bounds each request's remote calls.
const DefaultRemoteTimeout = 30 * time.Second

// Config holds configuration for the server.
type Config struct {
	Registry     *schema.Registry
	Lifecycle    *accesscode.Lifecycle
	Engine       *migrate.Engine
	Orchestrator *provision.Orchestrator
	Store        sheets.Store
	TemplateID   string
	OAuth        *oauth2.Config
	// Fallback is used when the caller's session has no token.
	Fallback      sheets.CredentialProvider
	Port          int
	SessionSecret string
	RemoteTimeout time.Duration
	// Watch enables schema hot reload.
	Watch  bool
	Logger *slog.Logger
}

// Server is the HTTP server.
type Server struct {
	cfg          Config
	sessionStore *sessions.CookieStore
	logger       *slog.Logger
}

// New creates a server instance.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.RemoteTimeout == 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	return &Server{
		cfg:          cfg,
		sessionStore: common.NewSessionStore(cfg.SessionSecret),
		logger:       cfg.Logger,
	}
}

// Handler builds the HTTP handler.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
	)

	err := router.SetupRoutes(r, router.Deps{
		Registry:      s.cfg.Registry,
		Lifecycle:     s.cfg.Lifecycle,
		Engine:        s.cfg.Engine,
		Orchestrator:  s.cfg.Orchestrator,
		Store:         s.cfg.Store,
		TemplateID:    s.cfg.TemplateID,
		OAuth:         s.cfg.OAuth,
		Sessions:      s.sessionStore,
		Credentials:   common.NewCredentials(s.sessionStore, s.cfg.Fallback),
		RemoteTimeout: s.cfg.RemoteTimeout,
		Logger:        s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("starting server", "addr", fmt.Sprintf("http://localhost:%d", s.cfg.Port))

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.Watch {
		eg.Go(func() error {
			if err := s.cfg.Registry.Watch(egctx); err != nil {
				s.logger.Error("schema watcher stopped", "error", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
