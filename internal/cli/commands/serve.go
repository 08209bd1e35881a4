package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/bustracker/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API serving access code, sheet and provisioning
endpoints. The schema file must load at startup. It is then watched and
reloaded on change; a schema that fails to reload leaves the previous one
in service.`,
		Example: `  # Start on the configured port
  bustracker serve

  # Start on a custom port without watching the schema file
  bustracker serve --port 3000 --watch=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cc)
		},
	}

	// Bound to server.port and server.watch by the config loader.
	cmd.Flags().Int("port", 0, "Port to serve on (default: 8080)")
	cmd.Flags().Bool("watch", true, "Reload the schema file when it changes")

	return cmd
}

func runServe(ctx context.Context, cc *CommandContext) error {
	cfg := cc.Cfg

	secret := cfg.Server.SessionSecret
	if secret == "" {
		secret = randomSecret()
		cc.Logger.Warn("server.session_secret not set; sessions will not survive a restart")
	}
	if cfg.Google.ClientID == "" {
		cc.Logger.Warn("google.client_id not set; OAuth sign-in is disabled")
	}

	srv := server.New(server.Config{
		Registry:      cc.Registry,
		Lifecycle:     cc.Codes,
		Engine:        cc.Engine,
		Orchestrator:  cc.Orchestrator,
		Store:         cc.Sheets,
		TemplateID:    cc.TemplateID,
		OAuth:         cc.OAuth,
		Fallback:      cc.Credentials,
		Port:          cfg.Server.Port,
		SessionSecret: secret,
		RemoteTimeout: cfg.Server.RemoteTimeout,
		Watch:         cfg.Server.Watch,
		Logger:        cc.Logger,
	})

	cc.Logger.Info("serving",
		slog.String("schema", cfg.SchemaPath),
		slog.String("store", cfg.Sheets.Store),
		slog.String("state", string(cc.State.Dialect())))
	return srv.Serve(ctx)
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
