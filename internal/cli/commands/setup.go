package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
	"github.com/leapstack-labs/bustracker/internal/cli/config"
	"github.com/leapstack-labs/bustracker/internal/migrate"
	"github.com/leapstack-labs/bustracker/internal/provision"
	"github.com/leapstack-labs/bustracker/internal/schema"
	"github.com/leapstack-labs/bustracker/internal/sheets"
	"github.com/leapstack-labs/bustracker/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger

	State *state.Store
	Codes *accesscode.Lifecycle

	// Set by NewCommandContext only.
	Registry     *schema.Registry
	Sheets       sheets.Store
	OAuth        *oauth2.Config
	Credentials  sheets.CredentialProvider
	Engine       *migrate.Engine
	Orchestrator *provision.Orchestrator
	TemplateID   string
}

// ContextOption configures NewCommandContext.
type ContextOption func(*contextOptions)

type contextOptions struct {
	schemaOptional bool
}

// SchemaOptional lets NewCommandContext succeed when the schema file cannot
// be loaded. The registry is returned unloaded.
func SchemaOptional() ContextOption {
	return func(o *contextOptions) { o.schemaOptional = true }
}

// NewCodesContext creates a CommandContext with only the access code store.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCodesContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)

	st, codes, err := openCodes(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	return &CommandContext{
		Cfg:    cfg,
		Logger: logger,
		State:  st,
		Codes:  codes,
	}, func() { _ = st.Close() }, nil
}

// NewCommandContext creates a CommandContext with the full provisioning
// stack: schema registry, access codes, sheet store, migration engine and
// orchestrator.
func NewCommandContext(cmd *cobra.Command, opts ...ContextOption) (*CommandContext, func(), error) {
	var o contextOptions
	for _, opt := range opts {
		opt(&o)
	}

	cc, cleanup, err := NewCodesContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	cfg := cc.Cfg

	cc.Registry = schema.NewRegistry(schema.NewFileSource(cfg.SchemaPath), schema.WithLogger(cc.Logger))
	if err := cc.Registry.Load(ctx); err != nil {
		if !o.schemaOptional {
			cleanup()
			return nil, nil, err
		}
		cc.Logger.Warn("schema not loaded", slog.String("path", cfg.SchemaPath), slog.String("error", err.Error()))
	}

	cc.OAuth = sheets.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	cc.TemplateID = cfg.Google.MasterTemplateID

	switch cfg.Sheets.Store {
	case config.StoreMemory:
		if cc.TemplateID == "" {
			cc.TemplateID = config.DefaultMemoryTemplate
		}
		cc.Sheets = newMemoryStore(cc.Registry, cfg.Sheets.Layout(), cc.TemplateID)
		cc.Credentials = sheets.CredentialFunc(func(context.Context) (sheets.Credential, error) {
			return sheets.Credential{Subject: "memory"}, nil
		})
	default:
		cc.Sheets = sheets.NewGoogleStore(cc.OAuth, cc.Logger)
		cc.Credentials = sheets.NewStaticCredentials("config", cfg.Google.RefreshToken)
	}

	cc.Engine = migrate.New(cc.Sheets, cc.Registry, cfg.Sheets.Layout(), cc.Logger)
	cc.Orchestrator = provision.New(cc.Codes, cc.Sheets, cc.Engine, cc.TemplateID,
		provision.WithNameFormat(cfg.Sheets.NameFormat),
		provision.WithLogger(cc.Logger),
	)

	return cc, cleanup, nil
}

// Credential resolves the credential used for remote calls.
func (c *CommandContext) Credential(ctx context.Context) (sheets.Credential, error) {
	return c.Credentials.CurrentCredential(ctx)
}

// RemoteContext bounds ctx by the configured remote timeout.
func (c *CommandContext) RemoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Cfg.Server.RemoteTimeout)
}

func openCodes(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*state.Store, *accesscode.Lifecycle, error) {
	// Ensure state directory exists
	if file := cfg.StateFile(); file != "" {
		if dir := filepath.Dir(file); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	st, err := state.Open(ctx, cfg.State.Driver, cfg.State.DSN, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return st, accesscode.NewLifecycle(st, accesscode.WithLogger(logger)), nil
}

// newMemoryStore returns an in-memory store whose master template already
// matches the loaded schema. An unloaded registry leaves the template empty.
func newMemoryStore(reg *schema.Registry, layout migrate.Layout, templateID string) *sheets.MemoryStore {
	mem := sheets.NewMemoryStore()
	version, columns, err := reg.Current()
	if err != nil {
		return mem
	}
	mem.Put(templateID, layout.HeaderRange, columns...)
	mem.Put(templateID, layout.VersionRange, version.String())
	return mem
}

// configFrom returns the configuration loaded by the root command.
func configFrom(cmd *cobra.Command) *config.Config {
	return config.FromContext(cmd.Context())
}
