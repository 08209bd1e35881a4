// Package config provides configuration management for the bustracker CLI.
//
// Values are layered with koanf: built-in defaults, then bustracker.yaml,
// then BUSTRACKER_ environment variables, then explicitly set flags.
package config

import (
	"time"

	"github.com/leapstack-labs/bustracker/internal/migrate"
	"github.com/leapstack-labs/bustracker/internal/provision"
	"github.com/leapstack-labs/bustracker/internal/sheets"
)

// Config holds all CLI configuration options.
type Config struct {
	SchemaPath string       `koanf:"schema_path"`
	Verbose    bool         `koanf:"verbose"`
	Format     string       `koanf:"format"`
	Log        LogConfig    `koanf:"log"`
	State      StateConfig  `koanf:"state"`
	Server     ServerConfig `koanf:"server"`
	Sheets     SheetsConfig `koanf:"sheets"`
	Google     GoogleConfig `koanf:"google"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `koanf:"-"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StateConfig locates the access code database.
type StateConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Port          int           `koanf:"port"`
	SessionSecret string        `koanf:"session_secret"`
	RemoteTimeout time.Duration `koanf:"remote_timeout"`
	Watch         bool          `koanf:"watch"`
}

// SheetsConfig selects the tabular store and the sheet layout.
type SheetsConfig struct {
	Store        string `koanf:"store"`
	HeaderRange  string `koanf:"header_range"`
	VersionRange string `koanf:"version_range"`
	NameFormat   string `koanf:"name_format"`
}

// Layout returns the migration layout described by the config. Empty
// ranges fall back to the migrate defaults.
func (s SheetsConfig) Layout() migrate.Layout {
	layout := migrate.DefaultLayout()
	if s.HeaderRange != "" {
		layout.HeaderRange = sheets.Location(s.HeaderRange)
	}
	if s.VersionRange != "" {
		layout.VersionRange = sheets.Location(s.VersionRange)
	}
	return layout
}

// GoogleConfig holds the OAuth client and the master template.
type GoogleConfig struct {
	ClientID         string `koanf:"client_id"`
	ClientSecret     string `koanf:"client_secret"`
	RedirectURL      string `koanf:"redirect_url"`
	RefreshToken     string `koanf:"refresh_token"`
	MasterTemplateID string `koanf:"master_template_id"`
}

// Store kinds.
const (
	StoreGoogle = "google"
	StoreMemory = "memory"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Default configuration values.
const (
	DefaultSchemaPath     = "schema.json"
	DefaultStateDriver    = "sqlite"
	DefaultStateDSN       = ".bustracker/state.db"
	DefaultPort           = 8080
	DefaultRemoteTimeout  = 30 * time.Second
	DefaultLogLevel       = "info"
	DefaultRedirectURL    = "http://localhost:8080/auth/google/callback"
	DefaultMemoryTemplate = "master-template"
)

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		SchemaPath: DefaultSchemaPath,
		Format:     FormatText,
		Log:        LogConfig{Level: DefaultLogLevel, Format: FormatText},
		State:      StateConfig{Driver: DefaultStateDriver, DSN: DefaultStateDSN},
		Server: ServerConfig{
			Port:          DefaultPort,
			RemoteTimeout: DefaultRemoteTimeout,
			Watch:         true,
		},
		Sheets: SheetsConfig{
			Store:        StoreGoogle,
			HeaderRange:  string(migrate.DefaultHeaderRange),
			VersionRange: string(migrate.DefaultVersionRange),
			NameFormat:   provision.DefaultNameFormat,
		},
		Google: GoogleConfig{RedirectURL: DefaultRedirectURL},
	}
}
