package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/bustracker/internal/state"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.SchemaPath == "" {
		return fmt.Errorf("schema_path is required")
	}
	if _, err := state.ParseDialect(c.State.Driver); err != nil {
		return fmt.Errorf("invalid state.driver: %w", err)
	}
	if c.State.DSN == "" && !c.isSQLite() {
		return fmt.Errorf("state.dsn is required for the %s driver", c.State.Driver)
	}
	switch c.Sheets.Store {
	case StoreGoogle, StoreMemory:
	default:
		return fmt.Errorf("invalid sheets.store %q (expected %s or %s)", c.Sheets.Store, StoreGoogle, StoreMemory)
	}
	if err := validFormat("format", c.Format); err != nil {
		return err
	}
	if err := validFormat("log.format", c.Log.Format); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.RemoteTimeout <= 0 {
		return fmt.Errorf("server.remote_timeout must be positive, got %s", c.Server.RemoteTimeout)
	}
	return nil
}

func validFormat(key, v string) error {
	switch v {
	case FormatText, FormatJSON:
		return nil
	}
	return fmt.Errorf("invalid %s %q (expected %s or %s)", key, v, FormatText, FormatJSON)
}

// ParseLevel parses a log level name such as "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: %w", s, err)
	}
	return level, nil
}

func (c *Config) isSQLite() bool {
	dialect, err := state.ParseDialect(c.State.Driver)
	return err == nil && dialect == state.DialectSQLite
}

// StateFile returns the SQLite database file named by state.dsn, or "" when
// the state store is not a SQLite file.
func (c *Config) StateFile() string {
	dsn := c.State.DSN
	if !c.isSQLite() || dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return ""
	}
	if i := strings.Index(dsn, "?"); i >= 0 {
		return dsn[:i]
	}
	return dsn
}
