package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load.
// A double underscore separates nesting levels: BUSTRACKER_SERVER__PORT
// sets server.port.
const EnvPrefix = "BUSTRACKER_"

// configKey is used to store the config in context.
type configKey struct{}

// configNames are searched, in order, when no config file is given.
var configNames = []string{"bustracker.yaml", "bustracker.yml"}

// flagKeys maps flag names to config keys. Flags not listed here are
// command options and never reach the config.
var flagKeys = map[string]string{
	"schema":       "schema_path",
	"format":       "format",
	"verbose":      "verbose",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"state-driver": "state.driver",
	"state-dsn":    "state.dsn",
	"sheets-store": "sheets.store",
	"port":         "server.port",
	"watch":        "server.watch",
}

// findConfigFile finds the config file to use.
// Priority: explicit path > bustracker.yaml > bustracker.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func defaultValues() map[string]interface{} {
	d := Defaults()
	return map[string]interface{}{
		"schema_path":           d.SchemaPath,
		"format":                d.Format,
		"verbose":               false,
		"log.level":             d.Log.Level,
		"log.format":            d.Log.Format,
		"state.driver":          d.State.Driver,
		"state.dsn":             d.State.DSN,
		"server.port":           d.Server.Port,
		"server.remote_timeout": d.Server.RemoteTimeout.String(),
		"server.watch":          d.Server.Watch,
		"sheets.store":          d.Sheets.Store,
		"sheets.header_range":   d.Sheets.HeaderRange,
		"sheets.version_range":  d.Sheets.VersionRange,
		"sheets.name_format":    d.Sheets.NameFormat,
		"google.redirect_url":   d.Google.RedirectURL,
	}
}

// Load loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
//
// Relative paths from the config file or environment are resolved against
// the config file's directory; paths given as flags are relative to the
// working directory.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	configFile := findConfigFile(cfgFile)
	baseDir := ""
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		if abs, err := filepath.Abs(configFile); err == nil {
			baseDir = filepath.Dir(abs)
		}
	}

	// 3. Load environment variables (BUSTRACKER_ prefix)
	// Transform: BUSTRACKER_SERVER__SESSION_SECRET -> server.session_secret
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ConfigFile = configFile

	expandSecrets(&cfg)

	// 6. Resolve relative paths
	if !flagChanged(flags, "schema") {
		cfg.SchemaPath = resolvePathRelativeTo(cfg.SchemaPath, baseDir)
	}
	if cfg.StateFile() != "" && !flagChanged(flags, "state-dsn") {
		cfg.State.DSN = resolvePathRelativeTo(cfg.State.DSN, baseDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func flagChanged(flags *pflag.FlagSet, name string) bool {
	if flags == nil {
		return false
	}
	f := flags.Lookup(name)
	return f != nil && f.Changed
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandSecrets expands environment variables in credential fields.
func expandSecrets(c *Config) {
	c.State.DSN = expandEnvVars(c.State.DSN)
	c.Server.SessionSecret = expandEnvVars(c.Server.SessionSecret)
	c.Google.ClientID = expandEnvVars(c.Google.ClientID)
	c.Google.ClientSecret = expandEnvVars(c.Google.ClientSecret)
	c.Google.RefreshToken = expandEnvVars(c.Google.RefreshToken)
}

// WithConfig returns a copy of ctx carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from the command context.
func FromContext(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	// Return default config if none in context
	return Defaults()
}
