package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/bustracker/internal/sheets"
)

// Extract builds a Definition from the master template: the header row
// becomes the column list and the version cell the version. A missing or
// unreadable version cell falls back to DefaultVersion; a missing header
// row or a malformed version is an error.
func Extract(
	ctx context.Context,
	store sheets.Store,
	cred sheets.Credential,
	templateID string,
	headerLoc, versionLoc sheets.Location,
	logger *slog.Logger,
) (*Definition, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	headers, err := store.ReadRow(ctx, cred, templateID, headerLoc)
	if err != nil {
		return nil, fmt.Errorf("failed to read template header row: %w", err)
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("template %s has no header row at %s", templateID, headerLoc)
	}

	version := DefaultVersion
	raw, ok, err := store.ReadCell(ctx, cred, templateID, versionLoc)
	switch {
	case err != nil:
		logger.Warn("failed to read template version, using default",
			slog.String("range", string(versionLoc)),
			slog.String("default", DefaultVersion),
			slog.String("error", err.Error()))
	case !ok:
		logger.Warn("template has no version, using default",
			slog.String("range", string(versionLoc)),
			slog.String("default", DefaultVersion))
	default:
		version = raw
	}

	parsed, err := ParseSchemaVersion(version)
	if err != nil {
		return nil, fmt.Errorf("template %s version at %s: %w", templateID, versionLoc, err)
	}

	def := &Definition{Version: parsed}
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			logger.Warn("duplicate template column skipped", slog.String("column", h))
			continue
		}
		seen[h] = struct{}{}
		def.Columns = append(def.Columns, Column{Name: h, Type: DefaultColumnType})
	}

	logger.Info("schema extracted",
		slog.String("template", templateID),
		slog.String("version", def.Version.String()),
		slog.Int("columns", len(def.Columns)))
	return def, nil
}
