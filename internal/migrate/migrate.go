// Package migrate brings a school sheet's header row up to the canonical
// schema.
//
// Migrations are additive: missing columns are appended in schema order and
// existing columns are never moved or removed. The header row and the
// version cell are written separately and in that order, with no
// transaction between them; a failure after the header write leaves a
// sheet that the next Migrate call finishes by writing only the version.
//
// Callers must not run Migrate concurrently for the same resource. Two
// overlapping runs can both see the same missing columns and append them
// twice. Runs on different resources are independent.
package migrate

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/bustracker/internal/schema"
	"github.com/leapstack-labs/bustracker/internal/sheets"
)

// Default locations of the header row and the version cell.
const (
	DefaultHeaderRange  sheets.Location = "Sheet1!1:1"
	DefaultVersionRange sheets.Location = "config!A1"
)

// Target provides the schema a sheet should be migrated to.
// *schema.Registry implements it.
type Target interface {
	Current() (schema.Version, []string, error)
}

// Layout locates the schema-bearing parts of a sheet.
type Layout struct {
	HeaderRange  sheets.Location
	VersionRange sheets.Location
}

// DefaultLayout returns the standard sheet layout.
func DefaultLayout() Layout {
	return Layout{HeaderRange: DefaultHeaderRange, VersionRange: DefaultVersionRange}
}

// Result reports what a migration did.
type Result struct {
	Updated        bool     `json:"updated"`
	MissingColumns []string `json:"missingColumns,omitempty"`
	FromVersion    string   `json:"fromVersion"`
	ToVersion      string   `json:"toVersion"`
}

// Plan is the change a migration would make, computed without writing.
type Plan struct {
	Headers        []string
	CurrentVersion schema.Version
	TargetVersion  schema.Version
	MissingColumns []string
}

// UpToDate reports whether the sheet needs no migration.
func (p *Plan) UpToDate() bool {
	return p.CurrentVersion.Compare(p.TargetVersion) >= 0
}

// Engine migrates sheets against a Target schema.
type Engine struct {
	store  sheets.Store
	target Target
	layout Layout
	logger *slog.Logger
}

// New creates an Engine. A zero layout field falls back to the default.
func New(store sheets.Store, target Target, layout Layout, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if layout.HeaderRange == "" {
		layout.HeaderRange = DefaultHeaderRange
	}
	if layout.VersionRange == "" {
		layout.VersionRange = DefaultVersionRange
	}
	return &Engine{store: store, target: target, layout: layout, logger: logger}
}

// Layout returns the engine's sheet layout.
func (e *Engine) Layout() Layout {
	return e.layout
}

// Plan reads the sheet and the target schema and computes the change set.
func (e *Engine) Plan(ctx context.Context, resourceID string, cred sheets.Credential) (*Plan, error) {
	headers, err := e.store.ReadRow(ctx, cred, resourceID, e.layout.HeaderRange)
	if err != nil {
		return nil, &Error{ResourceID: resourceID, Op: "read headers", Kind: ErrResourceRead, Err: err}
	}

	raw, _, err := e.store.ReadCell(ctx, cred, resourceID, e.layout.VersionRange)
	if err != nil {
		return nil, &Error{ResourceID: resourceID, Op: "read version", Kind: ErrResourceRead, Err: err}
	}
	current := schema.ParseVersion(raw)

	target, expected, err := e.target.Current()
	if err != nil {
		return nil, &Error{ResourceID: resourceID, Op: "load schema", Kind: ErrSchemaNotLoaded, Err: err}
	}

	return &Plan{
		Headers:        headers,
		CurrentVersion: current,
		TargetVersion:  target,
		MissingColumns: MissingColumns(headers, expected),
	}, nil
}

// Migrate brings resourceID to the current target schema.
//
// An up-to-date sheet is left alone and reported with Updated false, so
// Migrate is safe to retry unconditionally.
func (e *Engine) Migrate(ctx context.Context, resourceID string, cred sheets.Credential) (*Result, error) {
	plan, err := e.Plan(ctx, resourceID, cred)
	if err != nil {
		e.logger.Error("migration aborted", slog.String("resource", resourceID), slog.String("error", err.Error()))
		return nil, err
	}

	log := e.logger.With(
		slog.String("resource", resourceID),
		slog.String("current_version", plan.CurrentVersion.String()),
		slog.String("target_version", plan.TargetVersion.String()),
	)

	result := &Result{
		FromVersion: plan.CurrentVersion.String(),
		ToVersion:   plan.CurrentVersion.String(),
	}

	if plan.UpToDate() {
		log.Debug("sheet is up to date")
		return result, nil
	}

	wroteHeaders := false
	if len(plan.MissingColumns) > 0 {
		log.Info("appending missing columns", slog.Any("missing", plan.MissingColumns))

		headers := make([]string, 0, len(plan.Headers)+len(plan.MissingColumns))
		headers = append(headers, plan.Headers...)
		headers = append(headers, plan.MissingColumns...)

		if err := e.store.WriteRow(ctx, cred, resourceID, e.layout.HeaderRange, headers); err != nil {
			log.Error("header write failed", slog.String("error", err.Error()))
			return nil, &Error{ResourceID: resourceID, Op: "write headers", Kind: ErrHeaderWrite, Err: err}
		}
		wroteHeaders = true
	} else {
		log.Info("no missing columns, advancing version only")
	}

	// The version written is the one read with the column list above, even
	// if the registry has been reloaded since.
	if err := e.store.WriteCell(ctx, cred, resourceID, e.layout.VersionRange, plan.TargetVersion.String()); err != nil {
		log.Error("version write failed", slog.Bool("headers_written", wroteHeaders), slog.String("error", err.Error()))
		return nil, &Error{ResourceID: resourceID, Op: "write version", Kind: ErrVersionWrite, Err: err, Partial: wroteHeaders}
	}

	result.Updated = true
	result.MissingColumns = plan.MissingColumns
	if result.MissingColumns == nil {
		result.MissingColumns = []string{}
	}
	result.ToVersion = plan.TargetVersion.String()

	log.Info("migration complete", slog.Int("added_columns", len(plan.MissingColumns)))
	return result, nil
}

// MissingColumns returns the expected columns absent from headers, in
// expected order.
func MissingColumns(headers, expected []string) []string {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[h] = struct{}{}
	}

	var missing []string
	for _, c := range expected {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}
