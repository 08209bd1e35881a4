// Package features provides shared test utilities for HTTP feature tests.
package features

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
	"github.com/leapstack-labs/bustracker/internal/migrate"
	"github.com/leapstack-labs/bustracker/internal/provision"
	"github.com/leapstack-labs/bustracker/internal/schema"
	"github.com/leapstack-labs/bustracker/internal/server/features/common"
	"github.com/leapstack-labs/bustracker/internal/sheets"
	"github.com/leapstack-labs/bustracker/internal/testutil"
)

// TemplateID is the master template every fixture starts with.
const TemplateID = "master-template"

// TestFixture holds all dependencies needed for handler tests.
type TestFixture struct {
	SchemaPath   string
	Registry     *schema.Registry
	Codes        *accesscode.MemoryStore
	Lifecycle    *accesscode.Lifecycle
	Sheets       *sheets.MemoryStore
	Engine       *migrate.Engine
	Orchestrator *provision.Orchestrator
	SessionStore *sessions.CookieStore
	Credentials  *common.Credentials
	Now          time.Time
}

// SetupTestFixture builds the whole core on in-memory stores. The schema
// is version 1.10 with columns Student, Stop and Route; the template sheet
// has Student and Stop at version 1.9. Requests fall back to a static
// credential, so no sign-in is needed.
func SetupTestFixture(t *testing.T) *TestFixture {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	schemaPath := filepath.Join(t.TempDir(), "schema.json")
	WriteSchema(t, schemaPath, `{"version": "1.10", "columns": ["Student", "Stop", "Route"]}`)

	registry := schema.NewRegistry(schema.NewFileSource(schemaPath), schema.WithLogger(logger), schema.WithDebounce(10*time.Millisecond))
	require.NoError(t, registry.Load(ctx))

	mem := sheets.NewMemoryStore()
	mem.Put(TemplateID, migrate.DefaultHeaderRange, "Student", "Stop")
	mem.Put(TemplateID, migrate.DefaultVersionRange, "1.9")

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	codes := accesscode.NewMemoryStore()
	lifecycle := accesscode.NewLifecycle(codes, accesscode.WithClock(func() time.Time { return now }), accesscode.WithLogger(logger))

	engine := migrate.New(mem, registry, migrate.DefaultLayout(), logger)
	orch := provision.New(lifecycle, mem, engine, TemplateID, provision.WithLogger(logger))

	sessionStore := NewTestSessionStore()

	return &TestFixture{
		SchemaPath:   schemaPath,
		Registry:     registry,
		Codes:        codes,
		Lifecycle:    lifecycle,
		Sheets:       mem,
		Engine:       engine,
		Orchestrator: orch,
		SessionStore: sessionStore,
		Credentials:  common.NewCredentials(sessionStore, sheets.NewStaticCredentials("test", "refresh-token")),
		Now:          now,
	}
}

// WithoutFallback makes requests without a session token fail with
// ErrNoCredential.
func (f *TestFixture) WithoutFallback() *TestFixture {
	f.Credentials = common.NewCredentials(f.SessionStore, nil)
	return f
}

// AddCode stores an active code and returns its value.
func (f *TestFixture) AddCode(t *testing.T, code string, expiresAt *time.Time) string {
	t.Helper()
	require.NoError(t, f.Codes.Insert(context.Background(), &accesscode.AccessCode{
		Code:      code,
		Status:    accesscode.StatusActive,
		CreatedAt: f.Now,
		ExpiresAt: expiresAt,
	}))
	return code
}

// WriteSchema writes a schema artifact.
func WriteSchema(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// NewTestSessionStore creates a session store for testing.
func NewTestSessionStore() *sessions.CookieStore {
	return common.NewSessionStore("test-secret-key-32-bytes-long!!")
}
