package migrate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/bustracker/internal/schema"
	"github.com/leapstack-labs/bustracker/internal/sheets"
	"github.com/leapstack-labs/bustracker/internal/testutil"
)

const sheetID = "school-sheet"

type staticTarget struct {
	version string
	columns []string
	err     error
}

func (s staticTarget) Current() (schema.Version, []string, error) {
	if s.err != nil {
		return schema.Version{}, nil, s.err
	}
	return schema.ParseVersion(s.version), append([]string(nil), s.columns...), nil
}

// faultyStore fails selected operations until the matching flag is cleared.
type faultyStore struct {
	sheets.Store

	mu          sync.Mutex
	failRead    bool
	failCell    bool
	failHeaders bool
	failVersion bool
	rowWrites   int
	cellWrites  int
}

var errInjected = errors.New("injected")

func (f *faultyStore) ReadRow(ctx context.Context, cred sheets.Credential, id string, loc sheets.Location) ([]string, error) {
	f.mu.Lock()
	fail := f.failRead
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.Store.ReadRow(ctx, cred, id, loc)
}

func (f *faultyStore) ReadCell(ctx context.Context, cred sheets.Credential, id string, loc sheets.Location) (string, bool, error) {
	f.mu.Lock()
	fail := f.failCell
	f.mu.Unlock()
	if fail {
		return "", false, errInjected
	}
	return f.Store.ReadCell(ctx, cred, id, loc)
}

func (f *faultyStore) WriteRow(ctx context.Context, cred sheets.Credential, id string, loc sheets.Location, values []string) error {
	f.mu.Lock()
	fail := f.failHeaders
	f.rowWrites++
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Store.WriteRow(ctx, cred, id, loc, values)
}

func (f *faultyStore) WriteCell(ctx context.Context, cred sheets.Credential, id string, loc sheets.Location, value string) error {
	f.mu.Lock()
	fail := f.failVersion
	f.cellWrites++
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Store.WriteCell(ctx, cred, id, loc, value)
}

func newSheet(t *testing.T, version string, headers ...string) (*faultyStore, *sheets.MemoryStore) {
	t.Helper()
	mem := sheets.NewMemoryStore()
	mem.Put(sheetID, DefaultHeaderRange, headers...)
	if version != "" {
		mem.Put(sheetID, DefaultVersionRange, version)
	}
	return &faultyStore{Store: mem}, mem
}

func TestMissingColumns(t *testing.T) {
	tests := []struct {
		name     string
		headers  []string
		expected []string
		want     []string
	}{
		{"none missing", []string{"A", "B"}, []string{"A", "B"}, nil},
		{"interleaved", []string{"A", "B"}, []string{"A", "C", "B", "D"}, []string{"C", "D"}},
		{"empty sheet", nil, []string{"A", "B"}, []string{"A", "B"}},
		{"extra sheet columns kept", []string{"Z", "A"}, []string{"A"}, nil},
		{"case sensitive", []string{"student"}, []string{"Student"}, []string{"Student"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MissingColumns(tt.headers, tt.expected))
		})
	}
}

func TestMigrate_AppendsInSchemaOrder(t *testing.T) {
	store, mem := newSheet(t, "1.0", "A", "B")
	engine := New(store, staticTarget{version: "2.0", columns: []string{"A", "C", "B", "D"}}, Layout{}, testutil.NewTestLogger(t))

	res, err := engine.Migrate(context.Background(), sheetID, sheets.Credential{})
	require.NoError(t, err)

	assert.True(t, res.Updated)
	assert.Equal(t, []string{"C", "D"}, res.MissingColumns)
	assert.Equal(t, "1.0", res.FromVersion)
	assert.Equal(t, "2.0", res.ToVersion)
	assert.Equal(t, []string{"A", "B", "C", "D"}, mem.Row(sheetID, DefaultHeaderRange))
	assert.Equal(t, []string{"2.0"}, mem.Row(sheetID, DefaultVersionRange))
}

func TestMigrate_Idempotent(t *testing.T) {
	store, mem := newSheet(t, "1", "A")
	engine := New(store, staticTarget{version: "2", columns: []string{"A", "B"}}, Layout{}, nil)
	ctx := context.Background()

	first, err := engine.Migrate(ctx, sheetID, sheets.Credential{})
	require.NoError(t, err)
	assert.True(t, first.Updated)

	second, err := engine.Migrate(ctx, sheetID, sheets.Credential{})
	require.NoError(t, err)
	assert.False(t, second.Updated)
	assert.Empty(t, second.MissingColumns)

	assert.Equal(t, []string{"A", "B"}, mem.Row(sheetID, DefaultHeaderRange))
	assert.Equal(t, 1, store.rowWrites)
	assert.Equal(t, 1, store.cellWrites)
}

func TestMigrate_VersionComparison(t *testing.T) {
	tests := []struct {
		name        string
		current     string
		target      string
		wantUpdated bool
	}{
		{"dotted components compare numerically", "1.9", "1.10", true},
		{"newer sheet is left alone", "1.10", "1.9", false},
		{"equal versions", "2.0", "2", false},
		{"absent version cell counts as zero", "", "1.0", true},
		{"unparsable version counts as zero", "draft", "0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mem := newSheet(t, tt.current, "A")
			engine := New(store, staticTarget{version: tt.target, columns: []string{"A"}}, Layout{}, nil)

			res, err := engine.Migrate(context.Background(), sheetID, sheets.Credential{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantUpdated, res.Updated)
			if tt.wantUpdated {
				assert.Equal(t, []string{tt.target}, mem.Row(sheetID, DefaultVersionRange))
			}
		})
	}
}

func TestMigrate_VersionOnlyBump(t *testing.T) {
	store, mem := newSheet(t, "1", "A", "B")
	engine := New(store, staticTarget{version: "1.1", columns: []string{"A", "B"}}, Layout{}, nil)

	res, err := engine.Migrate(context.Background(), sheetID, sheets.Credential{})
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, []string{}, res.MissingColumns)
	assert.Equal(t, 0, store.rowWrites)
	assert.Equal(t, []string{"1.1"}, mem.Row(sheetID, DefaultVersionRange))
}

func TestMigrate_ReadFailures(t *testing.T) {
	t.Run("headers", func(t *testing.T) {
		store, _ := newSheet(t, "1", "A")
		store.failRead = true
		engine := New(store, staticTarget{version: "2", columns: []string{"A", "B"}}, Layout{}, nil)

		_, err := engine.Migrate(context.Background(), sheetID, sheets.Credential{})
		assert.ErrorIs(t, err, ErrResourceRead)
		assert.ErrorIs(t, err, errInjected)
		assert.True(t, IsRetryable(err))
		assert.Zero(t, store.rowWrites)
	})

	t.Run("version cell", func(t *testing.T) {
		store, _ := newSheet(t, "1", "A")
		store.failCell = true
		engine := New(store, staticTarget{version: "2", columns: []string{"A", "B"}}, Layout{}, nil)

		_, err := engine.Migrate(context.Background(), sheetID, sheets.Credential{})
		assert.ErrorIs(t, err, ErrResourceRead)
		assert.Zero(t, store.rowWrites)
		assert.Zero(t, store.cellWrites)
	})

	t.Run("unknown resource", func(t *testing.T) {
		engine := New(sheets.NewMemoryStore(), staticTarget{version: "2", columns: []string{"A"}}, Layout{}, nil)

		_, err := engine.Migrate(context.Background(), "missing", sheets.Credential{})
		assert.ErrorIs(t, err, ErrResourceRead)
		assert.ErrorIs(t, err, sheets.ErrNotFound)
		assert.False(t, IsRetryable(err))
	})
}

func TestMigrate_SchemaNotLoaded(t *testing.T) {
	store, mem := newSheet(t, "1", "A")
	engine := New(store, staticTarget{err: schema.ErrNotLoaded}, Layout{}, nil)

	_, err := engine.Migrate(context.Background(), sheetID, sheets.Credential{})
	assert.ErrorIs(t, err, ErrSchemaNotLoaded)
	assert.ErrorIs(t, err, schema.ErrNotLoaded)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, []string{"A"}, mem.Row(sheetID, DefaultHeaderRange))
}

func TestMigrate_HeaderWriteFailureKeepsVersion(t *testing.T) {
	store, mem := newSheet(t, "1", "A")
	store.failHeaders = true
	engine := New(store, staticTarget{version: "2", columns: []string{"A", "B"}}, Layout{}, nil)

	_, err := engine.Migrate(context.Background(), sheetID, sheets.Credential{})
	assert.ErrorIs(t, err, ErrHeaderWrite)
	assert.NotErrorIs(t, err, ErrPartialMigration)
	assert.True(t, IsRetryable(err))

	assert.Zero(t, store.cellWrites)
	assert.Equal(t, []string{"1"}, mem.Row(sheetID, DefaultVersionRange))
}

func TestMigrate_PartialFailureConverges(t *testing.T) {
	store, mem := newSheet(t, "1", "A")
	store.failVersion = true
	engine := New(store, staticTarget{version: "2", columns: []string{"A", "B", "C"}}, Layout{}, nil)
	ctx := context.Background()

	_, err := engine.Migrate(ctx, sheetID, sheets.Credential{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionWrite)
	assert.ErrorIs(t, err, ErrPartialMigration)

	var merr *Error
	require.ErrorAs(t, err, &merr)
	assert.True(t, merr.Partial)
	assert.Equal(t, sheetID, merr.ResourceID)

	// headers landed, version did not
	assert.Equal(t, []string{"A", "B", "C"}, mem.Row(sheetID, DefaultHeaderRange))
	assert.Equal(t, []string{"1"}, mem.Row(sheetID, DefaultVersionRange))

	store.failVersion = false
	res, err := engine.Migrate(ctx, sheetID, sheets.Credential{})
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Empty(t, res.MissingColumns)

	assert.Equal(t, []string{"A", "B", "C"}, mem.Row(sheetID, DefaultHeaderRange))
	assert.Equal(t, []string{"2"}, mem.Row(sheetID, DefaultVersionRange))
	assert.Equal(t, 1, store.rowWrites)
}

func TestMigrate_ExtraColumnsPreserved(t *testing.T) {
	store, mem := newSheet(t, "1", "Notes", "A")
	engine := New(store, staticTarget{version: "2", columns: []string{"A", "B"}}, Layout{}, nil)

	_, err := engine.Migrate(context.Background(), sheetID, sheets.Credential{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Notes", "A", "B"}, mem.Row(sheetID, DefaultHeaderRange))
}

func TestMigrate_WithRegistry(t *testing.T) {
	reg := schema.NewRegistry(fixedSource{def: &schema.Definition{
		Version: schema.ParseVersion("1.10"),
		Columns: []schema.Column{{Name: "Student"}, {Name: "Stop"}},
	}})
	require.NoError(t, reg.Load(context.Background()))

	store, mem := newSheet(t, "1.9", "Student")
	engine := New(store, reg, DefaultLayout(), nil)

	res, err := engine.Migrate(context.Background(), sheetID, sheets.Credential{})
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, []string{"Stop"}, res.MissingColumns)
	assert.Equal(t, []string{"1.10"}, mem.Row(sheetID, DefaultVersionRange))
}

func TestPlan(t *testing.T) {
	store, _ := newSheet(t, "1", "A")
	engine := New(store, staticTarget{version: "3", columns: []string{"A", "B"}}, Layout{}, nil)

	plan, err := engine.Plan(context.Background(), sheetID, sheets.Credential{})
	require.NoError(t, err)
	assert.False(t, plan.UpToDate())
	assert.Equal(t, []string{"B"}, plan.MissingColumns)
	assert.Zero(t, store.rowWrites)
	assert.Zero(t, store.cellWrites)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("other")))
	assert.True(t, IsRetryable(&Error{Kind: ErrVersionWrite, Err: sheets.ErrRemote}))
	assert.False(t, IsRetryable(&Error{Kind: ErrResourceRead, Err: sheets.ErrNoCredential}))
}

type fixedSource struct{ def *schema.Definition }

func (s fixedSource) Load(context.Context) (*schema.Definition, error) { return s.def, nil }
