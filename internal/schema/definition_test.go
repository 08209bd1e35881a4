package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/bustracker/internal/sheets"
	"github.com/leapstack-labs/bustracker/internal/testutil"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion string
		wantColumns []string
		wantErr     string
	}{
		{
			name: "json with object columns",
			input: `{
  "version": "1.10",
  "columns": [
    {"name": "Student", "type": "string", "description": ""},
    {"name": "Stop", "type": "string", "description": ""}
  ]
}`,
			wantVersion: "1.10",
			wantColumns: []string{"Student", "Stop"},
		},
		{
			name:        "unquoted numeric version keeps its text",
			input:       `{"version": 1.10, "columns": ["A"]}`,
			wantVersion: "1.10",
			wantColumns: []string{"A"},
		},
		{
			name:        "yaml with plain columns",
			input:       "version: 2\ncolumns:\n  - Student\n  - Route\n",
			wantVersion: "2",
			wantColumns: []string{"Student", "Route"},
		},
		{
			name:        "missing version uses default",
			input:       `{"columns": ["A", "B"]}`,
			wantVersion: DefaultVersion,
			wantColumns: []string{"A", "B"},
		},
		{
			name:        "null version uses default",
			input:       "version: ~\ncolumns: [A]\n",
			wantVersion: DefaultVersion,
			wantColumns: []string{"A"},
		},
		{
			name:        "empty column list is allowed",
			input:       `{"version": "3", "columns": []}`,
			wantVersion: "3",
			wantColumns: []string{},
		},
		{
			name:    "missing columns",
			input:   `{"version": "1"}`,
			wantErr: "no columns",
		},
		{
			name:    "duplicate column",
			input:   `{"version": "1", "columns": ["A", "A"]}`,
			wantErr: "duplicate column",
		},
		{
			name:    "unnamed column",
			input:   `{"version": "1", "columns": [{"type": "string"}]}`,
			wantErr: "has no name",
		},
		{
			name:    "word version",
			input:   `{"version": "three", "columns": ["A"]}`,
			wantErr: "invalid schema version",
		},
		{
			name:    "letter in version",
			input:   `{"version": "2.O", "columns": ["A"]}`,
			wantErr: "invalid schema version",
		},
		{
			name:    "prefixed version",
			input:   `{"version": "v-two", "columns": ["A"]}`,
			wantErr: "invalid schema version",
		},
		{
			name:    "empty version",
			input:   `{"version": "", "columns": ["A"]}`,
			wantErr: "invalid schema version",
		},
		{
			name:    "leading zero component",
			input:   `{"version": "1.05", "columns": ["A"]}`,
			wantErr: "leading zero",
		},
		{
			name:    "non-scalar version",
			input:   `{"version": [1, 2], "columns": ["A"]}`,
			wantErr: "must be a scalar",
		},
		{
			name:    "not a document",
			input:   `{"version": `,
			wantErr: "failed to decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Parse([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, def.Version.String())
			assert.Equal(t, tt.wantColumns, def.ColumnNames())
		})
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	def := &Definition{
		Version: ParseVersion("1.4"),
		Columns: []Column{{Name: "Student", Type: "string"}, {Name: "Stop", Type: "string"}},
	}

	require.NoError(t, WriteFile(path, def))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "1.4"`)

	got, err := NewFileSource(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.4", got.Version.String())
	assert.Equal(t, []string{"Student", "Stop"}, got.ColumnNames())
}

func TestFileSource_Unavailable(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileSource(filepath.Join(dir, "missing.json")).Load(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"version": "1"}`), 0o600))
	_, err = NewFileSource(bad).Load(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestExtract(t *testing.T) {
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	t.Run("header and version", func(t *testing.T) {
		store := sheets.NewMemoryStore()
		store.Put("master", "BT_Master!1:1", "Student", "Stop", "", "Student")
		store.Put("master", "config!A1", "1.7")

		def, err := Extract(ctx, store, sheets.Credential{}, "master", "BT_Master!1:1", "config!A1", logger)
		require.NoError(t, err)
		assert.Equal(t, "1.7", def.Version.String())
		assert.Equal(t, []string{"Student", "Stop"}, def.ColumnNames())
		assert.Equal(t, DefaultColumnType, def.Columns[0].Type)
	})

	t.Run("missing version falls back", func(t *testing.T) {
		store := sheets.NewMemoryStore()
		store.Put("master", "BT_Master!1:1", "Student")

		def, err := Extract(ctx, store, sheets.Credential{}, "master", "BT_Master!1:1", "config!A1", logger)
		require.NoError(t, err)
		assert.Equal(t, DefaultVersion, def.Version.String())
	})

	t.Run("malformed version fails", func(t *testing.T) {
		store := sheets.NewMemoryStore()
		store.Put("master", "BT_Master!1:1", "Student")
		store.Put("master", "config!A1", "draft")

		_, err := Extract(ctx, store, sheets.Credential{}, "master", "BT_Master!1:1", "config!A1", logger)
		assert.ErrorIs(t, err, ErrInvalidVersion)
	})

	t.Run("missing header row fails", func(t *testing.T) {
		store := sheets.NewMemoryStore()
		store.Put("master", "config!A1", "2")

		_, err := Extract(ctx, store, sheets.Credential{}, "master", "BT_Master!1:1", "config!A1", logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no header row")
	})

	t.Run("unknown template", func(t *testing.T) {
		_, err := Extract(ctx, sheets.NewMemoryStore(), sheets.Credential{}, "nope", "BT_Master!1:1", "config!A1", logger)
		assert.ErrorIs(t, err, sheets.ErrNotFound)
	})
}
