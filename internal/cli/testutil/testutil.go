// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// ProjectSchema is the schema written by SetupTestProject.
const ProjectSchema = `{
  "version": "2.1",
  "columns": [
    {"name": "Student Name", "type": "string"},
    {"name": "Stop", "type": "string"},
    {"name": "Route", "type": "string"}
  ]
}`

// projectConfig keeps everything local to the project directory: codes in
// a SQLite file under .bustracker and sheets in memory.
const projectConfig = `schema_path: schema.json
log:
  level: warn
state:
  driver: sqlite
  dsn: .bustracker/state.db
sheets:
  store: memory
server:
  watch: false
`

// SetupTestProject creates a temporary project with a config file and a
// schema, and returns the path of the config file.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	files := map[string]string{
		"bustracker.yaml": projectConfig,
		"schema.json":     ProjectSchema,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0600); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	return filepath.Join(tmpDir, "bustracker.yaml")
}

// Run executes cmd with args and returns the captured stdout and stderr.
func Run(t *testing.T, cmd *cobra.Command, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// NonEmptyLines splits s into lines, dropping blank ones.
func NonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
