// Package schema holds the canonical sheet schema: its definition format,
// the file source it is loaded from, and the hot-reloading registry the
// migration engine reads its target from.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultColumnType is the type recorded for columns extracted from a sheet.
const DefaultColumnType = "string"

// Column is a single expected column of a school sheet.
type Column struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type,omitempty" json:"type"`
	Description string `yaml:"description,omitempty" json:"description"`
}

// UnmarshalYAML accepts either a bare column name or a mapping.
func (c *Column) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.Name = value.Value
		return nil
	}
	type plain Column
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = Column(p)
	return nil
}

// Definition is one immutable, loaded version of the canonical schema.
// A Definition is never modified after it has been handed to a Registry.
type Definition struct {
	Version Version
	Columns []Column
}

// ColumnNames returns the column names in canonical order.
func (d *Definition) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

type rawDefinition struct {
	Version yaml.Node `yaml:"version"`
	Columns *[]Column `yaml:"columns"`
}

// Parse decodes a schema artifact. JSON artifacts are accepted as well as
// YAML. The version is kept exactly as written; a missing version falls back
// to DefaultVersion and a malformed one is an error.
func Parse(data []byte) (*Definition, error) {
	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	if raw.Columns == nil {
		return nil, fmt.Errorf("schema has no columns field")
	}

	version, err := parseVersionField(&raw.Version)
	if err != nil {
		return nil, err
	}

	def := &Definition{
		Version: version,
		Columns: make([]Column, 0, len(*raw.Columns)),
	}

	seen := make(map[string]struct{}, len(*raw.Columns))
	for i, c := range *raw.Columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		def.Columns = append(def.Columns, c)
	}

	return def, nil
}

// parseVersionField reads the version node. Only an absent or null version
// falls back to DefaultVersion.
func parseVersionField(node *yaml.Node) (Version, error) {
	if node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null") {
		return ParseSchemaVersion(DefaultVersion)
	}
	if node.Kind != yaml.ScalarNode {
		return Version{}, fmt.Errorf("%w: version must be a scalar", ErrInvalidVersion)
	}
	return ParseSchemaVersion(node.Value)
}

// fileDefinition is the on-disk JSON layout written by WriteFile.
type fileDefinition struct {
	Version string   `json:"version"`
	Columns []Column `json:"columns"`
}

// Marshal renders the definition as indented JSON.
func (d *Definition) Marshal() ([]byte, error) {
	out := fileDefinition{Version: d.Version.String(), Columns: d.Columns}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the definition to path as indented JSON.
func WriteFile(path string, def *Definition) error {
	data, err := def.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write schema %s: %w", path, err)
	}
	return nil
}
