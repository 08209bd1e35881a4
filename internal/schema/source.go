package schema

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSourceUnavailable is returned when the schema artifact is missing or malformed.
	ErrSourceUnavailable = errors.New("schema source unavailable")

	// ErrNotLoaded is returned by Registry queries before the first successful load.
	ErrNotLoaded = errors.New("schema not loaded")
)

// Source supplies the current schema definition.
type Source interface {
	Load(ctx context.Context) (*Definition, error)
}

// FileSource reads a schema artifact from disk.
type FileSource struct {
	path string
}

// NewFileSource returns a Source backed by the file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the watched file path.
func (s *FileSource) Path() string {
	return s.path
}

// Load reads and parses the artifact.
func (s *FileSource) Load(ctx context.Context) (*Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.path, err)
	}
	return def, nil
}
