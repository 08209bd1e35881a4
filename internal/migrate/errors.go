package migrate

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/bustracker/internal/sheets"
)

var (
	// ErrResourceRead is returned when the header row or version cell cannot be read.
	ErrResourceRead = errors.New("resource read failed")

	// ErrSchemaNotLoaded is returned when no target schema is available.
	ErrSchemaNotLoaded = errors.New("schema not loaded")

	// ErrHeaderWrite is returned when appending missing columns fails.
	// The version cell is left untouched.
	ErrHeaderWrite = errors.New("header write failed")

	// ErrVersionWrite is returned when the version cell cannot be advanced.
	ErrVersionWrite = errors.New("version write failed")

	// ErrPartialMigration accompanies ErrVersionWrite when the header row was
	// already extended in the same run. The next Migrate call converges by
	// writing only the version.
	ErrPartialMigration = errors.New("partial migration")
)

// Error describes a failed migration step.
type Error struct {
	ResourceID string
	Op         string
	Kind       error
	Err        error
	// Partial is set when headers were written but the version was not.
	Partial bool
}

func (e *Error) Error() string {
	if e.Partial {
		return fmt.Sprintf("migrate %s: %s: %v (%v: headers updated, version not advanced)", e.ResourceID, e.Kind, e.Err, ErrPartialMigration)
	}
	return fmt.Sprintf("migrate %s: %s: %v", e.ResourceID, e.Kind, e.Err)
}

// Unwrap exposes the step sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind, e.Err}
	if e.Partial {
		errs = append(errs, ErrPartialMigration)
	}
	return errs
}

// IsRetryable reports whether err is a remote read or write failure that a
// caller may retry as-is. Schema and credential problems are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSchemaNotLoaded) || errors.Is(err, sheets.ErrNoCredential) || errors.Is(err, sheets.ErrNotFound) {
		return false
	}
	return errors.Is(err, ErrResourceRead) || errors.Is(err, ErrHeaderWrite) || errors.Is(err, ErrVersionWrite)
}
