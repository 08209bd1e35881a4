// Package sheets defines the tabular store the migration engine and the
// provisioning flow operate on, together with the credentials that
// authorize access to it.
//
// Two stores are provided: GoogleStore talks to Google Sheets and Drive,
// MemoryStore keeps everything in process for tests and local runs.
package sheets

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNoCredential is returned when no usable credential is available.
	ErrNoCredential = errors.New("no credential")

	// ErrNotFound is returned when a resource or template does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrRemote marks failures of the remote store itself. These are
	// retryable by the caller.
	ErrRemote = errors.New("remote store error")
)

// Location addresses a row or cell in A1 notation, e.g. "Sheet1!1:1" or "config!A1".
type Location string

// Anchor returns the top-left cell of the location. Writes are anchored so
// that a row longer than the read range still fits.
func (l Location) Anchor() Location {
	s := string(l)
	sheet, ref := "", s
	if i := strings.LastIndex(s, "!"); i >= 0 {
		sheet, ref = s[:i+1], s[i+1:]
	}
	if i := strings.Index(ref, ":"); i >= 0 {
		ref = ref[:i]
	}
	if ref != "" && strings.Trim(ref, "0123456789") == "" {
		// whole-row reference such as "1:1"
		ref = "A" + ref
	}
	return Location(sheet + ref)
}

// Store reads and writes rows and cells of named tabular resources.
// No operation is transactional with any other.
type Store interface {
	// ReadRow returns the values of the first row in loc. A row with no
	// values is returned as an empty slice.
	ReadRow(ctx context.Context, cred Credential, resourceID string, loc Location) ([]string, error)

	// WriteRow replaces the row starting at loc.
	WriteRow(ctx context.Context, cred Credential, resourceID string, loc Location, values []string) error

	// ReadCell returns the value at loc; ok is false when the cell is empty.
	ReadCell(ctx context.Context, cred Credential, resourceID string, loc Location) (value string, ok bool, err error)

	// WriteCell sets the value at loc.
	WriteCell(ctx context.Context, cred Credential, resourceID string, loc Location, value string) error

	// CopyTemplate duplicates templateID under a new name and returns the
	// new resource ID.
	CopyTemplate(ctx context.Context, cred Credential, templateID, name string) (string, error)
}
