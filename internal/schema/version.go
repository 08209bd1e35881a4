package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultVersion is used when a schema artifact carries no version.
const DefaultVersion = "1.0"

// ErrInvalidVersion is returned by ParseSchemaVersion for text that is not a
// dotted version.
var ErrInvalidVersion = errors.New("invalid schema version")

// leadingNumber matches the numeric prefix of a string the way a lenient
// float parser would ("1.5abc" -> "1.5").
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// Version is a dotted numeric schema version such as "1", "1.9" or "1.10".
//
// Versions compare numerically per component, so "1.10" is newer than "1.9"
// and "2" equals "2.0". The zero Version is version 0 and is what absent or
// unparsable input becomes.
type Version struct {
	raw   string
	parts []uint64
}

// ParseVersion parses s. It never fails: anything that cannot be read as a
// non-negative number is version 0.
func ParseVersion(s string) Version {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}
	}

	if parts, ok := parseDotted(s); ok {
		return Version{raw: s, parts: parts}
	}

	m := leadingNumber.FindString(s)
	if m == "" {
		return Version{}
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || f <= 0 {
		return Version{}
	}
	parts, ok := parseDotted(strconv.FormatFloat(f, 'f', -1, 64))
	if !ok {
		return Version{}
	}
	return Version{raw: s, parts: parts}
}

// ParseSchemaVersion parses a version written by a schema author. Unlike
// ParseVersion it is strict: s must be dotted non-negative integers, and a
// component may not have a leading zero, since "1.05" and "1.5" would
// otherwise compare equal.
func ParseSchemaVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	parts, ok := parseDotted(s)
	if !ok {
		return Version{}, fmt.Errorf("%w: %q is not a dotted number", ErrInvalidVersion, s)
	}
	for _, f := range strings.Split(s, ".") {
		if len(f) > 1 && f[0] == '0' {
			return Version{}, fmt.Errorf("%w: %q has a leading zero in %q", ErrInvalidVersion, s, f)
		}
	}
	return Version{raw: s, parts: parts}, nil
}

func parseDotted(s string) ([]uint64, bool) {
	fields := strings.Split(s, ".")
	parts := make([]uint64, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			return nil, false
		}
		n, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, false
		}
		parts = append(parts, n)
	}
	return parts, true
}

// Compare returns -1, 0 or 1 when v is older than, equal to, or newer than o.
func (v Version) Compare(o Version) int {
	n := len(v.parts)
	if len(o.parts) > n {
		n = len(o.parts)
	}
	for i := 0; i < n; i++ {
		a, b := v.component(i), o.component(i)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

func (v Version) component(i int) uint64 {
	if i < len(v.parts) {
		return v.parts[i]
	}
	return 0
}

// Less reports whether v is older than o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// IsZero reports whether v is version 0.
func (v Version) IsZero() bool {
	for _, p := range v.parts {
		if p != 0 {
			return false
		}
	}
	return true
}

// String returns the version as originally written, or "0" for version 0
// built from unusable input.
func (v Version) String() string {
	if v.raw == "" || len(v.parts) == 0 {
		return "0"
	}
	return v.raw
}
