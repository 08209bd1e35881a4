// Package accesscode implements the single-use access codes that gate
// school provisioning.
//
// A code is created active and moves to used exactly once, when it is bound
// to a user email and school. There is no path back from used. Expiry is
// not a stored state: an active code whose expiry has passed is reported as
// expired by Evaluate.
package accesscode

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// Status is the stored state of a code.
type Status string

// Code states.
const (
	StatusActive Status = "active"
	StatusUsed   Status = "used"
)

// CodeBytes is the number of random bytes in a code. Codes are rendered as
// lowercase hex, so a code is twice this many characters long.
const CodeBytes = 6

var (
	// ErrNotFound is returned when a code does not exist.
	ErrNotFound = errors.New("access code not found")

	// ErrAlreadyUsed is returned when a code has already been assigned.
	ErrAlreadyUsed = errors.New("access code already used")

	// ErrExpired is returned when a code's expiry has passed.
	ErrExpired = errors.New("access code expired")

	// ErrInvalidCode is returned by Assign when no active, unassigned code
	// matched.
	ErrInvalidCode = errors.New("invalid or already used access code")

	// ErrRaceLost accompanies ErrInvalidCode when the code was active just
	// before the assignment and another caller claimed it first.
	ErrRaceLost = errors.New("access code claimed concurrently")

	// ErrCodeRejected is returned when a code did not evaluate as valid.
	ErrCodeRejected = errors.New("access code rejected")

	// ErrDuplicateCode is returned by a Store when a generated code collides.
	ErrDuplicateCode = errors.New("duplicate access code")

	// ErrInvalidInput is returned when a required argument is empty.
	ErrInvalidInput = errors.New("invalid input")
)

// AccessCode is one stored access code.
type AccessCode struct {
	ID         string         `json:"id"`
	Code       string         `json:"code"`
	Status     Status         `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
	ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
	UserEmail  *string        `json:"userEmail,omitempty"`
	SchoolName *string        `json:"schoolName,omitempty"`
	AssignedAt *time.Time     `json:"assignedAt,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the code has an expiry strictly before now.
func (c *AccessCode) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// Assignable reports whether the code can still be bound to a user.
func (c *AccessCode) Assignable() bool {
	return c.Status == StatusActive && c.UserEmail == nil
}

// Clone returns a deep copy.
func (c *AccessCode) Clone() *AccessCode {
	out := *c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	if c.UserEmail != nil {
		s := *c.UserEmail
		out.UserEmail = &s
	}
	if c.SchoolName != nil {
		s := *c.SchoolName
		out.SchoolName = &s
	}
	if c.AssignedAt != nil {
		t := *c.AssignedAt
		out.AssignedAt = &t
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Assignment is the binding written when a code is used.
type Assignment struct {
	Email      string
	SchoolName string
	AssignedAt time.Time
}

// Store persists access codes.
type Store interface {
	// Insert stores a new code. A code that already exists yields
	// ErrDuplicateCode.
	Insert(ctx context.Context, code *AccessCode) error

	// Get returns the code, or ErrNotFound.
	Get(ctx context.Context, code string) (*AccessCode, error)

	// List returns all codes, newest first.
	List(ctx context.Context) ([]*AccessCode, error)

	// CompareAndAssign atomically marks code used with the given assignment,
	// but only if it is currently active and unassigned. ok is false when no
	// row matched.
	CompareAndAssign(ctx context.Context, code string, a Assignment) (updated *AccessCode, ok bool, err error)
}

// NewCode returns a fresh random code.
func NewCode() (string, error) {
	b := make([]byte, CodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
