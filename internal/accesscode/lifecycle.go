package accesscode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reason explains the outcome of Evaluate.
type Reason string

// Evaluation reasons, checked in this order.
const (
	ReasonNotFound    Reason = "not_found"
	ReasonAlreadyUsed Reason = "already_used"
	ReasonExpired     Reason = "expired"
	ReasonValid       Reason = "valid"
)

// Err returns the sentinel matching r, or nil for ReasonValid.
func (r Reason) Err() error {
	switch r {
	case ReasonNotFound:
		return ErrNotFound
	case ReasonAlreadyUsed:
		return ErrAlreadyUsed
	case ReasonExpired:
		return ErrExpired
	}
	return nil
}

const noExpiration = "no expiration"

// ValidationResult is the outcome of Evaluate.
type ValidationResult struct {
	Valid     bool       `json:"valid"`
	Reason    Reason     `json:"reason"`
	Message   string     `json:"message"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	// Expiry is a human readable expiry, or "no expiration".
	Expiry string `json:"expiry,omitempty"`
}

// Lifecycle owns the access code state machine.
type Lifecycle struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLifecycle creates a Lifecycle over store.
func NewLifecycle(store Store, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		store:  store,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type generateOptions struct {
	expiry   time.Duration
	metadata map[string]any
}

// GenerateOption configures a generated code.
type GenerateOption func(*generateOptions)

// WithExpiry makes the code expire d after creation. Zero means never.
func WithExpiry(d time.Duration) GenerateOption {
	return func(o *generateOptions) { o.expiry = d }
}

// WithMetadata attaches free-form metadata.
func WithMetadata(m map[string]any) GenerateOption {
	return func(o *generateOptions) { o.metadata = m }
}

const maxGenerateAttempts = 5

// Generate creates and stores a new active code.
func (l *Lifecycle) Generate(ctx context.Context, opts ...GenerateOption) (*AccessCode, error) {
	var o generateOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.expiry < 0 {
		return nil, fmt.Errorf("%w: negative expiry %s", ErrInvalidInput, o.expiry)
	}

	for attempt := 1; ; attempt++ {
		value, err := NewCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate access code: %w", err)
		}

		now := l.now().UTC()
		code := &AccessCode{
			ID:        uuid.New().String(),
			Code:      value,
			Status:    StatusActive,
			CreatedAt: now,
			Metadata:  o.metadata,
		}
		if o.expiry > 0 {
			exp := now.Add(o.expiry)
			code.ExpiresAt = &exp
		}

		err = l.store.Insert(ctx, code)
		if err == nil {
			l.logger.Info("access code generated", slog.String("code", code.Code), slog.Any("expires_at", code.ExpiresAt))
			return code, nil
		}
		if !errors.Is(err, ErrDuplicateCode) || attempt >= maxGenerateAttempts {
			return nil, fmt.Errorf("failed to store access code: %w", err)
		}
		l.logger.Warn("access code collision, retrying", slog.Int("attempt", attempt))
	}
}

// GenerateBatch creates n codes with the same options.
func (l *Lifecycle) GenerateBatch(ctx context.Context, n int, opts ...GenerateOption) ([]*AccessCode, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", ErrInvalidInput, n)
	}
	codes := make([]*AccessCode, 0, n)
	for i := 0; i < n; i++ {
		code, err := l.Generate(ctx, opts...)
		if err != nil {
			return codes, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// Evaluate reports whether code may be used right now. It never changes
// state. Lookup errors other than ErrNotFound are returned as errors.
func (l *Lifecycle) Evaluate(ctx context.Context, code string) (ValidationResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return ValidationResult{Reason: ReasonNotFound, Message: "Access code is required"}, nil
	}

	rec, err := l.store.Get(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return ValidationResult{Reason: ReasonNotFound, Message: "Invalid access code"}, nil
	}
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to look up access code: %w", err)
	}

	if !rec.Assignable() {
		return ValidationResult{Reason: ReasonAlreadyUsed, Message: "Access code has already been used"}, nil
	}

	now := l.now()
	if rec.Expired(now) {
		return ValidationResult{
			Reason:    ReasonExpired,
			Message:   "Access code has expired",
			ExpiresAt: rec.ExpiresAt,
			Expiry:    formatExpiry(rec.ExpiresAt),
		}, nil
	}

	return ValidationResult{
		Valid:     true,
		Reason:    ReasonValid,
		Message:   "Access code is valid",
		ExpiresAt: rec.ExpiresAt,
		Expiry:    formatExpiry(rec.ExpiresAt),
	}, nil
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return noExpiration
	}
	return t.UTC().Format(time.RFC1123)
}

// Assign binds code to email and school and marks it used. It succeeds for
// at most one caller per code; the others get ErrInvalidCode, also matching
// ErrRaceLost when the code was still assignable when they looked.
//
// Assign does not check expiry. Callers evaluate first.
func (l *Lifecycle) Assign(ctx context.Context, code, email, school string) (*AccessCode, error) {
	code = strings.TrimSpace(code)
	email = strings.TrimSpace(email)
	school = strings.TrimSpace(school)
	if code == "" || email == "" {
		return nil, fmt.Errorf("%w: code and email are required", ErrInvalidInput)
	}

	before, err := l.store.Get(ctx, code)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up access code: %w", err)
	}

	updated, ok, err := l.store.CompareAndAssign(ctx, code, Assignment{
		Email:      email,
		SchoolName: school,
		AssignedAt: l.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assign access code: %w", err)
	}
	if !ok {
		if before != nil && before.Assignable() {
			l.logger.Warn("access code assignment lost race", slog.String("code", code))
			return nil, fmt.Errorf("%w: %w", ErrInvalidCode, ErrRaceLost)
		}
		return nil, ErrInvalidCode
	}

	l.logger.Info("access code assigned",
		slog.String("code", code),
		slog.String("email", email),
		slog.String("school", school),
	)
	return updated, nil
}

// List returns all codes, newest first.
func (l *Lifecycle) List(ctx context.Context) ([]*AccessCode, error) {
	codes, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list access codes: %w", err)
	}
	return codes, nil
}
