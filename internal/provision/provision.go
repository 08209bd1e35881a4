// Package provision creates a school's sheet from the master template,
// gated by a single-use access code.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
	"github.com/leapstack-labs/bustracker/internal/migrate"
	"github.com/leapstack-labs/bustracker/internal/sheets"
)

// Stage names a provisioning step.
type Stage string

// Provisioning stages, in order.
const (
	StageValidate Stage = "validate"
	StageCreate   Stage = "create"
	StageAssign   Stage = "assign"
	StageMigrate  Stage = "migrate"
)

// DefaultNameFormat is the fmt format for new sheet names; %s is the school.
const DefaultNameFormat = "%s BusTracker Data"

// ErrInvalidRequest is returned when a required request field is empty.
var ErrInvalidRequest = errors.New("invalid provisioning request")

// StageError reports which stage of Provision failed.
type StageError struct {
	Stage Stage
	// ResourceID is set once the sheet has been created.
	ResourceID string
	Err        error
}

func (e *StageError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("provision %s (resource %s): %v", e.Stage, e.ResourceID, e.Err)
	}
	return fmt.Sprintf("provision %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage err failed in, if it is a StageError.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// Request asks for a sheet for one school.
type Request struct {
	Code       string `json:"accessCode"`
	Email      string `json:"email"`
	SchoolName string `json:"schoolName"`
}

// Result describes a provisioned school.
type Result struct {
	ResourceID string                 `json:"spreadsheetId"`
	Name       string                 `json:"name"`
	Code       *accesscode.AccessCode `json:"accessCode"`
	Migration  *migrate.Result        `json:"migration"`
}

// Migrator migrates a single sheet. *migrate.Engine implements it.
type Migrator interface {
	Migrate(ctx context.Context, resourceID string, cred sheets.Credential) (*migrate.Result, error)
}

// Orchestrator runs the provisioning stages.
type Orchestrator struct {
	codes      *accesscode.Lifecycle
	store      sheets.Store
	migrator   Migrator
	templateID string
	nameFormat string
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNameFormat overrides DefaultNameFormat.
func WithNameFormat(format string) Option {
	return func(o *Orchestrator) {
		if format != "" {
			o.nameFormat = format
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Orchestrator that copies templateID for each school.
func New(codes *accesscode.Lifecycle, store sheets.Store, migrator Migrator, templateID string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		codes:      codes,
		store:      store,
		migrator:   migrator,
		templateID: templateID,
		nameFormat: DefaultNameFormat,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SheetName returns the name a school's sheet is created under.
func (o *Orchestrator) SheetName(school string) string {
	return fmt.Sprintf(o.nameFormat, school)
}

// Provision validates the code, copies the master template, assigns the
// code and migrates the new sheet. It stops at the first failing stage and
// returns a *StageError naming it.
//
// A failure after the create stage leaves the new sheet in place; it is
// reported in StageError.ResourceID.
func (o *Orchestrator) Provision(ctx context.Context, req Request, cred sheets.Credential) (*Result, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Email = strings.TrimSpace(req.Email)
	req.SchoolName = strings.TrimSpace(req.SchoolName)

	log := o.logger.With(slog.String("code", req.Code), slog.String("school", req.SchoolName))

	if req.Code == "" || req.Email == "" || req.SchoolName == "" {
		return nil, &StageError{Stage: StageValidate, Err: fmt.Errorf("%w: access code, email and school name are required", ErrInvalidRequest)}
	}

	eval, err := o.codes.Evaluate(ctx, req.Code)
	if err != nil {
		return nil, o.fail(log, StageValidate, "", err)
	}
	if !eval.Valid {
		return nil, o.fail(log, StageValidate, "", fmt.Errorf("%w: %s: %w", accesscode.ErrCodeRejected, eval.Message, eval.Reason.Err()))
	}

	name := o.SheetName(req.SchoolName)
	resourceID, err := o.store.CopyTemplate(ctx, cred, o.templateID, name)
	if err != nil {
		return nil, o.fail(log, StageCreate, "", err)
	}
	log = log.With(slog.String("resource", resourceID))
	log.Info("sheet created", slog.String("name", name))

	code, err := o.codes.Assign(ctx, req.Code, req.Email, req.SchoolName)
	if err != nil {
		return nil, o.fail(log, StageAssign, resourceID, err)
	}

	mres, err := o.migrator.Migrate(ctx, resourceID, cred)
	if err != nil {
		return nil, o.fail(log, StageMigrate, resourceID, err)
	}

	log.Info("school provisioned", slog.Bool("migrated", mres.Updated))
	return &Result{
		ResourceID: resourceID,
		Name:       name,
		Code:       code,
		Migration:  mres,
	}, nil
}

func (o *Orchestrator) fail(log *slog.Logger, stage Stage, resourceID string, err error) error {
	log.Error("provisioning failed", slog.String("stage", string(stage)), slog.String("error", err.Error()))
	return &StageError{Stage: stage, ResourceID: resourceID, Err: err}
}
