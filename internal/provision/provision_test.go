package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
	"github.com/leapstack-labs/bustracker/internal/migrate"
	"github.com/leapstack-labs/bustracker/internal/schema"
	"github.com/leapstack-labs/bustracker/internal/sheets"
	"github.com/leapstack-labs/bustracker/internal/testutil"
)

const templateID = "master"

type target struct{}

func (target) Current() (schema.Version, []string, error) {
	return schema.ParseVersion("1.10"), []string{"Student", "Stop", "Route"}, nil
}

type fixture struct {
	orch  *Orchestrator
	codes *accesscode.Lifecycle
	store *accesscode.MemoryStore
	mem   *sheets.MemoryStore
	now   time.Time
}

func newFixture(t *testing.T, migrator Migrator) *fixture {
	t.Helper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mem := sheets.NewMemoryStore()
	mem.Put(templateID, migrate.DefaultHeaderRange, "Student", "Stop")
	mem.Put(templateID, migrate.DefaultVersionRange, "1.9")

	store := accesscode.NewMemoryStore()
	codes := accesscode.NewLifecycle(store, accesscode.WithClock(func() time.Time { return now }))

	if migrator == nil {
		migrator = migrate.New(mem, target{}, migrate.DefaultLayout(), nil)
	}

	return &fixture{
		orch:  New(codes, mem, migrator, templateID, WithLogger(testutil.NewTestLogger(t))),
		codes: codes,
		store: store,
		mem:   mem,
		now:   now,
	}
}

func (f *fixture) code(t *testing.T, c *accesscode.AccessCode) string {
	t.Helper()
	if c.Status == "" {
		c.Status = accesscode.StatusActive
	}
	require.NoError(t, f.store.Insert(context.Background(), c))
	return c.Code
}

func TestProvision_Success(t *testing.T) {
	f := newFixture(t, nil)
	code := f.code(t, &accesscode.AccessCode{Code: "abc123"})

	res, err := f.orch.Provision(context.Background(), Request{Code: code, Email: "admin@lincoln.edu", SchoolName: "Lincoln High"}, sheets.Credential{})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ResourceID)
	assert.Equal(t, "Lincoln High BusTracker Data", res.Name)
	name, ok := f.mem.Name(res.ResourceID)
	require.True(t, ok)
	assert.Equal(t, "Lincoln High BusTracker Data", name)

	assert.Equal(t, accesscode.StatusUsed, res.Code.Status)
	assert.Equal(t, "admin@lincoln.edu", *res.Code.UserEmail)

	require.NotNil(t, res.Migration)
	assert.True(t, res.Migration.Updated)
	assert.Equal(t, []string{"Route"}, res.Migration.MissingColumns)
	assert.Equal(t, []string{"Student", "Stop", "Route"}, f.mem.Row(res.ResourceID, migrate.DefaultHeaderRange))
	assert.Equal(t, []string{"1.10"}, f.mem.Row(res.ResourceID, migrate.DefaultVersionRange))

	// the template itself is untouched
	assert.Equal(t, []string{"Student", "Stop"}, f.mem.Row(templateID, migrate.DefaultHeaderRange))
}

func TestProvision_ValidateStage(t *testing.T) {
	past := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	email := "x@y.z"

	tests := []struct {
		name    string
		code    *accesscode.AccessCode
		request Request
		wantErr error
	}{
		{
			name:    "unknown code",
			request: Request{Code: "nope", Email: "a@b.c", SchoolName: "S"},
			wantErr: accesscode.ErrNotFound,
		},
		{
			name:    "used code",
			code:    &accesscode.AccessCode{Code: "used", Status: accesscode.StatusUsed, UserEmail: &email},
			request: Request{Code: "used", Email: "a@b.c", SchoolName: "S"},
			wantErr: accesscode.ErrAlreadyUsed,
		},
		{
			name:    "expired code",
			code:    &accesscode.AccessCode{Code: "old", ExpiresAt: &past},
			request: Request{Code: "old", Email: "a@b.c", SchoolName: "S"},
			wantErr: accesscode.ErrExpired,
		},
		{
			name:    "missing school",
			request: Request{Code: "abc", Email: "a@b.c", SchoolName: "  "},
			wantErr: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.code != nil {
				f.code(t, tt.code)
			}

			_, err := f.orch.Provision(context.Background(), tt.request, sheets.Credential{})
			require.Error(t, err)

			stage, ok := FailedStage(err)
			require.True(t, ok)
			assert.Equal(t, StageValidate, stage)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr != ErrInvalidRequest {
				assert.ErrorIs(t, err, accesscode.ErrCodeRejected)
			}
		})
	}
}

type failingSheets struct {
	*sheets.MemoryStore
}

func (failingSheets) CopyTemplate(context.Context, sheets.Credential, string, string) (string, error) {
	return "", sheets.ErrNoCredential
}

func TestProvision_CreateStage(t *testing.T) {
	f := newFixture(t, nil)
	code := f.code(t, &accesscode.AccessCode{Code: "abc"})
	orch := New(f.codes, failingSheets{f.mem}, migrate.New(f.mem, target{}, migrate.Layout{}, nil), templateID)

	_, err := orch.Provision(context.Background(), Request{Code: code, Email: "a@b.c", SchoolName: "S"}, sheets.Credential{})
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageCreate, se.Stage)
	assert.Empty(t, se.ResourceID)
	assert.ErrorIs(t, err, sheets.ErrNoCredential)

	// the code was not consumed
	res, err := f.codes.Evaluate(context.Background(), code)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestProvision_CreateStageUnknownTemplate(t *testing.T) {
	f := newFixture(t, nil)
	code := f.code(t, &accesscode.AccessCode{Code: "abc"})
	orch := New(f.codes, f.mem, migrate.New(f.mem, target{}, migrate.Layout{}, nil), "no-such-template")

	_, err := orch.Provision(context.Background(), Request{Code: code, Email: "a@b.c", SchoolName: "S"}, sheets.Credential{})
	stage, _ := FailedStage(err)
	assert.Equal(t, StageCreate, stage)
	assert.ErrorIs(t, err, sheets.ErrNotFound)
}

// racingStore lets a rival claim every code just before our assignment.
type racingStore struct {
	*accesscode.MemoryStore
}

func (r racingStore) CompareAndAssign(ctx context.Context, code string, a accesscode.Assignment) (*accesscode.AccessCode, bool, error) {
	_, _, _ = r.MemoryStore.CompareAndAssign(ctx, code, accesscode.Assignment{Email: "rival@b.c"})
	return r.MemoryStore.CompareAndAssign(ctx, code, a)
}

func TestProvision_AssignStageRaceLost(t *testing.T) {
	mem := sheets.NewMemoryStore()
	mem.Put(templateID, migrate.DefaultHeaderRange, "Student")
	store := racingStore{accesscode.NewMemoryStore()}
	require.NoError(t, store.Insert(context.Background(), &accesscode.AccessCode{Code: "abc", Status: accesscode.StatusActive}))

	orch := New(accesscode.NewLifecycle(store), mem, migrate.New(mem, target{}, migrate.Layout{}, nil), templateID)

	_, err := orch.Provision(context.Background(), Request{Code: "abc", Email: "a@b.c", SchoolName: "S"}, sheets.Credential{})
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageAssign, se.Stage)
	assert.NotEmpty(t, se.ResourceID, "the created sheet is reported")
	assert.ErrorIs(t, err, accesscode.ErrRaceLost)
	assert.ErrorIs(t, err, accesscode.ErrInvalidCode)
}

type migratorFunc func(ctx context.Context, id string, cred sheets.Credential) (*migrate.Result, error)

func (f migratorFunc) Migrate(ctx context.Context, id string, cred sheets.Credential) (*migrate.Result, error) {
	return f(ctx, id, cred)
}

func TestProvision_MigrateStage(t *testing.T) {
	boom := &migrate.Error{Kind: migrate.ErrHeaderWrite, Err: errors.New("quota exceeded")}
	f := newFixture(t, migratorFunc(func(context.Context, string, sheets.Credential) (*migrate.Result, error) {
		return nil, boom
	}))
	code := f.code(t, &accesscode.AccessCode{Code: "abc"})

	_, err := f.orch.Provision(context.Background(), Request{Code: code, Email: "a@b.c", SchoolName: "S"}, sheets.Credential{})
	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StageMigrate, stage)
	assert.ErrorIs(t, err, migrate.ErrHeaderWrite)
	assert.True(t, migrate.IsRetryable(err))

	// the code stays consumed; a retry migrates the sheet directly
	res, err := f.codes.Evaluate(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, accesscode.ReasonAlreadyUsed, res.Reason)
}

func TestSheetName(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "Oak BusTracker Data", f.orch.SheetName("Oak"))

	custom := New(f.codes, f.mem, nil, templateID, WithNameFormat("Routes - %s"))
	assert.Equal(t, "Routes - Oak", custom.SheetName("Oak"))
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: StageCreate, Err: sheets.ErrRemote}
	assert.Equal(t, "provision create: remote store error", err.Error())

	withID := &StageError{Stage: StageMigrate, ResourceID: "r1", Err: sheets.ErrRemote}
	assert.Contains(t, withID.Error(), "resource r1")

	_, ok := FailedStage(errors.New("plain"))
	assert.False(t, ok)
}
