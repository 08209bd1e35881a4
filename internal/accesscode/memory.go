package accesscode

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]*AccessCode
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: make(map[string]*AccessCode)}
}

// Insert stores a copy of code.
func (m *MemoryStore) Insert(ctx context.Context, code *AccessCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.codes[code.Code]; ok {
		return ErrDuplicateCode
	}
	m.codes[code.Code] = code.Clone()
	return nil
}

// Get returns a copy of the stored code.
func (m *MemoryStore) Get(ctx context.Context, code string) (*AccessCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns copies of all codes, newest first.
func (m *MemoryStore) List(ctx context.Context) ([]*AccessCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*AccessCode, 0, len(m.codes))
	for _, rec := range m.codes {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CompareAndAssign marks code used if it is active and unassigned.
func (m *MemoryStore) CompareAndAssign(ctx context.Context, code string, a Assignment) (*AccessCode, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.codes[code]
	if !ok || !rec.Assignable() {
		return nil, false, nil
	}

	email, school, at := a.Email, a.SchoolName, a.AssignedAt
	rec.Status = StatusUsed
	rec.UserEmail = &email
	rec.SchoolName = &school
	rec.AssignedAt = &at
	return rec.Clone(), true, nil
}
