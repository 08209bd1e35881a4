package sheets

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Locations are matched exactly, so
// callers must read and write a row through the same Location.
type MemoryStore struct {
	mu        sync.RWMutex
	resources map[string]*memoryResource
}

type memoryResource struct {
	name   string
	ranges map[Location][]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{resources: make(map[string]*memoryResource)}
}

// Put creates resourceID if needed and sets the row at loc.
func (m *MemoryStore) Put(resourceID string, loc Location, values ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.resources[resourceID]
	if !ok {
		res = &memoryResource{name: resourceID, ranges: make(map[Location][]string)}
		m.resources[resourceID] = res
	}
	res.ranges[loc] = append([]string(nil), values...)
}

// Row returns a copy of the row at loc, or nil.
func (m *MemoryStore) Row(resourceID string, loc Location) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.resources[resourceID]
	if !ok {
		return nil
	}
	return append([]string(nil), res.ranges[loc]...)
}

// Name returns the display name of a resource.
func (m *MemoryStore) Name(resourceID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.resources[resourceID]
	if !ok {
		return "", false
	}
	return res.name, true
}

func (m *MemoryStore) resource(resourceID string) (*memoryResource, error) {
	res, ok := m.resources[resourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, resourceID)
	}
	return res, nil
}

// ReadRow returns the row at loc.
func (m *MemoryStore) ReadRow(ctx context.Context, _ Credential, resourceID string, loc Location) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, err := m.resource(resourceID)
	if err != nil {
		return nil, err
	}
	return append([]string{}, res.ranges[loc]...), nil
}

// WriteRow replaces the row at loc.
func (m *MemoryStore) WriteRow(ctx context.Context, _ Credential, resourceID string, loc Location, values []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.resource(resourceID)
	if err != nil {
		return err
	}
	res.ranges[loc] = append([]string(nil), values...)
	return nil
}

// ReadCell returns the first value at loc.
func (m *MemoryStore) ReadCell(ctx context.Context, cred Credential, resourceID string, loc Location) (string, bool, error) {
	row, err := m.ReadRow(ctx, cred, resourceID, loc)
	if err != nil {
		return "", false, err
	}
	if len(row) == 0 || row[0] == "" {
		return "", false, nil
	}
	return row[0], true, nil
}

// WriteCell sets the single value at loc.
func (m *MemoryStore) WriteCell(ctx context.Context, cred Credential, resourceID string, loc Location, value string) error {
	return m.WriteRow(ctx, cred, resourceID, loc, []string{value})
}

// CopyTemplate clones every range of templateID into a new resource.
func (m *MemoryStore) CopyTemplate(ctx context.Context, _ Credential, templateID, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tmpl, err := m.resource(templateID)
	if err != nil {
		return "", fmt.Errorf("template: %w", err)
	}

	id := uuid.New().String()
	clone := &memoryResource{name: name, ranges: make(map[Location][]string, len(tmpl.ranges))}
	for loc, row := range tmpl.ranges {
		clone.ranges[loc] = append([]string(nil), row...)
	}
	m.resources[id] = clone
	return id, nil
}
