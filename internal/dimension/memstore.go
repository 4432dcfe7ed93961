package dimension

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/schema"
)

// MemStore is an in-process Store used for dry-run imports.
type MemStore struct {
	mu        sync.Mutex
	names     map[Kind]map[string]int64
	locations map[string]schema.Location
	next      map[Kind]int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		names:     map[Kind]map[string]int64{KindStatus: {}, KindComplaintType: {}},
		locations: map[string]schema.Location{},
		next:      map[Kind]int64{},
	}
}

func (m *MemStore) UpsertName(_ context.Context, kind Kind, name string, _ time.Time) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName, ok := m.names[kind]
	if !ok {
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if id, ok := byName[name]; ok {
		return id, false, nil
	}
	m.next[kind]++
	byName[name] = m.next[kind]
	return m.next[kind], true, nil
}

func (m *MemStore) UpsertLocation(_ context.Context, loc schema.Location) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.locations[loc.Fingerprint]; ok {
		return existing.ID, false, nil
	}
	m.next[KindLocation]++
	loc.ID = m.next[KindLocation]
	m.locations[loc.Fingerprint] = loc
	return loc.ID, true, nil
}

// Len returns how many rows of kind the store holds.
func (m *MemStore) Len(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == KindLocation {
		return len(m.locations)
	}
	return len(m.names[kind])
}
