package knowledge

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists a knowledge base between runs.
type Store interface {
	// Load returns the persisted classifications. A store with nothing
	// persisted yet returns an empty base.
	Load(ctx context.Context) (*Base, error)
	// Save replaces the persisted classifications with b.
	Save(ctx context.Context, b *Base) error
}

// LoadInto loads from s and merges the result into seed.
func LoadInto(ctx context.Context, s Store, seed *Base) error {
	persisted, err := s.Load(ctx)
	if err != nil {
		return fmt.Errorf("load knowledge: %w", err)
	}
	seed.Merge(persisted)
	return nil
}

// MemoryStore keeps the snapshot in process memory. It backs --no-cache runs
// and tests.
type MemoryStore struct {
	mu    sync.Mutex
	base  *Base
	saves int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context) (*Base, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.base == nil {
		return NewBase(), nil
	}
	return m.base.Clone(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, b *Base) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.base = b.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// snapshot is the serialized form shared by the file store and `kb show --json`.
type snapshot struct {
	SchemaVersion string            `json:"schema_version"`
	Version       uint64            `json:"version"`
	References    []string          `json:"ref"`
	Values        []string          `json:"objects"`
	Redirects     map[string]string `json:"redirect_to"`
	Literals      map[string]string `json:"give_value"`
}

func toSnapshot(b *Base) snapshot {
	s := snapshot{
		SchemaVersion: SchemaVersion,
		Version:       b.Version,
		References:    sortedKeys(b.References),
		Values:        sortedKeys(b.Values),
		Redirects:     make(map[string]string, len(b.Redirects)),
		Literals:      make(map[string]string, len(b.Literals)),
	}
	for k, v := range b.Redirects {
		s.Redirects[k] = v
	}
	for k, v := range b.Literals {
		s.Literals[k] = v
	}
	return s
}

func fromSnapshot(s snapshot) *Base {
	b := NewBase()
	for _, k := range s.References {
		b.References[k] = struct{}{}
	}
	for _, k := range s.Values {
		b.Values[k] = struct{}{}
	}
	for k, v := range s.Redirects {
		b.Redirects[k] = v
	}
	for k, v := range s.Literals {
		b.Literals[k] = v
	}
	b.Version = s.Version
	return b
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
