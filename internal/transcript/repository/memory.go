package repository

import (
	"context"
	"fmt"
	"sync"

	"dm-relay/internal/transcript/domain"
)

// MemoryRepository is an append-only in-process Repository.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*domain.Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Create(ctx context.Context, e *domain.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries {
		if existing.ID == e.ID {
			return fmt.Errorf("transcript entry %s already exists", e.ID)
		}
	}
	m.entries = append(m.entries, clone(e))
	return nil
}

func (m *MemoryRepository) List(ctx context.Context, lookupKey string) ([]*domain.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Entry
	for _, e := range m.entries {
		if lookupKey != "" && e.LookupKey != "" && e.LookupKey != lookupKey {
			continue
		}
		out = append(out, clone(e))
	}
	return out, nil
}

func (m *MemoryRepository) ListAll(ctx context.Context) ([]*domain.Entry, error) {
	return m.List(ctx, "")
}

func (m *MemoryRepository) UpdateIdentity(ctx context.Context, id, userToken, lookupKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.UserToken = userToken
			e.LookupKey = lookupKey
			return nil
		}
	}
	return fmt.Errorf("transcript entry %s not found", id)
}

// Len returns the number of stored entries.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func clone(e *domain.Entry) *domain.Entry {
	c := *e
	if e.Response != nil {
		r := *e.Response
		c.Response = &r
	}
	return &c
}
