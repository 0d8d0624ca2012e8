package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dm-relay/internal/session/domain"
)

// MemoryRepository is an in-process Repository used with DATABASE_DRIVER=memory and in tests.
// Stored sessions are deep copies so callers cannot mutate rows behind the store's back.
type MemoryRepository struct {
	mu    sync.RWMutex
	order []string
	rows  map[string]*domain.Session
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]*domain.Session)}
}

// ListActive returns copies of sessions touched at or after since, in insertion order.
func (m *MemoryRepository) ListActive(ctx context.Context, since time.Time, lookupKey string) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Session
	for _, id := range m.order {
		s := m.rows[id]
		if s.LastInteraction.Before(since) {
			continue
		}
		if lookupKey != "" && s.LookupKey != "" && s.LookupKey != lookupKey {
			continue
		}
		out = append(out, clone(s))
	}
	return out, nil
}

// ListAll returns copies of every session in insertion order.
func (m *MemoryRepository) ListAll(ctx context.Context) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, clone(m.rows[id]))
	}
	return out, nil
}

// Save inserts or replaces the session keyed by ID.
func (m *MemoryRepository) Save(ctx context.Context, s *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[s.ID]; !ok {
		m.order = append(m.order, s.ID)
	}
	stored := clone(s)
	stored.New = false
	m.rows[s.ID] = stored
	return nil
}

// UpdateIdentity rewrites the identity fields of the session with id.
func (m *MemoryRepository) UpdateIdentity(ctx context.Context, id, userToken, lookupKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	s.UserToken = userToken
	s.LookupKey = lookupKey
	return nil
}

// Len returns the number of stored rows.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func clone(s *domain.Session) *domain.Session {
	c := *s
	if s.Messages != nil {
		c.Messages = make([]domain.Message, len(s.Messages))
		copy(c.Messages, s.Messages)
	}
	return &c
}
