package repository

import (
	"context"
	"time"

	"dm-relay/internal/session/domain"
)

// Repository defines persistence for sessions. Rows are returned in insertion order.
type Repository interface {
	// ListActive returns sessions with last_interaction at or after since. When lookupKey is
	// non-empty only rows with that key or with no key are returned.
	ListActive(ctx context.Context, since time.Time, lookupKey string) ([]*domain.Session, error)
	// ListAll returns every stored session, expired ones included.
	ListAll(ctx context.Context) ([]*domain.Session, error)
	// Save inserts the session or replaces the stored row with the same ID.
	Save(ctx context.Context, s *domain.Session) error
	// UpdateIdentity rewrites only the identity columns of the session with id.
	UpdateIdentity(ctx context.Context, id, userToken, lookupKey string) error
}
