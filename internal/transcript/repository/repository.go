package repository

import (
	"context"

	"dm-relay/internal/transcript/domain"
)

// Repository defines persistence for transcript entries. List methods return insertion order.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	// List returns entries whose lookup key equals lookupKey or is unset. An empty lookupKey lists everything.
	List(ctx context.Context, lookupKey string) ([]*domain.Entry, error)
	ListAll(ctx context.Context) ([]*domain.Entry, error)
	UpdateIdentity(ctx context.Context, id, userToken, lookupKey string) error
}
