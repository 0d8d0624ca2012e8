// Package session keeps each user's short-lived conversation window without storing the raw user
// id. Sessions are located by verifying every live candidate's identity token.
package session

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"dm-relay/internal/db"
	"dm-relay/internal/security"
	"dm-relay/internal/session/domain"
	"dm-relay/internal/session/repository"
)

const (
	DefaultTTL     = 30 * time.Minute
	DefaultWindow  = 10
	DefaultTimeout = db.DefaultTimeout
)

// Re-exported so callers of the store need not import db or security.
var (
	ErrPersistence = db.ErrPersistence
	ErrHashing     = security.ErrHashing
)

// IdentityHasher turns raw ids into identity tokens and verifies them.
type IdentityHasher interface {
	Hash(rawID string) (string, error)
	Matches(rawID, token string) bool
}

// KeyDeriver derives the optional lookup key for a raw id. An empty key disables narrowing.
type KeyDeriver interface {
	Key(rawID string) string
}

// Options configure a Store. Zero values select the defaults.
type Options struct {
	TTL     time.Duration
	Window  int
	Timeout time.Duration
}

// Store implements GetOrCreate and Update over a session repository.
type Store struct {
	repo    repository.Repository
	hasher  IdentityHasher
	keys    KeyDeriver
	ttl     time.Duration
	window  int
	timeout time.Duration
	nowF    func() time.Time
	// OnCreate, when set, is called once per newly built session.
	OnCreate func(ctx context.Context)
}

// NewStore returns a Store. keys may be nil.
func NewStore(repo repository.Repository, hasher IdentityHasher, keys KeyDeriver, opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Store{
		repo:    repo,
		hasher:  hasher,
		keys:    keys,
		ttl:     opts.TTL,
		window:  opts.Window,
		timeout: opts.Timeout,
		nowF:    time.Now,
	}
}

// GetOrCreate returns the first live stored session whose token matches rawID, in storage order.
// When none matches it builds a new unsaved session with a fresh token and empty history; the
// session is persisted by the first Update. Two concurrent first messages from one user may
// create two sessions.
func (s *Store) GetOrCreate(ctx context.Context, rawID string) (*domain.Session, error) {
	now := s.nowF()
	lookupKey := s.lookupKey(rawID)

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	candidates, err := s.repo.ListActive(opCtx, now.Add(-s.ttl), lookupKey)
	cancel()
	if err != nil {
		return nil, db.Persistence("list sessions", err)
	}

	for _, c := range candidates {
		if !c.ActiveAt(now, s.ttl) {
			continue
		}
		if s.hasher.Matches(rawID, c.UserToken) {
			return c, nil
		}
	}

	token, err := s.hasher.Hash(rawID)
	if err != nil {
		return nil, err
	}
	sess := &domain.Session{
		ID:              uuid.NewString(),
		UserToken:       token,
		LookupKey:       lookupKey,
		Messages:        []domain.Message{},
		LastInteraction: now,
		New:             true,
	}
	if s.OnCreate != nil {
		s.OnCreate(ctx)
	}
	return sess, nil
}

// Update appends the user text then the assistant text, trims the window, stamps the interaction
// time and upserts the session. On failure the in-memory session still carries the new messages.
func (s *Store) Update(ctx context.Context, sess *domain.Session, userText, aiText string) error {
	now := s.nowF()
	sess.Append(s.window,
		domain.Message{Role: domain.RoleUser, Content: userText, Timestamp: now},
		domain.Message{Role: domain.RoleAssistant, Content: aiText, Timestamp: now},
	)
	sess.LastInteraction = now

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Save(opCtx, sess); err != nil {
		log.Printf("session: save %s failed: %v", sess.ID, err)
		return db.Persistence("save session", err)
	}
	sess.New = false
	return nil
}

// History returns the session's messages as role/content pairs in order.
func History(sess *domain.Session) []domain.Message {
	if sess == nil {
		return nil
	}
	out := make([]domain.Message, len(sess.Messages))
	copy(out, sess.Messages)
	return out
}

func (s *Store) lookupKey(rawID string) string {
	if s.keys == nil {
		return ""
	}
	return s.keys.Key(rawID)
}
