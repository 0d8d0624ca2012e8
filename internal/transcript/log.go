// Package transcript keeps the anonymized interaction log: one entry per handled exchange,
// owned by an identity token instead of the sender's raw id.
package transcript

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"dm-relay/internal/chat"
	"dm-relay/internal/db"
	"dm-relay/internal/transcript/domain"
	"dm-relay/internal/transcript/repository"
)

// ErrorSessionRef is recorded as the session reference when no session could be resolved.
const ErrorSessionRef = "error"

// Eligibility decides whether a message is logged at all.
type Eligibility interface {
	Eligible(ctx context.Context, msg chat.Message) bool
}

// IdentityHasher turns raw ids into identity tokens and verifies them.
type IdentityHasher interface {
	Hash(rawID string) (string, error)
	Matches(rawID, token string) bool
}

// KeyDeriver derives the optional lookup key for a raw id.
type KeyDeriver interface {
	Key(rawID string) string
}

// RecordResult reports what Record did. Callers are expected to discard it; it exists for tests
// and telemetry.
type RecordResult struct {
	Skipped bool
	EntryID string
	Err     error
}

// Log appends transcript entries. Record is best-effort: failures are logged and never returned.
type Log struct {
	repo        repository.Repository
	hasher      IdentityHasher
	keys        KeyDeriver
	eligibility Eligibility
	timeout     time.Duration
	// OnFailure, when set, is called once per entry that could not be written.
	OnFailure func(ctx context.Context)
}

// NewLog returns a transcript Log. keys may be nil; a nil eligibility falls back to chat.Message.Direct.
func NewLog(repo repository.Repository, hasher IdentityHasher, keys KeyDeriver, eligibility Eligibility, timeout time.Duration) *Log {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Log{repo: repo, hasher: hasher, keys: keys, eligibility: eligibility, timeout: timeout}
}

// Record appends one entry for msg. Bot and guild messages are skipped without touching storage.
// response is nil when no reply was produced; sessionRef is the session id or ErrorSessionRef.
func (l *Log) Record(ctx context.Context, msg chat.Message, response *string, sessionRef string) RecordResult {
	if !l.eligible(ctx, msg) {
		return RecordResult{Skipped: true}
	}
	token, err := l.hasher.Hash(msg.SenderID)
	if err != nil {
		log.Printf("transcript: hash sender for session %s: %v", sessionRef, err)
		l.failed(ctx)
		return RecordResult{Err: err}
	}
	entry := &domain.Entry{
		ID:         uuid.NewString(),
		UserToken:  token,
		LookupKey:  l.lookupKey(msg.SenderID),
		Content:    msg.Content,
		Response:   response,
		Timestamp:  msg.CreatedAt,
		SessionRef: sessionRef,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.repo.Create(opCtx, entry); err != nil {
		err = db.Persistence("create transcript entry", err)
		log.Printf("transcript: failed to record entry for session %s: %v", sessionRef, err)
		l.failed(ctx)
		return RecordResult{EntryID: entry.ID, Err: err}
	}
	return RecordResult{EntryID: entry.ID}
}

// ForUser returns every entry owned by rawID, oldest first.
func (l *Log) ForUser(ctx context.Context, rawID string) ([]*domain.Entry, error) {
	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	candidates, err := l.repo.List(opCtx, l.lookupKey(rawID))
	if err != nil {
		return nil, db.Persistence("list transcript entries", err)
	}
	var out []*domain.Entry
	for _, e := range candidates {
		if l.hasher.Matches(rawID, e.UserToken) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *Log) eligible(ctx context.Context, msg chat.Message) bool {
	if l.eligibility == nil {
		return msg.Direct()
	}
	return l.eligibility.Eligible(ctx, msg)
}

func (l *Log) lookupKey(rawID string) string {
	if l.keys == nil {
		return ""
	}
	return l.keys.Key(rawID)
}

func (l *Log) failed(ctx context.Context) {
	if l.OnFailure != nil {
		l.OnFailure(ctx)
	}
}
