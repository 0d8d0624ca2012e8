// Package upgrade rewrites identity fields stored before identities were hashed.
package upgrade

import (
	"context"
	"fmt"
	"log"
	"time"

	"dm-relay/internal/db"
	sessionrepo "dm-relay/internal/session/repository"
	transcriptrepo "dm-relay/internal/transcript/repository"
)

// Hasher produces identity tokens.
type Hasher interface {
	Hash(rawID string) (string, error)
}

// KeyDeriver derives the optional lookup key for a raw id.
type KeyDeriver interface {
	Key(rawID string) string
}

// Report counts what one upgrade pass changed.
type Report struct {
	SessionsUpgraded    int
	TranscriptsUpgraded int
	Failures            int
}

// Upgrader replaces plaintext identity fields with identity tokens.
type Upgrader struct {
	sessions    sessionrepo.Repository
	transcripts transcriptrepo.Repository
	hasher      Hasher
	keys        KeyDeriver
	isToken     func(string) bool
	// Timeout bounds each store call: one listing or one row update.
	Timeout time.Duration
}

// NewUpgrader returns an Upgrader. keys may be nil. isToken recognises values that are already tokens.
func NewUpgrader(sessions sessionrepo.Repository, transcripts transcriptrepo.Repository, hasher Hasher, keys KeyDeriver, isToken func(string) bool) *Upgrader {
	return &Upgrader{sessions: sessions, transcripts: transcripts, hasher: hasher, keys: keys, isToken: isToken, Timeout: db.DefaultTimeout}
}

// UpgradeLegacyIdentities hashes every stored identity field that is not already a token. Empty
// fields and tokens are left alone, so running it twice changes nothing the second time. A failed
// row is logged and counted and the scan continues. It errors only when a collection cannot be listed.
func (u *Upgrader) UpgradeLegacyIdentities(ctx context.Context) (Report, error) {
	var rep Report

	listCtx, cancel := u.opContext(ctx)
	sessions, err := u.sessions.ListAll(listCtx)
	cancel()
	if err != nil {
		return rep, db.Persistence("list sessions", err)
	}
	for _, s := range sessions {
		if !u.legacy(s.UserToken) {
			continue
		}
		token, key, err := u.tokenFor(s.UserToken)
		if err == nil {
			opCtx, cancel := u.opContext(ctx)
			err = db.Persistence("update session identity", u.sessions.UpdateIdentity(opCtx, s.ID, token, key))
			cancel()
		}
		if err != nil {
			log.Printf("upgrade: session %s: %v", s.ID, err)
			rep.Failures++
			continue
		}
		rep.SessionsUpgraded++
	}

	listCtx, cancel = u.opContext(ctx)
	entries, err := u.transcripts.ListAll(listCtx)
	cancel()
	if err != nil {
		return rep, db.Persistence("list transcript entries", err)
	}
	for _, e := range entries {
		if !u.legacy(e.UserToken) {
			continue
		}
		token, key, err := u.tokenFor(e.UserToken)
		if err == nil {
			opCtx, cancel := u.opContext(ctx)
			err = db.Persistence("update transcript identity", u.transcripts.UpdateIdentity(opCtx, e.ID, token, key))
			cancel()
		}
		if err != nil {
			log.Printf("upgrade: transcript entry %s: %v", e.ID, err)
			rep.Failures++
			continue
		}
		rep.TranscriptsUpgraded++
	}

	log.Printf("upgrade: %d sessions, %d transcript entries upgraded, %d failures",
		rep.SessionsUpgraded, rep.TranscriptsUpgraded, rep.Failures)
	return rep, nil
}

func (u *Upgrader) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if u.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, u.Timeout)
}

func (u *Upgrader) legacy(v string) bool {
	return v != "" && !u.isToken(v)
}

func (u *Upgrader) tokenFor(raw string) (string, string, error) {
	token, err := u.hasher.Hash(raw)
	if err != nil {
		return "", "", fmt.Errorf("hash identity: %w", err)
	}
	key := ""
	if u.keys != nil {
		key = u.keys.Key(raw)
	}
	return token, key, nil
}
