package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// LookupKeyer derives a deterministic keyed hash of a raw user id. It narrows the rows that
// need a bcrypt comparison; it never replaces IdentityHasher.Matches. A LookupKeyer with an
// empty pepper is disabled and returns "" for every id.
type LookupKeyer struct {
	pepper []byte
}

// NewLookupKeyer returns a LookupKeyer for pepper. An empty pepper disables lookup keys.
func NewLookupKeyer(pepper string) *LookupKeyer {
	if pepper == "" {
		return &LookupKeyer{}
	}
	return &LookupKeyer{pepper: []byte(pepper)}
}

// Enabled reports whether keys are derived.
func (k *LookupKeyer) Enabled() bool {
	return k != nil && len(k.pepper) > 0
}

// Key returns hex(HMAC-SHA256(pepper, rawID)), or "" when disabled.
func (k *LookupKeyer) Key(rawID string) string {
	if !k.Enabled() {
		return ""
	}
	mac := hmac.New(sha256.New, k.pepper)
	mac.Write([]byte(rawID))
	return hex.EncodeToString(mac.Sum(nil))
}
