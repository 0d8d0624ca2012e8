package security

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrHashing is returned when the underlying hash primitive fails. Callers treat it as fatal
// for the operation in progress.
var ErrHashing = errors.New("identity hashing failed")

// maxRawLen is the longest input bcrypt accepts. Longer ids are digested first.
const maxRawLen = 72

// digestPrefix marks a pre-digested id so it cannot equal a short raw id.
const digestPrefix = "sha256:"

// tokenPrefixes are the bcrypt version markers every identity token starts with.
var tokenPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// IdentityHasher turns raw chat-platform user ids into salted bcrypt tokens. Tokens of the
// same id differ byte-for-byte; lookups must go through Matches. Raw ids must not be logged.
type IdentityHasher struct {
	Cost int
}

// NewIdentityHasher returns an IdentityHasher with the given bcrypt cost, clamped to 4–31.
// Zero or negative selects bcrypt.DefaultCost.
func NewIdentityHasher(cost int) *IdentityHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &IdentityHasher{Cost: cost}
}

// Hash returns a fresh token for rawID. The error wraps ErrHashing.
func (h *IdentityHasher) Hash(rawID string) (string, error) {
	b, err := bcrypt.GenerateFromPassword(bcryptInput(rawID), h.Cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashing, err)
	}
	return string(b), nil
}

// Matches reports whether token was produced from rawID. Any verification error, including a
// malformed token, is reported as a non-match.
func (h *IdentityHasher) Matches(rawID, token string) bool {
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(token), bcryptInput(rawID)) == nil
}

// bcryptInput returns rawID unchanged when bcrypt can take it, otherwise a fixed-length SHA-256
// digest of it. Short ids keep their plain bcrypt form so existing tokens still verify.
func bcryptInput(rawID string) []byte {
	if len(rawID) <= maxRawLen {
		return []byte(rawID)
	}
	sum := sha256.Sum256([]byte(rawID))
	return []byte(digestPrefix + base64.RawStdEncoding.EncodeToString(sum[:]))
}

// IsToken reports whether s already has the structural shape of an identity token.
// It does not verify the hash.
func IsToken(s string) bool {
	for _, p := range tokenPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
