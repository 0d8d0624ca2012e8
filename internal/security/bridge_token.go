package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a bridge token is malformed, expired or signed with another secret.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSecret is returned when a BridgeTokens is used without a signing secret.
	ErrNoSecret = errors.New("bridge token secret is not configured")
)

// BridgeIssuer is the iss claim on bridge tokens.
const BridgeIssuer = "dm-relay"

// BridgeClaims identify the chat-platform bridge process calling the ingress. They say nothing
// about the chat user; sender ids are trusted as given.
type BridgeClaims struct {
	jwt.RegisteredClaims
	Bridge string `json:"bridge"`
}

// BridgeTokens issues and validates HS256 bridge tokens with a shared secret.
type BridgeTokens struct {
	secret []byte
	ttl    time.Duration
}

// NewBridgeTokens returns a BridgeTokens for secret. ttl applies to issued tokens; zero means 24h.
func NewBridgeTokens(secret string, ttl time.Duration) *BridgeTokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &BridgeTokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token naming bridge. Returns the token and its expiry.
func (b *BridgeTokens) Issue(bridge string) (string, time.Time, error) {
	if len(b.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(b.ttl)
	claims := BridgeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   bridge,
			Issuer:    BridgeIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Bridge: bridge,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate parses tokenString (signature, exp, iss) and returns the bridge name.
func (b *BridgeTokens) Validate(tokenString string) (string, error) {
	if len(b.secret) == 0 {
		return "", ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &BridgeClaims{}, func(token *jwt.Token) (interface{}, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(BridgeIssuer))
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*BridgeClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Bridge == "" {
		return claims.Subject, nil
	}
	return claims.Bridge, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
