package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestBridgeTokens_IssueAndValidate(t *testing.T) {
	b := NewBridgeTokens("s3cret", time.Hour)
	token, exp, err := b.Issue("discord-bridge")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("Issue returned empty token")
	}
	if !exp.After(time.Now()) {
		t.Errorf("expiry %v should be in the future", exp)
	}
	bridge, err := b.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if bridge != "discord-bridge" {
		t.Errorf("bridge = %q, want %q", bridge, "discord-bridge")
	}
}

func TestBridgeTokens_WrongSecret(t *testing.T) {
	token, _, _ := NewBridgeTokens("one", time.Hour).Issue("bridge")
	if _, err := NewBridgeTokens("two", time.Hour).Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate with wrong secret = %v, want ErrInvalidToken", err)
	}
}

func TestBridgeTokens_Expired(t *testing.T) {
	claims := BridgeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    BridgeIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Bridge: "bridge",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewBridgeTokens("s3cret", time.Hour).Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate expired = %v, want ErrInvalidToken", err)
	}
}

func TestBridgeTokens_WrongIssuer(t *testing.T) {
	claims := BridgeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Bridge: "bridge",
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	if _, err := NewBridgeTokens("s3cret", time.Hour).Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate wrong issuer = %v, want ErrInvalidToken", err)
	}
}

func TestBridgeTokens_NoSecret(t *testing.T) {
	b := NewBridgeTokens("", 0)
	if _, _, err := b.Issue("bridge"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("Issue without secret = %v, want ErrNoSecret", err)
	}
	if _, err := b.Validate("anything"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("Validate without secret = %v, want ErrNoSecret", err)
	}
}

func TestBridgeTokens_Garbage(t *testing.T) {
	b := NewBridgeTokens("s3cret", time.Hour)
	for _, tok := range []string{"", "not.a.jwt", "a.b"} {
		if _, err := b.Validate(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidToken", tok, err)
		}
	}
}
