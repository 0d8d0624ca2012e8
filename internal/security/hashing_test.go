package security

import (
	"errors"
	"strings"
	"testing"
)

func TestIdentityHasher_HashAndMatches(t *testing.T) {
	h := NewIdentityHasher(4)
	token, err := h.Hash("123456789012345678")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if token == "" {
		t.Fatal("Hash returned empty")
	}
	if token == "123456789012345678" {
		t.Fatal("Hash returned the raw id")
	}
	if !h.Matches("123456789012345678", token) {
		t.Fatal("Matches should accept the id the token was made from")
	}
}

func TestIdentityHasher_DifferentIDsDoNotMatch(t *testing.T) {
	h := NewIdentityHasher(4)
	token, _ := h.Hash("user-a")
	if h.Matches("user-b", token) {
		t.Fatal("Matches should reject a different id")
	}
}

func TestIdentityHasher_TokensAreSalted(t *testing.T) {
	h := NewIdentityHasher(4)
	t1, _ := h.Hash("abc")
	t2, _ := h.Hash("abc")
	if t1 == t2 {
		t.Fatal("two hashes of the same id should differ")
	}
	if !h.Matches("abc", t1) || !h.Matches("abc", t2) {
		t.Fatal("both tokens should match the id")
	}
}

func TestIdentityHasher_MatchesFailsClosed(t *testing.T) {
	h := NewIdentityHasher(4)
	testCases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"plaintext", "abc"},
		{"truncated", "$2a$04$abc"},
		{"garbage prefix", "$2z$04$aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if h.Matches("abc", tc.token) {
				t.Errorf("Matches(%q) should be false", tc.token)
			}
		})
	}
}

func TestIdentityHasher_HashFailureWrapsErrHashing(t *testing.T) {
	// bcrypt rejects costs above MaxCost; NewIdentityHasher clamps, so build the struct directly.
	h := &IdentityHasher{Cost: 32}
	_, err := h.Hash("abc")
	if err == nil {
		t.Fatal("Hash should fail for an invalid cost")
	}
	if !errors.Is(err, ErrHashing) {
		t.Errorf("error = %v, want ErrHashing", err)
	}
}

func TestIdentityHasher_LongIDs(t *testing.T) {
	h := NewIdentityHasher(4)
	testCases := []struct {
		name string
		id   string
	}{
		{"exactly 72 bytes", strings.Repeat("u", 72)},
		{"73 bytes", strings.Repeat("u", 73)},
		{"64 KiB", strings.Repeat("u", 64<<10)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := h.Hash(tc.id)
			if err != nil {
				t.Fatalf("Hash: %v", err)
			}
			if !IsToken(token) {
				t.Errorf("token %q lacks a bcrypt prefix", token)
			}
			if !h.Matches(tc.id, token) {
				t.Error("Matches should accept the id the token was made from")
			}
			if h.Matches(tc.id+"x", token) {
				t.Error("Matches should reject a longer id")
			}
		})
	}
}

func TestIdentityHasher_LongIDsDifferBeyond72Bytes(t *testing.T) {
	h := NewIdentityHasher(4)
	prefix := strings.Repeat("u", 72)
	token, err := h.Hash(prefix + "a")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h.Matches(prefix+"b", token) {
		t.Error("ids sharing the first 72 bytes must not match each other")
	}
	if h.Matches(prefix, token) {
		t.Error("the 72-byte prefix must not match the longer id")
	}
}

func TestIdentityHasher_Cost(t *testing.T) {
	h := NewIdentityHasher(12)
	if h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	h0 := NewIdentityHasher(0)
	if h0.Cost != 10 {
		t.Errorf("zero cost should select the bcrypt default, got %d", h0.Cost)
	}
	hLow := NewIdentityHasher(2)
	if hLow.Cost != 4 {
		t.Errorf("cost below MinCost should clamp to 4, got %d", hLow.Cost)
	}
	hHigh := NewIdentityHasher(40)
	if hHigh.Cost != 31 {
		t.Errorf("cost above MaxCost should clamp to 31, got %d", hHigh.Cost)
	}
}

func TestIsToken(t *testing.T) {
	h := NewIdentityHasher(4)
	token, _ := h.Hash("abc")
	testCases := []struct {
		name string
		in   string
		want bool
	}{
		{"fresh token", token, true},
		{"2b prefix", "$2b$10$whatever", true},
		{"2y prefix", "$2y$10$whatever", true},
		{"discord snowflake", "80351110224678912", false},
		{"empty", "", false},
		{"sha256 hex", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsToken(tc.in); got != tc.want {
				t.Errorf("IsToken(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestLookupKeyer(t *testing.T) {
	k := NewLookupKeyer("pepper")
	if !k.Enabled() {
		t.Fatal("keyer with pepper should be enabled")
	}
	a1, a2, b := k.Key("abc"), k.Key("abc"), k.Key("abd")
	if a1 == "" {
		t.Fatal("Key returned empty")
	}
	if a1 != a2 {
		t.Error("Key should be deterministic")
	}
	if a1 == b {
		t.Error("different ids should produce different keys")
	}
	other := NewLookupKeyer("other-pepper")
	if other.Key("abc") == a1 {
		t.Error("keys should depend on the pepper")
	}
}

func TestLookupKeyer_Disabled(t *testing.T) {
	k := NewLookupKeyer("")
	if k.Enabled() {
		t.Fatal("empty pepper should disable the keyer")
	}
	if got := k.Key("abc"); got != "" {
		t.Errorf("disabled Key = %q, want empty", got)
	}
	var nilKeyer *LookupKeyer
	if nilKeyer.Key("abc") != "" {
		t.Error("nil keyer should return empty key")
	}
}
