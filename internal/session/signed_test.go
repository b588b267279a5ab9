package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/faucetdb/quotagate/internal/model"
)

var testCred = model.Credential{Secret: "sk_test", Identifier: "id_1"}

func TestSignedStoreRoundTrip(t *testing.T) {
	s := NewSignedStore([]byte("test-session-secret"), 0)
	ctx := context.Background()

	token, err := s.Put(ctx, "", testCred)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if strings.Contains(token, "sk_test") {
		// JWT payloads are base64; the raw secret must not appear verbatim.
		t.Error("token contains the raw secret")
	}

	got, err := s.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != testCred {
		t.Errorf("Get = %+v, want %+v", got, testCred)
	}
}

func TestSignedStoreEmptyToken(t *testing.T) {
	s := NewSignedStore([]byte("k"), 0)

	_, err := s.Get(context.Background(), "")
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestSignedStoreRejectsBadTokens(t *testing.T) {
	s := NewSignedStore([]byte("test-session-secret"), 0)
	other := NewSignedStore([]byte("another-secret"), 0)
	ctx := context.Background()

	foreign, err := other.Put(ctx, "", testCred)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	valid, err := s.Put(ctx, "", testCred)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	tampered := tamperSignature(valid)

	// An unsigned token with the right claims must not be accepted.
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, credentialClaims{
		Key:              "sk_forged",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	// A correctly signed token without a key claim is malformed too.
	noKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, credentialClaims{
		KeyID:            "id_1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer},
	}).SignedString([]byte("test-session-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Legacy raw JSON cookie value.
	rawJSON := `{"key":"sk_test","key_id":"id_1"}`

	tests := map[string]string{
		"garbage":       "not-a-token",
		"raw json":      rawJSON,
		"foreign key":   foreign,
		"tampered":      tampered,
		"alg none":      unsigned,
		"missing claim": noKey,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, token)
			if !errors.Is(err, ErrMalformedCredential) {
				t.Errorf("expected ErrMalformedCredential, got %v", err)
			}
		})
	}
}

// tamperSignature swaps the first character of the JWT signature segment.
func tamperSignature(token string) string {
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	parts[2] = string(sig)
	return strings.Join(parts, ".")
}

func TestSignedStoreExpiry(t *testing.T) {
	s := NewSignedStore([]byte("test-session-secret"), time.Hour)
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	token, err := s.Put(ctx, "", testCred)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	now = now.Add(30 * time.Minute)
	if _, err := s.Get(ctx, token); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	now = now.Add(31 * time.Minute)
	if _, err := s.Get(ctx, token); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential after expiry, got %v", err)
	}
}

func TestSignedStoreExpiredTamperedIsMalformed(t *testing.T) {
	s := NewSignedStore([]byte("test-session-secret"), time.Hour)
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	token, err := s.Put(ctx, "", testCred)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	now = now.Add(2 * time.Hour)

	// A bad signature is reported before expiry is considered.
	if _, err := s.Get(ctx, tamperSignature(token)); !errors.Is(err, ErrMalformedCredential) {
		t.Fatalf("expected ErrMalformedCredential, got %v", err)
	}
}

func TestSignedStoreReplacesCredential(t *testing.T) {
	s := NewSignedStore([]byte("test-session-secret"), 0)
	ctx := context.Background()

	first, err := s.Put(ctx, "", testCred)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	second, err := s.Put(ctx, first, model.Credential{Secret: "sk_second", Identifier: "id_2"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Secret != "sk_second" || got.Identifier != "id_2" {
		t.Errorf("Get = %+v, want second credential", got)
	}
}

func TestSignedStoreRefusesEmptyCredential(t *testing.T) {
	s := NewSignedStore([]byte("k"), 0)
	if _, err := s.Put(context.Background(), "", model.Credential{}); err == nil {
		t.Fatal("expected error storing empty credential")
	}
}
