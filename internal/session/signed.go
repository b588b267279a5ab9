package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/faucetdb/quotagate/internal/model"
)

const tokenIssuer = "quotagate"

// SignedStore keeps the credential inside the token itself: an HS256 JWT
// carrying the key and key id. The gateway holds no copy, so losing the token
// loses the credential.
type SignedStore struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedStore returns a SignedStore signing with secret. A positive ttl
// stamps an expiry on every token; zero issues tokens that never expire.
func NewSignedStore(secret []byte, ttl time.Duration) *SignedStore {
	return &SignedStore{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

type credentialClaims struct {
	Key   string `json:"key"`
	KeyID string `json:"key_id"`
	jwt.RegisteredClaims
}

// Put signs cred into a new token. The previous token is simply superseded;
// there is nothing server-side to remove.
func (s *SignedStore) Put(_ context.Context, _ string, cred model.Credential) (string, error) {
	if cred.IsZero() {
		return "", fmt.Errorf("refusing to store an empty credential")
	}

	now := s.now()
	claims := credentialClaims{
		Key:   cred.Secret,
		KeyID: cred.Identifier,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   tokenIssuer,
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Get verifies the token signature and expiry and returns its credential.
// An expired token reads as no credential at all.
func (s *SignedStore) Get(_ context.Context, token string) (model.Credential, error) {
	if token == "" {
		return model.Credential{}, ErrNoCredential
	}

	claims := &credentialClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		// The session ended; its credential went with it.
		return model.Credential{}, ErrNoCredential
	}
	if err != nil {
		return model.Credential{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if !parsed.Valid || claims.Key == "" {
		return model.Credential{}, ErrMalformedCredential
	}

	return model.Credential{Secret: claims.Key, Identifier: claims.KeyID}, nil
}
