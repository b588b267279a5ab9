package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faucetdb/quotagate/internal/model"
)

// Backend persists session payloads keyed by session id.
type Backend interface {
	// Load returns the payload stored under id, or errNotFound when the id is
	// unknown or expired.
	Load(ctx context.Context, id string) (string, error)
	// Save stores payload under id. A zero ttl means no expiry.
	Save(ctx context.Context, id, payload string, ttl time.Duration) error
	// Delete removes id. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// KeyedStore hands out random session ids and keeps the credential in a
// Backend. Every Put rotates the id and drops the previous session, so a
// client can never be handed an id it supplied itself.
type KeyedStore struct {
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
}

// NewKeyedStore returns a KeyedStore over backend. Sessions expire after ttl,
// or never when ttl is zero.
func NewKeyedStore(backend Backend, ttl time.Duration) *KeyedStore {
	return &KeyedStore{backend: backend, ttl: ttl, logger: slog.Default()}
}

// WithLogger sets the logger used for non-fatal backend failures.
func (s *KeyedStore) WithLogger(logger *slog.Logger) *KeyedStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Put stores cred under a fresh session id and deletes the session named by
// prevToken, if it is a well-formed id. Failing to delete the previous
// session does not fail Put; the row is left to its TTL or the sweeper.
func (s *KeyedStore) Put(ctx context.Context, prevToken string, cred model.Credential) (string, error) {
	if cred.IsZero() {
		return "", fmt.Errorf("refusing to store an empty credential")
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}

	id := uuid.NewString()
	if err := s.backend.Save(ctx, id, string(payload), s.ttl); err != nil {
		return "", fmt.Errorf("%w: save session: %v", ErrBackend, err)
	}

	if _, err := uuid.Parse(prevToken); err == nil {
		if err := s.backend.Delete(ctx, prevToken); err != nil {
			s.logger.WarnContext(ctx, "could not delete previous session", "error", err)
		}
	}
	return id, nil
}

// Get resolves token to its stored credential.
func (s *KeyedStore) Get(ctx context.Context, token string) (model.Credential, error) {
	if token == "" {
		return model.Credential{}, ErrNoCredential
	}
	if _, err := uuid.Parse(token); err != nil {
		return model.Credential{}, ErrMalformedCredential
	}

	payload, err := s.backend.Load(ctx, token)
	if errors.Is(err, errNotFound) {
		return model.Credential{}, ErrNoCredential
	}
	if err != nil {
		return model.Credential{}, fmt.Errorf("%w: load session: %v", ErrBackend, err)
	}

	var cred model.Credential
	if err := json.Unmarshal([]byte(payload), &cred); err != nil {
		return model.Credential{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if cred.IsZero() {
		return model.Credential{}, ErrMalformedCredential
	}
	return cred, nil
}

// Ping checks that the backend is reachable.
func (s *KeyedStore) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Sweep purges expired sessions when the backend needs it. Backends with
// native expiry report zero.
func (s *KeyedStore) Sweep(ctx context.Context) (int64, error) {
	if sw, ok := s.backend.(Sweeper); ok {
		return sw.Sweep(ctx)
	}
	return 0, nil
}

// Close releases the backend.
func (s *KeyedStore) Close() error {
	return s.backend.Close()
}
