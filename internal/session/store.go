// Package session holds the issued credential between requests. The token a
// Store hands out is opaque to the rest of the gateway; the HTTP layer carries
// it in a cookie and the MCP layer keeps it per client session.
package session

import (
	"context"
	"errors"

	"github.com/faucetdb/quotagate/internal/model"
)

var (
	// ErrNoCredential means the token is empty or the session it names is
	// unknown or expired. It is the normal state of a first visit.
	ErrNoCredential = errors.New("no credential in session")

	// ErrMalformedCredential means a token was presented but could not be
	// decoded into a credential.
	ErrMalformedCredential = errors.New("malformed credential in session")

	// ErrBackend wraps failures of a keyed session backend (database or
	// cache unreachable). Signed stores never return it.
	ErrBackend = errors.New("session backend failure")

	// errNotFound is returned by backends for a missing or expired id.
	errNotFound = errors.New("session not found")
)

// Store reads and writes the credential carried by a session token.
type Store interface {
	// Put stores cred and returns the token that now carries it. prevToken
	// is the token the client presented, if any; the credential it held is
	// no longer retrievable after Put succeeds.
	Put(ctx context.Context, prevToken string, cred model.Credential) (string, error)

	// Get returns the credential carried by token. An empty or unknown token
	// yields ErrNoCredential and an undecodable one ErrMalformedCredential.
	Get(ctx context.Context, token string) (model.Credential, error)
}

// Pinger is implemented by stores that depend on an external service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sweeper is implemented by backends that must purge expired sessions
// themselves. It returns the number of sessions removed.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}
