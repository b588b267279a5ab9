package model

import "time"

// Credential is a rate-limited right to call the image generation service.
// It is issued once per authorization and never modified afterwards. The
// JSON names match the key-management backend's create-key response so the
// same value can be echoed back by GET /me.
type Credential struct {
	Secret     string `json:"key"`    // bearer secret, shown only to the owning session
	Identifier string `json:"key_id"` // backend record id
}

// IsZero reports whether c carries no secret.
func (c Credential) IsZero() bool {
	return c.Secret == ""
}

// Verification is the backend's answer for a single verify call. It is never
// persisted; a fresh one is obtained for every protected request.
type Verification struct {
	Valid     bool `json:"valid"`
	Remaining *int `json:"remaining"` // nil means the backend does not track a quota
}

// SessionRecord is a credential held server-side by a keyed session backend.
// The payload is the JSON-encoded Credential. ExpiresAt is a unix timestamp
// in seconds; zero means the record never expires.
type SessionRecord struct {
	ID        string `db:"id"`
	Payload   string `db:"payload"`
	ExpiresAt int64  `db:"expires_at"`
}

// Expired reports whether the record is past its expiry at time now.
func (r SessionRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != 0 && now.Unix() >= r.ExpiresAt
}
