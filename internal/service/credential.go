package service

import (
	"context"
	"fmt"

	"github.com/faucetdb/quotagate/internal/config"
	"github.com/faucetdb/quotagate/internal/model"
)

const keysUpstream = "keys"

// CredentialService issues and verifies credentials against an
// Unkey-compatible key-management API.
type CredentialService struct {
	client *jsonClient
	cfg    config.KeysConfig
}

// NewCredentialService returns a client for the key backend described by cfg.
func NewCredentialService(cfg config.KeysConfig, opts ...Option) *CredentialService {
	return &CredentialService{
		client: newJSONClient(keysUpstream, cfg.BaseURL, cfg.RootKey, cfg.Timeout, opts),
		cfg:    cfg,
	}
}

type createKeyRequest struct {
	APIID     string     `json:"apiId"`
	OwnerID   string     `json:"ownerId,omitempty"`
	Remaining int        `json:"remaining"`
	Refill    *keyRefill `json:"refill,omitempty"`
}

type keyRefill struct {
	Interval string `json:"interval"`
	Amount   int    `json:"amount"`
}

type createKeyResponse struct {
	Key   string `json:"key"`
	KeyID string `json:"keyId"`
}

type verifyKeyRequest struct {
	Key   string `json:"key"`
	APIID string `json:"apiId"`
}

type verifyKeyResponse struct {
	Valid     bool `json:"valid"`
	Remaining *int `json:"remaining"`
}

// Issue creates a new credential with the configured owner, quota, and refill
// policy. Every call creates a distinct credential.
func (s *CredentialService) Issue(ctx context.Context) (model.Credential, error) {
	req := createKeyRequest{
		APIID:     s.cfg.APIID,
		OwnerID:   s.cfg.OwnerID,
		Remaining: s.cfg.InitialQuota,
	}
	if s.cfg.RefillAmount > 0 {
		req.Refill = &keyRefill{Interval: s.cfg.RefillInterval, Amount: s.cfg.RefillAmount}
	}

	var resp createKeyResponse
	if err := s.client.postJSON(ctx, "/v1/keys.createKey", req, &resp); err != nil {
		return model.Credential{}, fmt.Errorf("create key: %w", err)
	}
	if resp.Key == "" {
		return model.Credential{}, fmt.Errorf("create key: %w: response carried no key", ErrIssueRejected)
	}
	return model.Credential{Secret: resp.Key, Identifier: resp.KeyID}, nil
}

// Verify asks the backend whether secret is currently usable. An invalid or
// exhausted key is a normal result with Valid false; an error always wraps
// ErrTransport.
func (s *CredentialService) Verify(ctx context.Context, secret string) (model.Verification, error) {
	var resp verifyKeyResponse
	err := s.client.postJSON(ctx, "/v1/keys.verifyKey", verifyKeyRequest{Key: secret, APIID: s.cfg.APIID}, &resp)
	if err != nil {
		return model.Verification{}, fmt.Errorf("verify key: %w", err)
	}
	return model.Verification{Valid: resp.Valid, Remaining: resp.Remaining}, nil
}
