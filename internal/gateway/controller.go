// Package gateway implements the quota-gated credential flow: issuing a
// credential into a session, reading it back, and verifying it before every
// image generation. It knows nothing about HTTP or MCP.
package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/faucetdb/quotagate/internal/model"
	"github.com/faucetdb/quotagate/internal/service"
	"github.com/faucetdb/quotagate/internal/session"
)

// Operation names, used as metric labels.
const (
	OpInspect  = "inspect"
	OpIssue    = "issue"
	OpGenerate = "generate"
)

// CredentialClient issues and verifies credentials.
type CredentialClient interface {
	Issue(ctx context.Context) (model.Credential, error)
	Verify(ctx context.Context, secret string) (model.Verification, error)
}

// ImageClient generates one image per call.
type ImageClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Recorder counts operation outcomes. telemetry.Metrics satisfies it.
type Recorder interface {
	RecordOutcome(operation, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordOutcome(string, string) {}

// Controller orchestrates the three user-facing operations. It holds no
// per-request state and is safe for concurrent use.
type Controller struct {
	store   session.Store
	creds   CredentialClient
	images  ImageClient
	metrics Recorder
	logger  *slog.Logger
}

// NewController wires a Controller. metrics may be nil.
func NewController(store session.Store, creds CredentialClient, images ImageClient, metrics Recorder, logger *slog.Logger) *Controller {
	if metrics == nil {
		metrics = noopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:   store,
		creds:   creds,
		images:  images,
		metrics: metrics,
		logger:  logger,
	}
}

// Inspect returns the credential held by the session token. A missing,
// expired, or undecodable credential is KindUnauthenticated.
func (c *Controller) Inspect(ctx context.Context, token string) (model.Credential, error) {
	cred, err := c.store.Get(ctx, token)
	if err != nil {
		gerr := c.sessionError(ctx, OpInspect, err, MsgNoSession)
		if gerr.Kind == KindMalformedCredential {
			gerr.Kind = KindUnauthenticated
			gerr.Message = MsgNoSession
		}
		return model.Credential{}, c.fail(OpInspect, gerr)
	}
	c.metrics.RecordOutcome(OpInspect, "ok")
	return cred, nil
}

// Issue creates a new credential and stores it in the session, replacing
// whatever prevToken held. It returns the token that now carries the
// credential. Every call consumes a new credential from the key backend.
func (c *Controller) Issue(ctx context.Context, prevToken string) (string, model.Credential, error) {
	cred, err := c.creds.Issue(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "credential issuance failed", "error", err)
		return "", model.Credential{}, c.fail(OpIssue, newError(KindUnauthenticated, MsgIssueFailed, err))
	}

	token, err := c.store.Put(ctx, prevToken, cred)
	if err != nil {
		c.logger.ErrorContext(ctx, "storing credential in session failed", "key_id", cred.Identifier, "error", err)
		return "", model.Credential{}, c.fail(OpIssue, newError(KindInternal, MsgSessionUnavailable, err))
	}

	c.logger.InfoContext(ctx, "credential issued", "key_id", cred.Identifier)
	c.metrics.RecordOutcome(OpIssue, "ok")
	return token, cred, nil
}

// Generate verifies the session's credential and, only if the key backend
// reports it valid, generates one image for prompt. The remaining quota in
// the result is the value reported by that same verification. A failed
// generation never alters the session.
func (c *Controller) Generate(ctx context.Context, token, prompt string) (*model.GenerateImageResponse, error) {
	cred, err := c.store.Get(ctx, token)
	if err != nil {
		return nil, c.fail(OpGenerate, c.sessionError(ctx, OpGenerate, err, MsgMissingCredential))
	}

	v, err := c.creds.Verify(ctx, cred.Secret)
	if err != nil {
		c.logger.ErrorContext(ctx, "credential verification failed", "key_id", cred.Identifier, "error", err)
		return nil, c.fail(OpGenerate, newError(KindVerifyUnavailable, MsgVerifyUnavailable, err))
	}
	if !v.Valid {
		c.logger.InfoContext(ctx, "credential rejected", "key_id", cred.Identifier)
		return nil, c.fail(OpGenerate, newError(KindInvalidCredential, MsgInvalidCredential, nil))
	}

	url, err := c.images.Generate(ctx, prompt)
	if err != nil {
		kind := KindInternal
		if errors.Is(err, service.ErrUpstreamEmpty) {
			kind = KindUpstreamEmpty
		}
		c.logger.ErrorContext(ctx, "image generation failed", "key_id", cred.Identifier, "error", err)
		return nil, c.fail(OpGenerate, newError(kind, MsgGenerationFailed, err))
	}

	c.metrics.RecordOutcome(OpGenerate, "ok")
	return &model.GenerateImageResponse{ImageURL: url, RemainingCalls: v.Remaining}, nil
}

// sessionError classifies a session read failure.
func (c *Controller) sessionError(ctx context.Context, op string, err error, missingMsg string) *Error {
	switch {
	case errors.Is(err, session.ErrNoCredential):
		c.logger.DebugContext(ctx, "no credential in session", "operation", op)
		return newError(KindUnauthenticated, missingMsg, err)
	case errors.Is(err, session.ErrMalformedCredential):
		c.logger.InfoContext(ctx, "malformed credential in session", "operation", op)
		return newError(KindMalformedCredential, MsgMalformedCredential, err)
	default:
		c.logger.ErrorContext(ctx, "session read failed", "operation", op, "error", err)
		return newError(KindInternal, MsgSessionUnavailable, err)
	}
}

func (c *Controller) fail(op string, err *Error) error {
	c.metrics.RecordOutcome(op, err.Kind.String())
	return err
}
