package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/faucetdb/quotagate/internal/model"
	"github.com/faucetdb/quotagate/internal/service"
	"github.com/faucetdb/quotagate/internal/session"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeCreds struct {
	issued      model.Credential
	issueErr    error
	verify      model.Verification
	verifyErr   error
	verifyCalls int
	lastSecret  string
}

func (f *fakeCreds) Issue(context.Context) (model.Credential, error) {
	return f.issued, f.issueErr
}

func (f *fakeCreds) Verify(_ context.Context, secret string) (model.Verification, error) {
	f.verifyCalls++
	f.lastSecret = secret
	return f.verify, f.verifyErr
}

type fakeImages struct {
	url   string
	err   error
	calls int
}

func (f *fakeImages) Generate(context.Context, string) (string, error) {
	f.calls++
	return f.url, f.err
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordOutcome(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[op+"/"+outcome]++
}

// brokenStore fails every read and write as a keyed backend outage would.
type brokenStore struct{}

func (brokenStore) Put(context.Context, string, model.Credential) (string, error) {
	return "", fmt.Errorf("%w: connection refused", session.ErrBackend)
}

func (brokenStore) Get(context.Context, string) (model.Credential, error) {
	return model.Credential{}, fmt.Errorf("%w: connection refused", session.ErrBackend)
}

type testEnv struct {
	ctrl    *Controller
	store   session.Store
	creds   *fakeCreds
	images  *fakeImages
	metrics *countingRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   session.NewSignedStore([]byte("controller-test-secret"), 0),
		creds:   &fakeCreds{issued: model.Credential{Secret: "sk_test", Identifier: "id_1"}},
		images:  &fakeImages{url: "https://img.example/1.png"},
		metrics: &countingRecorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.ctrl = NewController(env.store, env.creds, env.images, env.metrics, logger)
	return env
}

// authorize issues a credential and returns the session token.
func (e *testEnv) authorize(t *testing.T) string {
	t.Helper()
	token, _, err := e.ctrl.Issue(context.Background(), "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("kind = %s, want %s (err: %v)", got, want, err)
	}
}

func intPtr(n int) *int { return &n }

// ---------------------------------------------------------------------------
// Inspect
// ---------------------------------------------------------------------------

func TestInspectEmptySession(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ctrl.Inspect(context.Background(), "")
	assertKind(t, err, KindUnauthenticated)
}

func TestInspectMalformedIsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ctrl.Inspect(context.Background(), "garbage")
	assertKind(t, err, KindUnauthenticated)
}

func TestInspectAfterIssue(t *testing.T) {
	env := newTestEnv(t)
	token := env.authorize(t)

	cred, err := env.ctrl.Inspect(context.Background(), token)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if cred != env.creds.issued {
		t.Errorf("Inspect = %+v, want %+v", cred, env.creds.issued)
	}
}

// ---------------------------------------------------------------------------
// Issue
// ---------------------------------------------------------------------------

func TestIssueFailureIsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	env.creds.issueErr = fmt.Errorf("create key: %w", service.ErrTransport)

	_, _, err := env.ctrl.Issue(context.Background(), "")
	assertKind(t, err, KindUnauthenticated)
	if !errors.Is(err, service.ErrTransport) {
		t.Error("cause should be preserved for logging")
	}
	if env.metrics.counts["issue/unauthenticated"] != 1 {
		t.Errorf("metrics = %v", env.metrics.counts)
	}
}

func TestIssueOverwritesSession(t *testing.T) {
	env := newTestEnv(t)
	first := env.authorize(t)

	env.creds.issued = model.Credential{Secret: "sk_second", Identifier: "id_2"}
	second, cred, err := env.ctrl.Issue(context.Background(), first)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if cred.Identifier != "id_2" {
		t.Errorf("returned credential = %+v", cred)
	}

	got, err := env.ctrl.Inspect(context.Background(), second)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if got.Secret != "sk_second" {
		t.Errorf("session holds %q, want sk_second", got.Secret)
	}
}

func TestIssueSessionBackendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.ctrl = NewController(brokenStore{}, env.creds, env.images, nil, nil)

	_, _, err := env.ctrl.Issue(context.Background(), "")
	assertKind(t, err, KindInternal)
}

// ---------------------------------------------------------------------------
// Generate
// ---------------------------------------------------------------------------

func TestGenerateWithoutCredential(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ctrl.Generate(context.Background(), "", "a cat")
	assertKind(t, err, KindUnauthenticated)
	if env.creds.verifyCalls != 0 || env.images.calls != 0 {
		t.Errorf("no upstream call expected, got verify=%d generate=%d", env.creds.verifyCalls, env.images.calls)
	}
}

func TestGenerateMalformedCredential(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ctrl.Generate(context.Background(), "not-a-token", "a cat")
	assertKind(t, err, KindMalformedCredential)
	if env.creds.verifyCalls != 0 || env.images.calls != 0 {
		t.Errorf("no upstream call expected, got verify=%d generate=%d", env.creds.verifyCalls, env.images.calls)
	}
}

func TestGenerateSuccess(t *testing.T) {
	env := newTestEnv(t)
	token := env.authorize(t)
	env.creds.verify = model.Verification{Valid: true, Remaining: intPtr(5)}

	resp, err := env.ctrl.Generate(context.Background(), token, "a cat")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.ImageURL != "https://img.example/1.png" {
		t.Errorf("ImageURL = %q", resp.ImageURL)
	}
	if resp.RemainingCalls == nil || *resp.RemainingCalls != 5 {
		t.Errorf("RemainingCalls = %v, want 5", resp.RemainingCalls)
	}
	if env.creds.lastSecret != "sk_test" {
		t.Errorf("verified secret %q, want sk_test", env.creds.lastSecret)
	}
	if env.creds.verifyCalls != 1 || env.images.calls != 1 {
		t.Errorf("verify=%d generate=%d, want 1 each", env.creds.verifyCalls, env.images.calls)
	}
	if env.metrics.counts["generate/ok"] != 1 {
		t.Errorf("metrics = %v", env.metrics.counts)
	}
}

func TestGenerateUntrackedQuota(t *testing.T) {
	env := newTestEnv(t)
	token := env.authorize(t)
	env.creds.verify = model.Verification{Valid: true}

	resp, err := env.ctrl.Generate(context.Background(), token, "a cat")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.RemainingCalls != nil {
		t.Errorf("RemainingCalls = %d, want nil", *resp.RemainingCalls)
	}
}

func TestGenerateInvalidCredentialNeverCallsImages(t *testing.T) {
	env := newTestEnv(t)
	token := env.authorize(t)
	env.creds.verify = model.Verification{Valid: false, Remaining: intPtr(0)}

	_, err := env.ctrl.Generate(context.Background(), token, "a cat")
	assertKind(t, err, KindInvalidCredential)
	if env.images.calls != 0 {
		t.Errorf("image backend called %d times", env.images.calls)
	}
}

func TestGenerateVerifyUnavailable(t *testing.T) {
	env := newTestEnv(t)
	token := env.authorize(t)
	env.creds.verifyErr = fmt.Errorf("verify key: %w", service.ErrTransport)

	_, err := env.ctrl.Generate(context.Background(), token, "a cat")
	assertKind(t, err, KindVerifyUnavailable)
	if env.images.calls != 0 {
		t.Errorf("image backend called %d times", env.images.calls)
	}
}

func TestGenerateUpstreamFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"transport", fmt.Errorf("generate image: %w", service.ErrTransport), KindInternal},
		{"empty", fmt.Errorf("generate image: %w", service.ErrUpstreamEmpty), KindUpstreamEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			token := env.authorize(t)
			env.creds.verify = model.Verification{Valid: true, Remaining: intPtr(3)}
			env.images.err = tt.err

			_, err := env.ctrl.Generate(context.Background(), token, "a cat")
			assertKind(t, err, tt.want)

			var ge *Error
			errors.As(err, &ge)
			if ge.Message != MsgGenerationFailed {
				t.Errorf("Message = %q", ge.Message)
			}

			// The session still carries the same credential.
			cred, err := env.ctrl.Inspect(context.Background(), token)
			if err != nil || cred.Secret != "sk_test" {
				t.Errorf("session changed after failed generation: %+v, %v", cred, err)
			}
		})
	}
}

func TestGenerateSessionBackendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.ctrl = NewController(brokenStore{}, env.creds, env.images, nil, nil)

	_, err := env.ctrl.Generate(context.Background(), "token", "a cat")
	assertKind(t, err, KindInternal)
	if env.creds.verifyCalls != 0 {
		t.Error("verify should not run without a credential")
	}
}

// ---------------------------------------------------------------------------
// Error
// ---------------------------------------------------------------------------

func TestKindOf(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %s", got)
	}
	wrapped := fmt.Errorf("outer: %w", newError(KindInvalidCredential, MsgInvalidCredential, nil))
	if got := KindOf(wrapped); got != KindInvalidCredential {
		t.Errorf("KindOf(wrapped) = %s", got)
	}
}

func TestKindString(t *testing.T) {
	if KindVerifyUnavailable.String() != "verify_unavailable" {
		t.Errorf("String = %q", KindVerifyUnavailable.String())
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("String = %q", Kind(99).String())
	}
}
