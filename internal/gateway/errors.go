package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies why a gateway operation failed. Transports map kinds to
// their own status codes; the message on Error is safe to show a client.
type Kind int

const (
	// KindInternal is the catch-all, including generation failures after a
	// successful verification and session storage outages.
	KindInternal Kind = iota
	// KindUnauthenticated means no credential is present, or issuance failed.
	KindUnauthenticated
	// KindMalformedCredential means a credential was presented but could not
	// be decoded.
	KindMalformedCredential
	// KindInvalidCredential means the key backend rejected the credential as
	// unknown, revoked, or out of quota.
	KindInvalidCredential
	// KindVerifyUnavailable means the key backend could not be reached to
	// verify the credential.
	KindVerifyUnavailable
	// KindUpstreamEmpty means the image backend answered without an image.
	KindUpstreamEmpty
)

var kindNames = map[Kind]string{
	KindInternal:            "internal_error",
	KindUnauthenticated:     "unauthenticated",
	KindMalformedCredential: "malformed_credential",
	KindInvalidCredential:   "invalid_credential",
	KindVerifyUnavailable:   "verify_unavailable",
	KindUpstreamEmpty:       "upstream_empty_result",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Client-facing messages.
const (
	MsgMissingCredential   = "Unauthorized: Missing API key in cookies."
	MsgNoSession           = "Unauthorized: No API key in session."
	MsgIssueFailed         = "Unauthorized: Unable to create an API key."
	MsgMalformedCredential = "Invalid API key format in cookies."
	MsgInvalidCredential   = "Invalid API key: Quota exceeded or invalid key."
	MsgVerifyUnavailable   = "Bad gateway: Unable to verify the API key."
	MsgGenerationFailed    = "Internal server error: Unable to generate the image."
	MsgSessionUnavailable  = "Internal server error: Session storage unavailable."
)

// Error is the only error type the Controller returns.
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying cause, never shown to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or KindInternal when err is not a
// gateway error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}
