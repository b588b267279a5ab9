package service

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport means the upstream could not be reached, timed out, or
	// answered with something other than a usable 2xx response.
	ErrTransport = errors.New("upstream unavailable")

	// ErrUpstreamEmpty means the image backend answered successfully but
	// returned no image.
	ErrUpstreamEmpty = errors.New("no image returned")

	// ErrIssueRejected means the key backend answered but did not hand out a
	// usable key.
	ErrIssueRejected = errors.New("key issuance rejected")
)

// StatusError is a non-2xx upstream response. It matches ErrTransport under
// errors.Is.
type StatusError struct {
	Upstream string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Upstream, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrTransport }
