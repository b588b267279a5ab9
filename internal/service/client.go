package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 512

// UpstreamObserver receives the duration and result of every upstream call.
// telemetry.Metrics satisfies it.
type UpstreamObserver interface {
	ObserveUpstream(upstream, result string, d time.Duration)
}

// Option customizes a service client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	observer   UpstreamObserver
}

// WithHTTPClient replaces the default http.Client. The client's own Timeout
// is left alone; the configured per-call timeout still applies.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithObserver reports every upstream call to obs.
func WithObserver(obs UpstreamObserver) Option {
	return func(o *options) { o.observer = obs }
}

// jsonClient posts JSON to one upstream with bearer auth.
type jsonClient struct {
	name     string
	baseURL  string
	token    string
	timeout  time.Duration
	http     *http.Client
	observer UpstreamObserver
}

func newJSONClient(name, baseURL, token string, timeout time.Duration, opts []Option) *jsonClient {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: timeout}
	}
	return &jsonClient{
		name:     name,
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		timeout:  timeout,
		http:     o.httpClient,
		observer: o.observer,
	}
}

// postJSON sends body to path and decodes a 2xx response into result.
//
// The call ignores ctx cancellation and is bounded only by the client
// timeout. Every failure wraps ErrTransport.
func (c *jsonClient) postJSON(ctx context.Context, path string, body, result any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			c.observer.ObserveUpstream(c.name, outcome, time.Since(start))
		}
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.name, err)
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %s: build request: %v", ErrTransport, c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransport, c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Upstream: c.name, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ErrTransport, c.name, err)
	}
	return nil
}
