package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == "" {
		t.Error("expected X-Request-ID in response header")
	}
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestRequestIDReplacesUnsafeClientID(t *testing.T) {
	tests := map[string]string{
		"newline":  "abc\nlevel=ERROR msg=forged",
		"spaces":   "trace id",
		"too long": strings.Repeat("a", maxRequestIDLen+1),
	}

	for name, clientID := range tests {
		t.Run(name, func(t *testing.T) {
			var got string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set(RequestIDHeader, clientID)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if got == clientID {
				t.Errorf("unsafe client id %q was kept", clientID)
			}
			if len(got) != 36 || rr.Header().Get(RequestIDHeader) != got {
				t.Errorf("expected a generated UUID echoed in the header, got %q / %q", got, rr.Header().Get(RequestIDHeader))
			}
		})
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	id := GetRequestID(context.Background())
	if id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// SessionToken middleware tests
// ---------------------------------------------------------------------------

func TestSessionTokenReadsCookie(t *testing.T) {
	var got string
	handler := SessionToken("credential")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetSessionToken(r.Context())
	}))

	req := httptest.NewRequest("GET", "/me", nil)
	req.AddCookie(&http.Cookie{Name: "credential", Value: "tok-123"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "tok-123" {
		t.Errorf("expected token %q, got %q", "tok-123", got)
	}
}

func TestSessionTokenIgnoresOtherCookies(t *testing.T) {
	var got = "unset"
	handler := SessionToken("credential")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetSessionToken(r.Context())
	}))

	req := httptest.NewRequest("GET", "/me", nil)
	req.AddCookie(&http.Cookie{Name: "other", Value: "x"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "" {
		t.Errorf("expected empty token, got %q", got)
	}
}

func TestGetSessionTokenEmptyContext(t *testing.T) {
	if tok := GetSessionToken(context.Background()); tok != "" {
		t.Errorf("expected empty string from bare context, got %q", tok)
	}
}

// ---------------------------------------------------------------------------
// Rate limit tests
// ---------------------------------------------------------------------------

func TestRateLimitReturnsEnvelope(t *testing.T) {
	handler := RateLimit(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/authorize", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", last.Code)
	}
	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(last.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v (%s)", err, last.Body.String())
	}
	if body.Error.Code != 429 || body.Error.Message != rateLimitMessage {
		t.Errorf("unexpected envelope: %+v", body.Error)
	}
}

func TestRateLimitIgnoresCookies(t *testing.T) {
	handler := SessionToken("credential")(RateLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	send := func(token string) int {
		req := httptest.NewRequest("POST", "/generate_image", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.AddCookie(&http.Cookie{Name: "credential", Value: token})
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send("a"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	// A fresh cookie value does not buy a fresh bucket.
	if code := send("b"); code != http.StatusTooManyRequests {
		t.Errorf("second request with a new cookie: expected 429, got %d", code)
	}
}

// ---------------------------------------------------------------------------
// Logger middleware tests
// ---------------------------------------------------------------------------

func TestLoggerRecordsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})))

	req := httptest.NewRequest("GET", "/teapot", nil)
	req.Header.Set("X-Request-ID", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"level=WARN", "status=418", "request_id=req-42", "bytes=15", "path=/teapot"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestLoggerPassesFlushThrough(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	flushed := false
	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("logging writer does not implement http.Flusher")
		}
		w.Write([]byte("event: message\n\n"))
		f.Flush()
		flushed = true
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/mcp", nil))
	if !flushed || !rr.Flushed {
		t.Error("expected the recorder to be flushed")
	}
}
