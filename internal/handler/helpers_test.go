package handler

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// writeError tests
// ---------------------------------------------------------------------------

func TestWriteError(t *testing.T) {
	t.Run("writes JSON error response", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeError(w, http.StatusBadRequest, "Invalid input")

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		body := w.Body.String()
		if !strings.Contains(body, `"code":400`) {
			t.Errorf("expected code 400 in body: %s", body)
		}
		if !strings.Contains(body, `"message":"Invalid input"`) {
			t.Errorf("expected message in body: %s", body)
		}
	})
}

// ---------------------------------------------------------------------------
// writeJSON tests
// ---------------------------------------------------------------------------

func TestWriteJSON(t *testing.T) {
	t.Run("writes JSON with correct content type", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeJSON(w, http.StatusOK, map[string]string{"hello": "world"})

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		body := w.Body.String()
		if !strings.Contains(body, `"hello":"world"`) {
			t.Errorf("expected JSON body, got: %s", body)
		}
	})
}

// ---------------------------------------------------------------------------
// readJSON tests
// ---------------------------------------------------------------------------

func TestReadJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		want    string
	}{
		{"valid object", `{"prompt":"a cat"}`, false, "a cat"},
		{"unknown fields ignored", `{"prompt":"x","n":4}`, false, "x"},
		{"empty body", ``, true, ""},
		{"not json", `prompt=a cat`, true, ""},
		{"wrong type", `{"prompt":42}`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/generate_image", strings.NewReader(tt.body))
			var v struct {
				Prompt string `json:"prompt"`
			}
			err := readJSON(r, &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readJSON error = %v, wantErr %v", err, tt.wantErr)
			}
			if v.Prompt != tt.want {
				t.Errorf("Prompt = %q, want %q", v.Prompt, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// requestBaseURL tests
// ---------------------------------------------------------------------------

func TestRequestBaseURL(t *testing.T) {
	r := httptest.NewRequest("GET", "http://gate.example:8080/openapi.json", nil)
	if got := requestBaseURL(r); got != "http://gate.example:8080" {
		t.Errorf("plain: got %q", got)
	}

	r.TLS = &tls.ConnectionState{}
	if got := requestBaseURL(r); got != "https://gate.example:8080" {
		t.Errorf("tls: got %q", got)
	}

	r = httptest.NewRequest("GET", "http://gate.example/openapi.json", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	if got := requestBaseURL(r); got != "https://gate.example" {
		t.Errorf("forwarded: got %q", got)
	}

	r.Header.Set("X-Forwarded-Proto", "javascript")
	if got := requestBaseURL(r); got != "http://gate.example" {
		t.Errorf("bogus forwarded proto should be ignored, got %q", got)
	}
}
