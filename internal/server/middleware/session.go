package middleware

import (
	"context"
	"net/http"
	"strconv"
)

type contextKeySession string

// SessionTokenKey is the context key for the session token read from the
// request cookie.
const SessionTokenKey contextKeySession = "session_token"

// SessionToken returns an HTTP middleware that copies the value of the named
// cookie onto the request context. A missing cookie leaves an empty token;
// deciding whether that is acceptable is up to the handler.
func SessionToken(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(cookieName); err == nil {
				token = c.Value
			}
			ctx := context.WithValue(r.Context(), SessionTokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionToken extracts the session token from the context. Returns an
// empty string if no token is present.
func GetSessionToken(ctx context.Context) string {
	if t, ok := ctx.Value(SessionTokenKey).(string); ok {
		return t
	}
	return ""
}

func writeMiddlewareError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid import cycle with handler package
	w.Write([]byte(`{"error":{"code":` + strconv.Itoa(status) + `,"message":` + strconv.Quote(message) + `}}`))
}
