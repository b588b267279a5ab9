package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/faucetdb/quotagate/internal/gateway"
	"github.com/faucetdb/quotagate/internal/model"
	"github.com/faucetdb/quotagate/internal/server/middleware"
)

// CookieOptions controls the session cookie set by Authorize.
type CookieOptions struct {
	Name   string
	Secure bool
	MaxAge time.Duration // zero makes a browser-session cookie
}

// GatewayHandler exposes the gateway operations over HTTP. The session token
// is read from the request context, where middleware.SessionToken puts it.
type GatewayHandler struct {
	ctrl   *gateway.Controller
	cookie CookieOptions
}

// NewGatewayHandler creates a new GatewayHandler.
func NewGatewayHandler(ctrl *gateway.Controller, cookie CookieOptions) *GatewayHandler {
	return &GatewayHandler{ctrl: ctrl, cookie: cookie}
}

// Me returns the credential held by the caller's session.
// GET /me
func (h *GatewayHandler) Me(w http.ResponseWriter, r *http.Request) {
	cred, err := h.ctrl.Inspect(r.Context(), middleware.GetSessionToken(r.Context()))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

// Authorize issues a new credential into the caller's session and redirects
// to /me.
// POST /authorize
func (h *GatewayHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	token, _, err := h.ctrl.Issue(r.Context(), middleware.GetSessionToken(r.Context()))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	http.SetCookie(w, h.sessionCookie(token))
	http.Redirect(w, r, "/me", http.StatusSeeOther)
}

// GenerateImage verifies the session's credential and generates one image.
// POST /generate_image
func (h *GatewayHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateImageRequest
	if err := readJSON(r, &req); err != nil {
		msg := "Invalid request body: expected a JSON object with a prompt"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		if errors.Is(err, io.EOF) {
			msg = "Invalid request body: body is empty"
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	resp, err := h.ctrl.Generate(r.Context(), middleware.GetSessionToken(r.Context()), req.Prompt)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *GatewayHandler) sessionCookie(token string) *http.Cookie {
	c := &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if h.cookie.MaxAge > 0 {
		c.MaxAge = int(h.cookie.MaxAge.Seconds())
	}
	return c
}

// StatusForKind maps a gateway error kind to its HTTP status.
func StatusForKind(k gateway.Kind) int {
	switch k {
	case gateway.KindUnauthenticated:
		return http.StatusUnauthorized
	case gateway.KindMalformedCredential, gateway.KindInvalidCredential:
		return http.StatusBadRequest
	case gateway.KindVerifyUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeGatewayError(w http.ResponseWriter, err error) {
	var ge *gateway.Error
	if !errors.As(err, &ge) {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeError(w, StatusForKind(ge.Kind), ge.Message)
}
