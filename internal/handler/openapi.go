package handler

import (
	"net/http"

	"github.com/faucetdb/quotagate/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI document for the gateway.
type OpenAPIHandler struct {
	opts openapi.Options
}

// NewOpenAPIHandler creates a new OpenAPIHandler. An empty opts.BaseURL is
// filled in from each request.
func NewOpenAPIHandler(opts openapi.Options) *OpenAPIHandler {
	return &OpenAPIHandler{opts: opts}
}

// ServeSpec returns the OpenAPI document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	opts := h.opts
	if opts.BaseURL == "" {
		opts.BaseURL = requestBaseURL(r)
	}
	writeJSON(w, http.StatusOK, openapi.Generate(opts))
}
