package openapi

import (
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
)

// Options controls the generated document.
type Options struct {
	BaseURL    string // server URL; empty omits the servers list
	CookieName string // session cookie carrying the credential
	Version    string // build version shown in info.version
}

// Generate builds the OpenAPI 3.1 document for the gateway's HTTP surface.
func Generate(opts Options) *openapi3.T {
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	cookieName := opts.CookieName
	if cookieName == "" {
		cookieName = "credential"
	}

	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "quotagate API",
			Description: "Issues rate-limited API keys into the caller's session and proxies image generation behind a per-call quota check.",
			Version:     version,
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = componentSchemas()
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"sessionCookie": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:        "apiKey",
				In:          "cookie",
				Name:        cookieName,
				Description: "Session token set by POST /authorize.",
			},
		},
	}
	doc.Components = &components

	cookieAuth := openapi3.NewSecurityRequirements().With(openapi3.SecurityRequirement{"sessionCookie": {}})
	noAuth := openapi3.NewSecurityRequirements()

	doc.Paths = openapi3.NewPaths()

	doc.Paths.Set("/me", &openapi3.PathItem{Get: &openapi3.Operation{
		Tags:        []string{"credential"},
		Summary:     "Show the API key held by this session",
		OperationID: "me",
		Security:    cookieAuth,
		Responses: newResponses(http.StatusOK, "Key held by the session", schemaRef(SchemaCredential),
			http.StatusUnauthorized),
	}})

	seeOther := "Key issued; redirects to /me"
	authorizeResponses := newResponses(0, "", nil, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError)
	authorizeResponses.Set(strconv.Itoa(http.StatusSeeOther), &openapi3.ResponseRef{Value: &openapi3.Response{
		Description: &seeOther,
		Headers: openapi3.Headers{
			"Location":   &openapi3.HeaderRef{Value: &openapi3.Header{Parameter: openapi3.Parameter{Schema: stringProp("")}}},
			"Set-Cookie": &openapi3.HeaderRef{Value: &openapi3.Header{Parameter: openapi3.Parameter{Schema: stringProp("HTTP-only session cookie " + cookieName)}}},
		},
	}})
	doc.Paths.Set("/authorize", &openapi3.PathItem{Post: &openapi3.Operation{
		Tags:        []string{"credential"},
		Summary:     "Issue a new rate-limited API key into this session",
		Description: "Every call issues a distinct key and replaces any key already held by the session.",
		OperationID: "authorize",
		Security:    noAuth,
		Responses:   authorizeResponses,
	}})

	doc.Paths.Set("/generate_image", &openapi3.PathItem{Post: &openapi3.Operation{
		Tags:        []string{"images"},
		Summary:     "Generate one image after verifying the session's key",
		OperationID: "generateImage",
		Security:    cookieAuth,
		RequestBody: &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
			Required: true,
			Content:  openapi3.NewContentWithJSONSchemaRef(schemaRef(SchemaImageRequest)),
		}},
		Responses: newResponses(http.StatusOK, "Generated image and remaining quota", schemaRef(SchemaImageResponse),
			http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway),
	}})

	doc.Paths.Set("/healthz", &openapi3.PathItem{Get: &openapi3.Operation{
		Tags:        []string{"system"},
		Summary:     "Liveness probe",
		OperationID: "healthz",
		Security:    noAuth,
		Responses:   newResponses(http.StatusOK, "Process is running", schemaRef(SchemaStatus)),
	}})

	doc.Paths.Set("/readyz", &openapi3.PathItem{Get: &openapi3.Operation{
		Tags:        []string{"system"},
		Summary:     "Readiness probe",
		Description: "Pings the session backend when it depends on an external service.",
		OperationID: "readyz",
		Security:    noAuth,
		Responses: newResponses(http.StatusOK, "Ready", schemaRef(SchemaStatus),
			http.StatusServiceUnavailable),
	}})

	return doc
}

// ─── Response Helpers ───────────────────────────────────────────────────────

var errorDescriptions = map[int]string{
	http.StatusBadRequest:          "Malformed or rejected API key, or invalid request body",
	http.StatusUnauthorized:        "No API key in session, or key issuance failed",
	http.StatusTooManyRequests:     "Rate limit exceeded",
	http.StatusInternalServerError: "Internal server error",
	http.StatusBadGateway:          "Key backend unavailable",
	http.StatusServiceUnavailable:  "Not ready",
}

// newResponses builds a Responses map with an optional success response
// (status 0 skips it) and the given error responses.
func newResponses(status int, description string, schema *openapi3.SchemaRef, errorStatuses ...int) *openapi3.Responses {
	responses := openapi3.NewResponsesWithCapacity(len(errorStatuses) + 1)

	if status != 0 {
		desc := description
		responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(schema),
			},
		})
	}

	errorRef := schemaRef(SchemaError)
	for _, code := range errorStatuses {
		desc := errorDescriptions[code]
		responses.Set(strconv.Itoa(code), &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}
