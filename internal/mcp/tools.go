package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/quotagate/internal/gateway"
)

// registerTools registers the gateway tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	srv.AddTool(
		mcp.NewTool("quotagate_me",
			mcp.WithDescription(
				"Show the API key held by this MCP session. Returns the key and its "+
					"identifier. Call quotagate_authorize first if no key has been issued.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleMe,
	)

	srv.AddTool(
		mcp.NewTool("quotagate_authorize",
			mcp.WithDescription(
				"Issue a new rate-limited API key and store it in this MCP session, "+
					"replacing any key held before. Every call consumes a fresh key with "+
					"a full quota.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
		),
		s.handleAuthorize,
	)

	srv.AddTool(
		mcp.NewTool("quotagate_generate_image",
			mcp.WithDescription(
				"Generate one image from a text prompt. The session's API key is "+
					"verified first and one unit of its quota is consumed. Returns the "+
					"image URL and the calls remaining on the key.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("prompt",
				mcp.Required(),
				mcp.Description("Text description of the image to generate"),
			),
		),
		s.handleGenerateImage,
	)
}

// handleMe returns the credential held by the calling client's session.
func (s *MCPServer) handleMe(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	cred, err := s.ctrl.Inspect(ctx, s.token(ctx))
	if err != nil {
		return gatewayError(err)
	}
	return successJSON(cred)
}

// handleAuthorize issues a credential into the calling client's session.
func (s *MCPServer) handleAuthorize(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	token, cred, err := s.ctrl.Issue(ctx, s.token(ctx))
	if err != nil {
		return gatewayError(err)
	}
	s.setToken(ctx, token)
	return successJSON(cred)
}

// handleGenerateImage runs one quota-checked generation.
func (s *MCPServer) handleGenerateImage(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	prompt, err := requireString(request, "prompt")
	if err != nil {
		return toolError("%v", err)
	}

	resp, err := s.ctrl.Generate(ctx, s.token(ctx), prompt)
	if err != nil {
		return gatewayError(err)
	}
	return successJSON(resp)
}

// gatewayError turns a controller failure into a tool error carrying the
// client-facing message and kind.
func gatewayError(err error) (*mcp.CallToolResult, error) {
	var ge *gateway.Error
	if errors.As(err, &ge) {
		return toolError("%s (%s)", ge.Message, ge.Kind)
	}
	return toolError("Internal server error")
}
