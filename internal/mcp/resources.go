package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/quotagate/internal/openapi"
)

const openAPIResourceURI = "quotagate://openapi"

// registerResources adds MCP resource definitions to the server.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			openAPIResourceURI,
			"Gateway HTTP API",
			mcp.WithResourceDescription(
				"OpenAPI 3.1 document for the gateway's HTTP endpoints, including the "+
					"session cookie security scheme and error envelope.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleOpenAPIResource,
	)
}

func (s *MCPServer) handleOpenAPIResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	b, err := json.MarshalIndent(openapi.Generate(s.spec), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal openapi document: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      openAPIResourceURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
