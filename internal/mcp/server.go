package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/quotagate/internal/gateway"
	"github.com/faucetdb/quotagate/internal/openapi"
)

// stdioSession is the token slot used when a call carries no client session,
// which is the case for a single stdio client.
const stdioSession = "stdio"

// idleSlotTTL bounds how long an unused token slot is kept when sessions
// themselves never expire.
const idleSlotTTL = 24 * time.Hour

type tokenSlot struct {
	token    string
	lastUsed time.Time
}

// MCPServer exposes the gateway flow as MCP tools. Each MCP client session
// holds its own session token, the same way a browser holds the cookie.
type MCPServer struct {
	ctrl   *gateway.Controller
	spec   openapi.Options
	logger *slog.Logger
	server *server.MCPServer
	mu     sync.Mutex
	tokens map[string]tokenSlot // keyed by client session id
	ttl    time.Duration
	now    func() time.Time
}

// NewMCPServer creates an MCPServer with the gateway tools and resources
// registered. The returned server is ready to serve over stdio or HTTP.
// Token slots unused for longer than sessionTTL are dropped, so clients that
// never end their MCP session do not accumulate; a zero sessionTTL falls back
// to a day of idleness.
func NewMCPServer(ctrl *gateway.Controller, spec openapi.Options, sessionTTL time.Duration, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		ctrl:   ctrl,
		spec:   spec,
		logger: logger,
		tokens: make(map[string]tokenSlot),
		ttl:    sessionTTL,
		now:    time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = idleSlotTTL
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(ctx context.Context, cs server.ClientSession) {
		s.forget(cs.SessionID())
	})

	version := spec.Version
	if version == "" {
		version = "dev"
	}
	mcpServer := server.NewMCPServer(
		"quotagate",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
		server.WithRecovery(),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio serves a single MCP client over stdin/stdout.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// HTTPHandler returns a Streamable HTTP handler for mounting under a router.
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.server)
}

// sessionKey names the token slot for the calling client.
func sessionKey(ctx context.Context) string {
	if cs := server.ClientSessionFromContext(ctx); cs != nil && cs.SessionID() != "" {
		return cs.SessionID()
	}
	return stdioSession
}

func (s *MCPServer) token(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(ctx)
	slot, ok := s.tokens[key]
	if !ok {
		return ""
	}
	now := s.now()
	if now.Sub(slot.lastUsed) > s.ttl {
		delete(s.tokens, key)
		return ""
	}
	slot.lastUsed = now
	s.tokens[key] = slot
	return slot.token
}

// setToken stores token for the calling client and drops idle slots.
func (s *MCPServer) setToken(ctx context.Context, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, slot := range s.tokens {
		if now.Sub(slot.lastUsed) > s.ttl {
			delete(s.tokens, key)
		}
	}
	s.tokens[sessionKey(ctx)] = tokenSlot{token: token, lastUsed: now}
}

func (s *MCPServer) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		OpenWorldHint:   boolPtr(true),
		DestructiveHint: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
