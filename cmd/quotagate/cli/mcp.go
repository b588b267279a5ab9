package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	qmcp "github.com/faucetdb/quotagate/internal/mcp"
	"github.com/faucetdb/quotagate/internal/openapi"
	"github.com/faucetdb/quotagate/internal/session"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server exposing quotagate_authorize,
quotagate_me and quotagate_generate_image as tools. Each MCP client session
holds its own API key, kept in memory for the life of the process.

In stdio mode the server speaks JSON-RPC over stdin/stdout, for clients that
launch it as a subprocess. In HTTP mode it serves streamable HTTP at /mcp.`,
		Example: `  quotagate mcp                             # stdio mode
  quotagate mcp --transport http --port 3001  # streamable HTTP`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport string, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Keys.Validate(); err != nil {
		return err
	}
	if err := cfg.Images.Validate(); err != nil {
		return err
	}

	// stdout carries the protocol in stdio mode; logs go to stderr.
	logger := newLogger(cfg.Log, os.Stderr, false)

	store := session.NewKeyedStore(session.NewMemoryBackend(), cfg.Session.TTL).WithLogger(logger)
	ctrl := newController(cfg, store, nil, logger)
	mcpSrv := qmcp.NewMCPServer(ctrl, openapi.Options{
		CookieName: cfg.Session.CookieName,
		Version:    versionString(),
	}, cfg.Session.TTL, logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return serveMCPHTTP(mcpSrv, fmt.Sprintf(":%d", port), logger)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}

// serveMCPHTTP serves the MCP endpoint at /mcp until SIGINT or SIGTERM.
func serveMCPHTTP(mcpSrv *qmcp.MCPServer, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpSrv.HTTPHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 15 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("MCP HTTP server starting", "addr", addr, "path", "/mcp")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("mcp listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
