package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faucetdb/quotagate/internal/handler"
	"github.com/faucetdb/quotagate/internal/server"
	"github.com/faucetdb/quotagate/internal/telemetry"
)

const banner = `
  __ _ _   _  ___ | |_ __ _  __ _  __ _| |_ ___
 / _' | | | |/ _ \| __/ _' |/ _' |/ _' | __/ _ \
| (_| | |_| | (_) | || (_| | (_| | (_| | ||  __/
 \__, |\__,_|\___/ \__\__,_|\__, |\__,_|\__\___|
    |_|                     |___/
`

func newServeCmd() *cobra.Command {
	var (
		port   int
		host   string
		dev    bool
		daemon bool
		mcp    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the quotagate HTTP server",
		Long: `Start the HTTP server exposing /authorize, /me and /generate_image, plus
health, readiness, OpenAPI and Prometheus endpoints.`,
		Example: `  quotagate serve
  quotagate serve --port 9090 --dev
  quotagate serve --daemon       # detach and log to <data-dir>/quotagate.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if daemon {
				return startDaemon()
			}
			return runServe(dev, mcp)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")
	cmd.Flags().BoolVar(&daemon, "daemon", false, "Run the server in the background")
	cmd.Flags().BoolVar(&mcp, "mcp", false, "Also serve MCP over streamable HTTP at /mcp")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev, enableMCP bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Print(banner)
	fmt.Println()

	logger := newLogger(cfg.Log, os.Stderr, dev)

	// 1. Session store
	store, err := openSessionStore(context.Background(), cfg.Session, logger)
	if err != nil {
		return fmt.Errorf("init session store: %w", err)
	}
	logger.Info("session store initialized", "backend", cfg.Session.Backend)

	// 2. Metrics and upstream clients
	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.New()
	}
	ctrl := newController(cfg, store, metrics, logger)

	// 3. Build and start HTTP server
	srvCfg := server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		MaxBodySize:     cfg.Server.MaxBodySize,
		RateLimit:       cfg.Server.RateLimit,
		Cookie: handler.CookieOptions{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.Secure,
			MaxAge: cfg.Session.TTL,
		},
		SweepInterval: 10 * time.Minute,
		EnableMetrics: cfg.Metrics.Enabled,
		EnableMCP:     enableMCP,
		Version:       versionString(),
	}
	srv := server.New(srvCfg, ctrl, store, metrics, logger)

	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("failed to write PID file", "path", pidFilePath(), "error", err)
	}
	defer removePID()

	base := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ quotagate %s\n", versionString())
	fmt.Printf("→ Listening on %s\n", base)
	fmt.Printf("→ Authorize:  POST %s/authorize\n", base)
	fmt.Printf("→ OpenAPI:    %s/openapi.json\n", base)
	fmt.Printf("→ Health:     %s/healthz\n", base)
	if cfg.Metrics.Enabled {
		fmt.Printf("→ Metrics:    %s/metrics\n", base)
	}
	if enableMCP {
		fmt.Printf("→ MCP:        %s/mcp\n", base)
	}
	fmt.Printf("→ Sessions:   %s\n", cfg.Session.Backend)
	fmt.Println()

	return srv.ListenAndServe()
}

// startDaemon re-executes the current binary without --daemon, detached from
// the terminal, with output appended to the log file.
func startDaemon() error {
	if pid, err := readPID(); err == nil && isProcessRunning(pid) {
		return fmt.Errorf("server is already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	args := make([]string, 0, len(os.Args)-1)
	for _, a := range os.Args[1:] {
		if a == "--daemon" || a == "--daemon=true" {
			continue
		}
		args = append(args, a)
	}

	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	detach(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	fmt.Printf("quotagate started in the background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  Logs: %s\n", logFilePath())
	fmt.Println("  Stop: quotagate stop")
	return child.Process.Release()
}
