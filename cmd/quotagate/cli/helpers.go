package cli

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/faucetdb/quotagate/internal/config"
	"github.com/faucetdb/quotagate/internal/gateway"
	"github.com/faucetdb/quotagate/internal/service"
	"github.com/faucetdb/quotagate/internal/session"
	"github.com/faucetdb/quotagate/internal/telemetry"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir,
// server.data_dir (file or QUOTAGATE_SERVER_DATA_DIR), or ~/.quotagate.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if dir := viper.GetString("server.data_dir"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".quotagate")
}

// loadConfig decodes the effective configuration from the global viper
// instance.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// newLogger builds the process logger. dev forces debug level.
func newLogger(cfg config.LogConfig, w io.Writer, dev bool) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openSessionStore builds the session store selected by cfg.Backend.
func openSessionStore(ctx context.Context, cfg config.SessionConfig, logger *slog.Logger) (session.Store, error) {
	switch cfg.Backend {
	case config.BackendCookie:
		secret := []byte(cfg.Secret)
		if len(secret) == 0 {
			secret = make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return nil, fmt.Errorf("generate session secret: %w", err)
			}
			logger.Warn("session.secret is empty; using a random key, sessions will not survive a restart")
		}
		return session.NewSignedStore(secret, cfg.TTL), nil

	case config.BackendMemory:
		return session.NewKeyedStore(session.NewMemoryBackend(), cfg.TTL).WithLogger(logger), nil

	case config.BackendSQL:
		dsn := cfg.SQL.DSN
		if cfg.SQL.Driver == "sqlite" && dsn == "" {
			var err error
			if dsn, err = session.SQLiteDSN(resolveDataDir()); err != nil {
				return nil, err
			}
		}
		backend, err := session.OpenSQL(cfg.SQL.Driver, dsn)
		if err != nil {
			return nil, err
		}
		logger.Info("sql session backend ready", "driver", cfg.SQL.Driver)
		return session.NewKeyedStore(backend, cfg.TTL).WithLogger(logger), nil

	case config.BackendRedis:
		backend, err := session.NewRedisBackend(ctx, session.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("redis session backend ready", "addr", cfg.Redis.Addr)
		return session.NewKeyedStore(backend, cfg.TTL).WithLogger(logger), nil

	default:
		return nil, fmt.Errorf("%w: unknown session.backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// newController wires the upstream clients and the gateway controller.
// metrics may be nil.
func newController(cfg *config.Config, store session.Store, metrics *telemetry.Metrics, logger *slog.Logger) *gateway.Controller {
	var opts []service.Option
	if metrics != nil {
		opts = append(opts, service.WithObserver(metrics))
	}
	creds := service.NewCredentialService(cfg.Keys, opts...)
	images := service.NewImageService(cfg.Images, opts...)

	var recorder gateway.Recorder
	if metrics != nil {
		recorder = metrics
	}
	return gateway.NewController(store, creds, images, recorder, logger)
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "quotagate.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "quotagate.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
