package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session backends.
const (
	BackendCookie = "cookie"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the complete process configuration. It is built once at startup
// and handed to the service clients and the server; nothing reads viper
// after Load returns.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	Keys    KeysConfig    `mapstructure:"keys"`
	Images  ImagesConfig  `mapstructure:"images"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	MaxBodySize     int64         `mapstructure:"max_body_size"` // bytes
	RateLimit       int           `mapstructure:"rate_limit"`    // requests per minute per IP, 0 disables
	DataDir         string        `mapstructure:"data_dir"`
}

// SessionConfig controls where the issued credential lives between requests.
type SessionConfig struct {
	Backend    string        `mapstructure:"backend"`
	CookieName string        `mapstructure:"cookie_name"`
	Secret     string        `mapstructure:"secret"` // HMAC key for signed cookies
	TTL        time.Duration `mapstructure:"ttl"`    // 0 means a browser-session cookie
	Secure     bool          `mapstructure:"secure"`
	SQL        SQLConfig     `mapstructure:"sql"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

// SQLConfig selects the database for the sql session backend.
type SQLConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig selects the server for the redis session backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KeysConfig configures the key-management backend and the fixed issuance
// policy applied to every credential.
type KeysConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RootKey        string        `mapstructure:"root_key"`
	APIID          string        `mapstructure:"api_id"`
	OwnerID        string        `mapstructure:"owner_id"`
	InitialQuota   int           `mapstructure:"initial_quota"`
	RefillAmount   int           `mapstructure:"refill_amount"`
	RefillInterval string        `mapstructure:"refill_interval"` // daily or monthly
	Timeout        time.Duration `mapstructure:"timeout"`
}

// ImagesConfig configures the image generation backend.
type ImagesConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"` // empty lets the backend pick
	Size    string        `mapstructure:"size"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SetDefaults registers every configuration key with its default value.
// Registering all keys is what lets AutomaticEnv resolve QUOTAGATE_* variables
// during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_body_size", 1<<20)
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("server.data_dir", "")

	v.SetDefault("session.backend", BackendCookie)
	v.SetDefault("session.cookie_name", "credential")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", "0s")
	v.SetDefault("session.secure", false)
	v.SetDefault("session.sql.driver", "sqlite")
	v.SetDefault("session.sql.dsn", "")
	v.SetDefault("session.redis.addr", "127.0.0.1:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)

	v.SetDefault("keys.base_url", "https://api.unkey.dev")
	v.SetDefault("keys.root_key", "")
	v.SetDefault("keys.api_id", "")
	v.SetDefault("keys.owner_id", "superuser")
	v.SetDefault("keys.initial_quota", 10)
	v.SetDefault("keys.refill_amount", 10)
	v.SetDefault("keys.refill_interval", "daily")
	v.SetDefault("keys.timeout", "5s")

	v.SetDefault("images.base_url", "https://api.openai.com")
	v.SetDefault("images.api_key", "")
	v.SetDefault("images.model", "")
	v.SetDefault("images.size", "1024x1024")
	v.SetDefault("images.timeout", "60s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.enabled", true)
}

// BindEnv wires the QUOTAGATE_ environment prefix and the conventional
// upstream variable names that deployments already carry.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("QUOTAGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("keys.root_key", "QUOTAGATE_KEYS_ROOT_KEY", "UNKEY_ROOT_KEY")
	v.BindEnv("keys.api_id", "QUOTAGATE_KEYS_API_ID", "UNKEY_API_ID")
	v.BindEnv("images.api_key", "QUOTAGATE_IMAGES_API_KEY", "OPENAI_API_KEY")
}

// Load decodes the effective configuration held by v. Defaults must already
// be registered (see SetDefaults). The result is not validated.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Session.Backend = strings.ToLower(strings.TrimSpace(cfg.Session.Backend))
	cfg.Session.SQL.Driver = strings.ToLower(strings.TrimSpace(cfg.Session.SQL.Driver))
	cfg.Keys.RefillInterval = strings.ToLower(strings.TrimSpace(cfg.Keys.RefillInterval))
	return &cfg, nil
}

// Default returns a Config populated only from defaults.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, _ := Load(v)
	return cfg
}

// Validate checks everything the serve command needs.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Keys.Validate(); err != nil {
		return err
	}
	return c.Images.Validate()
}

// Validate checks the session settings.
func (c SessionConfig) Validate() error {
	switch c.Backend {
	case BackendCookie, BackendMemory, BackendRedis:
	case BackendSQL:
		switch c.SQL.Driver {
		case "sqlite", "postgres", "mysql":
		default:
			return fmt.Errorf("%w: unsupported session.sql.driver %q", ErrInvalidConfig, c.SQL.Driver)
		}
		if c.SQL.Driver != "sqlite" && c.SQL.DSN == "" {
			return fmt.Errorf("%w: session.sql.dsn is required for %s", ErrInvalidConfig, c.SQL.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown session.backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.CookieName == "" {
		return fmt.Errorf("%w: session.cookie_name is empty", ErrInvalidConfig)
	}
	if c.TTL < 0 {
		return fmt.Errorf("%w: session.ttl must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the key-management settings.
func (c KeysConfig) Validate() error {
	if c.RootKey == "" {
		return fmt.Errorf("%w: keys.root_key is required (or set UNKEY_ROOT_KEY)", ErrInvalidConfig)
	}
	if c.APIID == "" {
		return fmt.Errorf("%w: keys.api_id is required (or set UNKEY_API_ID)", ErrInvalidConfig)
	}
	if err := validateBaseURL("keys.base_url", c.BaseURL); err != nil {
		return err
	}
	if c.InitialQuota <= 0 {
		return fmt.Errorf("%w: keys.initial_quota must be positive", ErrInvalidConfig)
	}
	switch c.RefillInterval {
	case "daily", "monthly":
	default:
		return fmt.Errorf("%w: keys.refill_interval must be daily or monthly, got %q", ErrInvalidConfig, c.RefillInterval)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: keys.timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the image backend settings.
func (c ImagesConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: images.api_key is required (or set OPENAI_API_KEY)", ErrInvalidConfig)
	}
	if err := validateBaseURL("images.base_url", c.BaseURL); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: images.timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

func validateBaseURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s %q is not an absolute URL", ErrInvalidConfig, key, raw)
	}
	return nil
}
