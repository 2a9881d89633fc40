// Package config defines the clawjobs configuration file and how it is
// resolved from the file, CLAWJOBS_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openclaw/clawjobs/internal/limiter"
	"github.com/openclaw/clawjobs/internal/server"
	"github.com/openclaw/clawjobs/internal/store"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// CLAWJOBS_DATABASE_DSN for database.dsn.
const EnvPrefix = "CLAWJOBS"

// Config is the top-level clawjobs configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Events   EventsConfig   `yaml:"events" mapstructure:"events"`
	Payments PaymentsConfig `yaml:"payments" mapstructure:"payments"`
	MCP      MCPConfig      `yaml:"mcp" mapstructure:"mcp"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	Sentry   SentryConfig   `yaml:"sentry" mapstructure:"sentry"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host" mapstructure:"host"`
	Port            int        `yaml:"port" mapstructure:"port"`
	PublicURL       string     `yaml:"public_url" mapstructure:"public_url"`
	MaxBodySize     string     `yaml:"max_body_size" mapstructure:"max_body_size"`
	ShutdownTimeout string     `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	RateLimit       int        `yaml:"rate_limit" mapstructure:"rate_limit"`       // agent requests per minute per credential
	IPRateLimit     int        `yaml:"ip_rate_limit" mapstructure:"ip_rate_limit"` // API requests per minute per client IP
	CORS            CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins" mapstructure:"origins"`
}

// DatabaseConfig selects the marketplace database.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"`
	DSN          string `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
}

// AuthConfig controls session verification and failed-auth lockout.
type AuthConfig struct {
	SessionSecret string        `yaml:"session_secret" mapstructure:"session_secret"`
	Lockout       LockoutConfig `yaml:"lockout" mapstructure:"lockout"`
}

// LockoutConfig blocks client IPs after repeated bad credentials.
type LockoutConfig struct {
	MaxFailures int    `yaml:"max_failures" mapstructure:"max_failures"`
	Window      string `yaml:"window" mapstructure:"window"`
	BlockFor    string `yaml:"block_for" mapstructure:"block_for"`
}

// RedisConfig enables the shared lockout backend when URL is set.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// EventsConfig enables domain event publishing when AMQPURL is set.
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url" mapstructure:"amqp_url"`
	Exchange string `yaml:"exchange" mapstructure:"exchange"`
}

// PaymentsConfig holds the payment provider webhook secret.
type PaymentsConfig struct {
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
}

// MCPConfig controls the MCP server started by `clawjobs mcp`.
type MCPConfig struct {
	Transport string `yaml:"transport" mapstructure:"transport"` // stdio or http
	Addr      string `yaml:"addr" mapstructure:"addr"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// Default returns a Config pre-filled with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodySize:     "1MB",
			ShutdownTimeout: "30s",
			RateLimit:       120,
			IPRateLimit:     600,
			CORS: CORSConfig{
				Origins: []string{"*"},
			},
		},
		Database: DatabaseConfig{
			Driver: store.DriverSQLite,
			DSN:    "clawjobs.db",
		},
		Auth: AuthConfig{
			Lockout: LockoutConfig{
				MaxFailures: 20,
				Window:      "15m",
				BlockFor:    "15m",
			},
		},
		Events: EventsConfig{
			Exchange: "clawjobs.events",
		},
		MCP: MCPConfig{
			Transport: "stdio",
			Addr:      ":3001",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Sentry: SentryConfig{
			Environment: "production",
		},
	}
}

// SetDefaults registers every key with v. Environment overrides are only
// seen by Unmarshal for keys viper knows about.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.public_url", d.Server.PublicURL)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.ip_rate_limit", d.Server.IPRateLimit)
	v.SetDefault("server.cors.origins", d.Server.CORS.Origins)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("auth.session_secret", d.Auth.SessionSecret)
	v.SetDefault("auth.lockout.max_failures", d.Auth.Lockout.MaxFailures)
	v.SetDefault("auth.lockout.window", d.Auth.Lockout.Window)
	v.SetDefault("auth.lockout.block_for", d.Auth.Lockout.BlockFor)
	v.SetDefault("redis.url", d.Redis.URL)
	v.SetDefault("events.amqp_url", d.Events.AMQPURL)
	v.SetDefault("events.exchange", d.Events.Exchange)
	v.SetDefault("payments.webhook_secret", d.Payments.WebhookSecret)
	v.SetDefault("mcp.transport", d.MCP.Transport)
	v.SetDefault("mcp.addr", d.MCP.Addr)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("sentry.dsn", d.Sentry.DSN)
	v.SetDefault("sentry.environment", d.Sentry.Environment)
}

// BindEnv makes CLAWJOBS_SECTION_KEY override section.key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load resolves the configuration held by v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres, store.DriverMySQL:
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver))
	}
	if c.Database.Driver != store.DriverSQLite && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn: required for "+c.Database.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit: must not be negative"))
	}
	if c.Server.IPRateLimit < 0 {
		errs = append(errs, errors.New("server.ip_rate_limit: must not be negative"))
	}
	if _, err := ParseSize(c.Server.MaxBodySize); err != nil {
		errs = append(errs, fmt.Errorf("server.max_body_size: %w", err))
	}
	for key, val := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"auth.lockout.window":     c.Auth.Lockout.Window,
		"auth.lockout.block_for":  c.Auth.Lockout.BlockFor,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if c.Auth.Lockout.MaxFailures <= 0 {
		errs = append(errs, errors.New("auth.lockout.max_failures: must be positive"))
	}
	if c.Events.AMQPURL != "" && c.Events.Exchange == "" {
		errs = append(errs, errors.New("events.exchange: required when events.amqp_url is set"))
	}
	switch c.MCP.Transport {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("mcp.transport: unsupported transport %q", c.MCP.Transport))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unsupported format %q", c.Logging.Format))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	return errors.Join(errs...)
}

// HTTPServer converts the file settings into the HTTP server config.
// Call it on a validated Config.
func (c *Config) HTTPServer() server.Config {
	cfg := server.DefaultConfig()
	cfg.Host = c.Server.Host
	cfg.Port = c.Server.Port
	cfg.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")
	cfg.RateLimit = c.Server.RateLimit
	cfg.IPRateLimit = c.Server.IPRateLimit
	cfg.WebhookSecret = c.Payments.WebhookSecret
	cfg.Sentry = c.Sentry.DSN != ""
	if len(c.Server.CORS.Origins) > 0 {
		cfg.CORSOrigins = c.Server.CORS.Origins
	}
	if d, err := time.ParseDuration(c.Server.ShutdownTimeout); err == nil {
		cfg.ShutdownTimeout = d
	}
	if n, err := ParseSize(c.Server.MaxBodySize); err == nil {
		cfg.MaxBodySize = n
	}
	return cfg
}

// StoreOptions converts the database settings into store options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:       c.Database.Driver,
		DSN:          c.Database.DSN,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

// LockoutPolicy converts the lockout settings into a limiter policy.
// Unparseable durations fall back to the limiter defaults.
func (c *Config) LockoutPolicy() limiter.Policy {
	p := limiter.Policy{MaxFailures: c.Auth.Lockout.MaxFailures}
	p.Window, _ = time.ParseDuration(c.Auth.Lockout.Window)
	p.BlockFor, _ = time.ParseDuration(c.Auth.Lockout.BlockFor)
	return p
}

// ParseSize parses a byte size such as "512KB", "1MB" or "1048576".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	mult := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(s, unit.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, unit.suffix))
			mult = unit.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
