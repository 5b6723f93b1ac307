// Package config loads tracker configuration from defaults, an optional YAML
// file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	// Comma separated list; "*" allows any origin.
	CORSAllowedOrigins string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	AuditLogPath       string `yaml:"audit_log_path" env:"AUDIT_LOG_PATH"`
	AuditLogSize       int    `yaml:"audit_log_size" env:"AUDIT_LOG_SIZE"`
	// Honour X-Forwarded-For and X-Real-IP. Only set behind a trusted proxy.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" env:"TRUST_PROXY_HEADERS"`
}

type DatabaseConfig struct {
	Driver          string `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	AutoMigrate     bool   `yaml:"auto_migrate" env:"DATABASE_AUTO_MIGRATE"`
}

type AuthConfig struct {
	JWTSecret      string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL       time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL"`
	CookieName     string        `yaml:"cookie_name" env:"AUTH_COOKIE_NAME"`
	CookieSecure   bool          `yaml:"cookie_secure" env:"AUTH_COOKIE_SECURE"`
	CookieHTTPOnly bool          `yaml:"cookie_http_only" env:"AUTH_COOKIE_HTTP_ONLY"`
	// Comma separated list of emails granted the admin role.
	AdminEmails    string  `yaml:"admin_emails" env:"ADMIN_EMAILS"`
	BcryptCost     int     `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
	LoginRateLimit float64 `yaml:"login_rate_limit" env:"LOGIN_RATE_LIMIT"`
	LoginBurst     int     `yaml:"login_burst" env:"LOGIN_BURST"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
	DashboardTTL  time.Duration `yaml:"dashboard_ttl" env:"DASHBOARD_CACHE_TTL"`
}

type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled" env:"SCHEDULER_ENABLED"`
	ReminderSpec string `yaml:"reminder_spec" env:"REMINDER_SCHEDULE"`
	SummarySpec  string `yaml:"summary_spec" env:"SUMMARY_SCHEDULE"`
	SessionSpec  string `yaml:"session_spec" env:"SESSION_CLEANUP_SCHEDULE"`
}

type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url" env:"REMINDER_WEBHOOK_URL"`
	WebhookKey string        `yaml:"webhook_key" env:"REMINDER_WEBHOOK_KEY"`
	Timeout    time.Duration `yaml:"timeout" env:"REMINDER_WEBHOOK_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       30 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			CORSAllowedOrigins: "http://localhost:3000",
			AuditLogSize:       200,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			AutoMigrate:     true,
		},
		Auth: AuthConfig{
			TokenTTL:       7 * 24 * time.Hour,
			CookieName:     "authToken",
			CookieHTTPOnly: true,
			BcryptCost:     12,
			LoginRateLimit: 1,
			LoginBurst:     5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Cache: CacheConfig{
			DashboardTTL: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			ReminderSpec: "@every 1m",
			SummarySpec:  "0 6 * * 1",
			SessionSpec:  "@hourly",
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// DefaultPath is read when neither --config nor TRACKER_CONFIG names a file.
const DefaultPath = "tracker.yaml"

// Load builds the configuration. An empty path falls back to TRACKER_CONFIG
// and then DefaultPath. Only a missing DefaultPath is tolerated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("TRACKER_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := loadFile(path, explicit, cfg); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges the YAML file at path into cfg. A missing file is only an
// error when the caller named it.
func loadFile(path string, required bool, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate checks the values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost %d out of range 4..31", c.Auth.BcryptCost)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token ttl must be positive")
	}
	return nil
}

// AllowedOrigins splits the CORS origin list.
func (c ServerConfig) AllowedOrigins() []string {
	return SplitCSV(c.CORSAllowedOrigins)
}

// Admins returns the admin email allowlist as a lower-cased set.
func (c AuthConfig) Admins() map[string]struct{} {
	out := make(map[string]struct{})
	for _, email := range SplitCSV(c.AdminEmails) {
		out[strings.ToLower(email)] = struct{}{}
	}
	return out
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
