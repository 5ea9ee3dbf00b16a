// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv     string `env:"APP_ENV" envDefault:"dev"`
	ProgramID  string `env:"PROGRAM_ID" envDefault:"scrape-fleet"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBName     string `env:"DB_NAME" envDefault:"scrape_fleet"`
	DBUser     string `env:"DB_USER" envDefault:"scraper"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"scraper"`
	// DBConnectTimeout bounds each connection attempt; failed store
	// calls are retried DBRetryAttempts times, RetryDelay apart.
	DBConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`
	DBRetryAttempts  int           `env:"DB_RETRY_ATTEMPTS" envDefault:"5"`
	RetryDelay       time.Duration `env:"RETRY_DELAY" envDefault:"10s"`
	// Staleness cutoffs shared by the janitor and the status report.
	// Validate enforces WorkerTimeout <= ProxyTimeout <= TaskTimeout so
	// a lease is never reclaimed before its holder counts as dead.
	TaskTimeout     time.Duration `env:"TASK_TIMEOUT" envDefault:"600s"`
	ProxyTimeout    time.Duration `env:"PROXY_TIMEOUT" envDefault:"300s"`
	WorkerTimeout   time.Duration `env:"WORKER_TIMEOUT" envDefault:"240s"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"60s"`
	// Worker runtime
	WorkersCount         int           `env:"WORKERS_COUNT" envDefault:"15"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	MaxTaskAttempts      int           `env:"MAX_TASK_ATTEMPTS" envDefault:"5"`
	ProxyRotationEnabled bool          `env:"PROXY_ROTATION_ENABLED" envDefault:"true"`
	Driver               string        `env:"DRIVER" envDefault:"proxyhttp"`
	DriverTimeout        time.Duration `env:"DRIVER_TIMEOUT" envDefault:"30s"`
	CaptchaMaxAttempts   int           `env:"CAPTCHA_MAX_ATTEMPTS" envDefault:"3"`
	// SiteProfilePath overrides the embedded page-marker profile.
	SiteProfilePath string `env:"SITE_PROFILE_PATH"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"INFO"`
	OpsAddr         string `env:"OPS_ADDR" envDefault:":9090"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"scrape-fleet"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the fleet cannot run safely under.
func (c Config) Validate() error {
	if c.WorkersCount < 1 {
		return fmt.Errorf("WORKERS_COUNT must be positive, got %d", c.WorkersCount)
	}
	if c.MaxTaskAttempts < 1 {
		return fmt.Errorf("MAX_TASK_ATTEMPTS must be positive, got %d", c.MaxTaskAttempts)
	}
	if c.DBRetryAttempts < 1 {
		return fmt.Errorf("DB_RETRY_ATTEMPTS must be positive, got %d", c.DBRetryAttempts)
	}
	if c.TaskTimeout <= 0 || c.ProxyTimeout <= 0 || c.WorkerTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.WorkerTimeout > c.ProxyTimeout {
		return fmt.Errorf("WORKER_TIMEOUT %s exceeds PROXY_TIMEOUT %s", c.WorkerTimeout, c.ProxyTimeout)
	}
	if c.ProxyTimeout > c.TaskTimeout {
		return fmt.Errorf("PROXY_TIMEOUT %s exceeds TASK_TIMEOUT %s", c.ProxyTimeout, c.TaskTimeout)
	}
	return nil
}

// DSN builds the PostgreSQL connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }
