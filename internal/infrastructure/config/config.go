package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Logger      LoggerConfig    `mapstructure:"logger"`
	Webhook     WebhookConfig   `mapstructure:"webhook"`
	Lifecycle   LifecycleConfig `mapstructure:"lifecycle"`
	Outbox      OutboxConfig    `mapstructure:"outbox"`
	Dashboard   DashboardConfig `mapstructure:"dashboard"`
	Currency    string          `mapstructure:"currency"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"readTimeout"`       // seconds
	WriteTimeout      time.Duration `mapstructure:"writeTimeout"`      // seconds
	IdleTimeout       time.Duration `mapstructure:"idleTimeout"`       // seconds
	ReadHeaderTimeout time.Duration `mapstructure:"readHeaderTimeout"` // seconds
	ShutdownTimeout   time.Duration `mapstructure:"shutdownTimeout"`   // seconds
	AllowedOrigins    []string      `mapstructure:"allowedOrigins"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite or memory
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslMode"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"` // minutes
	ConnMaxIdleTime time.Duration `mapstructure:"connMaxIdleTime"` // minutes
	QueryTimeout    time.Duration `mapstructure:"queryTimeout"`    // seconds
	RetryAttempts   int           `mapstructure:"retryAttempts"`
	RetryDelay      time.Duration `mapstructure:"retryDelay"` // seconds
	AutoMigrate     bool          `mapstructure:"autoMigrate"`
}

// LoggerConfig contains logger settings
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"timeFormat"`
	CallerInfo bool   `mapstructure:"callerInfo"`
}

// WebhookConfig contains payment processor webhook settings.
// Secrets lists every accepted signing secret so a rotation can overlap.
type WebhookConfig struct {
	Secret    string        `mapstructure:"secret"`
	Secrets   []string      `mapstructure:"secrets"`
	Tolerance time.Duration `mapstructure:"tolerance"`
}

// SigningSecrets returns the configured secrets, primary first
func (w WebhookConfig) SigningSecrets() []string {
	out := make([]string, 0, len(w.Secrets)+1)
	if w.Secret != "" {
		out = append(out, w.Secret)
	}
	for _, s := range w.Secrets {
		if s != "" && s != w.Secret {
			out = append(out, s)
		}
	}
	return out
}

// LifecycleConfig contains transition and sweeper settings.
// Durations are Go duration strings ("48h", "1m").
type LifecycleConfig struct {
	CancellationWindow time.Duration `mapstructure:"cancellationWindow"`
	ConflictRetries    int           `mapstructure:"conflictRetries"`
	SweepEnabled       bool          `mapstructure:"sweepEnabled"`
	SweepInterval      time.Duration `mapstructure:"sweepInterval"`
	SweepBatchSize     int           `mapstructure:"sweepBatchSize"`
	SweepParallelism   int           `mapstructure:"sweepParallelism"`
}

// OutboxConfig contains change-notification relay settings
type OutboxConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	BatchSize    int           `mapstructure:"batchSize"`
	StreamBuffer int           `mapstructure:"streamBuffer"`
}

// DashboardConfig contains list limits for participant views
type DashboardConfig struct {
	PageLimit int `mapstructure:"pageLimit"`
}

// Validate checks the settings main cannot run without
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if len(c.Webhook.SigningSecrets()) == 0 {
		return fmt.Errorf("webhook signing secret is required (ESC_WEBHOOK_SECRET)")
	}
	if c.Lifecycle.CancellationWindow <= 0 {
		return fmt.Errorf("lifecycle.cancellationWindow must be positive")
	}
	if c.Lifecycle.ConflictRetries < 0 {
		return fmt.Errorf("lifecycle.conflictRetries must be non-negative")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter ISO code, got %q", c.Currency)
	}
	return nil
}
