package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the jobclock server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Jobs     JobsConfig
	Auth     AuthConfig
	Push     PushConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type JobsConfig struct {
	DefaultTargetSeconds int64
	StatusTTL            time.Duration
}

type AuthConfig struct {
	RateLimitPerMinute int
	BootstrapAdminKey  string
}

// PushConfig holds VAPID credentials for web push. Push is enabled only
// when both keys are set.
type PushConfig struct {
	VAPIDPublicKey   string
	VAPIDPrivateKey  string
	Subject          string
	ReminderInterval time.Duration
}

// Enabled reports whether web push credentials are configured.
func (p PushConfig) Enabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("JOBCLOCK_PORT", 8080),
			Env:  envString("JOBCLOCK_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Jobs: JobsConfig{
			DefaultTargetSeconds: int64(envInt("DEFAULT_TARGET_SECONDS", 5400)),
			StatusTTL:            envDuration("JOB_STATUS_TTL", 30*time.Minute),
		},
		Auth: AuthConfig{
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
			BootstrapAdminKey:  os.Getenv("BOOTSTRAP_ADMIN_KEY"),
		},
		Push: PushConfig{
			VAPIDPublicKey:   os.Getenv("VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey:  os.Getenv("VAPID_PRIVATE_KEY"),
			Subject:          envString("VAPID_SUBJECT", "mailto:workshop@example.com"),
			ReminderInterval: envDuration("REMINDER_INTERVAL", time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Jobs.DefaultTargetSeconds <= 0 {
		return fmt.Errorf("DEFAULT_TARGET_SECONDS must be positive, got %d", c.Jobs.DefaultTargetSeconds)
	}

	if c.Auth.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Auth.RateLimitPerMinute)
	}

	if c.Auth.BootstrapAdminKey != "" && len(c.Auth.BootstrapAdminKey) < 16 {
		return fmt.Errorf("BOOTSTRAP_ADMIN_KEY must be at least 16 characters")
	}

	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}
	if c.Push.Enabled() && c.Push.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive, got %s", c.Push.ReminderInterval)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
