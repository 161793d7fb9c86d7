package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientFileName is the config file looked up by DefaultClientPath.
const ClientFileName = "jobclock.yaml"

// ClientConfig configures the jobclock terminal client.
type ClientConfig struct {
	ServerURL    string        `yaml:"server_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	TickInterval time.Duration `yaml:"tick_interval"`
	Color        bool          `yaml:"color"`
}

// DefaultClient returns the client settings used when no file is present.
func DefaultClient() ClientConfig {
	return ClientConfig{
		ServerURL:    "http://localhost:8080",
		Timeout:      10 * time.Second,
		TickInterval: time.Second,
		Color:        true,
	}
}

// DefaultClientPath returns the per-user client config path.
func DefaultClientPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "jobclock", ClientFileName), nil
}

// LoadClient reads client settings from the YAML file at path, then applies
// JOBCLOCK_SERVER_URL and JOBCLOCK_API_KEY overrides. A missing file is not
// an error. An empty path skips the file.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClient()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read client config: %w", err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("parse client config yaml: %w", err)
			}
		}
	}

	cfg.ServerURL = envString("JOBCLOCK_SERVER_URL", cfg.ServerURL)
	cfg.APIKey = envString("JOBCLOCK_API_KEY", cfg.APIKey)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("server_url must start with http:// or https://, got %q", c.ServerURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	return nil
}
