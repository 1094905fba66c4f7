// Package config loads the companion service configuration.
//
// Sources, in increasing precedence:
//  1. built-in defaults (defaults.go)
//  2. YAML config file (~/.factorio-gpt/config.yaml by default)
//  3. environment variables (FGPT_* via caarlos0/env)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the local HTTP listener settings.
type ServerConfig struct {
	Host         string        `yaml:"host" env:"FGPT_HOST"`
	Port         int           `yaml:"port" env:"FGPT_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"FGPT_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"FGPT_WRITE_TIMEOUT"`
}

// UpstreamConfig holds the model provider endpoint settings.
type UpstreamConfig struct {
	BaseURL         string        `yaml:"base_url" env:"FGPT_UPSTREAM_BASE_URL"`
	Organization    string        `yaml:"organization" env:"FGPT_UPSTREAM_ORG"`
	Timeout         time.Duration `yaml:"timeout" env:"FGPT_UPSTREAM_TIMEOUT"`
	KeyCheckTimeout time.Duration `yaml:"key_check_timeout" env:"FGPT_KEY_CHECK_TIMEOUT"`
}

// SnapshotConfig holds the snapshot cache policies.
type SnapshotConfig struct {
	Capacity      int           `yaml:"capacity" env:"FGPT_SNAPSHOT_CAPACITY"`
	LoadThreshold float64       `yaml:"load_threshold" env:"FGPT_SNAPSHOT_LOAD_THRESHOLD"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" env:"FGPT_SNAPSHOT_IDLE_TIMEOUT"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"FGPT_SNAPSHOT_SWEEP_INTERVAL"`
}

// ProfileConfig is the on-disk shape of a model profile.
type ProfileConfig struct {
	Model           string  `yaml:"model" json:"model,omitempty"`
	Temperature     float64 `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens       int     `yaml:"max_tokens" json:"maxTokens,omitempty"`
	PromptAdditions string  `yaml:"prompt_additions" json:"promptAdditions,omitempty"`
}

// Config is the full companion service configuration.
type Config struct {
	Server         ServerConfig             `yaml:"server"`
	Upstream       UpstreamConfig           `yaml:"upstream"`
	Snapshots      SnapshotConfig           `yaml:"snapshots"`
	Profiles       map[string]ProfileConfig `yaml:"profiles"`
	DefaultProfile string                   `yaml:"default_profile" env:"FGPT_DEFAULT_PROFILE"`
	DataDir        string                   `yaml:"data_dir" env:"FGPT_DATA_DIR"`
	Debug          bool                     `yaml:"debug" env:"FGPT_DEBUG"`
}

// DefaultDataDir returns ~/.factorio-gpt, falling back to the working
// directory when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".factorio-gpt"
	}
	return filepath.Join(home, ".factorio-gpt")
}

// DefaultProfiles returns the built-in model profiles.
func DefaultProfiles() map[string]ProfileConfig {
	return map[string]ProfileConfig{
		"gpt-4o":       {Model: "gpt-4o", Temperature: 0.4, MaxTokens: 2048},
		"gpt-4.1":      {Model: "gpt-4.1", Temperature: 0.2, MaxTokens: 2048},
		"gpt-4.1-mini": {Model: "gpt-4.1-mini", Temperature: 0.3, MaxTokens: 1024},
	}
}

// Default returns a configuration populated with built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		Upstream: UpstreamConfig{
			BaseURL:         DefaultUpstreamBaseURL,
			Timeout:         DefaultUpstreamTimeout,
			KeyCheckTimeout: DefaultKeyCheckTimeout,
		},
		Snapshots: SnapshotConfig{
			Capacity:      DefaultSnapshotCapacity,
			LoadThreshold: DefaultLoadThreshold,
			IdleTimeout:   DefaultIdleTimeout,
			SweepInterval: DefaultSweepInterval,
		},
		Profiles:       DefaultProfiles(),
		DefaultProfile: "gpt-4o",
		DataDir:        DefaultDataDir(),
	}
}

// Load reads the config file at path (missing file is not an error), applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// First run: defaults only.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Snapshots.Capacity <= 0 {
		return fmt.Errorf("snapshot capacity must be positive, got %d", c.Snapshots.Capacity)
	}
	if c.Snapshots.LoadThreshold <= 0 {
		return fmt.Errorf("snapshot load threshold must be positive, got %g", c.Snapshots.LoadThreshold)
	}
	if c.Snapshots.IdleTimeout <= 0 {
		return fmt.Errorf("snapshot idle timeout must be positive, got %s", c.Snapshots.IdleTimeout)
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("at least one profile must be configured")
	}
	if _, ok := c.Profiles[c.DefaultProfile]; !ok {
		return fmt.Errorf("default profile %q is not configured", c.DefaultProfile)
	}
	for name, p := range c.Profiles {
		if p.MaxTokens <= 0 {
			return fmt.Errorf("profile %q: max_tokens must be positive", name)
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("profile %q: temperature %g out of range [0,2]", name, p.Temperature)
		}
	}
	return nil
}

// ConfigFilePath returns the default YAML config location under the data dir.
func (c *Config) ConfigFilePath() string {
	return filepath.Join(c.DataDir, "config.yaml")
}

// StorePath returns the SQLite database location under the data dir.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "companion.db")
}
