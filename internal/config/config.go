// Package config loads the daemon configuration: YAML file, .env overlay,
// OBI_* environment overrides, in that order of precedence (later wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend configures the search submission endpoint.
type Backend struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Retries        int    `yaml:"retries"`
}

// Gateway configures the microphone gateway connection.
type Gateway struct {
	URL              string `yaml:"url"`
	HandshakeSeconds int    `yaml:"handshake_seconds"`
}

// Audio configures recording finalization parameters.
type Audio struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

// Config is the full daemon configuration.
type Config struct {
	Backend         Backend `yaml:"backend"`
	Gateway         Gateway `yaml:"gateway"`
	Audio           Audio   `yaml:"audio"`
	FallbackResults bool    `yaml:"fallback_results"` // placeholder results when POST /search fails
	PreviewDir      string  `yaml:"preview_dir"`      // "" means the OS temp dir
}

// Default returns the built-in configuration: local stub backend, local
// gateway, fallback on.
func Default() *Config {
	return &Config{
		Backend: Backend{
			BaseURL:        "http://127.0.0.1:8080",
			TimeoutSeconds: 30,
			Retries:        2,
		},
		Gateway: Gateway{
			URL:              "ws://127.0.0.1:9090/mic",
			HandshakeSeconds: 10,
		},
		Audio: Audio{
			SampleRate: 44100,
			Channels:   1,
		},
		FallbackResults: true,
	}
}

// DefaultPath returns the user config location, ~/.config/obi/config.yaml.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "obi", "config.yaml")
}

// Load reads the config at path ("" means DefaultPath), overlays a .env
// file from the working directory if present, then applies OBI_*
// environment overrides. A missing config file is not an error; defaults
// apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// .env is developer convenience; absence is the normal case.
	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from OBI_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OBI_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("OBI_BACKEND_TOKEN"); v != "" {
		cfg.Backend.Token = v
	}
	if v := os.Getenv("OBI_GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv("OBI_FALLBACK_RESULTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FallbackResults = b
		}
	}
	if v := os.Getenv("OBI_PREVIEW_DIR"); v != "" {
		cfg.PreviewDir = v
	}
}

// Validate checks Config for usable values.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must not be empty")
	}
	if c.Backend.TimeoutSeconds < 1 || c.Backend.TimeoutSeconds > 300 {
		return fmt.Errorf("backend.timeout_seconds must be between 1 and 300, got %d", c.Backend.TimeoutSeconds)
	}
	if c.Backend.Retries < 0 || c.Backend.Retries > 10 {
		return fmt.Errorf("backend.retries must be between 0 and 10, got %d", c.Backend.Retries)
	}
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url must not be empty")
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 192000, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}
	return nil
}

// Save writes the config as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
