// Package config loads the inspector's optional YAML settings file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appDirName     = "lynx-inspect"
	configFileName = "config.yaml"
)

// Config holds inspector settings. Command-line flags override file values.
type Config struct {
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	StatusInterval time.Duration `yaml:"status_interval"`
	HelpStyle      string        `yaml:"help_style"`
}

// Default returns the settings used when no file exists.
func Default() Config {
	return Config{
		URL:            "ws://127.0.0.1:9222/ws",
		StatusInterval: 2 * time.Second,
		HelpStyle:      "dark",
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/lynx-inspect/config.yaml, falling back
// to ~/.config.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName, configFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", configFileName)
	}
	return filepath.Join(home, ".config", appDirName, configFileName)
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the websocket URL scheme.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url: missing host")
	}
	return nil
}

// HTTPBase converts ws://host:port/ws to http://host:port.
func (c Config) HTTPBase() string {
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:9222"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
