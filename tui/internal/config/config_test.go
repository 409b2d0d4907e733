package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, "url: wss://render.example.com:443/ws\ntoken: abc\nstatus_interval: 5s\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URL != "wss://render.example.com:443/ws" || cfg.Token != "abc" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.StatusInterval != 5*time.Second {
		t.Errorf("StatusInterval = %v", cfg.StatusInterval)
	}
	if cfg.HelpStyle != "dark" {
		t.Errorf("HelpStyle should keep its default, got %q", cfg.HelpStyle)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":   "url: [",
		"bad scheme": "url: http://127.0.0.1:9222/ws\n",
		"no host":    "url: ws:///ws\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultPath(); got != "/tmp/xdg/lynx-inspect/config.yaml" {
		t.Errorf("DefaultPath() = %q", got)
	}
	t.Setenv("XDG_CONFIG_HOME", "")
	if got := DefaultPath(); !strings.HasSuffix(got, filepath.Join(".config", "lynx-inspect", "config.yaml")) {
		t.Errorf("DefaultPath() = %q", got)
	}
}

func TestHTTPBase(t *testing.T) {
	tests := map[string]string{
		"ws://127.0.0.1:9222/ws":      "http://127.0.0.1:9222",
		"wss://render.example.com/ws": "https://render.example.com",
		"::bad":                       "http://127.0.0.1:9222",
	}
	for in, want := range tests {
		if got := (Config{URL: in}).HTTPBase(); got != want {
			t.Errorf("HTTPBase(%q) = %q, want %q", in, got, want)
		}
	}
}
