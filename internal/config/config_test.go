package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9333
  host: "0.0.0.0"
log:
  level: debug
env:
  vsync_aligned_flush_global: true
  layout_on_background_thread: true
render:
  thread_strategy: multi_thread
  auto_concurrency: true
  preset_width: 720
destroy:
  retry_interval: 5ms
  max_retries: 200
devtool:
  max_connections: 2
privacy:
  mask_url_query: true
  blocked_urls: ["/tmp/*"]
history:
  dir: /var/lib/lynx
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9333 {
		t.Errorf("Server.Port = %d, want 9333", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Render.ThreadStrategy != "multi_thread" || !cfg.Render.AutoConcurrency {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if cfg.Render.PresetWidth != 720 {
		t.Errorf("Render.PresetWidth = %d, want 720", cfg.Render.PresetWidth)
	}
	if cfg.Destroy.RetryInterval != 5*time.Millisecond || cfg.Destroy.MaxRetries != 200 {
		t.Errorf("Destroy = %+v", cfg.Destroy)
	}
	if !cfg.Env.LayoutOnBackgroundThread {
		t.Error("Env.LayoutOnBackgroundThread should be true")
	}
	if cfg.Devtool.MaxConnections != 2 {
		t.Errorf("Devtool.MaxConnections = %d, want 2", cfg.Devtool.MaxConnections)
	}
	if !cfg.Privacy.MaskURLQuery || len(cfg.Privacy.BlockedURLs) != 1 {
		t.Errorf("Privacy = %+v", cfg.Privacy)
	}
	if cfg.History.Dir != "/var/lib/lynx" {
		t.Errorf("History.Dir = %q, want /var/lib/lynx", cfg.History.Dir)
	}
	// Unset fields keep their defaults.
	if !cfg.History.Enabled || cfg.History.SaveInterval != 30*time.Second {
		t.Errorf("History = %+v, want enabled with default interval", cfg.History)
	}
	if cfg.Devtool.SnapshotInterval != 5*time.Second {
		t.Errorf("Devtool.SnapshotInterval = %v, want default 5s", cfg.Devtool.SnapshotInterval)
	}
	if !cfg.Env.NativeLibraryReady {
		t.Error("Env.NativeLibraryReady should default to true")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Config) { c.Render.ThreadStrategy = "all_on_gpu" },
			wantErr: "thread_strategy",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "log.level",
		},
		{
			name:    "negative retry interval",
			mutate:  func(c *Config) { c.Destroy.RetryInterval = -time.Second },
			wantErr: "retry_interval",
		},
		{
			name:    "negative max retries",
			mutate:  func(c *Config) { c.Destroy.MaxRetries = -1 },
			wantErr: "max_retries",
		},
		{
			name:    "negative history save interval",
			mutate:  func(c *Config) { c.History.SaveInterval = -time.Second },
			wantErr: "history.save_interval",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalidStrategy(t *testing.T) {
	path := writeConfig(t, "render:\n  thread_strategy: sideways\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "sideways") {
		t.Fatalf("Load() = %v, want strategy error", err)
	}
}

func TestVsyncAlignedFlushAllowed(t *testing.T) {
	tests := []struct {
		exp, global bool
		want        bool
	}{
		{true, true, true},
		{true, false, false},
		{false, true, false},
		{false, false, false},
	}
	for _, tt := range tests {
		cfg := defaultConfig()
		cfg.Env.VsyncAlignedFlushExp = tt.exp
		cfg.Env.VsyncAlignedFlushGlobal = tt.global
		if got := cfg.VsyncAlignedFlushAllowed(); got != tt.want {
			t.Errorf("exp=%v global=%v: got %v, want %v", tt.exp, tt.global, got, tt.want)
		}
	}
}
