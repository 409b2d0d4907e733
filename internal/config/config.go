package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Env     EnvConfig     `yaml:"env"`
	Render  RenderConfig  `yaml:"render"`
	Destroy DestroyConfig `yaml:"destroy"`
	Devtool DevtoolConfig `yaml:"devtool"`
	Privacy PrivacyConfig `yaml:"privacy"`
	History HistoryConfig `yaml:"history"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// EnvConfig holds process-wide switches. VsyncAlignedFlushExp is the
// build-time experiment switch; VsyncAlignedFlushGlobal is the runtime
// settings switch. Both must be on for any session to opt in.
type EnvConfig struct {
	NativeLibraryReady       bool `yaml:"native_library_ready"`
	VsyncAlignedFlushExp     bool `yaml:"vsync_aligned_flush_exp"`
	VsyncAlignedFlushGlobal  bool `yaml:"vsync_aligned_flush_global"`
	LayoutOnBackgroundThread bool `yaml:"layout_on_background_thread"`
}

type RenderConfig struct {
	ThreadStrategy    string  `yaml:"thread_strategy"`
	AutoConcurrency   bool    `yaml:"auto_concurrency"`
	EnableSyncFlush   bool    `yaml:"enable_sync_flush"`
	VsyncAlignedFlush bool    `yaml:"vsync_aligned_flush"`
	PresetWidth       int     `yaml:"preset_width"`
	PresetHeight      int     `yaml:"preset_height"`
	ScreenWidth       int     `yaml:"screen_width"`
	ScreenHeight      int     `yaml:"screen_height"`
	Density           float64 `yaml:"density"`
}

// DestroyConfig bounds the UI-thread teardown retry loop. MaxRetries of zero
// retries until the engine reports the lifecycle terminable.
type DestroyConfig struct {
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxRetries    int           `yaml:"max_retries"`
}

type DevtoolConfig struct {
	Enabled              bool          `yaml:"enabled"`
	BroadcastThrottle    time.Duration `yaml:"broadcast_throttle"`
	SnapshotInterval     time.Duration `yaml:"snapshot_interval"`
	MaxConnections       int           `yaml:"max_connections"`
	ProcessStatsInterval time.Duration `yaml:"process_stats_interval"`
}

// PrivacyConfig controls what session snapshots the devtool server exposes.
// URL patterns are globs over "host/path".
type PrivacyConfig struct {
	MaskURLQuery  bool     `yaml:"mask_url_query"`
	MaskLocalPath bool     `yaml:"mask_local_path"`
	MaskIDs       bool     `yaml:"mask_ids"`
	AllowedURLs   []string `yaml:"allowed_urls"`
	BlockedURLs   []string `yaml:"blocked_urls"`
}

// HistoryConfig controls the lifetime counters file. An empty Dir uses
// $XDG_STATE_HOME/lynx-render.
type HistoryConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Dir          string        `yaml:"dir"`
	SaveInterval time.Duration `yaml:"save_interval"`
}

var threadStrategyNames = map[string]bool{
	"all_on_ui":      true,
	"most_on_tasm":   true,
	"part_on_layout": true,
	"multi_thread":   true,
}

var logLevelNames = map[string]bool{
	"trace":   true,
	"debug":   true,
	"info":    true,
	"notice":  true,
	"warning": true,
	"err":     true,
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 9222,
			Host: "127.0.0.1",
		},
		Log: LogConfig{
			Level: "info",
		},
		Env: EnvConfig{
			NativeLibraryReady:      true,
			VsyncAlignedFlushExp:    true,
			VsyncAlignedFlushGlobal: false,
		},
		Render: RenderConfig{
			ThreadStrategy: "all_on_ui",
			ScreenWidth:    1080,
			ScreenHeight:   2340,
			Density:        2.75,
		},
		Destroy: DestroyConfig{
			RetryInterval: time.Millisecond,
		},
		Devtool: DevtoolConfig{
			Enabled:              true,
			BroadcastThrottle:    100 * time.Millisecond,
			SnapshotInterval:     5 * time.Second,
			MaxConnections:       16,
			ProcessStatsInterval: 2 * time.Second,
		},
		History: HistoryConfig{
			Enabled:      true,
			SaveInterval: 30 * time.Second,
		},
	}
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return defaultConfig()
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if !threadStrategyNames[c.Render.ThreadStrategy] {
		return fmt.Errorf("render.thread_strategy: unknown strategy %q", c.Render.ThreadStrategy)
	}
	if !logLevelNames[c.Log.Level] {
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	if c.Destroy.RetryInterval < 0 {
		return fmt.Errorf("destroy.retry_interval must not be negative")
	}
	if c.Destroy.MaxRetries < 0 {
		return fmt.Errorf("destroy.max_retries must not be negative")
	}
	if c.Devtool.BroadcastThrottle < 0 || c.Devtool.SnapshotInterval < 0 || c.Devtool.ProcessStatsInterval < 0 {
		return fmt.Errorf("devtool intervals must not be negative")
	}
	if c.History.SaveInterval < 0 {
		return fmt.Errorf("history.save_interval must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// VsyncAlignedFlushAllowed reports whether the process-level half of the
// vsync-aligned flush gate is open.
func (c *Config) VsyncAlignedFlushAllowed() bool {
	return c.Env.VsyncAlignedFlushExp && c.Env.VsyncAlignedFlushGlobal
}
