// Package history keeps lifetime render counters across restarts. A Tracker
// folds session store events into Stats and a Store persists them as JSON.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// statsVersion is bumped when the schema changes.
	statsVersion = 1

	statsFileName = "history.json"
	appDirName    = "lynx-render"
)

// Stats is the persistent aggregate of every session the host has run.
type Stats struct {
	Version int `json:"version"`

	TotalSessions     int `json:"totalSessions"`
	TotalLoads        int `json:"totalLoads"`
	TotalReloads      int `json:"totalReloads"`
	TotalErrors       int `json:"totalErrors"`
	DestroyedSessions int `json:"destroyedSessions"`

	SessionsPerStrategy map[string]int `json:"sessionsPerStrategy"`
	ErrorsPerStrategy   map[string]int `json:"errorsPerStrategy"`

	// all-time highs
	MaxConcurrentLive     int     `json:"maxConcurrentLive"`
	MaxReloadCount        int     `json:"maxReloadCount"`
	MaxDestroyAttempts    int     `json:"maxDestroyAttempts"`
	MaxSessionLifetimeSec float64 `json:"maxSessionLifetimeSec"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// Store handles loading and saving Stats to disk.
type Store struct {
	dir string
}

// NewStore creates a Store that reads and writes in dir. An empty dir uses
// the XDG state path.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = defaultStatsDir()
	}
	return &Store{dir: dir}
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, statsFileName)
}

// Load reads stats from disk. A missing file yields empty Stats.
func (s *Store) Load() (*Stats, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return newStats(), nil
		}
		return nil, fmt.Errorf("reading history: %w", err)
	}

	var st Stats
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	st.initMaps()
	return &st, nil
}

// Save writes stats through a temp file and rename so readers never see a
// partial file.
func (s *Store) Save(st *Stats) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}

	st.Version = statsVersion
	st.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming history file: %w", err)
	}
	committed = true
	return nil
}

func newStats() *Stats {
	return &Stats{
		Version:             statsVersion,
		SessionsPerStrategy: make(map[string]int),
		ErrorsPerStrategy:   make(map[string]int),
	}
}

func (st *Stats) initMaps() {
	if st.SessionsPerStrategy == nil {
		st.SessionsPerStrategy = make(map[string]int)
	}
	if st.ErrorsPerStrategy == nil {
		st.ErrorsPerStrategy = make(map[string]int)
	}
}

func (st *Stats) clone() *Stats {
	cp := *st
	cp.SessionsPerStrategy = make(map[string]int, len(st.SessionsPerStrategy))
	for k, v := range st.SessionsPerStrategy {
		cp.SessionsPerStrategy[k] = v
	}
	cp.ErrorsPerStrategy = make(map[string]int, len(st.ErrorsPerStrategy))
	for k, v := range st.ErrorsPerStrategy {
		cp.ErrorsPerStrategy[k] = v
	}
	return &cp
}

// defaultStatsDir returns ~/.local/state/lynx-render, respecting
// XDG_STATE_HOME if set.
func defaultStatsDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
