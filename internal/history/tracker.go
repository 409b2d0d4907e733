package history

import (
	"context"
	"sync"
	"time"

	"github.com/lynxrender/backend/internal/logging"
	"github.com/lynxrender/backend/internal/session"
)

const defaultSaveInterval = 30 * time.Second

// Tracker folds session lifecycle events into Stats and saves them
// periodically.
type Tracker struct {
	persist      *Store
	logger       *logging.Logger
	saveInterval time.Duration

	mu      sync.Mutex
	stats   *Stats
	dirty   bool
	counted map[string]bool // sessions already counted in TotalSessions
}

// NewTracker loads existing stats from persist. saveInterval of zero uses
// the default.
func NewTracker(persist *Store, saveInterval time.Duration, logger *logging.Logger) (*Tracker, error) {
	stats, err := persist.Load()
	if err != nil {
		return nil, err
	}
	if saveInterval <= 0 {
		saveInterval = defaultSaveInterval
	}
	return &Tracker{
		persist:      persist,
		logger:       logging.Named(logger, `history`),
		saveInterval: saveInterval,
		stats:        stats,
		counted:      make(map[string]bool),
	}, nil
}

// Run processes events and saves dirty stats on a ticker. It blocks until
// ctx is done or events closes, then performs a final save.
func (t *Tracker) Run(ctx context.Context, events <-chan session.Event) {
	ticker := time.NewTicker(t.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.save()
			return
		case ev, ok := <-events:
			if !ok {
				t.save()
				return
			}
			t.processEvent(ev)
		case <-ticker.C:
			t.mu.Lock()
			dirty := t.dirty
			t.mu.Unlock()
			if dirty {
				t.save()
			}
		}
	}
}

// Stats returns a copy of the current aggregate.
func (t *Tracker) Stats() *Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats.clone()
}

func (t *Tracker) processEvent(ev session.Event) {
	s := ev.Info
	if s == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.LiveCount > t.stats.MaxConcurrentLive {
		t.stats.MaxConcurrentLive = ev.LiveCount
	}

	switch ev.Type {
	case session.EventCreated:
		if t.counted[s.ID] {
			return
		}
		t.counted[s.ID] = true
		t.stats.TotalSessions++
		t.stats.SessionsPerStrategy[s.ThreadStrategy.String()]++

	case session.EventLoaded:
		t.stats.TotalLoads++

	case session.EventReloaded:
		t.stats.TotalReloads++
		if s.ReloadCount > t.stats.MaxReloadCount {
			t.stats.MaxReloadCount = s.ReloadCount
		}

	case session.EventError:
		t.stats.TotalErrors++
		t.stats.ErrorsPerStrategy[s.ThreadStrategy.String()]++

	case session.EventDestroyed:
		t.stats.DestroyedSessions++
		if s.DestroyAttempts > t.stats.MaxDestroyAttempts {
			t.stats.MaxDestroyAttempts = s.DestroyAttempts
		}
		end := time.Now()
		if s.DestroyedAt != nil {
			end = *s.DestroyedAt
		}
		if !s.CreatedAt.IsZero() {
			if life := end.Sub(s.CreatedAt).Seconds(); life > t.stats.MaxSessionLifetimeSec {
				t.stats.MaxSessionLifetimeSec = life
			}
		}
		delete(t.counted, s.ID)
	}

	t.dirty = true
}

func (t *Tracker) save() {
	t.mu.Lock()
	stats := t.stats.clone()
	t.dirty = false
	t.mu.Unlock()

	if err := t.persist.Save(stats); err != nil {
		t.logger.Warning().Err(err).Str(`path`, t.persist.Path()).Log(`failed to save history`)
	}
}
