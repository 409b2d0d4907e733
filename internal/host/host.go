// Package host owns the live render sessions of one process. It opens
// sessions from config, keeps an id index for the devtool server and
// samples process stats on a ticker.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lynxrender/backend/internal/config"
	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/env"
	"github.com/lynxrender/backend/internal/logging"
	"github.com/lynxrender/backend/internal/lynxerr"
	"github.com/lynxrender/backend/internal/render"
	"github.com/lynxrender/backend/internal/resource"
	"github.com/lynxrender/backend/internal/session"
	"github.com/lynxrender/backend/internal/templatedata"
	"github.com/lynxrender/backend/internal/uithread"
)

var ErrSessionNotFound = errors.New("host: session not found")

type Host struct {
	store   *session.Store
	looper  uithread.Looper
	eng     engine.Engine
	env     *env.Env
	fetcher resource.Fetcher
	root    *logging.Logger
	logger  *logging.Logger
	sampler *sampler
	seq     atomic.Uint64

	mu       sync.RWMutex
	cfg      *config.Config
	sessions map[string]*render.Session
}

func New(cfg *config.Config, store *session.Store, looper uithread.Looper, eng engine.Engine, e *env.Env, fetcher resource.Fetcher, logger *logging.Logger) *Host {
	return &Host{
		store:    store,
		looper:   looper,
		eng:      eng,
		env:      e,
		fetcher:  fetcher,
		root:     logger,
		logger:   logging.Named(logger, `host`),
		sampler:  newSampler(),
		cfg:      cfg,
		sessions: make(map[string]*render.Session),
	}
}

// SetConfig swaps the config used for sessions opened afterwards. Live
// sessions keep the options they were built with.
func (h *Host) SetConfig(cfg *config.Config) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}

func (h *Host) config() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Open builds a session for url and starts loading it. extra options are
// applied after the config derived ones. The host assigns session ids, so a
// WithID in extra is overridden.
func (h *Host) Open(ctx context.Context, url string, data *templatedata.TemplateData, extra ...render.Option) (*render.Session, error) {
	opts, err := render.OptionsFromConfig(h.config())
	if err != nil {
		return nil, err
	}
	t := &tracker{host: h, id: fmt.Sprintf("page-%d", h.seq.Add(1))}
	opts = append(opts,
		render.WithURL(url),
		render.WithLooper(h.looper),
		render.WithEngine(h.eng),
		render.WithEnv(h.env),
		render.WithStore(h.store),
		render.WithFetcher(h.fetcher),
		render.WithLogger(h.root),
		render.WithClient(t),
	)
	opts = append(opts, extra...)
	s, err := render.New(append(opts, render.WithID(t.id))...)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()

	h.logger.Info().Str(`session`, s.ID()).Str(`url`, url).Str(`strategy`, s.ThreadStrategy().String()).Log(`session opened`)
	s.LoadURL(ctx, url, data)
	return s, nil
}

func (h *Host) Session(id string) (*render.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// IDs returns the live session ids in sorted order.
func (h *Host) IDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (h *Host) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Host) Reload(id string) error {
	s, ok := h.Session(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.Reload()
	return nil
}

func (h *Host) Destroy(id string) error {
	s, ok := h.Session(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.Destroy()
	return nil
}

// DestroyAll destroys every live session.
func (h *Host) DestroyAll() {
	for _, id := range h.IDs() {
		_ = h.Destroy(id)
	}
}

// Start samples process stats until ctx is done.
func (h *Host) Start(ctx context.Context) {
	interval := h.config().Devtool.ProcessStatsInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.sample()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug().Log(`stats sampler stopped`)
			return
		case <-ticker.C:
			h.sample()
		}
	}
}

func (h *Host) sample() {
	if err := h.sampler.sample(h.Len()); err != nil {
		h.logger.Warning().Err(err).Log(`process stats sample failed`)
	}
}

// Stats returns the last process stats sample.
func (h *Host) Stats() ProcessStats {
	return h.sampler.last()
}

func (h *Host) forget(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// tracker drops a session from the index on destroy and logs its errors.
type tracker struct {
	render.BaseClient
	host *Host
	id   string
}

func (t *tracker) OnDestroy() {
	t.host.forget(t.id)
}

func (t *tracker) OnReceivedError(err *lynxerr.Error) {
	t.host.logger.Warning().Str(`session`, t.id).Int(`code`, err.Code()).Int(`sub_code`, err.SubCode).Log(`session error`)
}
