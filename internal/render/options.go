package render

import (
	"fmt"
	"time"

	"github.com/lynxrender/backend/internal/bgruntime"
	"github.com/lynxrender/backend/internal/config"
	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/env"
	"github.com/lynxrender/backend/internal/logging"
	"github.com/lynxrender/backend/internal/resource"
	"github.com/lynxrender/backend/internal/session"
	"github.com/lynxrender/backend/internal/uithread"
)

// DefaultDestroyRetryInterval is the delay between lifecycle termination
// attempts.
const DefaultDestroyRetryInterval = time.Millisecond

type Option func(*options)

type options struct {
	id       string
	url      string
	strategy StrategyOptions

	syncFlush         bool
	vsyncAlignedFlush bool
	preset            Viewport
	screenWidth       int
	screenHeight      int
	density           float64

	destroyRetryInterval time.Duration
	destroyMaxRetries    int

	clients []Client
	logger  *logging.Logger
	looper  uithread.Looper
	engine  engine.Engine
	env     *env.Env
	fetcher resource.Fetcher
	store   *session.Store
	runtime *bgruntime.Runtime
}

func defaultOptions() options {
	return options{
		screenWidth:          1080,
		screenHeight:         2340,
		density:              1,
		destroyRetryInterval: DefaultDestroyRetryInterval,
	}
}

// WithID sets the session id used in the store and logs.
func WithID(id string) Option { return func(o *options) { o.id = id } }

func WithURL(url string) Option { return func(o *options) { o.url = url } }

// WithStrategy sets the configured thread strategy before resolution.
func WithStrategy(s ThreadStrategy) Option {
	return func(o *options) { o.strategy.Base = s }
}

func WithAutoConcurrency(on bool) Option {
	return func(o *options) { o.strategy.AutoConcurrency = on }
}

// WithLayoutOnBackgroundThread requests background layout for this session.
// The env switch of the same name enables it for every session.
func WithLayoutOnBackgroundThread(on bool) Option {
	return func(o *options) { o.strategy.LayoutOnBackgroundThread = on }
}

func WithSyncFlush(on bool) Option { return func(o *options) { o.syncFlush = on } }

// WithVsyncAlignedFlush is the per-session opt-in to flushing at measure
// time. The env switches and the page config must agree as well.
func WithVsyncAlignedFlush(on bool) Option {
	return func(o *options) { o.vsyncAlignedFlush = on }
}

func WithPresetViewport(v Viewport) Option { return func(o *options) { o.preset = v } }

func WithScreen(width, height int, density float64) Option {
	return func(o *options) {
		o.screenWidth, o.screenHeight, o.density = width, height, density
	}
}

// WithDestroyRetry bounds lifecycle termination. maxRetries of zero retries
// until the engine reports the lifecycle terminable.
func WithDestroyRetry(interval time.Duration, maxRetries int) Option {
	return func(o *options) {
		o.destroyRetryInterval, o.destroyMaxRetries = interval, maxRetries
	}
}

func WithClient(c Client) Option { return func(o *options) { o.clients = append(o.clients, c) } }

func WithLogger(l *logging.Logger) Option { return func(o *options) { o.logger = l } }

func WithLooper(l uithread.Looper) Option { return func(o *options) { o.looper = l } }

func WithEngine(e engine.Engine) Option { return func(o *options) { o.engine = e } }

func WithEnv(e *env.Env) Option { return func(o *options) { o.env = e } }

func WithFetcher(f resource.Fetcher) Option { return func(o *options) { o.fetcher = f } }

func WithStore(s *session.Store) Option { return func(o *options) { o.store = s } }

// WithBackgroundRuntime builds the session on a pre-started runtime. The
// runtime's engine instance is adopted instead of creating a new one.
func WithBackgroundRuntime(rt *bgruntime.Runtime) Option {
	return func(o *options) { o.runtime = rt }
}

// OptionsFromConfig maps the render and destroy config sections onto
// options.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	base, err := engine.ParseThreadStrategy(cfg.Render.ThreadStrategy)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	opts := []Option{
		WithStrategy(base),
		WithAutoConcurrency(cfg.Render.AutoConcurrency),
		WithSyncFlush(cfg.Render.EnableSyncFlush),
		WithVsyncAlignedFlush(cfg.Render.VsyncAlignedFlush),
		WithDestroyRetry(cfg.Destroy.RetryInterval, cfg.Destroy.MaxRetries),
	}
	if cfg.Render.ScreenWidth > 0 && cfg.Render.ScreenHeight > 0 {
		opts = append(opts, WithScreen(cfg.Render.ScreenWidth, cfg.Render.ScreenHeight, cfg.Render.Density))
	}
	if cfg.Render.PresetWidth > 0 || cfg.Render.PresetHeight > 0 {
		v := Viewport{Width: cfg.Render.PresetWidth, Height: cfg.Render.PresetHeight}
		if v.Width > 0 {
			v.WidthMode = engine.Exactly
		}
		if v.Height > 0 {
			v.HeightMode = engine.Exactly
		}
		opts = append(opts, WithPresetViewport(v))
	}
	return opts, nil
}
