package render

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/lynxrender/backend/internal/bgruntime"
	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/env"
	"github.com/lynxrender/backend/internal/event"
	"github.com/lynxrender/backend/internal/logging"
	"github.com/lynxrender/backend/internal/lynxerr"
	"github.com/lynxrender/backend/internal/resource"
	"github.com/lynxrender/backend/internal/session"
	"github.com/lynxrender/backend/internal/templatedata"
	"github.com/lynxrender/backend/internal/uithread"
)

var sessionSeq atomic.Uint64

// Session binds one page to an engine instance from creation to destroy.
// Public methods never panic; calls that cannot run are logged and dropped.
type Session struct {
	id      string
	opts    options
	eng     engine.Engine
	looper  uithread.Looper
	env     *env.Env
	logger  *logging.Logger
	store   *session.Store
	fetcher resource.Fetcher
	runtime *bgruntime.Runtime

	clients *ClientGroup
	emitter *event.Emitter
	facade  *facade

	autoConcurrency bool
	// vsyncAllowed is the process and strategy half of the vsync aligned
	// flush gate, fixed at construction.
	vsyncAllowed bool
	createdAt    time.Time

	destroyed atomic.Bool
	// removed is set once the final snapshot left the store.
	removed  atomic.Bool
	reloadMu sync.Mutex

	// mu guards everything below. The handle pair is written only under mu
	// and only by init, reload and destroy. Engine calls are never made
	// while holding mu since the engine may call back synchronously.
	mu                    sync.Mutex
	state                 State
	handle                engine.Handle
	token                 engine.LifecycleToken
	strategy              ThreadStrategy
	async                 bool
	layoutOnBackground    bool
	url                   string
	pageConfig            engine.PageConfig
	viewport              Viewport
	shouldUpdateViewport  bool
	willContentSizeChange bool
	reloadArmed           bool
	pageStarted           bool
	uiFlush               bool
	globalProps           *templatedata.TemplateData
	lastLoad              *loadRequest
	loaded                bool
	loadedAt              *time.Time
	destroyedAt           *time.Time
	reloadCount           int
	destroyAttempts       int
	errorCount            int
	lastError             string
	lastActivity          time.Time
}

// New builds a session and, when the engine is ready, its engine instance.
// A session whose engine could not be created stays Uninitialized and
// ignores every call.
func New(opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	switch {
	case o.engine == nil:
		return nil, fmt.Errorf("%w: engine", ErrMissingDependency)
	case o.looper == nil:
		return nil, fmt.Errorf("%w: looper", ErrMissingDependency)
	case o.env == nil:
		return nil, fmt.Errorf("%w: env", ErrMissingDependency)
	}
	if o.id == "" {
		o.id = fmt.Sprintf("session-%d", sessionSeq.Add(1))
	}

	so := o.strategy
	so.LayoutOnBackgroundThread = so.LayoutOnBackgroundThread || o.env.LayoutOnBackgroundThread()
	strategy, layoutOnBackground := ResolveStrategy(so)

	now := time.Now()
	s := &Session{
		id:                   o.id,
		opts:                 o,
		eng:                  o.engine,
		looper:               o.looper,
		env:                  o.env,
		logger:               logging.Named(o.logger, `render`).Clone().Str(`session`, o.id).Logger(),
		store:                o.store,
		fetcher:              o.fetcher,
		runtime:              o.runtime,
		clients:              NewClientGroup(o.clients...),
		autoConcurrency:      so.AutoConcurrency,
		vsyncAllowed:         o.env.VsyncAlignedFlushAllowed() && supportsVsyncAlignedFlush(strategy),
		createdAt:            now,
		state:                Uninitialized,
		strategy:             strategy,
		async:                strategy.IsAsync(),
		layoutOnBackground:   layoutOnBackground,
		url:                  o.url,
		shouldUpdateViewport: true,
		uiFlush:              true,
		lastActivity:         now,
	}
	s.facade = &facade{s: s}
	s.emitter = event.NewEmitter(o.looper, nil, s.logger)

	s.init()
	s.publish(session.EventCreated)
	return s, nil
}

func (s *Session) init() {
	if !s.env.NativeLibraryReady() {
		s.logger.Err().Str(`url`, s.opts.url).Log(`engine library not ready, session is inert`)
		return
	}
	h, t := s.createEngine(true)
	if !h.Valid() {
		s.logger.Err().Str(`url`, s.opts.url).Log(`engine instance creation failed, session is inert`)
		return
	}
	s.mu.Lock()
	s.handle, s.token = h, t
	s.state = Initialized
	s.mu.Unlock()
	s.emitter.SetProxy(s.eng.EventProxy(h))

	preset := s.opts.preset
	if (s.autoConcurrency || s.layoutOnBackground) && preset.IsZero() {
		preset = Viewport{Width: s.opts.screenWidth, WidthMode: engine.Exactly}
	}
	s.updateViewport(h, preset)
}

// createEngine adopts the background runtime on first use when one was
// supplied, and creates a fresh instance otherwise.
func (s *Session) createEngine(adopt bool) (engine.Handle, engine.LifecycleToken) {
	if adopt && s.runtime != nil {
		if h, t, ok := s.runtime.Attach(s.facade); ok {
			return h, t
		}
		s.logger.Warning().Log(`background runtime not adoptable, creating a new engine instance`)
	}
	s.mu.Lock()
	cfg := engine.Config{
		URL:             s.url,
		ThreadStrategy:  s.strategy,
		ScreenWidth:     s.opts.screenWidth,
		ScreenHeight:    s.opts.screenHeight,
		Density:         s.opts.density,
		PresetWidth:     s.opts.preset.Width,
		PresetHeight:    s.opts.preset.Height,
		EnableSyncFlush: s.opts.syncFlush,
	}
	s.mu.Unlock()
	return s.eng.Create(cfg, s.facade)
}

// ready returns the live handle, logging why op is ignored otherwise.
func (s *Session) ready(op string) (engine.Handle, bool) {
	if s.destroyed.Load() {
		s.logger.Warning().Str(`op`, op).Log(`call after destroy ignored`)
		return 0, false
	}
	s.mu.Lock()
	h, st, url := s.handle, s.state, s.url
	s.mu.Unlock()
	if st != Initialized || !h.Valid() || !s.env.NativeLibraryReady() {
		s.logger.Warning().Str(`op`, op).Str(`url`, url).Str(`state`, st.String()).Log(`engine not ready, call ignored`)
		return 0, false
	}
	return h, true
}

// dispatch runs fn inline, or re-posts it to the UI thread when the
// strategy is synchronous or a reload is armed.
func (s *Session) dispatch(op string, fn func()) {
	s.mu.Lock()
	needUI := !s.async || s.reloadArmed
	s.mu.Unlock()
	if needUI && !s.looper.IsOnUIThread() {
		if err := s.looper.Post(fn); err != nil {
			s.logger.Err().Err(err).Str(`op`, op).Log(`ui thread post failed, call dropped`)
		}
		return
	}
	fn()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) markDirty() {
	s.mu.Lock()
	s.willContentSizeChange = true
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) publish(t session.EventType) {
	if s.store == nil || s.removed.Load() {
		return
	}
	s.store.Publish(t, s.Info())
}

// ignoredAfterDestroy logs and reports true once Destroy has been called.
func (s *Session) ignoredAfterDestroy(op string) bool {
	if !s.destroyed.Load() {
		return false
	}
	s.logger.Warning().Str(`op`, op).Log(`call after destroy ignored`)
	return true
}

// reportError delivers a resource or engine error to clients.
func (s *Session) reportError(err *lynxerr.Error) {
	if s.removed.Load() {
		return
	}
	s.mu.Lock()
	if err.TemplateURL == "" {
		err.TemplateURL = s.url
	}
	s.errorCount++
	s.lastError = err.Error()
	s.mu.Unlock()

	lvl := logiface.LevelError
	if err.Level == lynxerr.LevelWarn {
		lvl = logiface.LevelWarning
	}
	s.logger.Build(lvl).Int(`sub_code`, err.SubCode).Str(`url`, err.TemplateURL).Log(err.Message)

	s.clients.OnReceivedError(err)
	s.publish(session.EventError)
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Status() Status {
	if s.destroyed.Load() {
		return StatusDestroyed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Uninitialized || !s.handle.Valid() {
		return StatusNotReady
	}
	return StatusReady
}

func (s *Session) ThreadStrategy() ThreadStrategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// IsAsyncRender reports whether render calls may run off the UI thread.
func (s *Session) IsAsyncRender() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.async
}

func (s *Session) LayoutOnBackgroundThread() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layoutOnBackground
}

func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *Session) PageConfig() engine.PageConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageConfig
}

func (s *Session) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

func (s *Session) Emitter() *event.Emitter { return s.emitter }

func (s *Session) AddClient(c Client)    { s.clients.Add(c) }
func (s *Session) RemoveClient(c Client) { s.clients.Remove(c) }

// VsyncAlignedFlushEnabled reports whether measure ticks force a flush. The
// process switches, the session opt-in and the page config must all agree.
func (s *Session) VsyncAlignedFlushEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vsyncGateLocked()
}

func (s *Session) vsyncGateLocked() bool {
	return s.vsyncAllowed && s.opts.vsyncAlignedFlush && s.pageConfig.VsyncAlignedFlush
}

// Info returns a snapshot for the session store.
func (s *Session) Info() *session.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := &session.Info{
		ID:                 s.id,
		URL:                s.url,
		State:              s.state,
		ThreadStrategy:     s.strategy,
		AutoConcurrency:    s.autoConcurrency,
		LayoutOnBackground: s.layoutOnBackground,
		Viewport:           s.viewport,
		Handle:             uint64(s.handle),
		Loaded:             s.loaded,
		PageVersion:        s.pageConfig.Version,
		VsyncAlignedFlush:  s.vsyncGateLocked(),
		ReloadCount:        s.reloadCount,
		DestroyAttempts:    s.destroyAttempts,
		ErrorCount:         s.errorCount,
		LastError:          s.lastError,
		CreatedAt:          s.createdAt,
		LastActivityAt:     s.lastActivity,
		LoadedAt:           s.loadedAt,
		DestroyedAt:        s.destroyedAt,
	}
	return info.Clone()
}

// AttachEngineToUIThread moves the engine to the UI thread paired strategy
// (MostOnTASM to AllOnUI, MultiThread to PartOnLayout). It must be called on
// the UI thread.
func (s *Session) AttachEngineToUIThread() error {
	return s.swapStrategy(`attach_engine_to_ui_thread`, true)
}

// DetachEngineFromUIThread is the inverse of AttachEngineToUIThread.
func (s *Session) DetachEngineFromUIThread() error {
	return s.swapStrategy(`detach_engine_from_ui_thread`, false)
}

func (s *Session) swapStrategy(op string, attach bool) error {
	h, ok := s.ready(op)
	if !ok {
		return nil
	}
	if !s.looper.IsOnUIThread() {
		s.logger.Err().Str(`op`, op).Str(`url`, s.URL()).Log(`must be called on the ui thread, rejected`)
		return ErrNotOnUIThread
	}
	s.mu.Lock()
	next, ok := pairedStrategy(s.strategy, attach)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	prev := s.strategy
	s.strategy = next
	s.async = next.IsAsync()
	s.mu.Unlock()

	if attach {
		s.eng.AttachToUIThread(h)
	} else {
		s.eng.DetachFromUIThread(h)
	}
	s.logger.Info().Str(`from`, prev.String()).Str(`to`, next.String()).Log(`thread strategy updated`)
	s.publish(session.EventUpdated)
	return nil
}

func (s *Session) SetEnableUIFlush(enable bool) {
	h, ok := s.ready(`set_enable_ui_flush`)
	if !ok {
		return
	}
	s.setEnableUIFlush(h, enable)
}

func (s *Session) setEnableUIFlush(h engine.Handle, enable bool) {
	s.mu.Lock()
	if s.uiFlush == enable {
		s.mu.Unlock()
		return
	}
	s.uiFlush = enable
	s.mu.Unlock()
	s.eng.SetEnableUIFlush(h, enable)
}

// ProcessRender flushes a page loaded with UI flush disabled.
func (s *Session) ProcessRender() {
	h, ok := s.ready(`process_render`)
	if !ok {
		return
	}
	s.mu.Lock()
	enabled := s.uiFlush
	s.mu.Unlock()
	if enabled {
		return
	}
	s.setEnableUIFlush(h, true)
	s.eng.ProcessRender(h)
}

func (s *Session) StartRuntime() {
	if h, ok := s.ready(`start_runtime`); ok {
		s.eng.StartRuntime(h)
	}
}

// SyncFlush waits for pending async work to be flushed. It must be called
// on the UI thread.
func (s *Session) SyncFlush() {
	h, ok := s.ready(`sync_flush`)
	if !ok {
		return
	}
	if !s.looper.IsOnUIThread() {
		s.logger.Err().Str(`op`, `sync_flush`).Log(`must be called on the ui thread, rejected`)
		return
	}
	s.syncFlush(h)
}

func (s *Session) syncFlush(h engine.Handle) {
	s.mu.Lock()
	async := s.async
	s.mu.Unlock()
	if async && !s.destroyed.Load() {
		s.eng.Flush(h)
	}
}

func (s *Session) SetSessionStorageItem(key string, data *templatedata.TemplateData) {
	if key == "" || data == nil {
		s.logger.Warning().Str(`key`, key).Log(`session storage write with empty key or data ignored`)
		return
	}
	if h, ok := s.ready(`set_session_storage_item`); ok {
		s.eng.SetSessionStorageItem(h, key, data)
	}
}

func (s *Session) GetSessionStorageItem(key string) (*templatedata.TemplateData, bool) {
	if key == "" {
		return nil, false
	}
	h, ok := s.ready(`get_session_storage_item`)
	if !ok {
		return nil, false
	}
	return s.eng.GetSessionStorageItem(h, key)
}

// EvaluateScript runs source against the live instance when the engine
// supports it.
func (s *Session) EvaluateScript(url, source string) (any, error) {
	h, ok := s.ready(`evaluate_script`)
	if !ok {
		return nil, lynxerr.New(lynxerr.SubRuntimeNotStarted, "engine not ready")
	}
	ev, ok := s.eng.(engine.ScriptEvaluator)
	if !ok {
		return nil, lynxerr.New(lynxerr.SubRuntimeNotStarted, "engine cannot evaluate script")
	}
	return ev.EvaluateScript(h, url, source)
}

// SendGlobalEvent delivers a named event to the page script.
func (s *Session) SendGlobalEvent(name string, params []any) error {
	h, ok := s.ready(`send_global_event`)
	if !ok {
		return lynxerr.New(lynxerr.SubRuntimeNotStarted, "engine not ready")
	}
	ev, ok := s.eng.(engine.ScriptEvaluator)
	if !ok {
		return lynxerr.New(lynxerr.SubRuntimeNotStarted, "engine cannot send global events")
	}
	return ev.SendGlobalEvent(h, name, params)
}
