// Package bgruntime provides a script runtime that can be started before any
// render session exists and later handed to one.
package bgruntime

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/logging"
	"github.com/lynxrender/backend/internal/lynxerr"
	"github.com/lynxrender/backend/internal/templatedata"
)

type State int

const (
	StateStart State = iota
	StateAttached
	StateDestroyed
	// StateInvalid is entered when the engine could not create the runtime.
	StateInvalid
)

var stateNames = map[State]string{
	StateStart:     "start",
	StateAttached:  "attached",
	StateDestroyed: "destroyed",
	StateInvalid:   "invalid",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

var (
	ErrNotStarted  = errors.New("bgruntime: runtime is not in start state")
	ErrNoEvaluator = errors.New("bgruntime: engine cannot evaluate script")
)

// Client receives errors raised by the runtime before it is attached.
type Client interface {
	OnReceivedError(err *lynxerr.Error)
}

// Runtime owns an engine instance until a session adopts it.
type Runtime struct {
	eng    engine.Engine
	logger *logging.Logger
	relay  *relay

	mu            sync.Mutex
	state         State
	handle        engine.Handle
	token         engine.LifecycleToken
	lastScriptURL string
	clients       []Client
}

// New creates the engine instance and starts its script runtime. A runtime
// whose creation failed is returned in StateInvalid.
func New(eng engine.Engine, cfg engine.Config, logger *logging.Logger) *Runtime {
	r := &Runtime{
		eng:    eng,
		logger: logging.Named(logger, `bgruntime`),
	}
	r.relay = &relay{owner: r}
	h, t := eng.Create(cfg, r.relay)
	if !h.Valid() {
		r.state = StateInvalid
		r.logger.Err().Str(`url`, cfg.URL).Log(`background runtime created before engine was ready`)
		return r
	}
	r.handle, r.token = h, t
	eng.StartRuntime(h)
	return r
}

func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runtime) AddClient(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.clients {
		if x == c {
			return
		}
	}
	r.clients = append(r.clients, c)
}

func (r *Runtime) RemoveClient(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, x := range r.clients {
		if x == c {
			r.clients = append(r.clients[:i], r.clients[i+1:]...)
			return
		}
	}
}

// live returns the handle if the runtime is still usable standalone.
func (r *Runtime) live(op string) (engine.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStart {
		r.logger.Warning().Str(`op`, op).Str(`state`, r.state.String()).Log(`runtime call ignored`)
		return 0, false
	}
	return r.handle, true
}

// EvaluateJavaScript runs source in the runtime. Valid until the runtime is
// attached or destroyed.
func (r *Runtime) EvaluateJavaScript(url, source string) (any, error) {
	h, ok := r.live(`evaluate_javascript`)
	if !ok {
		return nil, ErrNotStarted
	}
	ev, ok := r.eng.(engine.ScriptEvaluator)
	if !ok {
		return nil, ErrNoEvaluator
	}
	r.mu.Lock()
	r.lastScriptURL = url
	r.mu.Unlock()
	return ev.EvaluateScript(h, url, source)
}

func (r *Runtime) LastScriptURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastScriptURL
}

func (r *Runtime) SendGlobalEvent(name string, params []any) error {
	h, ok := r.live(`send_global_event`)
	if !ok {
		return ErrNotStarted
	}
	ev, ok := r.eng.(engine.ScriptEvaluator)
	if !ok {
		return ErrNoEvaluator
	}
	return ev.SendGlobalEvent(h, name, params)
}

func (r *Runtime) SetSessionStorageItem(key string, data *templatedata.TemplateData) {
	if key == "" || data == nil {
		return
	}
	if h, ok := r.live(`set_session_storage`); ok {
		r.eng.SetSessionStorageItem(h, key, data)
	}
}

func (r *Runtime) GetSessionStorageItem(key string) (*templatedata.TemplateData, bool) {
	if key == "" {
		return nil, false
	}
	h, ok := r.live(`get_session_storage`)
	if !ok {
		return nil, false
	}
	return r.eng.GetSessionStorageItem(h, key)
}

// Destroy releases a runtime that was never attached. Attached runtimes are
// released by the session that adopted them.
func (r *Runtime) Destroy() {
	r.mu.Lock()
	if r.state != StateStart {
		state := r.state
		r.mu.Unlock()
		r.logger.Err().Str(`state`, state.String()).Log(`destroy on invalid state ignored`)
		return
	}
	r.state = StateDestroyed
	h, t := r.handle, r.token
	r.handle, r.token = 0, 0
	r.mu.Unlock()

	r.eng.Destroy(h)
	if !r.eng.TryTerminateLifecycle(t) {
		r.logger.Warning().Log(`runtime lifecycle busy at destroy, token left to the engine`)
		return
	}
	r.eng.DestroyLifecycle(t)
}

// Attach hands the engine instance to a session. Callbacks from the engine
// are redirected to cb. It fails unless the runtime is in StateStart.
func (r *Runtime) Attach(cb engine.Callbacks) (engine.Handle, engine.LifecycleToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStart {
		r.logger.Err().Str(`state`, r.state.String()).Log(`session built on a runtime that is not startable`)
		return 0, 0, false
	}
	r.state = StateAttached
	r.relay.set(cb)
	h, t := r.handle, r.token
	r.handle, r.token = 0, 0
	return h, t, true
}

func (r *Runtime) reportError(err *lynxerr.Error) {
	r.mu.Lock()
	clients := append([]Client(nil), r.clients...)
	r.mu.Unlock()
	for _, c := range clients {
		c.OnReceivedError(err)
	}
}

// relay forwards engine callbacks to the adopting session, or errors to the
// runtime's own clients before adoption.
type relay struct {
	owner *Runtime

	mu     sync.RWMutex
	target engine.Callbacks
}

func (r *relay) set(cb engine.Callbacks) {
	r.mu.Lock()
	r.target = cb
	r.mu.Unlock()
}

func (r *relay) get() engine.Callbacks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.target
}

func (r *relay) OnLoaded(url string) {
	if t := r.get(); t != nil {
		t.OnLoaded(url)
	}
}

func (r *relay) OnRuntimeReady() {
	if t := r.get(); t != nil {
		t.OnRuntimeReady()
	}
}

func (r *relay) OnDataUpdated() {
	if t := r.get(); t != nil {
		t.OnDataUpdated()
	}
}

func (r *relay) OnPageChanged(isFirstScreen bool) {
	if t := r.get(); t != nil {
		t.OnPageChanged(isFirstScreen)
	}
}

func (r *relay) OnErrorOccurred(err *lynxerr.Error) {
	if t := r.get(); t != nil {
		t.OnErrorOccurred(err)
		return
	}
	r.owner.reportError(err)
}

func (r *relay) OnPageConfigDecoded(cfg engine.PageConfig) {
	if t := r.get(); t != nil {
		t.OnPageConfigDecoded(cfg)
	}
}
