// Package enginetest provides a recording engine for tests.
package enginetest

import (
	"sync"

	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/event"
	"github.com/lynxrender/backend/internal/templatedata"
)

// Call is one recorded engine invocation.
type Call struct {
	Op     string
	Handle engine.Handle
	Args   []any
}

const (
	OpCreate            = "create"
	OpDestroy           = "destroy"
	OpTryTerminate      = "try_terminate"
	OpDestroyLifecycle  = "destroy_lifecycle"
	OpUpdateViewport    = "update_viewport"
	OpSyncFetchLayout   = "sync_fetch_layout"
	OpForceRelayout     = "force_relayout"
	OpFlush             = "flush"
	OpLoadTemplate      = "load_template"
	OpLoadBundle        = "load_bundle"
	OpUpdateData        = "update_data"
	OpResetData         = "reset_data"
	OpReloadTemplate    = "reload_template"
	OpUpdateGlobalProps = "update_global_props"
	OpUpdateMetaData    = "update_meta_data"
	OpSetEnableUIFlush  = "set_enable_ui_flush"
	OpProcessRender     = "process_render"
	OpStartRuntime      = "start_runtime"
	OpAttach            = "attach"
	OpDetach            = "detach"
	OpSetStorage        = "set_session_storage"
	OpGetStorage        = "get_session_storage"
	OpEvaluateScript    = "evaluate_script"
	OpGlobalEvent       = "global_event"
)

// Engine records every call. The zero value is not usable; use New.
type Engine struct {
	mu        sync.Mutex
	calls     []Call
	next      uint64
	failNext  int
	failAll   bool
	busy      int
	busyLeft  map[engine.LifecycleToken]int
	callbacks map[engine.Handle]engine.Callbacks
	configs   map[engine.Handle]engine.Config
	proxies   map[engine.Handle]*Proxy
	storage   map[string]*templatedata.TemplateData
	hooks     map[string]func(Call)
}

func New() *Engine {
	return &Engine{
		busyLeft:  make(map[engine.LifecycleToken]int),
		callbacks: make(map[engine.Handle]engine.Callbacks),
		configs:   make(map[engine.Handle]engine.Config),
		proxies:   make(map[engine.Handle]*Proxy),
		storage:   make(map[string]*templatedata.TemplateData),
		hooks:     make(map[string]func(Call)),
	}
}

// FailCreate makes every Create return zero handles while fail is true.
func (e *Engine) FailCreate(fail bool) {
	e.mu.Lock()
	e.failAll = fail
	e.mu.Unlock()
}

// FailNextCreates makes the next n Create calls fail.
func (e *Engine) FailNextCreates(n int) {
	e.mu.Lock()
	e.failNext = n
	e.mu.Unlock()
}

// SetTerminateBusy makes TryTerminateLifecycle return false n times for each
// token created afterwards.
func (e *Engine) SetTerminateBusy(n int) {
	e.mu.Lock()
	e.busy = n
	e.mu.Unlock()
}

// OnCall runs fn after every recorded call to op.
func (e *Engine) OnCall(op string, fn func(Call)) {
	e.mu.Lock()
	e.hooks[op] = fn
	e.mu.Unlock()
}

func (e *Engine) record(op string, h engine.Handle, args ...any) {
	c := Call{Op: op, Handle: h, Args: args}
	e.mu.Lock()
	e.calls = append(e.calls, c)
	hook := e.hooks[op]
	e.mu.Unlock()
	if hook != nil {
		hook(c)
	}
}

func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Ops returns the recorded operation names in order.
func (e *Engine) Ops() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ops := make([]string, len(e.calls))
	for i, c := range e.calls {
		ops[i] = c.Op
	}
	return ops
}

func (e *Engine) Count(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// CallsFor returns the recorded calls to op.
func (e *Engine) CallsFor(op string) []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Call
	for _, c := range e.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) Reset() {
	e.mu.Lock()
	e.calls = nil
	e.mu.Unlock()
}

// Callbacks returns the callbacks registered with h.
func (e *Engine) Callbacks(h engine.Handle) engine.Callbacks {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callbacks[h]
}

func (e *Engine) Config(h engine.Handle) engine.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configs[h]
}

// Proxy returns the recording event proxy for h.
func (e *Engine) Proxy(h engine.Handle) *Proxy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proxies[h]
}

func (e *Engine) Create(cfg engine.Config, cb engine.Callbacks) (engine.Handle, engine.LifecycleToken) {
	e.mu.Lock()
	fail := e.failAll || e.failNext > 0
	if e.failNext > 0 {
		e.failNext--
	}
	var h engine.Handle
	var t engine.LifecycleToken
	if !fail {
		e.next++
		h = engine.Handle(e.next)
		t = engine.LifecycleToken(e.next + 1000)
		e.busyLeft[t] = e.busy
		e.callbacks[h] = cb
		e.configs[h] = cfg
		e.proxies[h] = &Proxy{}
	}
	e.mu.Unlock()
	e.record(OpCreate, h, cfg.URL, cfg.ThreadStrategy)
	return h, t
}

func (e *Engine) Destroy(h engine.Handle) { e.record(OpDestroy, h) }

func (e *Engine) TryTerminateLifecycle(t engine.LifecycleToken) bool {
	e.mu.Lock()
	left := e.busyLeft[t]
	ok := left <= 0
	if !ok {
		e.busyLeft[t] = left - 1
	}
	e.mu.Unlock()
	e.record(OpTryTerminate, 0, t, ok)
	return ok
}

func (e *Engine) DestroyLifecycle(t engine.LifecycleToken) {
	e.record(OpDestroyLifecycle, 0, t)
}

func (e *Engine) UpdateViewport(h engine.Handle, width int, widthMode engine.MeasureMode, height int, heightMode engine.MeasureMode, density float64) {
	e.record(OpUpdateViewport, h, width, widthMode, height, heightMode, density)
}

func (e *Engine) SyncFetchLayoutResult(h engine.Handle) { e.record(OpSyncFetchLayout, h) }

func (e *Engine) ForceRelayout(h engine.Handle, width int, widthMode engine.MeasureMode, height int, heightMode engine.MeasureMode) {
	e.record(OpForceRelayout, h, width, widthMode, height, heightMode)
}

func (e *Engine) Flush(h engine.Handle) { e.record(OpFlush, h) }

func (e *Engine) LoadTemplate(h engine.Handle, tpl []byte, data *templatedata.TemplateData, url string) {
	e.record(OpLoadTemplate, h, string(tpl), data, url)
}

func (e *Engine) LoadBundle(h engine.Handle, b engine.Bundle, data *templatedata.TemplateData, url string) {
	e.record(OpLoadBundle, h, b, data, url)
}

func (e *Engine) UpdateData(h engine.Handle, data *templatedata.TemplateData) {
	e.record(OpUpdateData, h, data)
}

func (e *Engine) ResetData(h engine.Handle, data *templatedata.TemplateData) {
	e.record(OpResetData, h, data)
}

func (e *Engine) ReloadTemplate(h engine.Handle, data, globalProps *templatedata.TemplateData) {
	e.record(OpReloadTemplate, h, data, globalProps)
}

func (e *Engine) UpdateGlobalProps(h engine.Handle, props *templatedata.TemplateData) {
	e.record(OpUpdateGlobalProps, h, props)
}

func (e *Engine) UpdateMetaData(h engine.Handle, data, globalProps *templatedata.TemplateData) {
	e.record(OpUpdateMetaData, h, data, globalProps)
}

func (e *Engine) SetEnableUIFlush(h engine.Handle, enable bool) {
	e.record(OpSetEnableUIFlush, h, enable)
}

func (e *Engine) ProcessRender(h engine.Handle)      { e.record(OpProcessRender, h) }
func (e *Engine) StartRuntime(h engine.Handle)       { e.record(OpStartRuntime, h) }
func (e *Engine) AttachToUIThread(h engine.Handle)   { e.record(OpAttach, h) }
func (e *Engine) DetachFromUIThread(h engine.Handle) { e.record(OpDetach, h) }

func (e *Engine) SetSessionStorageItem(h engine.Handle, key string, data *templatedata.TemplateData) {
	e.mu.Lock()
	e.storage[key] = data
	e.mu.Unlock()
	e.record(OpSetStorage, h, key)
}

func (e *Engine) GetSessionStorageItem(h engine.Handle, key string) (*templatedata.TemplateData, bool) {
	e.mu.Lock()
	d, ok := e.storage[key]
	e.mu.Unlock()
	e.record(OpGetStorage, h, key)
	return d, ok
}

func (e *Engine) EventProxy(h engine.Handle) event.Proxy {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.proxies[h]
	if !ok {
		return nil
	}
	return p
}

func (e *Engine) EvaluateScript(h engine.Handle, url, source string) (any, error) {
	e.record(OpEvaluateScript, h, url, source)
	return source, nil
}

func (e *Engine) SendGlobalEvent(h engine.Handle, name string, params []any) error {
	e.record(OpGlobalEvent, h, name, params)
	return nil
}

var (
	_ engine.Engine          = (*Engine)(nil)
	_ engine.ScriptEvaluator = (*Engine)(nil)
)

// Proxy records forwarded events by name.
type Proxy struct {
	mu     sync.Mutex
	events []string
}

func (p *Proxy) add(s string) {
	p.mu.Lock()
	p.events = append(p.events, s)
	p.mu.Unlock()
}

func (p *Proxy) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *Proxy) SendTouchEvent(e *event.TouchEvent)      { p.add("touch:" + e.Name) }
func (p *Proxy) SendMultiTouchEvent(e *event.TouchEvent) { p.add("multi_touch:" + e.Name) }
func (p *Proxy) SendCustomEvent(e *event.CustomEvent)    { p.add("custom:" + e.Name) }
func (p *Proxy) OnPseudoStatusChanged(tag, pre, cur int) { p.add("pseudo") }
func (p *Proxy) SendGestureEvent(name string, tag, gestureID int, params map[string]any) {
	p.add("gesture:" + name)
}
