// Package sim is an in-process engine that decodes YAML templates, runs
// their scripts in goja and treats the viewport as the layout result. It
// backs the render host binary and integration tests.
package sim

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/env"
	"github.com/lynxrender/backend/internal/event"
	"github.com/lynxrender/backend/internal/logging"
	"github.com/lynxrender/backend/internal/lynxerr"
	"github.com/lynxrender/backend/internal/templatedata"
)

var ErrUnknownHandle = errors.New("sim: unknown engine handle")

type Engine struct {
	env    *env.Env
	logger *logging.Logger

	nextID atomic.Uint64

	// terminateBusy is the number of TryTerminateLifecycle calls that
	// report busy for each newly created lifecycle token.
	terminateBusy atomic.Int64

	mu         sync.Mutex
	instances  map[engine.Handle]*instance
	lifecycles map[engine.LifecycleToken]*lifecycle
}

type lifecycle struct {
	busy     int
	attempts int
}

// Layout is the last computed layout of an instance.
type Layout struct {
	Width      int
	Height     int
	WidthMode  engine.MeasureMode
	HeightMode engine.MeasureMode
}

// Stats counts engine calls made against one instance.
type Stats struct {
	URL             string
	Loaded          bool
	RuntimeStarted  bool
	Attached        bool
	UIFlushEnabled  bool
	ViewportUpdates int
	LayoutFetches   int
	Relayouts       int
	Flushes         int
	DataUpdates     int
	Renders         int
	Events          int
	Layout          Layout
}

func New(e *env.Env, logger *logging.Logger) *Engine {
	if e == nil {
		e = env.New()
	}
	return &Engine{
		env:        e,
		logger:     logger,
		instances:  make(map[engine.Handle]*instance),
		lifecycles: make(map[engine.LifecycleToken]*lifecycle),
	}
}

// SetTerminateBusy makes TryTerminateLifecycle report busy n times for
// lifecycles created afterwards.
func (e *Engine) SetTerminateBusy(n int) {
	e.terminateBusy.Store(int64(n))
}

func (e *Engine) Create(cfg engine.Config, cb engine.Callbacks) (engine.Handle, engine.LifecycleToken) {
	if !e.env.NativeLibraryReady() {
		e.logger.Err().Str(`url`, cfg.URL).Log(`engine create failed: native library not ready`)
		return 0, 0
	}
	id := e.nextID.Add(1)
	h, t := engine.Handle(id), engine.LifecycleToken(id)

	inst := &instance{
		handle:  h,
		engine:  e,
		cfg:     cfg,
		cb:      cb,
		data:    make(map[string]any),
		globals: make(map[string]any),
		storage: make(map[string]*templatedata.TemplateData),
		uiFlush: true,
		layout: Layout{
			Width:  cfg.PresetWidth,
			Height: cfg.PresetHeight,
		},
	}

	e.mu.Lock()
	e.instances[h] = inst
	e.lifecycles[t] = &lifecycle{busy: int(e.terminateBusy.Load())}
	e.mu.Unlock()

	e.logger.Debug().Str(`url`, cfg.URL).Int(`handle`, int(h)).Str(`strategy`, cfg.ThreadStrategy.String()).Log(`engine created`)
	return h, t
}

func (e *Engine) lookup(h engine.Handle) *instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instances[h]
}

func (e *Engine) Destroy(h engine.Handle) {
	e.mu.Lock()
	inst := e.instances[h]
	delete(e.instances, h)
	e.mu.Unlock()
	if inst == nil {
		return
	}
	inst.destroy()
}

func (e *Engine) TryTerminateLifecycle(t engine.LifecycleToken) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	lc := e.lifecycles[t]
	if lc == nil {
		return true
	}
	lc.attempts++
	if lc.busy > 0 {
		lc.busy--
		return false
	}
	return true
}

func (e *Engine) DestroyLifecycle(t engine.LifecycleToken) {
	e.mu.Lock()
	delete(e.lifecycles, t)
	e.mu.Unlock()
}

// Live reports the number of instances and lifecycle tokens not yet
// destroyed.
func (e *Engine) Live() (instances, lifecycles int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances), len(e.lifecycles)
}

// Stats returns call counters for h.
func (e *Engine) Stats(h engine.Handle) (Stats, bool) {
	inst := e.lookup(h)
	if inst == nil {
		return Stats{}, false
	}
	return inst.stats(), true
}

// Data returns a copy of the page data held by h.
func (e *Engine) Data(h engine.Handle) (map[string]any, bool) {
	inst := e.lookup(h)
	if inst == nil {
		return nil, false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return templatedata.FromMap(inst.data).ToMap(), true
}

// GlobalProps returns a copy of the global props held by h.
func (e *Engine) GlobalProps(h engine.Handle) (map[string]any, bool) {
	inst := e.lookup(h)
	if inst == nil {
		return nil, false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return templatedata.FromMap(inst.globals).ToMap(), true
}

func (e *Engine) UpdateViewport(h engine.Handle, width int, widthMode engine.MeasureMode, height int, heightMode engine.MeasureMode, density float64) {
	if inst := e.lookup(h); inst != nil {
		inst.mu.Lock()
		inst.counters.ViewportUpdates++
		inst.layout = Layout{Width: width, Height: height, WidthMode: widthMode, HeightMode: heightMode}
		inst.density = density
		inst.mu.Unlock()
	}
}

func (e *Engine) SyncFetchLayoutResult(h engine.Handle) {
	if inst := e.lookup(h); inst != nil {
		inst.mu.Lock()
		inst.counters.LayoutFetches++
		inst.mu.Unlock()
	}
}

func (e *Engine) ForceRelayout(h engine.Handle, width int, widthMode engine.MeasureMode, height int, heightMode engine.MeasureMode) {
	if inst := e.lookup(h); inst != nil {
		inst.mu.Lock()
		inst.counters.Relayouts++
		inst.layout = Layout{Width: width, Height: height, WidthMode: widthMode, HeightMode: heightMode}
		inst.mu.Unlock()
	}
}

func (e *Engine) Flush(h engine.Handle) {
	if inst := e.lookup(h); inst != nil {
		inst.mu.Lock()
		inst.counters.Flushes++
		inst.mu.Unlock()
	}
}

func (e *Engine) LoadTemplate(h engine.Handle, tpl []byte, data *templatedata.TemplateData, url string) {
	inst := e.lookup(h)
	if inst == nil {
		return
	}
	b, err := Decode(tpl, url)
	if err != nil {
		sub := lynxerr.SubTemplateDecode
		if errors.Is(err, ErrEmptyTemplate) {
			sub = lynxerr.SubTemplateEmpty
		}
		inst.fail(lynxerr.Wrap(sub, err, "template decode failed").WithURL(url))
		return
	}
	inst.load(b, data, url)
}

func (e *Engine) LoadBundle(h engine.Handle, b engine.Bundle, data *templatedata.TemplateData, url string) {
	inst := e.lookup(h)
	if inst == nil {
		return
	}
	sb, ok := b.(*Bundle)
	if !ok || !sb.Valid() {
		inst.fail(lynxerr.Newf(lynxerr.SubBundleInvalid, "bundle %T is not a decoded template", b).WithURL(url))
		return
	}
	inst.load(sb, data, url)
}

func (e *Engine) UpdateData(h engine.Handle, data *templatedata.TemplateData) {
	if inst := e.lookup(h); inst != nil {
		inst.updateData(data, false)
	}
}

func (e *Engine) ResetData(h engine.Handle, data *templatedata.TemplateData) {
	if inst := e.lookup(h); inst != nil {
		inst.updateData(data, true)
	}
}

func (e *Engine) ReloadTemplate(h engine.Handle, data, globalProps *templatedata.TemplateData) {
	if inst := e.lookup(h); inst != nil {
		inst.reload(data, globalProps)
	}
}

func (e *Engine) UpdateGlobalProps(h engine.Handle, props *templatedata.TemplateData) {
	if inst := e.lookup(h); inst != nil {
		inst.updateGlobals(props)
	}
}

func (e *Engine) UpdateMetaData(h engine.Handle, data, globalProps *templatedata.TemplateData) {
	inst := e.lookup(h)
	if inst == nil {
		return
	}
	if globalProps != nil {
		inst.updateGlobals(globalProps)
	}
	if data != nil {
		inst.updateData(data, false)
	}
}

func (e *Engine) SetEnableUIFlush(h engine.Handle, enable bool) {
	if inst := e.lookup(h); inst != nil {
		inst.mu.Lock()
		inst.uiFlush = enable
		inst.mu.Unlock()
	}
}

func (e *Engine) ProcessRender(h engine.Handle) {
	if inst := e.lookup(h); inst != nil {
		inst.mu.Lock()
		inst.counters.Renders++
		inst.mu.Unlock()
	}
}

func (e *Engine) StartRuntime(h engine.Handle) {
	if inst := e.lookup(h); inst != nil {
		inst.startRuntime()
	}
}

func (e *Engine) AttachToUIThread(h engine.Handle) {
	if inst := e.lookup(h); inst != nil {
		inst.mu.Lock()
		inst.attached = true
		inst.mu.Unlock()
	}
}

func (e *Engine) DetachFromUIThread(h engine.Handle) {
	if inst := e.lookup(h); inst != nil {
		inst.mu.Lock()
		inst.attached = false
		inst.mu.Unlock()
	}
}

func (e *Engine) SetSessionStorageItem(h engine.Handle, key string, data *templatedata.TemplateData) {
	if inst := e.lookup(h); inst != nil {
		inst.mu.Lock()
		inst.storage[key] = data.DeepClone()
		inst.mu.Unlock()
	}
}

func (e *Engine) GetSessionStorageItem(h engine.Handle, key string) (*templatedata.TemplateData, bool) {
	inst := e.lookup(h)
	if inst == nil {
		return nil, false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	d, ok := inst.storage[key]
	if !ok {
		return nil, false
	}
	return d.DeepClone(), true
}

func (e *Engine) EventProxy(h engine.Handle) event.Proxy {
	inst := e.lookup(h)
	if inst == nil {
		return nil
	}
	return &eventProxy{inst: inst}
}

// EvaluateScript runs source in h's script runtime, creating one if the
// instance has not loaded a template.
func (e *Engine) EvaluateScript(h engine.Handle, url, source string) (any, error) {
	inst := e.lookup(h)
	if inst == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return inst.evaluate(url, source)
}

// SendGlobalEvent calls the script's onGlobalEvent(name, params) if defined.
func (e *Engine) SendGlobalEvent(h engine.Handle, name string, params []any) error {
	inst := e.lookup(h)
	if inst == nil {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return inst.globalEvent(name, params)
}

var (
	_ engine.Engine          = (*Engine)(nil)
	_ engine.ScriptEvaluator = (*Engine)(nil)
)

type instance struct {
	handle engine.Handle
	engine *Engine
	cfg    engine.Config
	cb     engine.Callbacks

	mu       sync.Mutex
	bundle   *Bundle
	script   *scriptRuntime
	data     map[string]any
	globals  map[string]any
	storage  map[string]*templatedata.TemplateData
	layout   Layout
	density  float64
	uiFlush  bool
	attached bool
	loaded   bool
	started  bool
	url      string
	counters Stats
}

func (i *instance) stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := i.counters
	s.URL = i.url
	s.Loaded = i.loaded
	s.RuntimeStarted = i.started
	s.Attached = i.attached
	s.UIFlushEnabled = i.uiFlush
	s.Layout = i.layout
	return s
}

func (i *instance) fail(err *lynxerr.Error) {
	if i.cb != nil {
		i.cb.OnErrorOccurred(err)
	}
}

// runtimeLocked returns the script runtime, creating it on first use.
func (i *instance) runtimeLocked() *scriptRuntime {
	if i.script == nil {
		i.script = newScriptRuntime(i.engine.env)
	}
	return i.script
}

func (i *instance) load(b *Bundle, data *templatedata.TemplateData, url string) {
	var errs []*lynxerr.Error

	for _, tag := range b.Elements {
		if _, ok := i.engine.env.Behavior(tag); !ok {
			errs = append(errs, lynxerr.Newf(lynxerr.SubBundleInvalid, "no behavior registered for element %q", tag).Warn().WithURL(url))
		}
	}

	i.mu.Lock()
	i.bundle = b
	i.url = url
	i.data = templatedata.FromMap(b.Data).ToMap()
	rt := i.runtimeLocked()
	if b.Script != "" {
		if _, err := rt.run(url, b.Script); err != nil {
			errs = append(errs, lynxerr.Wrap(lynxerr.SubScriptException, err, "template script failed").WithOrigin(lynxerr.OriginScript).WithURL(url))
		}
	}
	if err := i.mergeLocked(data); err != nil {
		errs = append(errs, err.WithURL(url))
	}
	i.loaded = true
	started := i.started
	i.mu.Unlock()

	if i.cb == nil {
		return
	}
	i.cb.OnPageConfigDecoded(b.PageConfig)
	for _, err := range errs {
		i.cb.OnErrorOccurred(err)
	}
	i.cb.OnLoaded(url)
	if started {
		i.cb.OnRuntimeReady()
	}
	i.cb.OnPageChanged(true)
}

// mergeLocked applies data, running its processor first if it names one.
func (i *instance) mergeLocked(data *templatedata.TemplateData) *lynxerr.Error {
	if data == nil || (data.IsEmpty() && data.ProcessorName() == "") {
		return nil
	}
	data.MarkConsumed()
	values := data.ToMap()
	if name := data.ProcessorName(); name != "" {
		processed, err := i.runtimeLocked().process(name, values)
		if err != nil {
			sub := lynxerr.SubScriptException
			if errors.Is(err, errProcessorMissing) {
				sub = lynxerr.SubProcessorMissing
			}
			return lynxerr.Wrap(sub, err, "data processor failed").AddContextInfo("processor", name)
		}
		values = processed
	}
	maps.Copy(i.data, values)
	return nil
}

func (i *instance) updateData(data *templatedata.TemplateData, reset bool) {
	i.mu.Lock()
	if reset {
		i.data = make(map[string]any)
		if i.bundle != nil {
			i.data = templatedata.FromMap(i.bundle.Data).ToMap()
		}
	}
	err := i.mergeLocked(data)
	i.counters.DataUpdates++
	loaded := i.loaded
	url := i.url
	i.mu.Unlock()

	if i.cb == nil {
		return
	}
	if err != nil {
		i.cb.OnErrorOccurred(err.WithURL(url))
		return
	}
	i.cb.OnDataUpdated()
	if loaded {
		i.cb.OnPageChanged(false)
	}
}

func (i *instance) reload(data, globalProps *templatedata.TemplateData) {
	i.mu.Lock()
	if globalProps != nil {
		i.globals = globalProps.ToMap()
	}
	i.data = make(map[string]any)
	if i.bundle != nil {
		i.data = templatedata.FromMap(i.bundle.Data).ToMap()
	}
	err := i.mergeLocked(data)
	loaded := i.loaded
	url := i.url
	i.mu.Unlock()

	if i.cb == nil {
		return
	}
	if err != nil {
		i.cb.OnErrorOccurred(err.WithURL(url))
	}
	if loaded {
		i.cb.OnDataUpdated()
		i.cb.OnPageChanged(true)
	}
}

func (i *instance) updateGlobals(props *templatedata.TemplateData) {
	if props == nil {
		return
	}
	i.mu.Lock()
	maps.Copy(i.globals, props.ToMap())
	var err error
	if i.script != nil {
		_, _, err = i.script.callGlobal("onGlobalPropsChanged", templatedata.FromMap(i.globals).ToMap())
	}
	url := i.url
	i.mu.Unlock()

	if err != nil && i.cb != nil {
		i.cb.OnErrorOccurred(lynxerr.Wrap(lynxerr.SubScriptException, err, "onGlobalPropsChanged failed").WithOrigin(lynxerr.OriginScript).WithURL(url))
	}
}

func (i *instance) startRuntime() {
	i.mu.Lock()
	already := i.started
	i.started = true
	loaded := i.loaded
	i.mu.Unlock()

	if !already && loaded && i.cb != nil {
		i.cb.OnRuntimeReady()
	}
}

func (i *instance) evaluate(url, source string) (any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.runtimeLocked().run(url, source)
}

func (i *instance) globalEvent(name string, params []any) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, _, err := i.runtimeLocked().callGlobal("onGlobalEvent", name, params)
	return err
}

func (i *instance) destroy() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.script != nil {
		i.script.destroy()
		i.script = nil
	}
	clear(i.storage)
}

// eventProxy forwards events into the instance script as
// onEvent(name, tag, params).
type eventProxy struct {
	inst *instance
}

func (p *eventProxy) dispatch(name string, tag int, params map[string]any) {
	i := p.inst
	i.mu.Lock()
	i.counters.Events++
	var err error
	if i.script != nil {
		_, _, err = i.script.callGlobal("onEvent", name, tag, params)
	}
	url := i.url
	i.mu.Unlock()

	if err != nil && i.cb != nil {
		i.cb.OnErrorOccurred(lynxerr.Wrap(lynxerr.SubScriptException, err, "event handler failed").WithOrigin(lynxerr.OriginScript).WithURL(url).AddContextInfo("event", name))
	}
}

func (p *eventProxy) SendTouchEvent(e *event.TouchEvent) {
	p.dispatch(e.Name, e.Tag, map[string]any{"x": e.X, "y": e.Y})
}

func (p *eventProxy) SendMultiTouchEvent(e *event.TouchEvent) {
	touches := make(map[string]any, len(e.Touches))
	for id, pt := range e.Touches {
		touches[fmt.Sprint(id)] = map[string]any{"x": pt.X, "y": pt.Y}
	}
	p.dispatch(e.Name, e.Tag, map[string]any{"touches": touches})
}

func (p *eventProxy) SendCustomEvent(e *event.CustomEvent) {
	p.dispatch(e.Name, e.Tag, maps.Clone(e.Params))
}

func (p *eventProxy) SendGestureEvent(name string, tag, gestureID int, params map[string]any) {
	out := maps.Clone(params)
	if out == nil {
		out = make(map[string]any)
	}
	out["gestureId"] = gestureID
	p.dispatch(name, tag, out)
}

func (p *eventProxy) OnPseudoStatusChanged(tag, preStatus, currentStatus int) {
	p.dispatch("pseudostatuschange", tag, map[string]any{"pre": preStatus, "current": currentStatus})
}
