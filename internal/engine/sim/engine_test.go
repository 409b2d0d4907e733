package sim

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/env"
	"github.com/lynxrender/backend/internal/event"
	"github.com/lynxrender/backend/internal/lynxerr"
	"github.com/lynxrender/backend/internal/templatedata"
)

const pageTemplate = `
page_config:
  version: "2.1"
  vsync_aligned_flush: true
elements: [view, text]
data:
  title: hello
  count: 1
script: |
  var received = [];
  var processors = {
    shout: function (d) { d.title = String(d.title).toUpperCase(); return d; },
    broken: function (d) { throw new Error("boom"); }
  };
  function onEvent(name, tag, params) { received.push(name + ":" + tag); }
  function onGlobalEvent(name, params) { received.push("global:" + name); }
`

type recordingCallbacks struct {
	mu          sync.Mutex
	calls       []string
	errs        []*lynxerr.Error
	pageConfigs []engine.PageConfig
}

func (c *recordingCallbacks) add(s string) {
	c.mu.Lock()
	c.calls = append(c.calls, s)
	c.mu.Unlock()
}

func (c *recordingCallbacks) OnLoaded(url string) { c.add("loaded") }
func (c *recordingCallbacks) OnRuntimeReady()     { c.add("runtime_ready") }
func (c *recordingCallbacks) OnDataUpdated()      { c.add("data_updated") }
func (c *recordingCallbacks) OnPageChanged(first bool) {
	if first {
		c.add("first_screen")
	} else {
		c.add("page_update")
	}
}
func (c *recordingCallbacks) OnErrorOccurred(err *lynxerr.Error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	c.add("error")
}
func (c *recordingCallbacks) OnPageConfigDecoded(cfg engine.PageConfig) {
	c.mu.Lock()
	c.pageConfigs = append(c.pageConfigs, cfg)
	c.mu.Unlock()
	c.add("page_config")
}

func newEngine(t *testing.T) (*Engine, *env.Env) {
	t.Helper()
	e := env.New()
	e.SetNativeLibraryReady(true)
	require.NoError(t, e.RegisterDefaults())
	return New(e, nil), e
}

func TestCreateFailsWhenNativeNotReady(t *testing.T) {
	e := env.New()
	eng := New(e, nil)
	h, tok := eng.Create(engine.Config{URL: "x"}, nil)
	assert.False(t, h.Valid())
	assert.False(t, tok.Valid())
}

func TestLoadTemplate(t *testing.T) {
	eng, _ := newEngine(t)
	cb := &recordingCallbacks{}
	h, _ := eng.Create(engine.Config{URL: "file:///page.yaml"}, cb)
	require.True(t, h.Valid())

	data := templatedata.FromMap(map[string]any{"count": 2})
	eng.LoadTemplate(h, []byte(pageTemplate), data, "file:///page.yaml")

	assert.Equal(t, []string{"page_config", "loaded", "first_screen"}, cb.calls)
	require.Len(t, cb.pageConfigs, 1)
	assert.True(t, cb.pageConfigs[0].VsyncAlignedFlush)
	assert.Equal(t, "2.1", cb.pageConfigs[0].Version)

	got, ok := eng.Data(h)
	require.True(t, ok)
	assert.Equal(t, "hello", got["title"])
	assert.Equal(t, 2, got["count"])
	assert.True(t, data.Consumed())

	st, _ := eng.Stats(h)
	assert.True(t, st.Loaded)
	assert.Equal(t, "file:///page.yaml", st.URL)
}

func TestLoadTemplateDecodeErrors(t *testing.T) {
	eng, _ := newEngine(t)
	cb := &recordingCallbacks{}
	h, _ := eng.Create(engine.Config{}, cb)

	eng.LoadTemplate(h, nil, nil, "empty")
	eng.LoadTemplate(h, []byte("data: [unclosed"), nil, "bad")

	require.Len(t, cb.errs, 2)
	assert.Equal(t, lynxerr.SubTemplateEmpty, cb.errs[0].SubCode)
	assert.Equal(t, lynxerr.SubTemplateDecode, cb.errs[1].SubCode)
	assert.Equal(t, "bad", cb.errs[1].TemplateURL)
}

func TestUnknownElementWarns(t *testing.T) {
	eng, _ := newEngine(t)
	cb := &recordingCallbacks{}
	h, _ := eng.Create(engine.Config{}, cb)

	eng.LoadTemplate(h, []byte("elements: [view, x-map]\n"), nil, "u")
	require.Len(t, cb.errs, 1)
	assert.Equal(t, lynxerr.LevelWarn, cb.errs[0].Level)
	assert.Contains(t, cb.errs[0].Message, "x-map")
	assert.Contains(t, cb.calls, "loaded")
}

func TestUpdateDataWithProcessor(t *testing.T) {
	eng, _ := newEngine(t)
	cb := &recordingCallbacks{}
	h, _ := eng.Create(engine.Config{}, cb)
	eng.LoadTemplate(h, []byte(pageTemplate), nil, "p")

	d := templatedata.FromMap(map[string]any{"title": "quiet"})
	d.MarkState("shout")
	eng.UpdateData(h, d)

	got, _ := eng.Data(h)
	assert.Equal(t, "QUIET", got["title"])
	assert.Equal(t, []string{"page_config", "loaded", "first_screen", "data_updated", "page_update"}, cb.calls)
}

func TestUpdateDataProcessorFailures(t *testing.T) {
	eng, _ := newEngine(t)
	cb := &recordingCallbacks{}
	h, _ := eng.Create(engine.Config{}, cb)
	eng.LoadTemplate(h, []byte(pageTemplate), nil, "p")

	missing := templatedata.FromMap(map[string]any{"a": 1})
	missing.MarkState("nope")
	eng.UpdateData(h, missing)

	broken := templatedata.FromMap(map[string]any{"a": 1})
	broken.MarkState("broken")
	eng.UpdateData(h, broken)

	require.Len(t, cb.errs, 2)
	assert.Equal(t, lynxerr.SubProcessorMissing, cb.errs[0].SubCode)
	assert.Equal(t, map[string]string{"processor": "nope"}, cb.errs[0].ContextInfo())
	assert.Equal(t, lynxerr.SubScriptException, cb.errs[1].SubCode)
	assert.Contains(t, cb.errs[1].RootCause, "boom")

	got, _ := eng.Data(h)
	assert.NotContains(t, got, "a")
}

func TestResetAndReload(t *testing.T) {
	eng, _ := newEngine(t)
	cb := &recordingCallbacks{}
	h, _ := eng.Create(engine.Config{}, cb)
	eng.LoadTemplate(h, []byte(pageTemplate), nil, "p")

	eng.UpdateData(h, templatedata.FromMap(map[string]any{"extra": true}))
	eng.ResetData(h, templatedata.FromMap(map[string]any{"count": 9}))
	got, _ := eng.Data(h)
	assert.NotContains(t, got, "extra")
	assert.Equal(t, 9, got["count"])

	eng.ReloadTemplate(h, nil, templatedata.FromMap(map[string]any{"theme": "dark"}))
	got, _ = eng.Data(h)
	assert.Equal(t, 1, got["count"])
	globals, _ := eng.GlobalProps(h)
	assert.Equal(t, map[string]any{"theme": "dark"}, globals)
}

func TestRuntimeReadyAfterStart(t *testing.T) {
	eng, _ := newEngine(t)
	cb := &recordingCallbacks{}
	h, _ := eng.Create(engine.Config{}, cb)

	eng.StartRuntime(h)
	eng.LoadTemplate(h, []byte(pageTemplate), nil, "p")
	assert.Contains(t, cb.calls, "runtime_ready")

	h2, _ := eng.Create(engine.Config{}, cb)
	cb.calls = nil
	eng.LoadTemplate(h2, []byte(pageTemplate), nil, "p")
	assert.NotContains(t, cb.calls, "runtime_ready")
	eng.StartRuntime(h2)
	eng.StartRuntime(h2)
	assert.Equal(t, 1, strings.Count(strings.Join(cb.calls, ","), "runtime_ready"))
}

func TestViewportAndLayout(t *testing.T) {
	eng, _ := newEngine(t)
	h, _ := eng.Create(engine.Config{PresetWidth: 100, PresetHeight: 50}, nil)

	st, _ := eng.Stats(h)
	assert.Equal(t, Layout{Width: 100, Height: 50}, st.Layout)

	eng.UpdateViewport(h, 320, engine.Exactly, 640, engine.AtMost, 2)
	eng.SyncFetchLayoutResult(h)
	eng.ForceRelayout(h, 400, engine.Exactly, 800, engine.Exactly)
	eng.Flush(h)

	st, _ = eng.Stats(h)
	assert.Equal(t, 1, st.ViewportUpdates)
	assert.Equal(t, 1, st.LayoutFetches)
	assert.Equal(t, 1, st.Relayouts)
	assert.Equal(t, 1, st.Flushes)
	assert.Equal(t, Layout{Width: 400, Height: 800, WidthMode: engine.Exactly, HeightMode: engine.Exactly}, st.Layout)
}

func TestTryTerminateBusy(t *testing.T) {
	eng, _ := newEngine(t)
	eng.SetTerminateBusy(2)
	h, tok := eng.Create(engine.Config{}, nil)

	assert.False(t, eng.TryTerminateLifecycle(tok))
	assert.False(t, eng.TryTerminateLifecycle(tok))
	assert.True(t, eng.TryTerminateLifecycle(tok))

	eng.Destroy(h)
	inst, lcs := eng.Live()
	assert.Zero(t, inst)
	assert.Equal(t, 1, lcs)
	eng.DestroyLifecycle(tok)
	_, lcs = eng.Live()
	assert.Zero(t, lcs)

	_, ok := eng.Stats(h)
	assert.False(t, ok)
	assert.NotPanics(t, func() { eng.UpdateData(h, templatedata.New()) })
}

func TestEventProxyDispatchesToScript(t *testing.T) {
	eng, _ := newEngine(t)
	h, _ := eng.Create(engine.Config{}, nil)
	eng.LoadTemplate(h, []byte(pageTemplate), nil, "p")

	p := eng.EventProxy(h)
	require.NotNil(t, p)
	p.SendTouchEvent(event.NewTouchEvent("tap", 7, 1, 1))
	p.SendCustomEvent(event.NewCustomEvent("change", 8, nil))
	require.NoError(t, eng.SendGlobalEvent(h, "resume", nil))

	out, err := eng.EvaluateScript(h, "probe.js", `received.join(",")`)
	require.NoError(t, err)
	assert.Equal(t, "tap:7,change:8,global:resume", out)

	st, _ := eng.Stats(h)
	assert.Equal(t, 2, st.Events)
	assert.Nil(t, eng.EventProxy(engine.Handle(999)))
}

type counterModule struct {
	n         int
	destroyed *bool
}

func (m *counterModule) Invoke(method string, args []any) (any, error) {
	if method != "inc" {
		return nil, errors.New("unsupported")
	}
	m.n++
	return m.n, nil
}

func (m *counterModule) Destroy() { *m.destroyed = true }

func TestNativeModulesFromEnv(t *testing.T) {
	eng, e := newEngine(t)
	destroyed := false
	require.NoError(t, e.RegisterModule("counter", func() env.Module {
		return &counterModule{destroyed: &destroyed}
	}))
	h, _ := eng.Create(engine.Config{}, nil)

	out, err := eng.EvaluateScript(h, "m.js", `NativeModules.counter.invoke("inc"); NativeModules.counter.invoke("inc")`)
	require.NoError(t, err)
	assert.EqualValues(t, 2, out)

	_, err = eng.EvaluateScript(h, "m.js", `NativeModules.counter.invoke("dec")`)
	assert.Error(t, err)

	eng.Destroy(h)
	assert.True(t, destroyed)
	_, err = eng.EvaluateScript(h, "m.js", `1`)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestSessionStorage(t *testing.T) {
	eng, _ := newEngine(t)
	h, _ := eng.Create(engine.Config{}, nil)

	d := templatedata.FromMap(map[string]any{"v": 1})
	eng.SetSessionStorageItem(h, "k", d)
	_ = d.Put("v", 2)

	got, ok := eng.GetSessionStorageItem(h, "k")
	require.True(t, ok)
	v, _ := got.Get("v")
	assert.Equal(t, 1, v)

	_, ok = eng.GetSessionStorageItem(h, "missing")
	assert.False(t, ok)
}

func TestLoadBundle(t *testing.T) {
	eng, _ := newEngine(t)
	cb := &recordingCallbacks{}
	h, _ := eng.Create(engine.Config{}, cb)

	b, err := Decode([]byte(pageTemplate), "bundle://p")
	require.NoError(t, err)
	assert.Equal(t, "bundle://p", b.URL())
	eng.LoadBundle(h, b, nil, "bundle://p")
	assert.Contains(t, cb.calls, "loaded")

	eng.LoadBundle(h, (*Bundle)(nil), nil, "bundle://nil")
	require.Len(t, cb.errs, 1)
	assert.Equal(t, lynxerr.SubBundleInvalid, cb.errs[0].SubCode)
}
