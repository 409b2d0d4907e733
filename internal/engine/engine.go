// Package engine defines the contract between render sessions and the
// native template engine. Engines address their instances through opaque
// handles; a zero handle means creation failed.
package engine

import (
	"encoding/json"

	"github.com/lynxrender/backend/internal/event"
	"github.com/lynxrender/backend/internal/lynxerr"
	"github.com/lynxrender/backend/internal/templatedata"
)

type Handle uint64

func (h Handle) Valid() bool { return h != 0 }

type LifecycleToken uint64

func (t LifecycleToken) Valid() bool { return t != 0 }

type MeasureMode int

const (
	Unspecified MeasureMode = iota
	Exactly
	AtMost
)

var measureModeNames = map[MeasureMode]string{
	Unspecified: "unspecified",
	Exactly:     "exactly",
	AtMost:      "at_most",
}

func (m MeasureMode) String() string {
	if s, ok := measureModeNames[m]; ok {
		return s
	}
	return "unknown"
}

func (m MeasureMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// Viewport is a measured size with its measure modes.
type Viewport struct {
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	WidthMode  MeasureMode `json:"widthMode"`
	HeightMode MeasureMode `json:"heightMode"`
}

// SameSize reports whether v and o have equal width and height, ignoring
// measure modes.
func (v Viewport) SameSize(o Viewport) bool {
	return v.Width == o.Width && v.Height == o.Height
}

func (v Viewport) IsZero() bool { return v == Viewport{} }

// Config is handed to Create.
type Config struct {
	URL             string
	ThreadStrategy  ThreadStrategy
	ScreenWidth     int
	ScreenHeight    int
	Density         float64
	PresetWidth     int
	PresetHeight    int
	EnableSyncFlush bool
}

// PageConfig is decoded from a template and reported through
// Callbacks.OnPageConfigDecoded.
type PageConfig struct {
	Version                       string         `json:"version,omitempty" yaml:"version"`
	VsyncAlignedFlush             bool           `json:"vsync_aligned_flush" yaml:"vsync_aligned_flush"`
	EnableNewIntersectionObserver bool           `json:"enable_new_intersection_observer" yaml:"enable_new_intersection_observer"`
	Extra                         map[string]any `json:"extra,omitempty" yaml:"extra"`
}

// Bundle is a pre-decoded template.
type Bundle interface {
	Valid() bool
	URL() string
}

// Callbacks is implemented by the session and invoked by the engine.
type Callbacks interface {
	OnLoaded(url string)
	OnRuntimeReady()
	OnDataUpdated()
	OnPageChanged(isFirstScreen bool)
	OnErrorOccurred(err *lynxerr.Error)
	OnPageConfigDecoded(cfg PageConfig)
}

// Engine is the native engine surface used by render sessions.
type Engine interface {
	// Create builds an engine instance. A failed creation returns zero
	// values, never an error.
	Create(cfg Config, cb Callbacks) (Handle, LifecycleToken)
	Destroy(h Handle)
	// TryTerminateLifecycle reports whether the lifecycle token can be
	// released now. False means retry later.
	TryTerminateLifecycle(t LifecycleToken) bool
	DestroyLifecycle(t LifecycleToken)

	UpdateViewport(h Handle, width int, widthMode MeasureMode, height int, heightMode MeasureMode, density float64)
	SyncFetchLayoutResult(h Handle)
	ForceRelayout(h Handle, width int, widthMode MeasureMode, height int, heightMode MeasureMode)
	Flush(h Handle)

	LoadTemplate(h Handle, tpl []byte, data *templatedata.TemplateData, url string)
	LoadBundle(h Handle, b Bundle, data *templatedata.TemplateData, url string)
	UpdateData(h Handle, data *templatedata.TemplateData)
	ResetData(h Handle, data *templatedata.TemplateData)
	ReloadTemplate(h Handle, data, globalProps *templatedata.TemplateData)
	UpdateGlobalProps(h Handle, props *templatedata.TemplateData)
	UpdateMetaData(h Handle, data, globalProps *templatedata.TemplateData)

	SetEnableUIFlush(h Handle, enable bool)
	ProcessRender(h Handle)
	StartRuntime(h Handle)
	AttachToUIThread(h Handle)
	DetachFromUIThread(h Handle)

	SetSessionStorageItem(h Handle, key string, data *templatedata.TemplateData)
	GetSessionStorageItem(h Handle, key string) (*templatedata.TemplateData, bool)

	// EventProxy returns the event sink for h, or nil.
	EventProxy(h Handle) event.Proxy
}

// ScriptEvaluator is implemented by engines that can run script against a
// live instance.
type ScriptEvaluator interface {
	EvaluateScript(h Handle, url, source string) (any, error)
	SendGlobalEvent(h Handle, name string, params []any) error
}
