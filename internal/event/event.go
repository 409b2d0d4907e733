// Package event forwards platform input events to the engine and fans them
// out to observers on the UI thread.
package event

import (
	"encoding/json"
	"maps"
	"time"
)

type Type int

const (
	TypeCustom Type = iota
	TypeLayout
	TypeExposureFlush
)

var typeNames = map[Type]string{
	TypeCustom:        "custom",
	TypeLayout:        "layout",
	TypeExposureFlush: "exposure_flush",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Event is the part shared by every event kind. Tag identifies the target
// element.
type Event struct {
	Name      string         `json:"name"`
	Tag       int            `json:"tag"`
	Timestamp time.Time      `json:"timestamp"`
	Params    map[string]any `json:"params,omitempty"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type TouchEvent struct {
	Event
	Point
	// Touches holds per-pointer positions for multi-touch events.
	Touches map[int]Point `json:"touches,omitempty"`
}

func NewTouchEvent(name string, tag int, x, y float64) *TouchEvent {
	return &TouchEvent{
		Event: Event{Name: name, Tag: tag, Timestamp: time.Now()},
		Point: Point{X: x, Y: y},
	}
}

type CustomEvent struct {
	Event
}

func NewCustomEvent(name string, tag int, params map[string]any) *CustomEvent {
	return &CustomEvent{Event: Event{
		Name:      name,
		Tag:       tag,
		Timestamp: time.Now(),
		Params:    maps.Clone(params),
	}}
}

func (e *CustomEvent) AddDetail(key string, value any) {
	if e.Params == nil {
		e.Params = make(map[string]any)
	}
	e.Params[key] = value
}

// Proxy is the engine-side event sink.
type Proxy interface {
	SendTouchEvent(e *TouchEvent)
	SendMultiTouchEvent(e *TouchEvent)
	SendCustomEvent(e *CustomEvent)
	SendGestureEvent(name string, tag, gestureID int, params map[string]any)
	OnPseudoStatusChanged(tag, preStatus, currentStatus int)
}

// Reporter sees touch and custom events before the engine does. Returning
// true consumes the event.
type Reporter interface {
	OnLynxEvent(e *Event) bool
}

type Observer interface {
	// OnLynxEvent runs on the UI thread. e is nil for layout events.
	OnLynxEvent(t Type, e *Event)
}

// IntersectionObserver is an Observer that may have moved to the engine's
// own intersection tracking, in which case emitters skip it.
type IntersectionObserver interface {
	Observer
	UsesNewIntersectionObserver() bool
}

type TapTracker interface {
	OnTap()
}

type ReporterFunc func(e *Event) bool

func (f ReporterFunc) OnLynxEvent(e *Event) bool { return f(e) }
