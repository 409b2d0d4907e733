// Package render coordinates one render session with its engine instance:
// thread strategy selection, load and update gating, viewport and measure
// ticks, reload and the two-phase destroy.
package render

import (
	"encoding/json"
	"errors"

	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/session"
)

type (
	State          = session.State
	ThreadStrategy = engine.ThreadStrategy
	Viewport       = engine.Viewport
)

const (
	Uninitialized = session.Uninitialized
	Initialized   = session.Initialized
	Reloading     = session.Reloading
	Destroyed     = session.Destroyed
)

const (
	AllOnUI      = engine.AllOnUI
	MostOnTASM   = engine.MostOnTASM
	PartOnLayout = engine.PartOnLayout
	MultiThread  = engine.MultiThread
)

// Status tells embedders why a call may have been ignored.
type Status int

const (
	StatusReady Status = iota
	// StatusNotReady means the engine library was not ready or instance
	// creation failed. Calls are ignored.
	StatusNotReady
	StatusDestroyed
)

var statusNames = map[Status]string{
	StatusReady:     "ready",
	StatusNotReady:  "not_ready",
	StatusDestroyed: "destroyed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

var (
	ErrNotOnUIThread     = errors.New("render: must be called on the ui thread")
	ErrMissingDependency = errors.New("render: missing dependency")
)
