// Package env is the process-wide registry sessions are built against:
// native readiness, experiment switches, element behaviors and script
// modules. It is constructed once by the host and passed to every session.
package env

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lynxrender/backend/internal/config"
)

var (
	ErrDuplicate = errors.New("env: already registered")
	ErrUnknown   = errors.New("env: not registered")
)

// Behavior describes an element tag the engine may create.
type Behavior struct {
	Name string
	// Flatten marks elements drawn into their parent instead of owning a
	// platform view.
	Flatten bool
}

// Module is a host capability callable from template scripts.
type Module interface {
	Invoke(method string, args []any) (any, error)
}

// ModuleDestroyer is implemented by modules holding resources that must be
// released with their engine instance.
type ModuleDestroyer interface {
	Destroy()
}

type ModuleFactory func() Module

type Env struct {
	nativeReady        atomic.Bool
	vsyncExp           atomic.Bool
	vsyncGlobal        atomic.Bool
	layoutOnBackground atomic.Bool

	mu        sync.RWMutex
	behaviors map[string]Behavior
	modules   map[string]ModuleFactory
}

func New() *Env {
	return &Env{
		behaviors: make(map[string]Behavior),
		modules:   make(map[string]ModuleFactory),
	}
}

// FromConfig builds an Env from the env config section.
func FromConfig(c config.EnvConfig) *Env {
	e := New()
	e.SetNativeLibraryReady(c.NativeLibraryReady)
	e.SetVsyncAlignedFlushSwitches(c.VsyncAlignedFlushExp, c.VsyncAlignedFlushGlobal)
	e.SetLayoutOnBackgroundThread(c.LayoutOnBackgroundThread)
	return e
}

func (e *Env) NativeLibraryReady() bool      { return e.nativeReady.Load() }
func (e *Env) SetNativeLibraryReady(ok bool) { e.nativeReady.Store(ok) }

func (e *Env) SetVsyncAlignedFlushSwitches(experiment, global bool) {
	e.vsyncExp.Store(experiment)
	e.vsyncGlobal.Store(global)
}

// VsyncAlignedFlushAllowed is the process half of the vsync-aligned flush
// gate. Sessions and page configs must also opt in.
func (e *Env) VsyncAlignedFlushAllowed() bool {
	return e.vsyncExp.Load() && e.vsyncGlobal.Load()
}

func (e *Env) LayoutOnBackgroundThread() bool      { return e.layoutOnBackground.Load() }
func (e *Env) SetLayoutOnBackgroundThread(on bool) { e.layoutOnBackground.Store(on) }

func (e *Env) RegisterBehavior(b Behavior) error {
	if b.Name == "" {
		return fmt.Errorf("env: behavior with empty name")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.behaviors[b.Name]; ok {
		return fmt.Errorf("behavior %q: %w", b.Name, ErrDuplicate)
	}
	e.behaviors[b.Name] = b
	return nil
}

func (e *Env) Behavior(name string) (Behavior, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.behaviors[name]
	return b, ok
}

func (e *Env) BehaviorNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.behaviors))
	for n := range e.behaviors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (e *Env) RegisterModule(name string, f ModuleFactory) error {
	if name == "" || f == nil {
		return fmt.Errorf("env: invalid module registration %q", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.modules[name]; ok {
		return fmt.Errorf("module %q: %w", name, ErrDuplicate)
	}
	e.modules[name] = f
	return nil
}

// NewModule instantiates a registered module.
func (e *Env) NewModule(name string) (Module, error) {
	e.mu.RLock()
	f, ok := e.modules[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("module %q: %w", name, ErrUnknown)
	}
	return f(), nil
}

func (e *Env) ModuleNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.modules))
	for n := range e.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultBehaviors are the element tags every host supports.
var DefaultBehaviors = []Behavior{
	{Name: "view", Flatten: true},
	{Name: "text", Flatten: true},
	{Name: "image"},
	{Name: "scroll-view"},
	{Name: "list"},
	{Name: "input"},
}

// RegisterDefaults adds DefaultBehaviors, skipping ones already present.
func (e *Env) RegisterDefaults() error {
	for _, b := range DefaultBehaviors {
		if err := e.RegisterBehavior(b); err != nil && !errors.Is(err, ErrDuplicate) {
			return fmt.Errorf("env: register behavior %q: %w", b.Name, err)
		}
	}
	return nil
}
