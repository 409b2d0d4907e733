package event

import (
	"slices"
	"sync"

	"github.com/lynxrender/backend/internal/logging"
	"github.com/lynxrender/backend/internal/uithread"
)

type Emitter struct {
	looper uithread.Looper
	logger *logging.Logger

	mu        sync.RWMutex
	proxy     Proxy
	inPreload bool
	reporter  Reporter
	tracker   TapTracker

	obsMu     sync.Mutex
	observers []Observer
}

func NewEmitter(looper uithread.Looper, proxy Proxy, logger *logging.Logger) *Emitter {
	return &Emitter{
		looper: looper,
		proxy:  proxy,
		logger: logger,
	}
}

// SetProxy swaps the engine sink, e.g. after a reload.
func (e *Emitter) SetProxy(p Proxy) {
	e.mu.Lock()
	e.proxy = p
	e.mu.Unlock()
}

// Detach clears the engine sink. Later events are dropped.
func (e *Emitter) Detach() {
	e.SetProxy(nil)
}

func (e *Emitter) SetInPreload(preload bool) {
	e.mu.Lock()
	e.inPreload = preload
	e.mu.Unlock()
}

func (e *Emitter) RegisterReporter(r Reporter) {
	e.mu.Lock()
	e.reporter = r
	e.mu.Unlock()
}

func (e *Emitter) SetTapTracker(t TapTracker) {
	e.mu.Lock()
	e.tracker = t
	e.mu.Unlock()
}

// sink returns the proxy if events may be delivered.
func (e *Emitter) sink() Proxy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.inPreload {
		return nil
	}
	return e.proxy
}

func (e *Emitter) consumed(ev *Event) bool {
	e.mu.RLock()
	r := e.reporter
	e.mu.RUnlock()
	if r == nil {
		e.logger.Debug().Str(`event`, ev.Name).Log(`no event reporter registered`)
		return false
	}
	return r.OnLynxEvent(ev)
}

func (e *Emitter) dropped(kind, name string) {
	e.logger.Err().
		Str(`kind`, kind).
		Str(`event`, name).
		Log(`event dropped: engine proxy missing or page in preload`)
}

func (e *Emitter) SendTouchEvent(ev *TouchEvent) {
	p := e.sink()
	if p == nil {
		e.dropped(`touch`, ev.Name)
		return
	}
	if e.consumed(&ev.Event) {
		return
	}
	if ev.Name == "tap" {
		e.mu.RLock()
		t := e.tracker
		e.mu.RUnlock()
		if t != nil {
			t.OnTap()
		}
	}
	p.SendTouchEvent(ev)
}

func (e *Emitter) SendMultiTouchEvent(ev *TouchEvent) {
	p := e.sink()
	if p == nil {
		e.dropped(`multi_touch`, ev.Name)
		return
	}
	if e.consumed(&ev.Event) {
		return
	}
	p.SendMultiTouchEvent(ev)
}

// SendCustomEvent processes ev on the UI thread. Observers are notified
// after the engine forwarding decision, whether or not ev was consumed.
func (e *Emitter) SendCustomEvent(ev *CustomEvent) {
	err := e.looper.RunImmediately(func() {
		if p := e.sink(); p == nil {
			e.dropped(`custom`, ev.Name)
		} else if !e.consumed(&ev.Event) {
			ev.AddDetail("timestamp", ev.Timestamp.UnixMilli())
			p.SendCustomEvent(ev)
		}
		e.notify(TypeCustom, &ev.Event)
	})
	if err != nil {
		e.logger.Err().Err(err).Str(`event`, ev.Name).Log(`custom event not scheduled`)
	}
}

func (e *Emitter) SendGestureEvent(gestureID int, ev *CustomEvent) {
	p := e.sink()
	if p == nil {
		e.dropped(`gesture`, ev.Name)
		return
	}
	p.SendGestureEvent(ev.Name, ev.Tag, gestureID, ev.Params)
}

func (e *Emitter) OnPseudoStatusChanged(tag, preStatus, currentStatus int) {
	if preStatus == currentStatus {
		return
	}
	e.mu.RLock()
	p := e.proxy
	e.mu.RUnlock()
	if p == nil {
		e.logger.Err().Int(`tag`, tag).Log(`pseudo status change dropped: engine proxy missing`)
		return
	}
	p.OnPseudoStatusChanged(tag, preStatus, currentStatus)
}

func (e *Emitter) SendLayoutEvent() {
	e.notify(TypeLayout, nil)
}

// FlushExposure tells observers that every element left the viewport. It is
// sent before the engine instance backing the page goes away.
func (e *Emitter) FlushExposure() {
	e.notify(TypeExposureFlush, nil)
}

func (e *Emitter) AddObserver(o Observer) {
	if o == nil {
		return
	}
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	if slices.Contains(e.observers, o) {
		return
	}
	e.observers = append(e.observers, o)
}

func (e *Emitter) RemoveObserver(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	if i := slices.Index(e.observers, o); i >= 0 {
		e.observers = slices.Delete(e.observers, i, i+1)
	}
}

func (e *Emitter) ObserverCount() int {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	return len(e.observers)
}

func (e *Emitter) notify(t Type, ev *Event) {
	run := func() {
		e.obsMu.Lock()
		observers := slices.Clone(e.observers)
		e.obsMu.Unlock()

		for _, o := range observers {
			if io, ok := o.(IntersectionObserver); ok && io.UsesNewIntersectionObserver() {
				continue
			}
			o.OnLynxEvent(t, ev)
		}
	}
	if err := e.looper.RunImmediately(run); err != nil {
		e.logger.Err().Err(err).Str(`type`, t.String()).Log(`observer notification not scheduled`)
	}
}
