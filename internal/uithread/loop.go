// Package uithread models the host's UI ("main") thread as a single
// goroutine draining a go-eventloop queue.
package uithread

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/petermattis/goid"

	"github.com/lynxrender/backend/internal/logging"
)

var ErrNotStarted = errors.New("uithread: loop not started")

// Looper is the subset of the UI thread used by sessions and emitters.
type Looper interface {
	// Post queues fn to run on the UI thread.
	Post(fn func()) error
	// PostDelayed queues fn to run on the UI thread after d.
	PostDelayed(d time.Duration, fn func()) error
	// RunImmediately runs fn inline on the UI thread, or posts it.
	RunImmediately(fn func()) error
	IsOnUIThread() bool
}

type Loop struct {
	loop   *eventloop.Loop
	logger *logging.Logger

	gid     atomic.Int64
	started chan struct{}
	done    chan struct{}

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

func New(logger *logging.Logger) (*Loop, error) {
	el, err := eventloop.New()
	if err != nil {
		return nil, fmt.Errorf("uithread: create loop: %w", err)
	}
	return &Loop{
		loop:    el,
		logger:  logger,
		started: make(chan struct{}),
		done:    make(chan struct{}),
		timers:  make(map[*time.Timer]struct{}),
	}, nil
}

// Start runs the loop on its own goroutine and blocks until the loop
// goroutine has been identified.
func (l *Loop) Start(ctx context.Context) error {
	go func() {
		defer close(l.done)
		if err := l.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Err().Err(err).Log(`ui loop exited`)
		}
	}()

	if err := l.loop.Submit(func() {
		l.gid.Store(goid.Get())
		close(l.started)
	}); err != nil {
		return fmt.Errorf("uithread: identify loop goroutine: %w", err)
	}

	select {
	case <-l.started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels pending delayed posts and drains the queue.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	for t := range l.timers {
		t.Stop()
	}
	clear(l.timers)
	l.mu.Unlock()

	if err := l.loop.Shutdown(ctx); err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
		return err
	}
	return nil
}

// Done is closed once the loop goroutine returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) IsOnUIThread() bool {
	gid := l.gid.Load()
	return gid != 0 && gid == goid.Get()
}

func (l *Loop) Post(fn func()) error {
	select {
	case <-l.started:
	default:
		return ErrNotStarted
	}
	return l.loop.Submit(fn)
}

func (l *Loop) PostDelayed(d time.Duration, fn func()) error {
	if d <= 0 {
		return l.Post(fn)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return eventloop.ErrLoopTerminated
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		if err := l.Post(fn); err != nil {
			l.logger.Warning().Err(err).Dur(`delay`, d).Log(`delayed ui task dropped`)
		}
	})
	l.timers[t] = struct{}{}
	return nil
}

func (l *Loop) RunImmediately(fn func()) error {
	if l.IsOnUIThread() {
		fn()
		return nil
	}
	return l.Post(fn)
}

// Call runs fn on the UI thread and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	if l.IsOnUIThread() {
		fn()
		return nil
	}
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
