package render

import (
	"time"

	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/lynxerr"
	"github.com/lynxrender/backend/internal/session"
)

// Destroy tears the session down. Only the first call has any effect.
// Clients see OnDestroy exactly once; the engine instance is released on the
// UI thread once its lifecycle can be terminated.
func (s *Session) Destroy() {
	if !s.destroyed.CompareAndSwap(false, true) {
		s.logger.Debug().Log(`destroy called twice, ignored`)
		return
	}
	s.emitter.FlushExposure()

	now := time.Now()
	s.mu.Lock()
	h, t := s.handle, s.token
	s.handle, s.token = 0, 0
	s.state = Destroyed
	s.globalProps = nil
	s.lastLoad = nil
	s.destroyedAt = &now
	s.lastActivity = now
	s.mu.Unlock()

	s.emitter.Detach()
	s.publish(session.EventUpdated)

	s.teardown(h, t, func(bool) {
		if s.store != nil {
			s.store.Update(s.Info())
			s.store.Remove(s.id)
		}
		s.removed.Store(true)
	})

	s.clients.OnDestroy()
	s.logger.Info().Str(`url`, s.URL()).Log(`session destroyed`)
}

// teardown releases an engine pair on the UI thread and calls done with
// whether the lifecycle was terminated.
func (s *Session) teardown(h engine.Handle, t engine.LifecycleToken, done func(bool)) {
	if !h.Valid() && !t.Valid() {
		if done != nil {
			done(true)
		}
		return
	}
	task := &destroyTask{
		s:        s,
		handle:   h,
		token:    t,
		interval: s.opts.destroyRetryInterval,
		max:      s.opts.destroyMaxRetries,
		done:     done,
	}
	if err := s.looper.RunImmediately(task.run); err != nil {
		s.logger.Err().Err(err).Log(`engine teardown could not be scheduled, instance leaked`)
		task.finish(false)
	}
}

// destroyTask polls TryTerminateLifecycle until it succeeds, then destroys
// the instance and the lifecycle in that order. Fields other than s are
// only touched on the UI thread.
type destroyTask struct {
	s        *Session
	handle   engine.Handle
	token    engine.LifecycleToken
	interval time.Duration
	max      int
	attempts int
	done     func(bool)
}

func (d *destroyTask) run() {
	eng := d.s.eng
	if !d.token.Valid() {
		if d.handle.Valid() {
			eng.Destroy(d.handle)
		}
		d.finish(true)
		return
	}
	if eng.TryTerminateLifecycle(d.token) {
		eng.Destroy(d.handle)
		eng.DestroyLifecycle(d.token)
		d.finish(true)
		return
	}

	d.attempts++
	d.s.recordDestroyAttempt()
	if d.max > 0 && d.attempts > d.max {
		err := lynxerr.Newf(lynxerr.SubDestroyTimeout, "engine lifecycle not terminable after %d attempts", d.attempts)
		d.s.reportError(err)
		d.finish(false)
		return
	}
	if err := d.s.looper.PostDelayed(d.interval, d.run); err != nil {
		d.s.logger.Err().Err(err).Int(`attempts`, d.attempts).Log(`destroy retry dropped, instance leaked`)
		d.finish(false)
	}
}

func (d *destroyTask) finish(ok bool) {
	if d.attempts > 0 {
		d.s.logger.Debug().Int(`attempts`, d.attempts).Bool(`terminated`, ok).Log(`engine lifecycle released`)
	}
	if d.done != nil {
		d.done(ok)
	}
}

func (s *Session) recordDestroyAttempt() {
	s.mu.Lock()
	s.destroyAttempts++
	s.mu.Unlock()
}
