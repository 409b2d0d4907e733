package render

import (
	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/session"
)

// OnMeasure is the host's measure tick. v is the size the host measured the
// page at.
func (s *Session) OnMeasure(v Viewport) {
	h, ok := s.ready(`on_measure`)
	if !ok {
		return
	}

	s.mu.Lock()
	lob, async := s.layoutOnBackground, s.async
	s.mu.Unlock()

	if lob && !async {
		s.measureBackgroundLayout(h, v)
		return
	}

	if s.opts.syncFlush {
		s.syncFlush(h)
	}
	s.updateViewport(h, v)

	s.mu.Lock()
	fetch := s.strategy == PartOnLayout && s.willContentSizeChange
	if fetch {
		s.willContentSizeChange = false
	}
	s.mu.Unlock()
	if fetch {
		s.eng.SyncFetchLayoutResult(h)
	}

	s.mu.Lock()
	flush := s.vsyncGateLocked() || (s.autoConcurrency && s.willContentSizeChange)
	if flush {
		s.willContentSizeChange = false
	}
	s.mu.Unlock()
	if flush {
		s.eng.Flush(h)
	}
}

// measureBackgroundLayout handles a measure tick when layout runs on a
// background thread under a synchronous strategy. Layout is only pulled or
// forced when content is expected to change.
func (s *Session) measureBackgroundLayout(h engine.Handle, v Viewport) {
	s.mu.Lock()
	if !s.willContentSizeChange {
		gate := s.vsyncGateLocked()
		s.mu.Unlock()
		if gate {
			s.eng.Flush(h)
		}
		return
	}
	s.willContentSizeChange = false
	if s.viewport.SameSize(v) && !s.shouldUpdateViewport {
		s.mu.Unlock()
		s.eng.SyncFetchLayoutResult(h)
		return
	}
	s.shouldUpdateViewport = false
	s.viewport = v
	s.mu.Unlock()

	s.eng.ForceRelayout(h, v.Width, v.WidthMode, v.Height, v.HeightMode)
	s.publish(session.EventUpdated)
}

// UpdateViewport pushes v to the engine when it differs from the last
// pushed viewport.
func (s *Session) UpdateViewport(v Viewport) {
	if h, ok := s.ready(`update_viewport`); ok {
		s.updateViewport(h, v)
	}
}

func (s *Session) updateViewport(h engine.Handle, v Viewport) {
	s.mu.Lock()
	if s.viewport == v && !s.shouldUpdateViewport {
		s.mu.Unlock()
		return
	}
	s.shouldUpdateViewport = false
	s.viewport = v
	density := s.opts.density
	s.mu.Unlock()

	s.eng.UpdateViewport(h, v.Width, v.WidthMode, v.Height, v.HeightMode, density)
	s.publish(session.EventUpdated)
}
