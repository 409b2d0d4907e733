package render

import (
	"time"

	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/lynxerr"
	"github.com/lynxrender/backend/internal/session"
)

// facade receives engine callbacks for a session and forwards them to its
// clients. Callbacks arriving after destroy are dropped.
type facade struct {
	s *Session
}

var _ engine.Callbacks = (*facade)(nil)

func (f *facade) OnLoaded(url string) {
	s := f.s
	if s.destroyed.Load() {
		return
	}
	now := time.Now()
	s.mu.Lock()
	s.loaded = true
	s.loadedAt = &now
	s.lastActivity = now
	s.mu.Unlock()
	s.clients.OnLoadSuccess(url)
	s.publish(session.EventLoaded)
}

func (f *facade) OnRuntimeReady() {
	if !f.s.destroyed.Load() {
		f.s.clients.OnRuntimeReady()
	}
}

func (f *facade) OnDataUpdated() {
	if !f.s.destroyed.Load() {
		f.s.clients.OnDataUpdated()
	}
}

func (f *facade) OnPageChanged(isFirstScreen bool) {
	if f.s.destroyed.Load() {
		return
	}
	if isFirstScreen {
		f.s.clients.OnFirstScreen()
		return
	}
	f.s.clients.OnPageUpdate()
}

func (f *facade) OnErrorOccurred(err *lynxerr.Error) {
	if f.s.destroyed.Load() || err == nil {
		return
	}
	f.s.reportError(err)
}

func (f *facade) OnPageConfigDecoded(cfg engine.PageConfig) {
	s := f.s
	if s.destroyed.Load() {
		return
	}
	s.mu.Lock()
	s.pageConfig = cfg
	s.mu.Unlock()
	s.logger.Debug().Str(`version`, cfg.Version).Bool(`vsync_aligned_flush`, cfg.VsyncAlignedFlush).Log(`page config decoded`)
}
