package render

import (
	"context"
	"errors"

	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/lynxerr"
	"github.com/lynxrender/backend/internal/resource"
	"github.com/lynxrender/backend/internal/session"
	"github.com/lynxrender/backend/internal/templatedata"
)

// LoadMode selects how a page is presented while it loads.
type LoadMode int

const (
	LoadModeNormal LoadMode = iota
	// LoadModePrePainting renders without emitting page events until the
	// first data update or meta data update.
	LoadModePrePainting
)

func (m LoadMode) String() string {
	if m == LoadModePrePainting {
		return "pre_painting"
	}
	return "normal"
}

// LoadMeta describes a load in one value. Bundle wins over Template when
// both are set.
type LoadMeta struct {
	URL         string
	Template    []byte
	Bundle      engine.Bundle
	InitialData *templatedata.TemplateData
	GlobalProps *templatedata.TemplateData
	Mode        LoadMode
	// ProcessLayout loads with UI flush disabled. ProcessRender flushes.
	ProcessLayout bool
}

type loadRequest struct {
	url    string
	tpl    []byte
	bundle engine.Bundle
	data   *templatedata.TemplateData
}

func (r *loadRequest) clone() *loadRequest {
	c := *r
	if r.data != nil {
		c.data = r.data.DeepClone()
	}
	return &c
}

// LoadTemplate loads raw template bytes at the session's current URL.
func (s *Session) LoadTemplate(tpl []byte, data *templatedata.TemplateData) {
	s.LoadTemplateURL(tpl, data, s.URL())
}

// LoadTemplateURL loads raw template bytes, recording url as the page URL.
func (s *Session) LoadTemplateURL(tpl []byte, data *templatedata.TemplateData, url string) {
	if s.ignoredAfterDestroy(`load_template`) {
		return
	}
	if len(tpl) == 0 {
		s.reportError(lynxerr.New(lynxerr.SubTemplateEmpty, "template is empty").WithURL(url))
		return
	}
	s.loadOnThread(&loadRequest{url: url, tpl: tpl, data: data})
}

// LoadBundle loads a pre-decoded template.
func (s *Session) LoadBundle(b engine.Bundle, data *templatedata.TemplateData, url string) {
	if s.ignoredAfterDestroy(`load_bundle`) {
		return
	}
	if b == nil || !b.Valid() {
		s.reportError(lynxerr.New(lynxerr.SubBundleInvalid, "template bundle is invalid").WithURL(url))
		return
	}
	if url == "" {
		url = b.URL()
	}
	s.loadOnThread(&loadRequest{url: url, bundle: b, data: data})
}

// LoadURL fetches the template at url and loads it. Fetch failures are
// reported to clients.
func (s *Session) LoadURL(ctx context.Context, url string, data *templatedata.TemplateData) {
	if s.ignoredAfterDestroy(`load_url`) {
		return
	}
	tpl, ok := s.fetch(ctx, url)
	if !ok {
		return
	}
	s.LoadTemplateURL(tpl, data, url)
}

func (s *Session) fetch(ctx context.Context, url string) ([]byte, bool) {
	if s.destroyed.Load() {
		return nil, false
	}
	if s.fetcher == nil {
		s.reportError(lynxerr.New(lynxerr.SubResourceScheme, "no template fetcher configured").WithURL(url))
		return nil, false
	}
	tpl, err := s.fetcher.Fetch(ctx, url)
	switch {
	case s.destroyed.Load():
		return nil, false
	case errors.Is(err, resource.ErrUnsupportedScheme):
		s.reportError(lynxerr.Wrap(lynxerr.SubResourceScheme, err, "unsupported template scheme").WithURL(url))
		return nil, false
	case err != nil:
		s.reportError(lynxerr.Wrap(lynxerr.SubTemplateFetch, err, "template fetch failed").WithURL(url))
		return nil, false
	}
	return tpl, true
}

// LoadWithMeta loads according to meta. Global props are merged before the
// load is dispatched.
func (s *Session) LoadWithMeta(ctx context.Context, meta LoadMeta) {
	if s.ignoredAfterDestroy(`load_with_meta`) {
		return
	}
	url := meta.URL
	if url == "" {
		url = s.URL()
	}
	if meta.Mode == LoadModePrePainting {
		s.emitter.SetInPreload(true)
	}
	if meta.ProcessLayout {
		s.SetEnableUIFlush(false)
	}
	if meta.GlobalProps != nil {
		s.UpdateGlobalProps(meta.GlobalProps)
	}

	switch {
	case meta.Bundle != nil:
		s.LoadBundle(meta.Bundle, meta.InitialData, url)
	case len(meta.Template) > 0:
		s.LoadTemplateURL(meta.Template, meta.InitialData, url)
	default:
		s.LoadURL(ctx, url, meta.InitialData)
	}
}

// Reload replays the last load against a fresh engine instance.
func (s *Session) Reload() {
	if s.ignoredAfterDestroy(`reload`) {
		return
	}
	s.dispatch(`reload`, func() {
		s.mu.Lock()
		st, last := s.state, s.lastLoad
		s.mu.Unlock()
		if st != Initialized || last == nil {
			s.logger.Warning().Str(`state`, st.String()).Log(`reload before first load ignored`)
			return
		}
		s.load(last.clone())
	})
}

func (s *Session) loadOnThread(req *loadRequest) {
	s.dispatch(`load`, func() { s.load(req) })
}

func (s *Session) load(req *loadRequest) {
	if s.ignoredAfterDestroy(`load`) {
		return
	}
	s.mu.Lock()
	s.url = req.url
	s.mu.Unlock()

	s.prepareForRender()
	h, ok := s.ready(`load`)
	if !ok {
		return
	}

	if req.bundle != nil {
		s.eng.LoadBundle(h, req.bundle, req.data, req.url)
	} else {
		s.eng.LoadTemplate(h, req.tpl, req.data, req.url)
	}

	s.mu.Lock()
	s.lastLoad = req.clone()
	s.mu.Unlock()
	s.logger.Debug().Str(`url`, req.url).Bool(`bundle`, req.bundle != nil).Log(`template load dispatched`)
	s.publish(session.EventUpdated)
}

// prepareForRender runs before every load. The first load arms reload; each
// later load replaces the engine instance first.
func (s *Session) prepareForRender() {
	s.mu.Lock()
	s.willContentSizeChange = true
	s.mu.Unlock()

	s.reloadAndInit()

	s.mu.Lock()
	start := !s.pageStarted && s.state == Initialized
	if start {
		s.pageStarted = true
	}
	url := s.url
	s.mu.Unlock()
	if start {
		s.clients.OnPageStart(url)
	}
}

func (s *Session) reloadAndInit() {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	s.mu.Lock()
	if !s.reloadArmed {
		s.reloadArmed = true
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.emitter.FlushExposure()

	s.mu.Lock()
	if s.state == Destroyed || !s.env.NativeLibraryReady() {
		s.mu.Unlock()
		return
	}
	oldH, oldT := s.handle, s.token
	s.handle, s.token = 0, 0
	s.state = Reloading
	s.pageStarted = false
	prevViewport := s.viewport
	s.viewport = Viewport{}
	s.shouldUpdateViewport = true
	s.pageConfig = engine.PageConfig{}
	s.mu.Unlock()
	s.publish(session.EventUpdated)

	s.teardown(oldH, oldT, nil)
	h, t := s.createEngine(false)

	s.mu.Lock()
	if s.state == Destroyed {
		s.mu.Unlock()
		s.teardown(h, t, nil)
		return
	}
	s.handle, s.token = h, t
	if h.Valid() {
		s.state = Initialized
	} else {
		s.state = Uninitialized
	}
	s.reloadCount++
	var props *templatedata.TemplateData
	if s.globalProps != nil {
		props = s.globalProps.DeepClone()
	}
	s.mu.Unlock()

	if !h.Valid() {
		s.reportError(lynxerr.New(lynxerr.SubEngineCreate, "engine instance creation failed on reload"))
		return
	}
	// Destroy may have taken the new pair between the unlock and here.
	if s.destroyed.Load() {
		return
	}
	s.emitter.SetProxy(s.eng.EventProxy(h))
	s.updateViewport(h, prevViewport)
	if props != nil {
		s.eng.UpdateGlobalProps(h, props)
	}
	if s.destroyed.Load() {
		return
	}
	s.logger.Info().Str(`url`, s.URL()).Log(`engine instance recreated`)
	s.publish(session.EventReloaded)
}
