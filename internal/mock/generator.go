// Package mock drives synthetic render sessions through a Host so the
// devtool server has live traffic without an embedding app.
package mock

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/lynxrender/backend/internal/engine"
	"github.com/lynxrender/backend/internal/host"
	"github.com/lynxrender/backend/internal/logging"
	"github.com/lynxrender/backend/internal/render"
	"github.com/lynxrender/backend/internal/templatedata"
	"github.com/lynxrender/backend/internal/uithread"
)

const tickInterval = 500 * time.Millisecond

type mockSession struct {
	name     string
	template string
	strategy render.ThreadStrategy
	pattern  string
	s        *render.Session
	updates  int
}

var presets = []mockSession{
	{name: "feed-steady", template: "feed", strategy: render.AllOnUI, pattern: "steady"},
	{name: "profile-resize", template: "profile", strategy: render.PartOnLayout, pattern: "resize"},
	{name: "settings-reload", template: "settings", strategy: render.MostOnTASM, pattern: "reload"},
	{name: "player-error", template: "player", strategy: render.MultiThread, pattern: "error"},
	{name: "feed-churn", template: "feed", strategy: render.MultiThread, pattern: "churn"},
	{name: "profile-props", template: "profile", strategy: render.AllOnUI, pattern: "methodical"},
}

// widths cycles through common device widths for the resize pattern.
var widths = []int{1080, 720, 1440, 1080, 828}

type Generator struct {
	host   *host.Host
	looper uithread.Looper
	logger *logging.Logger

	mu       sync.Mutex
	sessions []*mockSession
}

func NewGenerator(h *host.Host, looper uithread.Looper, logger *logging.Logger) *Generator {
	return &Generator{
		host:   h,
		looper: looper,
		logger: logging.Named(logger, `mock`),
	}
}

// Start opens every preset session, then advances them on a ticker until
// ctx is done.
func (g *Generator) Start(ctx context.Context) error {
	g.mu.Lock()
	for i := range presets {
		ms := presets[i]
		if err := g.open(ctx, &ms); err != nil {
			g.mu.Unlock()
			return err
		}
		g.sessions = append(g.sessions, &ms)
	}
	g.mu.Unlock()

	go g.run(ctx)
	return nil
}

func (g *Generator) open(ctx context.Context, ms *mockSession) error {
	data := templatedata.FromMap(map[string]any{"session": ms.name})
	s, err := g.host.Open(ctx, URL(ms.template), data, render.WithStrategy(ms.strategy))
	if err != nil {
		return err
	}
	ms.s = s
	g.logger.Debug().Str(`session`, s.ID()).Str(`pattern`, ms.pattern).Log(`mock session opened`)
	return nil
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			g.Advance(ctx, tick)
		}
	}
}

// Advance applies one tick of every session's pattern.
func (g *Generator) Advance(ctx context.Context, tick int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ms := range g.sessions {
		g.advance(ctx, ms, tick)
	}
}

func (g *Generator) advance(ctx context.Context, ms *mockSession, tick int) {
	switch ms.pattern {
	case "steady":
		g.advanceSteady(ms)
	case "resize":
		g.advanceResize(ms, tick)
	case "reload":
		g.advanceReload(ms, tick)
	case "error":
		g.advanceError(ctx, ms, tick)
	case "churn":
		g.advanceChurn(ctx, ms, tick)
	case "methodical":
		g.advanceMethodical(ms, tick)
	}
}

func (g *Generator) advanceSteady(ms *mockSession) {
	ms.updates += 1 + rand.Intn(3)
	ms.s.UpdateData(templatedata.FromMap(map[string]any{"items": ms.updates}))
}

func (g *Generator) advanceResize(ms *mockSession, tick int) {
	if tick%4 != 0 {
		return
	}
	v := render.Viewport{
		Width:      widths[(tick/4)%len(widths)],
		WidthMode:  engine.Exactly,
		Height:     2000 + rand.Intn(400),
		HeightMode: engine.AtMost,
	}
	s := ms.s
	// measure passes come from the UI thread
	if err := g.looper.Post(func() { s.OnMeasure(v) }); err != nil {
		g.logger.Warning().Err(err).Log(`measure post failed`)
	}
}

func (g *Generator) advanceReload(ms *mockSession, tick int) {
	if tick%20 == 0 {
		ms.s.Reload()
	}
}

func (g *Generator) advanceError(ctx context.Context, ms *mockSession, tick int) {
	switch tick % 16 {
	case 12:
		ms.s.LoadTemplate(nil, nil)
	case 14:
		ms.s.LoadURL(ctx, URL(ms.template), nil)
	}
}

func (g *Generator) advanceChurn(ctx context.Context, ms *mockSession, tick int) {
	if tick%30 != 0 {
		return
	}
	ms.s.Destroy()
	if err := g.open(ctx, ms); err != nil {
		g.logger.Warning().Err(err).Str(`pattern`, ms.pattern).Log(`mock session reopen failed`)
	}
}

func (g *Generator) advanceMethodical(ms *mockSession, tick int) {
	if tick%5 != 0 {
		return
	}
	scale := 1.0 + 0.25*math.Sin(float64(tick)/10.0)
	ms.s.UpdateGlobalProps(templatedata.FromMap(map[string]any{
		"fontScale": math.Round(scale*100) / 100,
	}))
}

// Sessions returns the sessions currently driven by the generator.
func (g *Generator) Sessions() []*render.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*render.Session, 0, len(g.sessions))
	for _, ms := range g.sessions {
		out = append(out, ms.s)
	}
	return out
}
