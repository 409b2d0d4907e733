package render

import (
	"slices"
	"sync"

	"github.com/lynxrender/backend/internal/lynxerr"
)

// Client observes a session's lifecycle. Methods may be called from any
// goroutine.
type Client interface {
	OnPageStart(url string)
	OnLoadSuccess(url string)
	OnFirstScreen()
	OnPageUpdate()
	OnDataUpdated()
	OnRuntimeReady()
	OnReceivedError(err *lynxerr.Error)
	OnDestroy()
}

// BaseClient implements Client with no-ops, for embedding.
type BaseClient struct{}

func (BaseClient) OnPageStart(string)             {}
func (BaseClient) OnLoadSuccess(string)           {}
func (BaseClient) OnFirstScreen()                 {}
func (BaseClient) OnPageUpdate()                  {}
func (BaseClient) OnDataUpdated()                 {}
func (BaseClient) OnRuntimeReady()                {}
func (BaseClient) OnReceivedError(*lynxerr.Error) {}
func (BaseClient) OnDestroy()                     {}

// ClientGroup fans calls out to its members. Members are unique by
// identity, so they must be comparable.
type ClientGroup struct {
	mu      sync.RWMutex
	clients []Client
}

func NewClientGroup(clients ...Client) *ClientGroup {
	g := &ClientGroup{}
	for _, c := range clients {
		g.Add(c)
	}
	return g
}

func (g *ClientGroup) Add(c Client) {
	if c == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if slices.Contains(g.clients, c) {
		return
	}
	g.clients = append(g.clients, c)
}

func (g *ClientGroup) Remove(c Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i := slices.Index(g.clients, c); i >= 0 {
		g.clients = slices.Delete(g.clients, i, i+1)
	}
}

func (g *ClientGroup) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

func (g *ClientGroup) each(fn func(Client)) {
	g.mu.RLock()
	clients := slices.Clone(g.clients)
	g.mu.RUnlock()
	for _, c := range clients {
		fn(c)
	}
}

func (g *ClientGroup) OnPageStart(url string)   { g.each(func(c Client) { c.OnPageStart(url) }) }
func (g *ClientGroup) OnLoadSuccess(url string) { g.each(func(c Client) { c.OnLoadSuccess(url) }) }
func (g *ClientGroup) OnFirstScreen()           { g.each(func(c Client) { c.OnFirstScreen() }) }
func (g *ClientGroup) OnPageUpdate()            { g.each(func(c Client) { c.OnPageUpdate() }) }
func (g *ClientGroup) OnDataUpdated()           { g.each(func(c Client) { c.OnDataUpdated() }) }
func (g *ClientGroup) OnRuntimeReady()          { g.each(func(c Client) { c.OnRuntimeReady() }) }
func (g *ClientGroup) OnDestroy()               { g.each(func(c Client) { c.OnDestroy() }) }

func (g *ClientGroup) OnReceivedError(err *lynxerr.Error) {
	g.each(func(c Client) { c.OnReceivedError(err) })
}

var _ Client = (*ClientGroup)(nil)
