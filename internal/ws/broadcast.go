package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lynxrender/backend/internal/logging"
	"github.com/lynxrender/backend/internal/session"
)

var ErrTooManyConnections = errors.New("ws: too many connections")

const writeWait = 5 * time.Second

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans session store events out to websocket clients. Updates
// are coalesced for throttle and a full snapshot is sent on every tick of
// the snapshot interval.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	store    *session.Store
	redactor *session.Redactor
	throttle time.Duration
	maxConns int
	logger   *logging.Logger

	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once

	flushMu        sync.Mutex
	pendingUpdates []*session.Info
	pendingRemoved []string
	flushTimer     *time.Timer
}

// NewBroadcaster starts the snapshot loop. maxConns of zero means no limit;
// a nil redactor exposes sessions unchanged.
func NewBroadcaster(store *session.Store, throttle, snapshotInterval time.Duration, maxConns int, redactor *session.Redactor, logger *logging.Logger) *Broadcaster {
	if redactor == nil {
		redactor = &session.Redactor{}
	}
	if snapshotInterval <= 0 {
		snapshotInterval = 5 * time.Second
	}
	b := &Broadcaster{
		clients:        make(map[*client]bool),
		store:          store,
		redactor:       redactor,
		throttle:       throttle,
		maxConns:       maxConns,
		logger:         logging.Named(logger, `ws`),
		snapshotTicker: time.NewTicker(snapshotInterval),
		stop:           make(chan struct{}),
	}
	go b.snapshotLoop()
	return b
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, 64),
	}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()
	go c.writePump()

	data, err := json.Marshal(b.snapshot())
	if err != nil {
		b.logger.Err().Err(err).Log(`snapshot marshal failed`)
		return c, nil
	}
	b.mu.RLock()
	if b.clients[c] {
		select {
		case c.send <- data:
		default:
			// too slow for its first message
		}
	}
	b.mu.RUnlock()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// FilterSessions drops sessions whose URL is not exposed and masks the rest.
func (b *Broadcaster) FilterSessions(sessions []*session.Info) []*session.Info {
	return b.redactor.FilterSlice(sessions)
}

// FilterSession is FilterSessions for one snapshot. ok is false when the
// session is not exposed.
func (b *Broadcaster) FilterSession(info *session.Info) (*session.Info, bool) {
	if !b.redactor.IsAllowed(info.URL) {
		return nil, false
	}
	return b.redactor.Apply(info), true
}

// Watch forwards store events until ctx is done.
func (b *Broadcaster) Watch(ctx context.Context) {
	events, cancel := b.store.Subscribe(256)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.handle(ev)
		}
	}
}

func (b *Broadcaster) handle(ev session.Event) {
	switch ev.Type {
	case session.EventDestroyed:
		b.QueueRemoval(ev.Info.ID)
	case session.EventError:
		b.QueueUpdate(ev.Info)
		info, ok := b.FilterSession(ev.Info)
		if !ok {
			return
		}
		b.broadcast(WSMessage{
			Type: MsgError,
			Payload: ErrorPayload{
				SessionID:  info.ID,
				URL:        info.URL,
				Message:    info.LastError,
				ErrorCount: info.ErrorCount,
			},
		})
	default:
		b.QueueUpdate(ev.Info)
	}
}

func (b *Broadcaster) QueueUpdate(infos ...*session.Info) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingUpdates = append(b.pendingUpdates, infos...)
	b.armLocked()
}

func (b *Broadcaster) QueueRemoval(ids ...string) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingRemoved = append(b.pendingRemoved, ids...)
	b.armLocked()
}

func (b *Broadcaster) armLocked() {
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	updates := b.pendingUpdates
	removed := b.pendingRemoved
	b.pendingUpdates = nil
	b.pendingRemoved = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(updates) == 0 && len(removed) == 0 {
		return
	}

	gone := make(map[string]bool, len(removed))
	for _, id := range removed {
		gone[id] = true
	}
	// keep only the latest snapshot per session
	latest := make(map[string]int, len(updates))
	var merged []*session.Info
	for _, u := range updates {
		if gone[u.ID] {
			continue
		}
		if i, ok := latest[u.ID]; ok {
			merged[i] = u
			continue
		}
		latest[u.ID] = len(merged)
		merged = append(merged, u)
	}

	maskedRemoved := make([]string, 0, len(removed))
	for _, id := range removed {
		maskedRemoved = append(maskedRemoved, b.redactor.Apply(&session.Info{ID: id}).ID)
	}

	b.broadcast(WSMessage{
		Type: MsgDelta,
		Payload: DeltaPayload{
			Updates: b.FilterSessions(merged),
			Removed: maskedRemoved,
		},
	})
}

func (b *Broadcaster) snapshot() WSMessage {
	return WSMessage{
		Type:    MsgSnapshot,
		Payload: SnapshotPayload{Sessions: b.FilterSessions(b.store.GetAll())},
	}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(b.snapshot())
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Err().Err(err).Str(`type`, string(msg.Type)).Log(`broadcast marshal failed`)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		// send under the read lock so RemoveClient cannot close c.send
		b.mu.RLock()
		present, sent := b.clients[c], false
		if present {
			select {
			case c.send <- data:
				sent = true
			default:
			}
		}
		b.mu.RUnlock()
		if present && !sent {
			b.logger.Warning().Log(`ws client too slow, disconnecting`)
			b.RemoveClient(c)
		}
	}
}

// Stop ends the snapshot loop and Watch.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		if b.snapshotTicker != nil {
			b.snapshotTicker.Stop()
		}
		close(b.stop)
	})
}
