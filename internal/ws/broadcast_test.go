package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lynxrender/backend/internal/session"
)

func newTestBroadcaster(store *session.Store, redactor *session.Redactor) *Broadcaster {
	if redactor == nil {
		redactor = &session.Redactor{}
	}
	return &Broadcaster{
		clients:  make(map[*client]bool),
		store:    store,
		redactor: redactor,
		stop:     make(chan struct{}),
	}
}

// attachReader registers a client without a connection so tests can read
// broadcast frames straight off its send channel.
func attachReader(b *Broadcaster) *client {
	c := &client{b: b, send: make(chan []byte, 16)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()
	return c
}

type rawMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, c *client) rawMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg rawMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return rawMessage{}
	}
}

// assertSessionIDs checks that the result slice contains exactly the expected
// session IDs, in order.
func assertSessionIDs(t *testing.T, result []*session.Info, expected ...string) {
	t.Helper()
	if len(result) != len(expected) {
		t.Fatalf("expected %d sessions, got %d", len(expected), len(result))
	}
	for i, id := range expected {
		if result[i].ID != id {
			t.Errorf("result[%d]: expected %s, got %s", i, id, result[i].ID)
		}
	}
}

func TestFilterSessions_NoRedactor(t *testing.T) {
	b := newTestBroadcaster(session.NewStore(), nil)

	sessions := []*session.Info{
		{ID: "s1", URL: "file:///data/app/home.lynx"},
		{ID: "s2", URL: "https://cdn.example.com/feed.lynx?uid=7"},
	}

	result := b.FilterSessions(sessions)
	assertSessionIDs(t, result, "s1", "s2")
	if result[1].URL != sessions[1].URL {
		t.Errorf("URL changed without masking: %q", result[1].URL)
	}
}

func TestFilterSessions_URLFiltering(t *testing.T) {
	tests := []struct {
		name     string
		redactor *session.Redactor
		sessions []*session.Info
		wantIDs  []string
	}{
		{
			name:     "BlockedURLs",
			redactor: &session.Redactor{BlockedURLs: []string{"/tmp/*"}},
			sessions: []*session.Info{
				{ID: "s1", URL: "file:///data/app/home.lynx"},
				{ID: "s2", URL: "file:///tmp/scratch.lynx"},
			},
			wantIDs: []string{"s1"},
		},
		{
			name:     "AllowedURLs",
			redactor: &session.Redactor{AllowedURLs: []string{"cdn.example.com/*"}},
			sessions: []*session.Info{
				{ID: "s1", URL: "https://cdn.example.com/pages/feed.lynx"},
				{ID: "s2", URL: "https://other.example.com/feed.lynx"},
				{ID: "s3", URL: ""},
			},
			wantIDs: []string{"s1", "s3"},
		},
		{
			name: "BlockedWinsOverAllowed",
			redactor: &session.Redactor{
				AllowedURLs: []string{"cdn.example.com/*"},
				BlockedURLs: []string{"cdn.example.com/private"},
			},
			sessions: []*session.Info{
				{ID: "s1", URL: "https://cdn.example.com/public/a.lynx"},
				{ID: "s2", URL: "https://cdn.example.com/private/b.lynx"},
			},
			wantIDs: []string{"s1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroadcaster(session.NewStore(), tt.redactor)
			assertSessionIDs(t, b.FilterSessions(tt.sessions), tt.wantIDs...)
		})
	}
}

func TestFilterSessions_Masking(t *testing.T) {
	b := newTestBroadcaster(session.NewStore(), &session.Redactor{
		MaskURLQuery:  true,
		MaskLocalPath: true,
	})

	sessions := []*session.Info{
		{ID: "s1", URL: "https://cdn.example.com/feed.lynx?uid=7#top", LastError: "fetch https://cdn.example.com/feed.lynx?uid=7 failed"},
		{ID: "s2", URL: "file:///data/user/app/home.lynx"},
	}

	result := b.FilterSessions(sessions)
	assertSessionIDs(t, result, "s1", "s2")

	if got, want := result[0].URL, "https://cdn.example.com/feed.lynx"; got != want {
		t.Errorf("masked URL = %q, want %q", got, want)
	}
	if got, want := result[0].LastError, "fetch https://cdn.example.com/feed.lynx failed"; got != want {
		t.Errorf("masked error = %q, want %q", got, want)
	}
	if got, want := result[1].URL, "home.lynx"; got != want {
		t.Errorf("masked local path = %q, want %q", got, want)
	}
}

func TestFilterSessions_MaskIDs(t *testing.T) {
	b := newTestBroadcaster(session.NewStore(), &session.Redactor{MaskIDs: true})

	result := b.FilterSessions([]*session.Info{{ID: "session-1"}})
	if len(result) != 1 {
		t.Fatalf("expected 1 session, got %d", len(result))
	}
	if result[0].ID == "session-1" || len(result[0].ID) != 12 {
		t.Errorf("ID not masked: %q", result[0].ID)
	}

	again := b.FilterSessions([]*session.Info{{ID: "session-1"}})
	if again[0].ID != result[0].ID {
		t.Errorf("masking not stable: %q vs %q", again[0].ID, result[0].ID)
	}
}

func TestFilterSessions_DoesNotMutateInput(t *testing.T) {
	b := newTestBroadcaster(session.NewStore(), &session.Redactor{MaskURLQuery: true, MaskIDs: true})

	orig := &session.Info{ID: "s1", URL: "https://cdn.example.com/a.lynx?k=v"}
	_ = b.FilterSessions([]*session.Info{orig})

	if orig.ID != "s1" || orig.URL != "https://cdn.example.com/a.lynx?k=v" {
		t.Errorf("input mutated: %+v", orig)
	}
}

func TestFilterSessions_Empty(t *testing.T) {
	b := newTestBroadcaster(session.NewStore(), &session.Redactor{BlockedURLs: []string{"*"}})

	result := b.FilterSessions(nil)
	if result == nil || len(result) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", result)
	}
}

func TestFilterSession_Blocked(t *testing.T) {
	b := newTestBroadcaster(session.NewStore(), &session.Redactor{BlockedURLs: []string{"/tmp/*"}})

	if _, ok := b.FilterSession(&session.Info{ID: "s1", URL: "file:///tmp/a.lynx"}); ok {
		t.Error("blocked session exposed")
	}
	info, ok := b.FilterSession(&session.Info{ID: "s2", URL: "file:///data/a.lynx"})
	if !ok || info.ID != "s2" {
		t.Errorf("allowed session hidden: %v %v", info, ok)
	}
}

func TestFlush_DedupesAndDropsRemoved(t *testing.T) {
	b := newTestBroadcaster(session.NewStore(), nil)
	c := attachReader(b)

	b.QueueUpdate(
		&session.Info{ID: "s1", ReloadCount: 1},
		&session.Info{ID: "s2"},
		&session.Info{ID: "s1", ReloadCount: 2},
	)
	b.QueueRemoval("s2")
	b.flush()

	msg := readMessage(t, c)
	if msg.Type != MsgDelta {
		t.Fatalf("type = %q, want %q", msg.Type, MsgDelta)
	}
	var delta DeltaPayload
	if err := json.Unmarshal(msg.Payload, &delta); err != nil {
		t.Fatalf("unmarshal delta: %v", err)
	}
	assertSessionIDs(t, delta.Updates, "s1")
	if delta.Updates[0].ReloadCount != 2 {
		t.Errorf("kept stale update: reloadCount = %d", delta.Updates[0].ReloadCount)
	}
	if len(delta.Removed) != 1 || delta.Removed[0] != "s2" {
		t.Errorf("removed = %v, want [s2]", delta.Removed)
	}
}

func TestFlush_NothingPending(t *testing.T) {
	b := newTestBroadcaster(session.NewStore(), nil)
	c := attachReader(b)

	b.flush()

	select {
	case data := <-c.send:
		t.Fatalf("unexpected broadcast: %s", data)
	default:
	}
}

func TestWatch_ForwardsStoreEvents(t *testing.T) {
	store := session.NewStore()
	b := newTestBroadcaster(store, nil)
	b.throttle = 10 * time.Millisecond
	c := attachReader(b)

	done := make(chan struct{})
	go func() {
		b.Watch(t.Context())
		close(done)
	}()
	// Watch subscribes asynchronously; wait until it is listening.
	deadline := time.Now().Add(2 * time.Second)
	for {
		store.Update(&session.Info{ID: "probe"})
		select {
		case <-c.send:
		case <-time.After(50 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("watch never subscribed")
			}
			continue
		}
		break
	}

	store.Publish(session.EventError, &session.Info{ID: "probe", LastError: "boom", ErrorCount: 1})

	var sawError bool
	for !sawError {
		msg := readMessage(t, c)
		if msg.Type != MsgError {
			continue
		}
		var p ErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			t.Fatalf("unmarshal error payload: %v", err)
		}
		if p.SessionID != "probe" || p.Message != "boom" || p.ErrorCount != 1 {
			t.Errorf("error payload = %+v", p)
		}
		sawError = true
	}

	b.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after Stop")
	}
}
