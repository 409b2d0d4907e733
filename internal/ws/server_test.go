package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lynxrender/backend/internal/config"
	"github.com/lynxrender/backend/internal/history"
	"github.com/lynxrender/backend/internal/host"
	"github.com/lynxrender/backend/internal/session"
)

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

type fakeController struct {
	reloaded  []string
	destroyed []string
	err       error
}

func (f *fakeController) Reload(id string) error {
	if f.err != nil {
		return f.err
	}
	f.reloaded = append(f.reloaded, id)
	return nil
}

func (f *fakeController) Destroy(id string) error {
	if f.err != nil {
		return f.err
	}
	f.destroyed = append(f.destroyed, id)
	return nil
}

func (f *fakeController) Stats() host.ProcessStats {
	return host.ProcessStats{PID: 42, LiveSessions: 1}
}

func newTestServer(t *testing.T, cfg *config.Config, redactor *session.Redactor) (*Server, *session.Store, *fakeController) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	store := session.NewStore()
	b := NewBroadcaster(store, 10*time.Millisecond, time.Hour, 0, redactor, nil)
	t.Cleanup(b.Stop)
	ctrl := &fakeController{}
	return NewServer(cfg, store, b, ctrl, nil, nil), store, ctrl
}

func do(t *testing.T, h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleSessions(t *testing.T) {
	srv, store, _ := newTestServer(t, nil, &session.Redactor{BlockedURLs: []string{"/tmp/*"}})
	store.Update(&session.Info{ID: "s1", URL: "file:///data/a.lynx"})
	store.Update(&session.Info{ID: "s2", URL: "file:///tmp/b.lynx"})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got []*session.Info
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	assertSessionIDs(t, got, "s1")
}

func TestHandleSession(t *testing.T) {
	srv, store, _ := newTestServer(t, nil, &session.Redactor{BlockedURLs: []string{"/tmp/*"}})
	store.Update(&session.Info{ID: "s1", URL: "file:///data/a.lynx"})
	store.Update(&session.Info{ID: "s2", URL: "file:///tmp/b.lynx"})
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/sessions/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got session.Info
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "s1" {
		t.Errorf("id = %q, want s1", got.ID)
	}

	for _, id := range []string{"s2", "missing"} {
		if rec := do(t, h, http.MethodGet, "/api/sessions/"+id, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", id, rec.Code)
		}
	}
}

func TestSessionActions(t *testing.T) {
	srv, store, ctrl := newTestServer(t, nil, nil)
	store.Update(&session.Info{ID: "s1"})
	h := srv.Handler()

	if rec := do(t, h, http.MethodPost, "/api/sessions/s1/reload", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("reload status = %d, want 204", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/sessions/s1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("destroy status = %d, want 204", rec.Code)
	}
	if len(ctrl.reloaded) != 1 || ctrl.reloaded[0] != "s1" {
		t.Errorf("reloaded = %v", ctrl.reloaded)
	}
	if len(ctrl.destroyed) != 1 || ctrl.destroyed[0] != "s1" {
		t.Errorf("destroyed = %v", ctrl.destroyed)
	}

	ctrl.err = host.ErrSessionNotFound
	if rec := do(t, h, http.MethodPost, "/api/sessions/gone/reload", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing reload status = %d, want 404", rec.Code)
	}
	ctrl.err = errors.New("engine busy")
	if rec := do(t, h, http.MethodDelete, "/api/sessions/s1", nil); rec.Code != http.StatusInternalServerError {
		t.Errorf("failed destroy status = %d, want 500", rec.Code)
	}
}

func TestSessionActions_BlockedSessionHidden(t *testing.T) {
	srv, store, ctrl := newTestServer(t, nil, &session.Redactor{BlockedURLs: []string{"/tmp/*"}})
	store.Update(&session.Info{ID: "s1", URL: "file:///tmp/a.lynx"})

	if rec := do(t, srv.Handler(), http.MethodDelete, "/api/sessions/s1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if len(ctrl.destroyed) != 0 {
		t.Errorf("blocked session destroyed: %v", ctrl.destroyed)
	}
}

func TestAuthToken(t *testing.T) {
	cfg := config.Default()
	cfg.Server.AuthToken = "secret"
	srv, _, _ := newTestServer(t, cfg, nil)
	h := srv.Handler()

	tests := []struct {
		name   string
		target string
		hdr    map[string]string
		want   int
	}{
		{"Missing", "/api/sessions", nil, http.StatusUnauthorized},
		{"Wrong", "/api/sessions?token=nope", nil, http.StatusUnauthorized},
		{"Query", "/api/sessions?token=secret", nil, http.StatusOK},
		{"Header", "/api/sessions", map[string]string{"X-Devtool-Token": "secret"}, http.StatusOK},
		{"Bearer", "/api/sessions", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodGet, tt.target, tt.hdr); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	srv, store, _ := newTestServer(t, nil, nil)
	store.Update(&session.Info{ID: "s1"})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st StatusPayload
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Process.PID != 42 {
		t.Errorf("pid = %d, want 42", st.Process.PID)
	}
	if st.LiveSessions != 1 {
		t.Errorf("liveSessions = %d, want 1", st.LiveSessions)
	}
	if st.Resources == nil {
		t.Error("resources should be an empty list, not null")
	}
}

func TestCheckOrigin(t *testing.T) {
	cfg := config.Default()
	cfg.Server.AllowedOrigins = []string{"https://devtool.example.com"}
	restricted, _, _ := newTestServer(t, cfg, nil)
	open, _, _ := newTestServer(t, nil, nil)

	tests := []struct {
		name   string
		srv    *Server
		origin string
		want   bool
	}{
		{"NoOrigin", restricted, "", true},
		{"Configured", restricted, "https://devtool.example.com", true},
		{"NotConfigured", restricted, "https://evil.example.com", false},
		{"Localhost", open, "http://localhost:5173", true},
		{"SameHost", open, "http://example.com", true},
		{"Foreign", open, "https://evil.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := tt.srv.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestHandleHistory(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)
	h := srv.Handler()

	if rec := do(t, h, http.MethodGet, "/api/history", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status without tracker = %d, want 404", rec.Code)
	}

	tracker, err := history.NewTracker(history.NewStore(t.TempDir()), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	srv.SetHistory(tracker)

	rec := do(t, h, http.MethodGet, "/api/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st history.Stats
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.SessionsPerStrategy == nil {
		t.Error("expected initialized strategy map")
	}
}
