package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lynxrender/backend/internal/config"
	"github.com/lynxrender/backend/internal/history"
	"github.com/lynxrender/backend/internal/host"
	"github.com/lynxrender/backend/internal/logging"
	"github.com/lynxrender/backend/internal/resource"
	"github.com/lynxrender/backend/internal/session"
)

// Controller acts on live sessions by id.
type Controller interface {
	Reload(id string) error
	Destroy(id string) error
	Stats() host.ProcessStats
}

type Server struct {
	store          *session.Store
	broadcaster    *Broadcaster
	controller     Controller
	health         *resource.Health
	history        *history.Tracker
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	logger         *logging.Logger
}

// NewServer builds the devtool server. health may be nil.
func NewServer(cfg *config.Config, store *session.Store, broadcaster *Broadcaster, controller Controller, health *resource.Health, logger *logging.Logger) *Server {
	s := &Server{
		store:          store,
		broadcaster:    broadcaster,
		controller:     controller,
		health:         health,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.Server.AuthToken,
		logger:         logging.Named(logger, `devtool`),
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetHistory exposes lifetime counters on /api/history and /api/status.
func (s *Server) SetHistory(t *history.Tracker) {
	s.history = t
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDestroy)
	mux.HandleFunc("POST /api/sessions/{id}/reload", s.handleReload)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
}

// Handler returns the routes wrapped with security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warning().Err(err).Str(`remote`, r.RemoteAddr).Log(`ws upgrade failed`)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		s.logger.Warning().Err(err).Str(`remote`, r.RemoteAddr).Log(`ws client rejected`)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	s.logger.Info().Str(`remote`, r.RemoteAddr).Log(`ws client connected`)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.logger.Info().Str(`remote`, r.RemoteAddr).Log(`ws client disconnected`)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.writeJSON(w, s.broadcaster.FilterSessions(s.store.GetAll()))
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	info, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	masked, ok := s.broadcaster.FilterSession(info)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, masked)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "reload", s.controller.Reload)
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "destroy", s.controller.Destroy)
}

func (s *Server) act(w http.ResponseWriter, r *http.Request, op string, fn func(string) error) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.controller == nil {
		http.Error(w, "session control not available", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	if info, ok := s.store.Get(id); ok && !s.broadcasterAllows(info) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err := fn(id); err != nil {
		if errors.Is(err, host.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("%s failed: %v", op, err), http.StatusInternalServerError)
		return
	}
	s.logger.Info().Str(`op`, op).Str(`session`, id).Log(`session action`)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) broadcasterAllows(info *session.Info) bool {
	_, ok := s.broadcaster.FilterSession(info)
	return ok
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	st := StatusPayload{
		Resources:     []resource.SchemeHealth{},
		LiveSessions:  s.store.ActiveCount(),
		Clients:       s.broadcaster.ClientCount(),
		DroppedEvents: s.store.Dropped(),
	}
	if s.controller != nil {
		st.Process = s.controller.Stats()
	}
	if s.health != nil {
		st.Resources = s.health.Snapshot()
	}
	if s.history != nil {
		st.History = s.history.Stats()
	}
	s.writeJSON(w, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.history == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.history.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warning().Err(err).Log(`response encode failed`)
	}
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Devtool-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves handler until ctx is done, then shuts down.
func ListenAndServe(ctx context.Context, hostname string, port int, handler http.Handler, logger *logging.Logger) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(hostname, strconv.Itoa(port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str(`addr`, srv.Addr).Log(`devtool server listening`)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
