// Package client provides WebSocket and HTTP clients for the render host
// devtool server. Types mirror the server wire protocol without importing
// backend packages.
package client

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgError    MessageType = "error"
	MsgStatus   MessageType = "status"
)

// WSMessage is the envelope for all WebSocket messages.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// State is a session lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateReloading     State = "reloading"
	StateDestroyed     State = "destroyed"
)

// Viewport mirrors the engine viewport.
type Viewport struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	WidthMode  string `json:"widthMode"`
	HeightMode string `json:"heightMode"`
}

// SessionInfo mirrors backend/internal/session.Info.
type SessionInfo struct {
	ID                 string     `json:"id"`
	URL                string     `json:"url"`
	State              State      `json:"state"`
	ThreadStrategy     string     `json:"threadStrategy"`
	AutoConcurrency    bool       `json:"autoConcurrency,omitempty"`
	LayoutOnBackground bool       `json:"layoutOnBackground,omitempty"`
	Viewport           Viewport   `json:"viewport"`
	Handle             uint64     `json:"handle,omitempty"`
	Loaded             bool       `json:"loaded"`
	PageVersion        string     `json:"pageVersion,omitempty"`
	VsyncAlignedFlush  bool       `json:"vsyncAlignedFlush,omitempty"`
	ReloadCount        int        `json:"reloadCount"`
	DestroyAttempts    int        `json:"destroyAttempts,omitempty"`
	ErrorCount         int        `json:"errorCount"`
	LastError          string     `json:"lastError,omitempty"`
	Lane               int        `json:"lane"`
	CreatedAt          time.Time  `json:"createdAt"`
	LastActivityAt     time.Time  `json:"lastActivityAt"`
	LoadedAt           *time.Time `json:"loadedAt,omitempty"`
	DestroyedAt        *time.Time `json:"destroyedAt,omitempty"`
}

// --- WebSocket payload types ---

// SnapshotPayload is sent on connect and on every snapshot tick.
type SnapshotPayload struct {
	Sessions []*SessionInfo `json:"sessions"`
}

// DeltaPayload contains coalesced session updates.
type DeltaPayload struct {
	Updates []*SessionInfo `json:"updates"`
	Removed []string       `json:"removed,omitempty"`
}

// ErrorPayload announces an error reported to a session's clients.
type ErrorPayload struct {
	SessionID  string `json:"sessionId"`
	URL        string `json:"url,omitempty"`
	Message    string `json:"message"`
	ErrorCount int    `json:"errorCount"`
}

// HealthStatus indicates a fetch scheme's health.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// SchemeHealth mirrors backend/internal/resource.SchemeHealth.
type SchemeHealth struct {
	Scheme        string       `json:"scheme"`
	Status        HealthStatus `json:"status"`
	Failures      int          `json:"failures"`
	DegradedURLs  int          `json:"degradedUrls"`
	LastError     string       `json:"lastError,omitempty"`
	LastFailureAt *time.Time   `json:"lastFailureAt,omitempty"`
	LastSuccessAt *time.Time   `json:"lastSuccessAt,omitempty"`
}

// ProcessStats mirrors backend/internal/host.ProcessStats.
type ProcessStats struct {
	PID          int       `json:"pid"`
	CPUPercent   float64   `json:"cpuPercent"`
	RSSBytes     uint64    `json:"rssBytes"`
	Threads      int32     `json:"threads"`
	Goroutines   int       `json:"goroutines"`
	LiveSessions int       `json:"liveSessions"`
	SampledAt    time.Time `json:"sampledAt"`
}

// History mirrors backend/internal/history.Stats.
type History struct {
	Version               int            `json:"version"`
	TotalSessions         int            `json:"totalSessions"`
	TotalLoads            int            `json:"totalLoads"`
	TotalReloads          int            `json:"totalReloads"`
	TotalErrors           int            `json:"totalErrors"`
	DestroyedSessions     int            `json:"destroyedSessions"`
	SessionsPerStrategy   map[string]int `json:"sessionsPerStrategy"`
	ErrorsPerStrategy     map[string]int `json:"errorsPerStrategy"`
	MaxConcurrentLive     int            `json:"maxConcurrentLive"`
	MaxReloadCount        int            `json:"maxReloadCount"`
	MaxDestroyAttempts    int            `json:"maxDestroyAttempts"`
	MaxSessionLifetimeSec float64        `json:"maxSessionLifetimeSec"`
	LastUpdated           time.Time      `json:"lastUpdated"`
}

// --- HTTP response types ---

// Status is returned by /api/status.
type Status struct {
	Process       ProcessStats   `json:"process"`
	Resources     []SchemeHealth `json:"resources"`
	LiveSessions  int            `json:"liveSessions"`
	Clients       int            `json:"clients"`
	DroppedEvents int            `json:"droppedEvents"`
	History       *History       `json:"history,omitempty"`
}
