package ws

import (
	"github.com/lynxrender/backend/internal/history"
	"github.com/lynxrender/backend/internal/host"
	"github.com/lynxrender/backend/internal/resource"
	"github.com/lynxrender/backend/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgError    MessageType = "error"
	MsgStatus   MessageType = "status"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

type SnapshotPayload struct {
	Sessions []*session.Info `json:"sessions"`
}

type DeltaPayload struct {
	Updates []*session.Info `json:"updates"`
	Removed []string        `json:"removed,omitempty"`
}

// ErrorPayload announces an error reported to a session's clients.
type ErrorPayload struct {
	SessionID  string `json:"sessionId"`
	URL        string `json:"url,omitempty"`
	Message    string `json:"message"`
	ErrorCount int    `json:"errorCount"`
}

type StatusPayload struct {
	Process       host.ProcessStats       `json:"process"`
	Resources     []resource.SchemeHealth `json:"resources"`
	LiveSessions  int                     `json:"liveSessions"`
	Clients       int                     `json:"clients"`
	DroppedEvents int                     `json:"droppedEvents"`
	History       *history.Stats          `json:"history,omitempty"`
}
