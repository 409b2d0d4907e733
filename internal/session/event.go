package session

import "encoding/json"

// EventType classifies session lifecycle events.
type EventType int

const (
	EventCreated   EventType = iota // session registered
	EventUpdated                    // state, viewport or strategy changed
	EventLoaded                     // template finished loading
	EventReloaded                   // engine instance replaced
	EventError                      // error reported to clients
	EventDestroyed                  // session torn down and removed
)

var eventTypeNames = map[EventType]string{
	EventCreated:   "created",
	EventUpdated:   "updated",
	EventLoaded:    "loaded",
	EventReloaded:  "reloaded",
	EventError:     "error",
	EventDestroyed: "destroyed",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Event carries a session snapshot to observers.
type Event struct {
	Type      EventType `json:"type"`
	Info      *Info     `json:"info"` // snapshot (safe to retain)
	LiveCount int       `json:"liveCount"`
}
