package session

import (
	"encoding/json"
	"time"

	"github.com/lynxrender/backend/internal/engine"
)

// State is the lifecycle state of a render session.
type State int

const (
	Uninitialized State = iota
	Initialized
	Reloading
	Destroyed
)

var stateNames = map[State]string{
	Uninitialized: "uninitialized",
	Initialized:   "initialized",
	Reloading:     "reloading",
	Destroyed:     "destroyed",
}

var stateFromName = map[string]State{
	"uninitialized": Uninitialized,
	"initialized":   Initialized,
	"reloading":     Reloading,
	"destroyed":     Destroyed,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	}
	return nil
}

// Info is a point-in-time snapshot of a render session.
type Info struct {
	ID                 string                `json:"id"`
	URL                string                `json:"url"`
	State              State                 `json:"state"`
	ThreadStrategy     engine.ThreadStrategy `json:"threadStrategy"`
	AutoConcurrency    bool                  `json:"autoConcurrency,omitempty"`
	LayoutOnBackground bool                  `json:"layoutOnBackground,omitempty"`
	Viewport           engine.Viewport       `json:"viewport"`
	Handle             uint64                `json:"handle,omitempty"`
	Loaded             bool                  `json:"loaded"`
	PageVersion        string                `json:"pageVersion,omitempty"`
	VsyncAlignedFlush  bool                  `json:"vsyncAlignedFlush,omitempty"`
	ReloadCount        int                   `json:"reloadCount"`
	DestroyAttempts    int                   `json:"destroyAttempts,omitempty"`
	ErrorCount         int                   `json:"errorCount"`
	LastError          string                `json:"lastError,omitempty"`
	Lane               int                   `json:"lane"`
	CreatedAt          time.Time             `json:"createdAt"`
	LastActivityAt     time.Time             `json:"lastActivityAt"`
	LoadedAt           *time.Time            `json:"loadedAt,omitempty"`
	DestroyedAt        *time.Time            `json:"destroyedAt,omitempty"`
}

// Clone returns a deep copy of the Info, duplicating pointer fields so the
// copy can be mutated independently of the original.
func (s *Info) Clone() *Info {
	c := *s
	if s.LoadedAt != nil {
		t := *s.LoadedAt
		c.LoadedAt = &t
	}
	if s.DestroyedAt != nil {
		t := *s.DestroyedAt
		c.DestroyedAt = &t
	}
	return &c
}

func (s *Info) IsTerminal() bool {
	return s.State == Destroyed
}
