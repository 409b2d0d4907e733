package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lynxrender/backend/internal/engine"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Uninitialized, "uninitialized"},
		{Initialized, "initialized"},
		{Reloading, "reloading"},
		{Destroyed, "destroyed"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func TestStateJSONRoundTrip(t *testing.T) {
	for s := range stateNames {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", s, err)
		}
		var got State
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if got != s {
			t.Errorf("round trip %v -> %s -> %v", s, data, got)
		}
	}
}

func TestStateUnmarshalUnknownKeepsValue(t *testing.T) {
	s := Initialized
	if err := json.Unmarshal([]byte(`"exploded"`), &s); err != nil {
		t.Fatal(err)
	}
	if s != Initialized {
		t.Errorf("unknown name changed state to %v", s)
	}
	if err := json.Unmarshal([]byte(`3`), &s); err == nil {
		t.Error("expected error for non-string state")
	}
}

func TestInfoJSON(t *testing.T) {
	info := &Info{
		ID:             "s1",
		URL:            "file:///page.yaml",
		State:          Initialized,
		ThreadStrategy: engine.MultiThread,
		Viewport:       engine.Viewport{Width: 320, Height: 640, WidthMode: engine.Exactly},
	}
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["state"] != "initialized" {
		t.Errorf("state = %v", raw["state"])
	}
	if raw["threadStrategy"] != "multi_thread" {
		t.Errorf("threadStrategy = %v", raw["threadStrategy"])
	}
	vp := raw["viewport"].(map[string]any)
	if vp["widthMode"] != "exactly" || vp["heightMode"] != "unspecified" {
		t.Errorf("viewport = %v", vp)
	}
	if _, ok := raw["destroyedAt"]; ok {
		t.Error("nil destroyedAt should be omitted")
	}
}

func TestInfoClone(t *testing.T) {
	now := time.Now()
	orig := &Info{ID: "a", LoadedAt: &now, DestroyedAt: &now}
	c := orig.Clone()

	*c.LoadedAt = now.Add(time.Hour)
	*c.DestroyedAt = now.Add(time.Hour)
	if !orig.LoadedAt.Equal(now) || !orig.DestroyedAt.Equal(now) {
		t.Error("Clone shares time pointers with original")
	}
}

func TestIsTerminal(t *testing.T) {
	for s := range stateNames {
		info := &Info{State: s}
		if got, want := info.IsTerminal(), s == Destroyed; got != want {
			t.Errorf("IsTerminal(%v) = %v, want %v", s, got, want)
		}
	}
}
