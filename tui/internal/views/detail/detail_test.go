package detail

import (
	"strings"
	"testing"
	"time"

	"github.com/lynxrender/tui/internal/client"
)

func TestViewNilSession(t *testing.T) {
	if got := New(nil).View(); got != "" {
		t.Errorf("View() = %q, want empty", got)
	}
}

func TestViewShowsSessionAndActions(t *testing.T) {
	s := &client.SessionInfo{
		ID:             "0123456789",
		URL:            "mock://feed",
		State:          client.StateInitialized,
		ThreadStrategy: "multi_thread",
		Viewport:       client.Viewport{Width: 1080, Height: 2340, WidthMode: "exactly"},
		Loaded:         true,
		ReloadCount:    3,
		LastError:      "template rejected",
		CreatedAt:      time.Now().Add(-2 * time.Minute),
	}
	m := New(s)
	m.ActionError = "POST /api/sessions/x/reload: 500"
	out := m.View()
	for _, want := range []string{
		"mock://feed",
		"multi_thread",
		"1080x2340",
		"exactly",
		"undefined",
		"3 reloads",
		"template rejected",
		"Action failed",
		"[r] reload",
		"[x] destroy",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestViewDestroyedFooter(t *testing.T) {
	out := New(&client.SessionInfo{ID: "a", State: client.StateDestroyed}).View()
	if strings.Contains(out, "[r] reload") {
		t.Error("destroyed session should not offer reload")
	}
	if !strings.Contains(out, "destroyed") {
		t.Error("footer should mark the session destroyed")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		s    client.SessionInfo
		want string
	}{
		{client.SessionInfo{URL: "https://cdn.example.com/pages/home.lynx"}, "home.lynx"},
		{client.SessionInfo{URL: "mock://feed"}, "feed"},
		{client.SessionInfo{URL: "file:///tmp/app/"}, "app"},
		{client.SessionInfo{ID: "abcdef0123"}, "abcdef01"},
		{client.SessionInfo{ID: "abc"}, "abc"},
	}
	for _, tt := range tests {
		if got := DisplayName(&tt.s); got != tt.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tt.s, got, tt.want)
		}
	}
}
