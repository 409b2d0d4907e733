package lanes

import (
	"time"

	"github.com/lynxrender/tui/internal/client"
)

// Zone identifies a lane group.
type Zone int

const (
	ZoneLive Zone = iota
	ZonePending
	ZoneGone
)

// StaleThreshold is how long an initialized session may go without a load
// before it is shown as pending rather than live.
const StaleThreshold = 30 * time.Second

// Classify returns the zone a session belongs in.
func Classify(s *client.SessionInfo) Zone {
	switch s.State {
	case client.StateDestroyed:
		return ZoneGone
	case client.StateUninitialized, client.StateReloading:
		return ZonePending
	case client.StateInitialized:
		if s.Loaded {
			return ZoneLive
		}
		if !s.CreatedAt.IsZero() && time.Since(s.CreatedAt) < StaleThreshold {
			return ZoneLive
		}
		return ZonePending
	default:
		return ZonePending
	}
}

// ZoneName returns a display label.
func ZoneName(z Zone) string {
	switch z {
	case ZoneLive:
		return "LIVE"
	case ZonePending:
		return "PENDING"
	case ZoneGone:
		return "GONE"
	default:
		return "?"
	}
}
