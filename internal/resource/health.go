package resource

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type HealthStatus int

const (
	StatusHealthy HealthStatus = iota
	StatusDegraded
	StatusFailed
)

var healthStatusNames = map[HealthStatus]string{
	StatusHealthy:  "healthy",
	StatusDegraded: "degraded",
	StatusFailed:   "failed",
}

func (s HealthStatus) String() string {
	if n, ok := healthStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s HealthStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// DefaultFailureThreshold is the number of consecutive failures that marks a
// scheme failed, or a single URL degraded.
const DefaultFailureThreshold = 3

// schemeHealth tracks consecutive failures for one scheme plus per-URL
// failure counts.
type schemeHealth struct {
	failures    int
	urlFailures map[string]int
	lastErr     string
	lastFail    time.Time
	lastSuccess time.Time
}

// Health records fetch outcomes per scheme. It is safe for concurrent use.
type Health struct {
	mu        sync.Mutex
	threshold int
	schemes   map[string]*schemeHealth
}

func NewHealth() *Health {
	return &Health{
		threshold: DefaultFailureThreshold,
		schemes:   make(map[string]*schemeHealth),
	}
}

// SetThreshold changes the failure threshold. Values below one are ignored.
func (h *Health) SetThreshold(n int) {
	if n < 1 {
		return
	}
	h.mu.Lock()
	h.threshold = n
	h.mu.Unlock()
}

func (h *Health) entryLocked(scheme string) *schemeHealth {
	e, ok := h.schemes[scheme]
	if !ok {
		e = &schemeHealth{urlFailures: make(map[string]int)}
		h.schemes[scheme] = e
	}
	return e
}

func (h *Health) RecordSuccess(scheme, rawURL string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entryLocked(scheme)
	e.failures = 0
	e.lastSuccess = time.Now()
	delete(e.urlFailures, rawURL)
}

func (h *Health) RecordFailure(scheme, rawURL string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entryLocked(scheme)
	e.failures++
	e.urlFailures[rawURL]++
	e.lastErr = err.Error()
	e.lastFail = time.Now()
}

// Status reports the health of scheme. Unknown schemes are healthy.
func (h *Health) Status(scheme string) HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.schemes[scheme]
	if !ok {
		return StatusHealthy
	}
	return e.statusLocked(h.threshold)
}

func (e *schemeHealth) statusLocked(threshold int) HealthStatus {
	if e.failures >= threshold {
		return StatusFailed
	}
	if e.degradedCountLocked(threshold) > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}

func (e *schemeHealth) degradedCountLocked(threshold int) int {
	n := 0
	for _, f := range e.urlFailures {
		if f >= threshold {
			n++
		}
	}
	return n
}

// SchemeHealth is a point-in-time copy of one scheme's health.
type SchemeHealth struct {
	Scheme        string       `json:"scheme"`
	Status        HealthStatus `json:"status"`
	Failures      int          `json:"failures"`
	DegradedURLs  int          `json:"degradedUrls"`
	LastError     string       `json:"lastError,omitempty"`
	LastFailureAt *time.Time   `json:"lastFailureAt,omitempty"`
	LastSuccessAt *time.Time   `json:"lastSuccessAt,omitempty"`
}

// Snapshot returns every scheme seen so far, sorted by name.
func (h *Health) Snapshot() []SchemeHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]SchemeHealth, 0, len(h.schemes))
	for name, e := range h.schemes {
		sh := SchemeHealth{
			Scheme:       name,
			Status:       e.statusLocked(h.threshold),
			Failures:     e.failures,
			DegradedURLs: e.degradedCountLocked(h.threshold),
			LastError:    e.lastErr,
		}
		if !e.lastFail.IsZero() {
			t := e.lastFail
			sh.LastFailureAt = &t
		}
		if !e.lastSuccess.IsZero() {
			t := e.lastSuccess
			sh.LastSuccessAt = &t
		}
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scheme < out[j].Scheme })
	return out
}
