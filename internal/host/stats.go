package host

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is a point-in-time sample of the host process.
type ProcessStats struct {
	PID          int       `json:"pid"`
	CPUPercent   float64   `json:"cpuPercent"`
	RSSBytes     uint64    `json:"rssBytes"`
	Threads      int32     `json:"threads"`
	Goroutines   int       `json:"goroutines"`
	LiveSessions int       `json:"liveSessions"`
	SampledAt    time.Time `json:"sampledAt"`
}

type sampler struct {
	mu    sync.Mutex
	proc  *process.Process
	stats ProcessStats
}

func newSampler() *sampler {
	return &sampler{}
}

func (s *sampler) sample(live int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return fmt.Errorf("open self process: %w", err)
		}
		s.proc = p
	}

	st := ProcessStats{
		PID:          int(s.proc.Pid),
		Goroutines:   runtime.NumGoroutine(),
		LiveSessions: live,
		SampledAt:    time.Now(),
	}
	var firstErr error
	if cpu, err := s.proc.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	} else {
		firstErr = fmt.Errorf("cpu percent: %w", err)
	}
	if mem, err := s.proc.MemoryInfo(); err == nil {
		st.RSSBytes = mem.RSS
	} else if firstErr == nil {
		firstErr = fmt.Errorf("memory info: %w", err)
	}
	if n, err := s.proc.NumThreads(); err == nil {
		st.Threads = n
	} else if firstErr == nil {
		firstErr = fmt.Errorf("threads: %w", err)
	}
	s.stats = st
	return firstErr
}

func (s *sampler) last() ProcessStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
