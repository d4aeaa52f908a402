package services

import (
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"github.com/rs/zerolog/log"
)

// ProcessStats samples CPU and memory usage of the current process for the
// audit trail. CPU percent is the process CPU time delta since the previous
// sample divided by wall time, matching the usual since-last-call semantics.
type ProcessStats struct {
	mu       sync.Mutex
	proc     procfs.Proc
	ok       bool
	lastCPU  float64
	lastTime time.Time
}

func NewProcessStats() *ProcessStats {
	s := &ProcessStats{}

	proc, err := procfs.Self()
	if err != nil {
		log.Warn().Err(err).Msg("procfs unavailable, resource sampling disabled")
		return s
	}
	s.proc = proc
	s.ok = true

	if stat, err := proc.Stat(); err == nil {
		s.lastCPU = stat.CPUTime()
		s.lastTime = time.Now()
	}
	return s
}

// Sample returns (cpuPercent, memoryMB). Both are nil when /proc cannot be
// read; sampling failures never fail a request.
func (s *ProcessStats) Sample() (*float64, *float64) {
	if s == nil || !s.ok {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stat, err := s.proc.Stat()
	if err != nil {
		return nil, nil
	}

	now := time.Now()
	var cpu *float64
	if elapsed := now.Sub(s.lastTime).Seconds(); elapsed > 0 && !s.lastTime.IsZero() {
		pct := (stat.CPUTime() - s.lastCPU) / elapsed * 100
		if pct < 0 {
			pct = 0
		}
		cpu = &pct
	}
	s.lastCPU = stat.CPUTime()
	s.lastTime = now

	mem := float64(stat.ResidentMemory()) / (1024 * 1024)
	return cpu, &mem
}
