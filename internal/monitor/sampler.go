package monitor

import (
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/23skdu/contextwatch/internal/logger"
)

// Sampler reports the resident set size of the current process.
type Sampler interface {
	ResidentBytes() uint64
}

// ProcessSampler reads RSS for this process through gopsutil.
type ProcessSampler struct {
	mu       sync.Mutex
	proc     *process.Process
	last     uint64
	haveLast bool
	warned   bool
}

func NewProcessSampler() *ProcessSampler {
	s := &ProcessSampler{}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Log.Warn("Process handle unavailable, falling back to runtime stats", "error", err)
		return s
	}
	s.proc = proc
	return s
}

// ResidentBytes returns the current RSS. If the OS query fails the last good
// value is reused, or the Go runtime's Sys figure before any good value.
func (s *ProcessSampler) ResidentBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		info, err := s.proc.MemoryInfo()
		if err == nil && info != nil {
			s.last = info.RSS
			s.haveLast = true
			return info.RSS
		}
		if !s.warned {
			logger.Log.Warn("RSS sampling failed", "error", err)
			s.warned = true
		}
	}

	if s.haveLast {
		return s.last
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys
}
