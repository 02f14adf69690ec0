package monitor

import (
	"time"
)

// stepClock returns t, then advances it by step on every call.
type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// scriptedSampler replays a fixed RSS sequence, repeating the last value.
type scriptedSampler struct {
	values []uint64
	calls  int
}

func (s *scriptedSampler) ResidentBytes() uint64 {
	i := s.calls
	if i >= len(s.values) {
		i = len(s.values) - 1
	}
	s.calls++
	return s.values[i]
}

func mib(n float64) uint64 { return uint64(n * bytesPerMB) }
