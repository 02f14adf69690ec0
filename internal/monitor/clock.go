// Package monitor holds the per-run trackers for context usage, step latency
// and process memory. A tracker set belongs to exactly one generation run and
// is not safe for concurrent use.
package monitor

import (
	"math"
	"time"
)

// Clock samples wall-clock time for step timing.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now, which carries a monotonic reading.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

const bytesPerMB = 1024 * 1024

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func floatPtr(v float64) *float64 { return &v }

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
