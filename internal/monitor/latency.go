package monitor

import (
	"fmt"
	"time"
)

// DefaultRollingWindow is the number of recent steps in the rolling average.
const DefaultRollingWindow = 20

// LatencySnapshot records the timing of one generation step.
type LatencySnapshot struct {
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMs *float64  `json:"latency_ms"`
}

// LatencySummary is derived from the full snapshot history. Nil fields mean
// there was not enough data to compute them.
type LatencySummary struct {
	TTFTMs                *float64          `json:"ttft_ms"`
	CurrentTokenLatencyMs *float64          `json:"current_token_latency_ms"`
	RollingAvgMs          *float64          `json:"rolling_avg_ms"`
	TrendMsPer100Tokens   *float64          `json:"trend_ms_per_100_tokens"`
	Snapshots             []LatencySnapshot `json:"per_step_snapshots"`
}

// LatencyTracker turns per-step start/end timestamps into latency statistics.
type LatencyTracker struct {
	rollingWindow int
	clock         Clock

	snapshots []LatencySnapshot
	startTime time.Time
	started   bool
	ttftMs    *float64
}

type LatencyOption func(*LatencyTracker)

// WithClock replaces the system clock used by Start.
func WithClock(c Clock) LatencyOption {
	return func(t *LatencyTracker) {
		if c != nil {
			t.clock = c
		}
	}
}

func NewLatencyTracker(rollingWindow int, opts ...LatencyOption) (*LatencyTracker, error) {
	if rollingWindow < 1 {
		return nil, fmt.Errorf("invalid rolling window: %d (must be >= 1)", rollingWindow)
	}
	t := &LatencyTracker{
		rollingWindow: rollingWindow,
		clock:         SystemClock{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Start marks the baseline before the first forward pass. Calling it again
// resets the baseline.
func (t *LatencyTracker) Start() {
	t.startTime = t.clock.Now()
	t.started = true
}

func (t *LatencyTracker) RecordStep(step int, start, end time.Time) LatencySnapshot {
	latency := millis(end.Sub(start))

	if step == 0 && t.started {
		t.ttftMs = floatPtr(millis(end.Sub(t.startTime)))
	}

	snap := LatencySnapshot{
		Step:      step,
		Timestamp: end,
		LatencyMs: floatPtr(latency),
	}
	t.snapshots = append(t.snapshots, snap)
	return snap
}

// TTFT reports time to first token once step 0 has been recorded after Start.
func (t *LatencyTracker) TTFT() (time.Duration, bool) {
	if t.ttftMs == nil {
		return 0, false
	}
	return time.Duration(*t.ttftMs * float64(time.Millisecond)), true
}

func (t *LatencyTracker) Summarize() LatencySummary {
	if len(t.snapshots) == 0 {
		return LatencySummary{Snapshots: []LatencySnapshot{}}
	}

	var ttft, current *float64
	if t.ttftMs != nil {
		ttft = floatPtr(*t.ttftMs)
	}
	if last := t.snapshots[len(t.snapshots)-1].LatencyMs; last != nil {
		current = floatPtr(*last)
	}

	return LatencySummary{
		TTFTMs:                ttft,
		CurrentTokenLatencyMs: current,
		RollingAvgMs:          t.rollingAverage(),
		TrendMsPer100Tokens:   t.trendSlope(),
		Snapshots:             append([]LatencySnapshot(nil), t.snapshots...),
	}
}

// rollingAverage averages the last rollingWindow latencies, skipping steps
// without a value.
func (t *LatencyTracker) rollingAverage() *float64 {
	window := t.snapshots
	if len(window) > t.rollingWindow {
		window = window[len(window)-t.rollingWindow:]
	}

	var sum float64
	var n int
	for _, s := range window {
		if s.LatencyMs == nil {
			continue
		}
		sum += *s.LatencyMs
		n++
	}
	if n == 0 {
		return nil
	}
	return floatPtr(sum / float64(n))
}

// trendSlope fits latency against step index by ordinary least squares and
// scales the slope to ms per 100 steps.
func (t *LatencyTracker) trendSlope() *float64 {
	if len(t.snapshots) < 2 {
		return nil
	}

	var n, sumX, sumY, sumXY, sumX2 float64
	for _, s := range t.snapshots {
		if s.LatencyMs == nil {
			continue
		}
		x := float64(s.Step)
		y := *s.LatencyMs
		n++
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	if n < 2 {
		return nil
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return nil
	}
	slope := (n*sumXY - sumX*sumY) / denominator
	return floatPtr(slope * 100.0)
}
