package monitor

import (
	"math"
	"reflect"
	"testing"
	"time"
)

var epoch = time.Unix(1_700_000_000, 0)

func newTestLatencyTracker(t *testing.T, window int, opts ...LatencyOption) *LatencyTracker {
	t.Helper()
	lt, err := NewLatencyTracker(window, opts...)
	if err != nil {
		t.Fatalf("NewLatencyTracker failed: %v", err)
	}
	return lt
}

// recordLatencies feeds one step per latency, each starting one second after
// the previous step.
func recordLatencies(lt *LatencyTracker, latencies ...int) {
	for i, ms := range latencies {
		start := epoch.Add(time.Duration(i) * time.Second)
		lt.RecordStep(i, start, start.Add(time.Duration(ms)*time.Millisecond))
	}
}

func expectMs(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Errorf("%s: expected %v, got nil", name, want)
		return
	}
	if math.Abs(*got-want) > 1e-9 {
		t.Errorf("%s: expected %v, got %v", name, want, *got)
	}
}

func expectNil(t *testing.T, name string, got *float64) {
	t.Helper()
	if got != nil {
		t.Errorf("%s: expected nil, got %v", name, *got)
	}
}

func TestLatencyRecordStep(t *testing.T) {
	lt := newTestLatencyTracker(t, DefaultRollingWindow)

	end := epoch.Add(12500 * time.Microsecond)
	snap := lt.RecordStep(0, epoch, end)
	if snap.Step != 0 || !snap.Timestamp.Equal(end) {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	expectMs(t, "latency", snap.LatencyMs, 12.5)
}

func TestLatencyTTFTUsesBaseline(t *testing.T) {
	lt := newTestLatencyTracker(t, DefaultRollingWindow, WithClock(&stepClock{t: epoch}))

	lt.Start()
	lt.RecordStep(0, epoch.Add(5*time.Millisecond), epoch.Add(25*time.Millisecond))
	lt.RecordStep(1, epoch.Add(25*time.Millisecond), epoch.Add(35*time.Millisecond))

	s := lt.Summarize()
	expectMs(t, "ttft", s.TTFTMs, 25)
	expectMs(t, "current", s.CurrentTokenLatencyMs, 10)
}

func TestLatencyNoStartMeansNoTTFT(t *testing.T) {
	lt := newTestLatencyTracker(t, DefaultRollingWindow)
	recordLatencies(lt, 10, 20)
	expectNil(t, "ttft", lt.Summarize().TTFTMs)
}

func TestLatencyTrend(t *testing.T) {
	tests := []struct {
		name      string
		latencies []int
		want      float64
	}{
		{"linear", []int{10, 20, 30, 40}, 1000},
		{"flat", []int{7, 7, 7}, 0},
		{"decreasing", []int{30, 20, 10}, -1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lt := newTestLatencyTracker(t, DefaultRollingWindow)
			recordLatencies(lt, tt.latencies...)
			expectMs(t, "trend", lt.Summarize().TrendMsPer100Tokens, tt.want)
		})
	}
}

func TestLatencyTrendNeedsTwoPoints(t *testing.T) {
	lt := newTestLatencyTracker(t, DefaultRollingWindow)
	recordLatencies(lt, 10)

	s := lt.Summarize()
	expectNil(t, "trend", s.TrendMsPer100Tokens)
	expectMs(t, "rolling", s.RollingAvgMs, 10)
}

func TestLatencyTrendDegenerateDenominator(t *testing.T) {
	lt := newTestLatencyTracker(t, DefaultRollingWindow)

	lt.RecordStep(3, epoch, epoch.Add(10*time.Millisecond))
	lt.RecordStep(3, epoch, epoch.Add(20*time.Millisecond))
	expectNil(t, "trend", lt.Summarize().TrendMsPer100Tokens)
}

func TestLatencyRollingWindow(t *testing.T) {
	lt := newTestLatencyTracker(t, 3)

	recordLatencies(lt, 10, 20, 30)
	expectMs(t, "rolling", lt.Summarize().RollingAvgMs, 20)

	recordLatencies(lt, 10, 20, 30, 40, 50)
	// History is now 10,20,30,10,20,30,40,50; last three are 30,40,50.
	expectMs(t, "rolling", lt.Summarize().RollingAvgMs, 40)
}

func TestLatencyRollingSkipsMissingValues(t *testing.T) {
	lt := newTestLatencyTracker(t, 3)

	recordLatencies(lt, 10, 20)
	lt.snapshots = append(lt.snapshots, LatencySnapshot{Step: 2, Timestamp: epoch})

	s := lt.Summarize()
	expectMs(t, "rolling", s.RollingAvgMs, 15)
	expectNil(t, "current", s.CurrentTokenLatencyMs)
	expectMs(t, "trend", s.TrendMsPer100Tokens, 1000)

	lt = newTestLatencyTracker(t, 1)
	lt.snapshots = append(lt.snapshots, LatencySnapshot{Step: 0}, LatencySnapshot{Step: 1})
	s = lt.Summarize()
	expectNil(t, "rolling", s.RollingAvgMs)
	expectNil(t, "trend", s.TrendMsPer100Tokens)
}

func TestLatencySummarizeEmpty(t *testing.T) {
	lt := newTestLatencyTracker(t, DefaultRollingWindow)
	lt.Start()

	s := lt.Summarize()
	expectNil(t, "ttft", s.TTFTMs)
	expectNil(t, "current", s.CurrentTokenLatencyMs)
	expectNil(t, "rolling", s.RollingAvgMs)
	expectNil(t, "trend", s.TrendMsPer100Tokens)
	if len(s.Snapshots) != 0 {
		t.Errorf("expected no snapshots, got %d", len(s.Snapshots))
	}
}

func TestLatencySummarizeIdempotent(t *testing.T) {
	lt := newTestLatencyTracker(t, 2, WithClock(&stepClock{t: epoch}))
	lt.Start()
	recordLatencies(lt, 5, 8, 13, 21)

	if a, b := lt.Summarize(), lt.Summarize(); !reflect.DeepEqual(a, b) {
		t.Errorf("summaries differ:\n%+v\n%+v", a, b)
	}
}

func TestLatencyInvalidWindow(t *testing.T) {
	if _, err := NewLatencyTracker(0); err == nil {
		t.Error("expected error for window 0")
	}
}
