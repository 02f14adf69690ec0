package monitor

// MemorySnapshot records process RSS after one generation step.
type MemorySnapshot struct {
	Step             int     `json:"step"`
	RSSBytes         uint64  `json:"rss_bytes"`
	RSSMB            float64 `json:"rss_mb"`
	DeltaFromStartMB float64 `json:"delta_from_start_mb"`
}

// MemorySummary is derived from the full snapshot history.
//
// Growth is normalized by generated tokens, not elapsed time:
//
//	growth_total    = last RSS - initial RSS
//	avg_per_token   = growth_total / tokens
//	growth_per_100  = avg_per_token * 100
type MemorySummary struct {
	InitialMB            float64          `json:"initial_memory_mb"`
	CurrentMB            float64          `json:"current_memory_mb"`
	PeakMB               float64          `json:"peak_memory_mb"`
	GrowthTotalMB        float64          `json:"memory_growth_total_mb"`
	AvgGrowthPerTokenMB  float64          `json:"avg_growth_per_token_mb"`
	GrowthPer100TokensMB float64          `json:"growth_per_100_tokens_mb"`
	Snapshots            []MemorySnapshot `json:"per_step_snapshots"`
}

// MemoryTracker samples RSS once per step and derives growth statistics.
type MemoryTracker struct {
	sampler Sampler

	initialRSS uint64
	peakRSS    uint64
	started    bool
	snapshots  []MemorySnapshot
}

// NewMemoryTracker uses a ProcessSampler when s is nil.
func NewMemoryTracker(s Sampler) *MemoryTracker {
	if s == nil {
		s = NewProcessSampler()
	}
	return &MemoryTracker{sampler: s}
}

// Start records the baseline before generation begins.
func (t *MemoryTracker) Start() {
	t.initialRSS = t.sampler.ResidentBytes()
	t.peakRSS = t.initialRSS
	t.started = true
}

func (t *MemoryTracker) RecordStep(step int) MemorySnapshot {
	rss := t.sampler.ResidentBytes()
	if !t.started {
		// First sample doubles as the baseline.
		t.initialRSS = rss
		t.peakRSS = rss
		t.started = true
	}
	if rss > t.peakRSS {
		t.peakRSS = rss
	}

	snap := MemorySnapshot{
		Step:             step,
		RSSBytes:         rss,
		RSSMB:            round(float64(rss)/bytesPerMB, 2),
		DeltaFromStartMB: round(deltaMB(rss, t.initialRSS), 2),
	}
	t.snapshots = append(t.snapshots, snap)
	return snap
}

func (t *MemoryTracker) Summarize() MemorySummary {
	initialMB := float64(t.initialRSS) / bytesPerMB

	if len(t.snapshots) == 0 {
		return MemorySummary{
			InitialMB: round(initialMB, 2),
			CurrentMB: round(initialMB, 2),
			PeakMB:    round(float64(t.peakRSS)/bytesPerMB, 2),
			Snapshots: []MemorySnapshot{},
		}
	}

	last := t.snapshots[len(t.snapshots)-1]
	growth := deltaMB(last.RSSBytes, t.initialRSS)
	avg := growth / float64(len(t.snapshots))

	return MemorySummary{
		InitialMB:            round(initialMB, 2),
		CurrentMB:            round(float64(last.RSSBytes)/bytesPerMB, 2),
		PeakMB:               round(float64(t.peakRSS)/bytesPerMB, 2),
		GrowthTotalMB:        round(growth, 2),
		AvgGrowthPerTokenMB:  round(avg, 4),
		GrowthPer100TokensMB: round(avg*100.0, 2),
		Snapshots:            append([]MemorySnapshot(nil), t.snapshots...),
	}
}

// deltaMB is signed: RSS can shrink after a GC returns pages.
func deltaMB(cur, base uint64) float64 {
	return (float64(cur) - float64(base)) / bytesPerMB
}
