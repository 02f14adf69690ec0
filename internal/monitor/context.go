package monitor

import (
	"fmt"

	"github.com/23skdu/contextwatch/internal/logger"
	"github.com/23skdu/contextwatch/internal/model"
)

// DefaultWarnThreshold is the usage fraction that triggers the context warning.
const DefaultWarnThreshold = 0.75

// ContextSnapshot records context window usage after one generation step.
type ContextSnapshot struct {
	Step            int     `json:"step"`
	TotalTokens     int     `json:"total_tokens"`
	MaxContext      int     `json:"max_context"`
	UsedPct         float64 `json:"context_used_pct"` // 0.0 - 1.0
	RemainingTokens int     `json:"remaining_tokens"`
}

// ContextSummary is derived from the full snapshot history.
type ContextSummary struct {
	MaxContext       int               `json:"max_context"`
	FinalTotalTokens int               `json:"final_total_tokens"`
	UsedPct          float64           `json:"context_used_pct"`
	RemainingTokens  int               `json:"remaining_tokens"`
	Snapshots        []ContextSnapshot `json:"per_step_snapshots"`
	WarningIssued    bool              `json:"warning_issued"`
}

// ContextTracker converts cumulative token counts into window usage.
type ContextTracker struct {
	maxContext    int
	warnThreshold float64
	diag          *logger.Logger

	snapshots     []ContextSnapshot
	warningIssued bool
}

type ContextOption func(*ContextTracker)

// WithDiagnostics sets the logger that receives the threshold warning.
func WithDiagnostics(l *logger.Logger) ContextOption {
	return func(t *ContextTracker) {
		if l != nil {
			t.diag = l
		}
	}
}

func NewContextTracker(maxContext int, warnThreshold float64, opts ...ContextOption) (*ContextTracker, error) {
	if warnThreshold < 0 || warnThreshold > 1 {
		return nil, fmt.Errorf("invalid warn threshold: %v (must be within [0, 1])", warnThreshold)
	}
	t := &ContextTracker{
		maxContext:    maxContext,
		warnThreshold: warnThreshold,
		diag:          logger.Log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// NewContextTrackerForModel reads the context length from the model metadata.
// A *model.ConfigurationError is returned when no known key is present.
func NewContextTrackerForModel(m model.Model, warnThreshold float64, opts ...ContextOption) (*ContextTracker, error) {
	maxContext, err := model.MaxContextLength(m.Metadata())
	if err != nil {
		return nil, err
	}
	return NewContextTracker(maxContext, warnThreshold, opts...)
}

func (t *ContextTracker) MaxContext() int { return t.maxContext }

func (t *ContextTracker) WarningIssued() bool { return t.warningIssued }

// RecordStep appends the usage for totalTokens (prompt plus generated so far).
// Usage is not clamped: a model that lets the sequence outgrow maxContext
// yields UsedPct above 1, so the model must enforce the window bound.
func (t *ContextTracker) RecordStep(step, totalTokens int) ContextSnapshot {
	var used float64
	if t.maxContext > 0 {
		used = float64(totalTokens) / float64(t.maxContext)
	}
	remaining := t.maxContext - totalTokens
	if remaining < 0 {
		remaining = 0
	}

	snap := ContextSnapshot{
		Step:            step,
		TotalTokens:     totalTokens,
		MaxContext:      t.maxContext,
		UsedPct:         round(used, 6),
		RemainingTokens: remaining,
	}
	t.snapshots = append(t.snapshots, snap)

	if !t.warningIssued && used >= t.warnThreshold {
		t.diag.Warn("context usage crossed warning threshold",
			"step", step,
			"usage_pct", round(used*100, 1),
			"total_tokens", totalTokens,
			"max_context", t.maxContext,
			"threshold_pct", round(t.warnThreshold*100, 1),
		)
		t.warningIssued = true
	}

	return snap
}

func (t *ContextTracker) IsContextFull(totalTokens int) bool {
	return totalTokens >= t.maxContext
}

func (t *ContextTracker) Summarize() ContextSummary {
	if len(t.snapshots) == 0 {
		// No tokens generated, e.g. EOS on the first step.
		return ContextSummary{
			MaxContext:      t.maxContext,
			RemainingTokens: t.maxContext,
			Snapshots:       []ContextSnapshot{},
			WarningIssued:   t.warningIssued,
		}
	}
	last := t.snapshots[len(t.snapshots)-1]
	return ContextSummary{
		MaxContext:       t.maxContext,
		FinalTotalTokens: last.TotalTokens,
		UsedPct:          last.UsedPct,
		RemainingTokens:  last.RemainingTokens,
		Snapshots:        append([]ContextSnapshot(nil), t.snapshots...),
		WarningIssued:    t.warningIssued,
	}
}
