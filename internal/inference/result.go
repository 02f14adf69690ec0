package inference

import (
	"fmt"

	"github.com/23skdu/contextwatch/internal/monitor"
)

// StopReason says why decoding ended.
type StopReason string

const (
	StopEndOfSequence    StopReason = "eos"
	StopMaxTokensReached StopReason = "max_tokens"
)

// Result holds the output of one generation run and its tracker summaries.
type Result struct {
	RunID               string     `json:"run_id"`
	PromptTokenCount    int        `json:"prompt_token_count"`
	GeneratedTokenCount int        `json:"generated_token_count"`
	TotalTokenCount     int        `json:"total_token_count"`
	GeneratedText       string     `json:"generated_text"`
	GeneratedIDs        []int      `json:"generated_ids"`
	StopReason          StopReason `json:"stop_reason"`

	Context monitor.ContextSummary `json:"context"`
	Latency monitor.LatencySummary `json:"latency"`
	Memory  monitor.MemorySummary  `json:"memory"`
}

// CheckInvariants verifies the token accounting of a completed run.
func (r *Result) CheckInvariants(maxTokens int) error {
	if r.TotalTokenCount != r.PromptTokenCount+r.GeneratedTokenCount {
		return fmt.Errorf("token count mismatch: %d != %d + %d",
			r.TotalTokenCount, r.PromptTokenCount, r.GeneratedTokenCount)
	}
	if r.GeneratedTokenCount > maxTokens {
		return fmt.Errorf("generated more tokens than allowed: %d > %d", r.GeneratedTokenCount, maxTokens)
	}
	if r.PromptTokenCount <= 0 {
		return fmt.Errorf("prompt token count must be > 0, got %d", r.PromptTokenCount)
	}
	if len(r.GeneratedIDs) != r.GeneratedTokenCount {
		return fmt.Errorf("generated ids length %d != generated count %d", len(r.GeneratedIDs), r.GeneratedTokenCount)
	}

	n := r.GeneratedTokenCount
	if got := len(r.Context.Snapshots); got != n {
		return fmt.Errorf("context snapshots: %d != generated count %d", got, n)
	}
	if got := len(r.Latency.Snapshots); got != n {
		return fmt.Errorf("latency snapshots: %d != generated count %d", got, n)
	}
	if got := len(r.Memory.Snapshots); got != n {
		return fmt.Errorf("memory snapshots: %d != generated count %d", got, n)
	}
	for i := 0; i < n; i++ {
		if r.Context.Snapshots[i].Step != i || r.Latency.Snapshots[i].Step != i || r.Memory.Snapshots[i].Step != i {
			return fmt.Errorf("snapshot steps are not contiguous at index %d", i)
		}
	}

	if n > 0 {
		if r.Context.FinalTotalTokens != r.TotalTokenCount {
			return fmt.Errorf("context final total %d != total token count %d", r.Context.FinalTotalTokens, r.TotalTokenCount)
		}
		if r.Context.UsedPct < 0 || r.Context.UsedPct > 1 {
			return fmt.Errorf("context usage out of range: %v", r.Context.UsedPct)
		}
		if r.Latency.RollingAvgMs == nil {
			return fmt.Errorf("rolling average missing after %d tokens", n)
		}
	}
	if r.Memory.PeakMB < r.Memory.CurrentMB {
		return fmt.Errorf("peak memory %.2f MB below current %.2f MB", r.Memory.PeakMB, r.Memory.CurrentMB)
	}
	return nil
}
