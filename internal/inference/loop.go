// Package inference drives a manual token-by-token greedy generation loop
// and feeds the context, latency and memory trackers once per token.
package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/23skdu/contextwatch/internal/logger"
	"github.com/23skdu/contextwatch/internal/metrics"
	"github.com/23skdu/contextwatch/internal/model"
	"github.com/23skdu/contextwatch/internal/monitor"
)

// DefaultMaxTokens matches the CLI default.
const DefaultMaxTokens = 50

// Options configures a single run. Start from DefaultOptions.
type Options struct {
	MaxTokens     int
	WarnThreshold float64
	RollingWindow int

	// Clock and Sampler default to the system clock and process RSS.
	Clock   monitor.Clock
	Sampler monitor.Sampler
	// Logger receives loop diagnostics and the context warning.
	Logger *logger.Logger

	// OnStep is called after every recorded token.
	OnStep func(StepEvent)
}

func DefaultOptions() Options {
	return Options{
		MaxTokens:     DefaultMaxTokens,
		WarnThreshold: monitor.DefaultWarnThreshold,
		RollingWindow: monitor.DefaultRollingWindow,
	}
}

// StepEvent describes one generated token and the snapshots taken for it.
type StepEvent struct {
	RunID   string
	Step    int
	TokenID int
	Context monitor.ContextSnapshot
	Latency monitor.LatencySnapshot
	Memory  monitor.MemorySnapshot
}

func (o Options) validate() error {
	if o.MaxTokens < 0 {
		return fmt.Errorf("invalid max tokens: %d (must be non-negative)", o.MaxTokens)
	}
	return nil
}

// trackers is the per-run observer set; it is never shared between runs.
type trackers struct {
	context *monitor.ContextTracker
	latency *monitor.LatencyTracker
	memory  *monitor.MemoryTracker
}

func newTrackers(m model.Model, opts Options, log *logger.Logger) (*trackers, error) {
	ct, err := monitor.NewContextTrackerForModel(m, opts.WarnThreshold, monitor.WithDiagnostics(log))
	if err != nil {
		return nil, err
	}
	lt, err := monitor.NewLatencyTracker(opts.RollingWindow, monitor.WithClock(opts.Clock))
	if err != nil {
		return nil, err
	}
	return &trackers{
		context: ct,
		latency: lt,
		memory:  monitor.NewMemoryTracker(opts.Sampler),
	}, nil
}

// Run generates up to opts.MaxTokens tokens for prompt by greedy decoding.
//
// ctx is passed to every Forward call; the loop itself only stops early on
// the end-of-sequence token. Any model failure aborts the run with a
// *GenerationError and no partial result.
func Run(ctx context.Context, m model.Model, tok model.Tokenizer, prompt string, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = monitor.SystemClock{}
	}
	runID := uuid.NewString()
	log := opts.Logger
	if log == nil {
		log = logger.Log
	}
	log = log.With("run_id", runID)

	promptIDs, err := tok.Encode(prompt)
	if err != nil {
		return nil, &TokenizationError{Err: err}
	}
	if len(promptIDs) == 0 {
		return nil, &TokenizationError{Err: errors.New("prompt produced no tokens")}
	}
	metrics.RecordTokenizerEncode(len(promptIDs))
	promptCount := len(promptIDs)

	tr, err := newTrackers(m, opts, log)
	if err != nil {
		return nil, err
	}
	eosID, hasEOS := tok.EOS()

	log.Debug("Starting prefill", "prompt_tokens", promptCount, "max_tokens", opts.MaxTokens,
		"max_context", tr.context.MaxContext())
	if tr.context.IsContextFull(promptCount) {
		log.Warn("Prompt already fills the context window", "prompt_tokens", promptCount,
			"max_context", tr.context.MaxContext())
	}

	tr.latency.Start()
	tr.memory.Start()

	// Step 0's model call is the prefill itself.
	stepStart := opts.Clock.Now()
	logits, cache, err := m.Forward(ctx, promptIDs, nil)
	if err != nil {
		metrics.RecordGenerationError(StagePrefill)
		return nil, &GenerationError{Stage: StagePrefill, Step: -1, Err: err}
	}

	generated := make([]int, 0, opts.MaxTokens)
	stop := StopMaxTokensReached
	warned := false

	for step := 0; step < opts.MaxTokens; step++ {
		if step > 0 {
			stepStart = opts.Clock.Now()
			logits, cache, err = m.Forward(ctx, []int{generated[len(generated)-1]}, cache)
			if err != nil {
				metrics.RecordGenerationError(StageDecode)
				return nil, &GenerationError{Stage: StageDecode, Step: step, Err: err}
			}
		}

		next, err := selectGreedy(logits)
		if err != nil {
			stage := StageDecode
			if step == 0 {
				stage = StagePrefill
			}
			metrics.RecordGenerationError(stage)
			return nil, &GenerationError{Stage: stage, Step: step, Err: err}
		}
		stepEnd := opts.Clock.Now()

		if hasEOS && next == eosID {
			stop = StopEndOfSequence
			break
		}

		generated = append(generated, next)
		ev := StepEvent{
			RunID:   runID,
			Step:    step,
			TokenID: next,
			Context: tr.context.RecordStep(step, promptCount+len(generated)),
			Latency: tr.latency.RecordStep(step, stepStart, stepEnd),
			Memory:  tr.memory.RecordStep(step),
		}

		metrics.RecordStep(stepEnd.Sub(stepStart), ev.Context.TotalTokens, ev.Context.UsedPct, ev.Memory.RSSBytes)
		if ttft, ok := tr.latency.TTFT(); ok && step == 0 {
			metrics.RecordTTFT(ttft)
		}
		if !warned && tr.context.WarningIssued() {
			metrics.RecordContextWarning()
			warned = true
		}
		if opts.OnStep != nil {
			opts.OnStep(ev)
		}
	}

	res := &Result{
		RunID:               runID,
		PromptTokenCount:    promptCount,
		GeneratedTokenCount: len(generated),
		TotalTokenCount:     promptCount + len(generated),
		GeneratedText:       tok.Decode(generated, true),
		GeneratedIDs:        generated,
		StopReason:          stop,
		Context:             tr.context.Summarize(),
		Latency:             tr.latency.Summarize(),
		Memory:              tr.memory.Summarize(),
	}
	metrics.RecordRun(string(stop))
	log.Info("Generation complete",
		"prompt_tokens", res.PromptTokenCount,
		"generated_tokens", res.GeneratedTokenCount,
		"stop_reason", string(stop),
	)
	return res, nil
}
