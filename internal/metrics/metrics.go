package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InferenceTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inference_tokens_total",
		Help: "The total number of tokens generated",
	})

	StepLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inference_step_latency_seconds",
		Help:    "Wall-clock latency of a single generation step",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
	})

	TimeToFirstToken = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inference_ttft_seconds",
		Help:    "Time from run start to the first generated token",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	})

	ContextUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "context_usage_ratio",
		Help: "Fraction of the context window used by the latest step",
	})

	ContextLengthHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "context_length_tokens",
		Help:    "Distribution of context lengths processed",
		Buckets: []float64{100, 500, 1000, 2000, 4000, 8000, 16000, 32000},
	})

	ContextWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "context_warnings_total",
		Help: "Runs whose context usage crossed the warning threshold",
	})

	ResidentMemory = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inference_rss_bytes",
		Help: "Process resident set size sampled after the latest step",
	})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inference_runs_total",
		Help: "Completed generation runs by stop reason",
	}, []string{"stop_reason"})

	GenerationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_errors_total",
		Help: "Failed generation runs by stage",
	}, []string{"stage"})

	TokenizerEncodeLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tokenizer_encode_length",
		Help:    "Length of encoded prompts in tokens",
		Buckets: []float64{1, 10, 100, 500, 1000, 2000, 4000, 8000},
	})
)

// RecordStep records one generated token with its latency, cumulative
// context length, usage fraction and sampled RSS.
func RecordStep(latency time.Duration, totalTokens int, usage float64, rssBytes uint64) {
	InferenceTokensTotal.Inc()
	StepLatency.Observe(latency.Seconds())
	ContextLengthHistogram.Observe(float64(totalTokens))
	ContextUsage.Set(usage)
	ResidentMemory.Set(float64(rssBytes))
}

// RecordTTFT records time to first token
func RecordTTFT(d time.Duration) {
	TimeToFirstToken.Observe(d.Seconds())
}

func RecordContextWarning() {
	ContextWarnings.Inc()
}

// RecordRun counts a completed run
func RecordRun(stopReason string) {
	RunsTotal.WithLabelValues(stopReason).Inc()
}

// RecordGenerationError counts a run aborted in the given stage
func RecordGenerationError(stage string) {
	GenerationErrors.WithLabelValues(stage).Inc()
}

// RecordTokenizerEncode records tokenizer encoding metrics
func RecordTokenizerEncode(length int) {
	TokenizerEncodeLength.Observe(float64(length))
}
