package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/contextwatch/internal/inference"
	"github.com/23skdu/contextwatch/internal/monitor"
)

func ptr(v float64) *float64 { return &v }

func sampleResult() *inference.Result {
	return &inference.Result{
		RunID:               "run-7",
		PromptTokenCount:    5,
		GeneratedTokenCount: 3,
		TotalTokenCount:     8,
		GeneratedText:       "quick brown fox",
		GeneratedIDs:        []int{4, 5, 6},
		StopReason:          inference.StopMaxTokensReached,
		Context: monitor.ContextSummary{
			MaxContext:       2048,
			FinalTotalTokens: 8,
			UsedPct:          0.003906,
			RemainingTokens:  2040,
		},
		Latency: monitor.LatencySummary{
			TTFTMs:       ptr(12.5),
			RollingAvgMs: ptr(4.25),
		},
		Memory: monitor.MemorySummary{
			InitialMB: 100, CurrentMB: 103, PeakMB: 103,
			GrowthTotalMB: 3, AvgGrowthPerTokenMB: 1, GrowthPer100TokensMB: 100,
		},
	}
}

func TestText(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	require.NoError(t, Text(&buf, sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "Prompt tokens: 5\n")
	assert.Contains(t, out, "Generated tokens: 3\n")
	assert.Contains(t, out, "Total tokens: 8\n")
	assert.Contains(t, out, "Stop reason: max_tokens")
	assert.Contains(t, out, `"quick brown fox"`)
	assert.Contains(t, out, "2,048 tokens")
	assert.Contains(t, out, "12.50 ms")
	assert.Contains(t, out, "trend:")
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "103.00 MB (103 MiB)")
	assert.Contains(t, out, " ok\n")
	assert.NotContains(t, out, "WARNING")
}

func TestTextWarning(t *testing.T) {
	color.NoColor = true

	res := sampleResult()
	res.Context.WarningIssued = true
	res.Latency.TrendMsPer100Tokens = ptr(9)

	var buf bytes.Buffer
	require.NoError(t, Text(&buf, res))
	assert.Contains(t, buf.String(), "WARNING: context window nearly full")
	assert.Contains(t, buf.String(), "+9.00 ms per 100 tokens")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sampleResult()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-7", got["run_id"])
	assert.Equal(t, "max_tokens", got["stop_reason"])
	assert.EqualValues(t, 8, got["total_token_count"])

	lat := got["latency"].(map[string]any)
	assert.Nil(t, lat["trend_ms_per_100_tokens"])
	assert.EqualValues(t, 12.5, lat["ttft_ms"])
}
