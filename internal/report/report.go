// Package report renders a completed run for the terminal or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/23skdu/contextwatch/internal/inference"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
)

const mib = 1024 * 1024

// Text writes the token accounting lines followed by the tracker summaries.
func Text(w io.Writer, res *inference.Result) error {
	var b strings.Builder

	fmt.Fprintf(&b, "\nPrompt tokens: %d\n", res.PromptTokenCount)
	fmt.Fprintf(&b, "Generated tokens: %d\n", res.GeneratedTokenCount)
	fmt.Fprintf(&b, "Total tokens: %d\n", res.TotalTokenCount)
	fmt.Fprintf(&b, "Stop reason: %s\n", res.StopReason)
	if res.GeneratedText != "" {
		fmt.Fprintf(&b, "Output: %q\n", res.GeneratedText)
	}

	ctx := res.Context
	b.WriteString("\n" + headerColor.Sprint("Context") + "\n")
	row(&b, "max context", humanize.Comma(int64(ctx.MaxContext))+" tokens")
	row(&b, "used", fmt.Sprintf("%s tokens (%.1f%%)", humanize.Comma(int64(ctx.FinalTotalTokens)), ctx.UsedPct*100))
	row(&b, "remaining", humanize.Comma(int64(ctx.RemainingTokens))+" tokens")
	if ctx.WarningIssued {
		row(&b, "status", warnColor.Sprint("WARNING: context window nearly full"))
	} else {
		row(&b, "status", goodColor.Sprint("ok"))
	}

	lat := res.Latency
	b.WriteString("\n" + headerColor.Sprint("Latency") + "\n")
	row(&b, "time to first token", ms(lat.TTFTMs))
	row(&b, "current token", ms(lat.CurrentTokenLatencyMs))
	row(&b, "rolling average", ms(lat.RollingAvgMs))
	trend := "n/a"
	if lat.TrendMsPer100Tokens != nil {
		trend = fmt.Sprintf("%+.2f ms per 100 tokens", *lat.TrendMsPer100Tokens)
		if lat.RollingAvgMs != nil && *lat.TrendMsPer100Tokens > *lat.RollingAvgMs {
			trend = warnColor.Sprint(trend)
		}
	}
	row(&b, "trend", trend)

	mem := res.Memory
	b.WriteString("\n" + headerColor.Sprint("Memory") + "\n")
	row(&b, "initial", mb(mem.InitialMB))
	row(&b, "current", mb(mem.CurrentMB))
	row(&b, "peak", mb(mem.PeakMB))
	row(&b, "growth", fmt.Sprintf("%+.2f MB (%+.4f MB/token, %+.2f MB per 100 tokens)",
		mem.GrowthTotalMB, mem.AvgGrowthPerTokenMB, mem.GrowthPer100TokensMB))

	_, err := io.WriteString(w, b.String())
	return err
}

// JSON writes the full result, including per-step snapshots, indented.
func JSON(w io.Writer, res *inference.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "  %s %s\n", labelColor.Sprintf("%-20s", label+":"), value)
}

func ms(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f ms", *v)
}

func mb(v float64) string {
	if v < 0 {
		return fmt.Sprintf("%.2f MB", v)
	}
	return fmt.Sprintf("%.2f MB (%s)", v, humanize.IBytes(uint64(v*mib)))
}
