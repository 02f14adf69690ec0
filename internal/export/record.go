// Package export converts per-step run snapshots into Arrow record batches
// and ships them to IPC files or an Arrow Flight endpoint.
package export

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/contextwatch/internal/inference"
)

// Column indices of StepSchema.
const (
	ColRunID = iota
	ColStep
	ColTokenID
	ColTimestamp
	ColTotalTokens
	ColMaxContext
	ColContextUsedPct
	ColRemainingTokens
	ColLatencyMs
	ColRSSBytes
	ColRSSMB
	ColDeltaFromStartMB
)

var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// StepSchema has one row per generated token.
var StepSchema = arrow.NewSchema([]arrow.Field{
	{Name: "run_id", Type: arrow.BinaryTypes.String},
	{Name: "step", Type: arrow.PrimitiveTypes.Int64},
	{Name: "token_id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "timestamp", Type: timestampType},
	{Name: "total_tokens", Type: arrow.PrimitiveTypes.Int64},
	{Name: "max_context", Type: arrow.PrimitiveTypes.Int64},
	{Name: "context_used_pct", Type: arrow.PrimitiveTypes.Float64},
	{Name: "remaining_tokens", Type: arrow.PrimitiveTypes.Int64},
	{Name: "latency_ms", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "rss_bytes", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "rss_mb", Type: arrow.PrimitiveTypes.Float64},
	{Name: "delta_from_start_mb", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// schemaFor attaches run-level values as schema metadata.
func schemaFor(res *inference.Result) *arrow.Schema {
	md := arrow.NewMetadata(
		[]string{"run_id", "stop_reason", "prompt_token_count", "generated_token_count", "warning_issued"},
		[]string{
			res.RunID,
			string(res.StopReason),
			strconv.Itoa(res.PromptTokenCount),
			strconv.Itoa(res.GeneratedTokenCount),
			strconv.FormatBool(res.Context.WarningIssued),
		},
	)
	return arrow.NewSchema(StepSchema.Fields(), &md)
}

// BuildRecord returns one row per generated token. The caller must Release
// the record.
func BuildRecord(mem memory.Allocator, res *inference.Result) (arrow.Record, error) {
	n := res.GeneratedTokenCount
	if len(res.Context.Snapshots) != n || len(res.Latency.Snapshots) != n ||
		len(res.Memory.Snapshots) != n || len(res.GeneratedIDs) != n {
		return nil, fmt.Errorf("snapshot lengths do not match %d generated tokens", n)
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	b := array.NewRecordBuilder(mem, schemaFor(res))
	defer b.Release()
	b.Reserve(n)

	runID := b.Field(ColRunID).(*array.StringBuilder)
	step := b.Field(ColStep).(*array.Int64Builder)
	token := b.Field(ColTokenID).(*array.Int64Builder)
	ts := b.Field(ColTimestamp).(*array.TimestampBuilder)
	total := b.Field(ColTotalTokens).(*array.Int64Builder)
	maxCtx := b.Field(ColMaxContext).(*array.Int64Builder)
	used := b.Field(ColContextUsedPct).(*array.Float64Builder)
	remaining := b.Field(ColRemainingTokens).(*array.Int64Builder)
	latency := b.Field(ColLatencyMs).(*array.Float64Builder)
	rss := b.Field(ColRSSBytes).(*array.Uint64Builder)
	rssMB := b.Field(ColRSSMB).(*array.Float64Builder)
	delta := b.Field(ColDeltaFromStartMB).(*array.Float64Builder)

	for i := 0; i < n; i++ {
		c, l, m := res.Context.Snapshots[i], res.Latency.Snapshots[i], res.Memory.Snapshots[i]

		runID.Append(res.RunID)
		step.Append(int64(c.Step))
		token.Append(int64(res.GeneratedIDs[i]))
		ts.Append(arrow.Timestamp(l.Timestamp.UnixMicro()))
		total.Append(int64(c.TotalTokens))
		maxCtx.Append(int64(c.MaxContext))
		used.Append(c.UsedPct)
		remaining.Append(int64(c.RemainingTokens))
		if l.LatencyMs != nil {
			latency.Append(*l.LatencyMs)
		} else {
			latency.AppendNull()
		}
		rss.Append(m.RSSBytes)
		rssMB.Append(m.RSSMB)
		delta.Append(m.DeltaFromStartMB)
	}

	return b.NewRecord(), nil
}
