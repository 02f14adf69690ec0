package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ContextLengthKeys are checked in order before the GGUF architecture keys.
var ContextLengthKeys = []string{
	"max_position_embeddings", // most modern configs
	"n_positions",             // GPT-2 family
	"n_ctx",                   // older GPT-2 checkpoints
}

// ConfigurationError reports that no metadata key yields a context length.
type ConfigurationError struct {
	Checked   []string
	Available []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("cannot determine max context length from model metadata: checked %s; available keys: [%s]",
		strings.Join(e.Checked, ", "), strings.Join(e.Available, ", "))
}

// MaxContextLength returns the first positive integer value found under a
// known context-length key. GGUF files store it as "<arch>.context_length".
// Zero and negative values are skipped.
func MaxContextLength(meta map[string]any) (int, error) {
	keys := append([]string{}, ContextLengthKeys...)
	if arch, ok := meta["general.architecture"].(string); ok && arch != "" {
		keys = append(keys, arch+".context_length")
	}
	keys = append(keys, "general.context_length")

	for _, key := range keys {
		if v, ok := meta[key]; ok {
			if n, ok := toInt(v); ok && n > 0 {
				return n, nil
			}
		}
	}

	available := make([]string, 0, len(meta))
	for k := range meta {
		available = append(available, k)
	}
	sort.Strings(available)
	return 0, &ConfigurationError{Checked: keys, Available: available}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return math.MaxInt, true
		}
		return int(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	default:
		return 0, false
	}
}

// JSON-decoded configs carry numbers as float64.
func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
