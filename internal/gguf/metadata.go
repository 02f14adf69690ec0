package gguf

import (
	"fmt"
	"math"
)

type MetadataAnalyzer struct {
	file *GGUFFile
}

func NewMetadataAnalyzer(file *GGUFFile) *MetadataAnalyzer {
	return &MetadataAnalyzer{file: file}
}

// AnalysisReport summarizes a model file. ContextLength is 0 when the file
// does not declare one.
type AnalysisReport struct {
	Architecture    string
	ModelName       string
	ContextLength   int
	EmbeddingLength int
	VocabSize       int
	TensorCount     int
	TotalParameters int64
	MemoryEstimate  int64
	TensorTypes     map[string]int
}

func (a *MetadataAnalyzer) Analyze() (*AnalysisReport, error) {
	report := &AnalysisReport{
		TensorCount: len(a.file.Tensors),
		TensorTypes: make(map[string]int),
	}

	report.Architecture = a.file.Architecture()
	if name, ok := a.file.KV["general.name"].(string); ok {
		report.ModelName = name
	}

	arch := report.Architecture
	report.ContextLength = int(getKVInt(a.file.KV, arch+".context_length", "general.context_length"))
	report.EmbeddingLength = int(getKVInt(a.file.KV, arch+".embedding_length", arch+".hidden_size"))
	report.VocabSize = int(getKVInt(a.file.KV, arch+".vocab_size"))
	if report.VocabSize == 0 {
		if tokens, ok := a.file.KV["tokenizer.ggml.tokens"].([]interface{}); ok {
			report.VocabSize = len(tokens)
		}
	}

	var totalParams, totalBytes int64
	for _, t := range a.file.Tensors {
		totalParams += int64(t.NumElements())
		size := t.SizeBytes()
		if size == 0 {
			size = t.NumElements() * 4
		}
		totalBytes += int64(size)
		report.TensorTypes[t.Type.String()]++
	}
	report.TotalParameters = totalParams
	report.MemoryEstimate = totalBytes

	return report, nil
}

func getKVInt(kv map[string]interface{}, keys ...string) uint64 {
	for _, key := range keys {
		val, ok := kv[key]
		if !ok {
			continue
		}
		switch v := val.(type) {
		case uint64:
			return v
		case int64:
			if v > 0 {
				return uint64(v)
			}
		case uint32:
			return uint64(v)
		case int32:
			if v > 0 {
				return uint64(v)
			}
		case uint16:
			return uint64(v)
		case int:
			if v > 0 {
				return uint64(v)
			}
		case float64:
			if v > 0 && v == math.Trunc(v) {
				return uint64(v)
			}
		}
	}
	return 0
}

func (r *AnalysisReport) String() string {
	return fmt.Sprintf(`GGUF Model Analysis Report
============================
Architecture:     %s
Model Name:       %s
Context Length:   %d
Embedding Length: %d
Vocab Size:       %d
Total Tensors:    %d
Total Parameters: %d
Memory Estimate:  %d bytes
`,
		r.Architecture,
		r.ModelName,
		r.ContextLength,
		r.EmbeddingLength,
		r.VocabSize,
		r.TensorCount,
		r.TotalParameters,
		r.MemoryEstimate,
	)
}

// ValidateTensors lists tensors whose size is unknown or whose data does
// not match their declared size.
func (a *MetadataAnalyzer) ValidateTensors() []string {
	var issues []string
	for i, t := range a.file.Tensors {
		expected := t.SizeBytes()
		if expected == 0 {
			issues = append(issues, fmt.Sprintf("Tensor %d (%s): unknown size for type %s", i, t.Name, t.Type))
			continue
		}
		if uint64(len(t.Data)) != expected {
			issues = append(issues, fmt.Sprintf("Tensor %d (%s): expected %d bytes, got %d", i, t.Name, expected, len(t.Data)))
		}
	}
	return issues
}

func (a *MetadataAnalyzer) FindMissingTensors(required []string) []string {
	existing := make(map[string]bool, len(a.file.Tensors))
	for _, t := range a.file.Tensors {
		existing[t.Name] = true
	}

	var missing []string
	for _, name := range required {
		if !existing[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
