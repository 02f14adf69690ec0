package gguf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"path/filepath"
	"testing"
)

func TestGGUFMagic(t *testing.T) {
	if GGUFMagic != 0x46554747 {
		t.Errorf("expected GGUFMagic 0x46554747, got 0x%x", GGUFMagic)
	}
}

func TestGGMLTypeString(t *testing.T) {
	tests := []struct {
		ggmlType GGMLType
		expected string
	}{
		{GGMLTypeF32, "F32"},
		{GGMLTypeF16, "F16"},
		{GGMLTypeQ4_K, "Q4_K"},
		{GGMLTypeQ6_K, "Q6_K"},
		{GGMLType(999), "UNKNOWN_TYPE_999"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.ggmlType.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestTensorSizeBytes(t *testing.T) {
	tests := []struct {
		typ  GGMLType
		dims []uint64
		want uint64
	}{
		{GGMLTypeF32, []uint64{4, 3}, 48},
		{GGMLTypeF16, []uint64{4, 3}, 24},
		{GGMLTypeQ8_0, []uint64{64}, 68},
		{GGMLTypeQ4_K, []uint64{256, 2}, 288},
		{GGMLType(42), []uint64{8}, 0},
	}
	for _, tt := range tests {
		ti := &TensorInfo{Type: tt.typ, Dimensions: tt.dims}
		if got := ti.SizeBytes(); got != tt.want {
			t.Errorf("%s %v: SizeBytes() = %d, want %d", tt.typ, tt.dims, got, tt.want)
		}
	}
}

func buildTestFile(t *testing.T) []byte {
	t.Helper()
	w := NewWriter()
	w.SetKV("general.architecture", "tiny")
	w.SetKV("general.name", "fixture")
	w.SetKV("tiny.context_length", uint32(64))
	w.SetKV("tiny.embedding_length", uint32(4))
	w.SetKV("tiny.rope.freq_base", float32(10000))
	w.SetKV("general.file_type", int32(1))
	w.SetKV("tokenizer.ggml.tokens", []string{"<unk>", "<s>", "</s>", "a"})
	w.SetKV("tokenizer.ggml.token_type", []int32{2, 3, 3, 1})
	w.SetKV("tokenizer.ggml.eos_token_id", uint32(2))
	w.SetKV("tokenizer.ggml.add_bos_token", true)

	if err := w.AddTensorF32("token_embd.weight", []uint64{4, 4}, make([]float32, 16)); err != nil {
		t.Fatal(err)
	}
	// 3 elements leaves the next tensor needing alignment padding.
	if err := w.AddTensorF16("output_norm.weight", []uint64{3}, []float32{1, 0.5, -2}); err != nil {
		t.Fatal(err)
	}
	if err := w.AddTensorF32("odd.weight", []uint64{2}, []float32{7, 8}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	return buf.Bytes()
}

func TestWriterOutputParses(t *testing.T) {
	file, err := Parse(buildTestFile(t))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if file.Header.Version != GGUFVersion {
		t.Errorf("expected version %d, got %d", GGUFVersion, file.Header.Version)
	}
	if file.Architecture() != "tiny" {
		t.Errorf("expected architecture tiny, got %q", file.Architecture())
	}
	if v, ok := file.KV["tiny.context_length"].(uint32); !ok || v != 64 {
		t.Errorf("context_length = %#v", file.KV["tiny.context_length"])
	}
	if v, ok := file.KV["general.file_type"].(int32); !ok || v != 1 {
		t.Errorf("file_type = %#v", file.KV["general.file_type"])
	}
	if v, ok := file.KV["tokenizer.ggml.add_bos_token"].(bool); !ok || !v {
		t.Errorf("add_bos_token = %#v", file.KV["tokenizer.ggml.add_bos_token"])
	}
	tokens, ok := file.KV["tokenizer.ggml.tokens"].([]interface{})
	if !ok || len(tokens) != 4 || tokens[3] != "a" {
		t.Errorf("tokens = %#v", file.KV["tokenizer.ggml.tokens"])
	}

	if file.DataOffset%DefaultAlignment != 0 {
		t.Errorf("data offset %d not aligned", file.DataOffset)
	}
	if len(file.Tensors) != 3 {
		t.Fatalf("expected 3 tensors, got %d", len(file.Tensors))
	}
	for _, ti := range file.Tensors {
		if ti.Offset%DefaultAlignment != 0 {
			t.Errorf("tensor %s offset %d not aligned", ti.Name, ti.Offset)
		}
		if uint64(len(ti.Data)) != ti.SizeBytes() {
			t.Errorf("tensor %s: %d bytes, want %d", ti.Name, len(ti.Data), ti.SizeBytes())
		}
	}

	norm, err := file.Tensor("output_norm.weight").Float32s()
	if err != nil {
		t.Fatal(err)
	}
	if norm[0] != 1 || norm[1] != 0.5 || norm[2] != -2 {
		t.Errorf("unexpected norm values %v", norm)
	}
	odd, err := file.Tensor("odd.weight").Float32s()
	if err != nil {
		t.Fatal(err)
	}
	if odd[0] != 7 || odd[1] != 8 {
		t.Errorf("unexpected values after padding %v", odd)
	}
	if file.Tensor("missing") != nil {
		t.Error("expected nil for unknown tensor")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.gguf")
	w := NewWriter()
	w.SetKV("general.architecture", "tiny")
	if err := w.AddTensorF32("a", []uint64{1}, []float32{1}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFile(path); err != nil {
		t.Fatal(err)
	}

	file, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	vals, err := file.Tensors[0].Float32s()
	if err != nil || vals[0] != 1 {
		t.Errorf("got %v, %v", vals, err)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.gguf")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseErrors(t *testing.T) {
	valid := buildTestFile(t)

	badMagic := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badMagic, 0xdeadbeef)
	var magicErr ErrInvalidMagic
	if _, err := Parse(badMagic); !errors.As(err, &magicErr) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}

	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badVersion[4:], 7)
	var versionErr ErrUnsupportedVersion
	if _, err := Parse(badVersion); !errors.As(err, &versionErr) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}

	if _, err := Parse(valid[:10]); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF for short header, got %v", err)
	}
	if _, err := Parse(valid[:60]); err == nil {
		t.Error("expected error for truncated metadata")
	}
	if _, err := Parse(valid[:len(valid)-4]); err == nil {
		t.Error("expected error for truncated tensor data")
	}
}

func TestWriterRejectsBadInput(t *testing.T) {
	w := NewWriter()
	if err := w.AddTensorF32("a", []uint64{2, 2}, []float32{1, 2, 3}); err == nil {
		t.Error("expected element count mismatch")
	}

	w.SetKV("bad", struct{}{})
	if _, err := w.WriteTo(io.Discard); err == nil {
		t.Error("expected error for unsupported metadata type")
	}
}

func TestSetKVReplaces(t *testing.T) {
	w := NewWriter()
	w.SetKV("k", uint32(1))
	w.SetKV("k", uint32(2))

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	file, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if file.Header.KVCount != 1 || file.KV["k"] != uint32(2) {
		t.Errorf("expected single k=2, got count=%d kv=%v", file.Header.KVCount, file.KV)
	}
}
