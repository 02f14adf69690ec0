package gguf

import (
	"math"
	"testing"
)

func TestFloat16ToFloat32(t *testing.T) {
	tests := []struct {
		name string
		h    uint16
		want float32
	}{
		{"zero", 0x0000, 0},
		{"one", 0x3c00, 1},
		{"minus two", 0xc000, -2},
		{"half", 0x3800, 0.5},
		{"max normal", 0x7bff, 65504},
		{"min normal", 0x0400, float32(math.Ldexp(1, -14))},
		{"min subnormal", 0x0001, float32(math.Ldexp(1, -24))},
		{"max subnormal", 0x03ff, float32(1023 * math.Ldexp(1, -24))},
		{"negative subnormal", 0x8001, -float32(math.Ldexp(1, -24))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Float16ToFloat32(tt.h); got != tt.want {
				t.Errorf("Float16ToFloat32(0x%04x) = %g, want %g", tt.h, got, tt.want)
			}
		})
	}

	if !math.IsInf(float64(Float16ToFloat32(0x7c00)), 1) {
		t.Error("0x7c00 should be +Inf")
	}
	if !math.IsInf(float64(Float16ToFloat32(0xfc00)), -1) {
		t.Error("0xfc00 should be -Inf")
	}
	if !math.IsNaN(float64(Float16ToFloat32(0x7e00))) {
		t.Error("0x7e00 should be NaN")
	}
	if math.Signbit(float64(Float16ToFloat32(0x8000))) != true {
		t.Error("0x8000 should be negative zero")
	}
}

func TestFloat32ToFloat16(t *testing.T) {
	tests := []struct {
		name string
		f    float32
		want uint16
	}{
		{"zero", 0, 0x0000},
		{"one", 1, 0x3c00},
		{"minus two", -2, 0xc000},
		{"max normal", 65504, 0x7bff},
		{"overflow", 1e6, 0x7c00},
		{"min subnormal", float32(math.Ldexp(1, -24)), 0x0001},
		{"underflow", float32(math.Ldexp(1, -30)), 0x0000},
		{"ties to even down", 1 + float32(math.Ldexp(1, -11)), 0x3c00},
		{"ties to even up", 1 + 3*float32(math.Ldexp(1, -11)), 0x3c02},
		{"infinity", float32(math.Inf(1)), 0x7c00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Float32ToFloat16(tt.f); got != tt.want {
				t.Errorf("Float32ToFloat16(%g) = 0x%04x, want 0x%04x", tt.f, got, tt.want)
			}
		})
	}

	if h := Float32ToFloat16(float32(math.NaN())); h&0x7c00 != 0x7c00 || h&0x3ff == 0 {
		t.Errorf("NaN encoded as 0x%04x", h)
	}
}

func TestFloat16RoundTripsEveryFiniteValue(t *testing.T) {
	for h := uint32(0); h <= 0xffff; h++ {
		bits := uint16(h)
		if bits&0x7c00 == 0x7c00 {
			continue // Inf and NaN
		}
		if got := Float32ToFloat16(Float16ToFloat32(bits)); got != bits {
			t.Fatalf("round trip 0x%04x -> %g -> 0x%04x", bits, Float16ToFloat32(bits), got)
		}
	}
}

func TestFloat32sRejectsQuantized(t *testing.T) {
	ti := &TensorInfo{Name: "q", Type: GGMLTypeQ4_K, Dimensions: []uint64{256}, Data: make([]byte, 144)}
	if _, err := ti.Float32s(); err == nil {
		t.Error("expected error for quantized tensor")
	}

	short := &TensorInfo{Name: "s", Type: GGMLTypeF32, Dimensions: []uint64{4}, Data: make([]byte, 8)}
	if _, err := short.Float32s(); err == nil {
		t.Error("expected error for short data")
	}
}
