package gguf

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Float32s decodes an F32 or F16 tensor. Quantized types are not supported.
func (t *TensorInfo) Float32s() ([]float32, error) {
	n := t.NumElements()
	if uint64(len(t.Data)) < t.SizeBytes() {
		return nil, fmt.Errorf("tensor %s: have %d bytes, need %d", t.Name, len(t.Data), t.SizeBytes())
	}

	out := make([]float32, n)
	switch t.Type {
	case GGMLTypeF32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[i*4:]))
		}
	case GGMLTypeF16:
		for i := range out {
			out[i] = Float16ToFloat32(binary.LittleEndian.Uint16(t.Data[i*2:]))
		}
	default:
		return nil, fmt.Errorf("tensor %s: unsupported type %s", t.Name, t.Type)
	}
	return out, nil
}

// Float16ToFloat32 converts IEEE 754 half precision bits, subnormals included.
func Float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch exp {
	case 0:
		// Zero or subnormal: mant * 2^-24.
		v := float32(mant) / (1 << 24)
		if sign != 0 {
			v = -v
		}
		return v
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}

// Float32ToFloat16 rounds to nearest even. Out-of-range values become infinity.
func Float32ToFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int((bits >> 23) & 0xff)
	mant := bits & 0x7fffff

	if exp == 0xff {
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	}

	e := exp - 127 + 15
	if e >= 0x1f {
		return sign | 0x7c00
	}
	if e <= 0 {
		if e < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - e)
		half := mant >> shift
		rem := mant & (1<<shift - 1)
		halfway := uint32(1) << (shift - 1)
		if rem > halfway || (rem == halfway && half&1 == 1) {
			half++
		}
		return sign | uint16(half)
	}

	half := uint32(e)<<10 | mant>>13
	rem := mant & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && half&1 == 1) {
		half++ // may carry into the exponent, up to infinity
	}
	return sign | uint16(half)
}
