package gguf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/23skdu/contextwatch/internal/logger"
)

// maxArrayLen bounds metadata arrays so a corrupt length cannot exhaust memory.
const maxArrayLen = 1 << 24

// LoadFile reads a GGUF file and parses headers, metadata and tensor infos.
func LoadFile(path string) (*GGUFFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	logger.Log.Debug("Loaded GGUF", "path", path, "version", file.Header.Version,
		"tensors", file.Header.TensorCount, "kv", file.Header.KVCount)
	return file, nil
}

// Parse decodes a complete GGUF image. Tensor Data slices alias data.
func Parse(data []byte) (*GGUFFile, error) {
	r := &reader{data: data}
	file := &GGUFFile{KV: make(map[string]interface{})}

	if len(data) < 24 { // minimal header
		return nil, io.ErrUnexpectedEOF
	}

	file.Header.Magic, _ = r.u32()
	if file.Header.Magic != GGUFMagic {
		return nil, ErrInvalidMagic{Magic: file.Header.Magic}
	}
	file.Header.Version, _ = r.u32()
	if file.Header.Version < 2 || file.Header.Version > 3 {
		return nil, ErrUnsupportedVersion{Version: file.Header.Version}
	}
	file.Header.TensorCount, _ = r.u64()
	file.Header.KVCount, _ = r.u64()

	for i := uint64(0); i < file.Header.KVCount; i++ {
		k, err := r.str()
		if err != nil {
			return nil, fmt.Errorf("kv %d key: %w", i, err)
		}
		typ, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("kv %s type: %w", k, err)
		}
		val, err := r.value(GGUFMetadataValueType(typ))
		if err != nil {
			return nil, fmt.Errorf("kv %s: %w", k, err)
		}
		file.KV[k] = val
	}

	for i := uint64(0); i < file.Header.TensorCount; i++ {
		t, err := r.tensorInfo()
		if err != nil {
			return nil, fmt.Errorf("tensor info %d: %w", i, err)
		}
		file.Tensors = append(file.Tensors, t)
	}

	alignment := uint64(getKVInt(file.KV, "general.alignment"))
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	file.DataOffset = alignUp(r.off, alignment)

	for _, t := range file.Tensors {
		size := t.SizeBytes()
		start := file.DataOffset + t.Offset
		if size == 0 {
			// Unsized types keep the tail so analyzers can still see them.
			if start > uint64(len(data)) {
				return nil, fmt.Errorf("tensor %s offset out of bounds", t.Name)
			}
			t.Data = data[start:]
			continue
		}
		if start+size > uint64(len(data)) {
			return nil, fmt.Errorf("tensor %s: data [%d, %d) exceeds file size %d", t.Name, start, start+size, len(data))
		}
		t.Data = data[start : start+size]
	}

	return file, nil
}

func alignUp(off, alignment uint64) uint64 {
	if rem := off % alignment; rem != 0 {
		return off + alignment - rem
	}
	return off
}

type reader struct {
	data []byte
	off  uint64
}

func (r *reader) need(n uint64) error {
	if r.off+n > uint64(len(r.data)) || r.off+n < r.off {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) str() (string, error) {
	length, err := r.u64()
	if err != nil {
		return "", err
	}
	if err := r.need(length); err != nil {
		return "", err
	}
	s := string(r.data[r.off : r.off+length])
	r.off += length
	return s, nil
}

func (r *reader) tensorInfo() (*TensorInfo, error) {
	name, err := r.str()
	if err != nil {
		return nil, err
	}
	dims, err := r.u32()
	if err != nil {
		return nil, err
	}
	if dims > 8 {
		return nil, fmt.Errorf("tensor %s: too many dimensions: %d", name, dims)
	}
	dimArr := make([]uint64, dims)
	for j := range dimArr {
		if dimArr[j], err = r.u64(); err != nil {
			return nil, err
		}
	}
	typ, err := r.u32()
	if err != nil {
		return nil, err
	}
	off, err := r.u64()
	if err != nil {
		return nil, err
	}
	return &TensorInfo{Name: name, Dimensions: dimArr, Type: GGMLType(typ), Offset: off}, nil
}

func (r *reader) value(typ GGUFMetadataValueType) (interface{}, error) {
	switch typ {
	case GGUFMetadataValueTypeUint8:
		return r.u8()
	case GGUFMetadataValueTypeInt8:
		v, err := r.u8()
		return int8(v), err
	case GGUFMetadataValueTypeUint16:
		return r.u16()
	case GGUFMetadataValueTypeInt16:
		v, err := r.u16()
		return int16(v), err
	case GGUFMetadataValueTypeUint32:
		return r.u32()
	case GGUFMetadataValueTypeInt32:
		v, err := r.u32()
		return int32(v), err
	case GGUFMetadataValueTypeFloat32:
		v, err := r.u32()
		return math.Float32frombits(v), err
	case GGUFMetadataValueTypeBool:
		v, err := r.u8()
		return v != 0, err
	case GGUFMetadataValueTypeString:
		return r.str()
	case GGUFMetadataValueTypeArray:
		elemType, err := r.u32()
		if err != nil {
			return nil, err
		}
		n, err := r.u64()
		if err != nil {
			return nil, err
		}
		if n > maxArrayLen {
			return nil, fmt.Errorf("array too long: %d", n)
		}
		arr := make([]interface{}, 0, n)
		for i := uint64(0); i < n; i++ {
			v, err := r.value(GGUFMetadataValueType(elemType))
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case GGUFMetadataValueTypeUint64:
		return r.u64()
	case GGUFMetadataValueTypeInt64:
		v, err := r.u64()
		return int64(v), err
	case GGUFMetadataValueTypeFloat64:
		v, err := r.u64()
		return math.Float64frombits(v), err
	default:
		return nil, fmt.Errorf("unsupported metadata type: %d", typ)
	}
}
