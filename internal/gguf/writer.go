package gguf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

type kvPair struct {
	key   string
	value interface{}
}

// Writer assembles a GGUF v3 image in memory. Metadata keys are written in
// insertion order and tensors are laid out back to back with
// DefaultAlignment padding.
type Writer struct {
	kv      []kvPair
	tensors []*TensorInfo
}

func NewWriter() *Writer {
	return &Writer{}
}

// SetKV accepts uint8, int8, uint16, int16, uint32, int32, uint64, int64,
// float32, float64, bool, string, []string, []int32, []float32 and []uint32.
func (w *Writer) SetKV(key string, value interface{}) {
	for i := range w.kv {
		if w.kv[i].key == key {
			w.kv[i].value = value
			return
		}
	}
	w.kv = append(w.kv, kvPair{key: key, value: value})
}

// AddTensorF32 stores data as F32. dims use GGUF order (innermost first).
func (w *Writer) AddTensorF32(name string, dims []uint64, data []float32) error {
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return w.addTensor(name, dims, GGMLTypeF32, buf)
}

// AddTensorF16 stores data rounded to half precision.
func (w *Writer) AddTensorF16(name string, dims []uint64, data []float32) error {
	buf := make([]byte, 2*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint16(buf[i*2:], Float32ToFloat16(v))
	}
	return w.addTensor(name, dims, GGMLTypeF16, buf)
}

// AddTensorRaw stores already encoded bytes of any type SizeBytes knows,
// such as quantized blocks copied from another file.
func (w *Writer) AddTensorRaw(name string, dims []uint64, typ GGMLType, raw []byte) error {
	return w.addTensor(name, dims, typ, raw)
}

func (w *Writer) addTensor(name string, dims []uint64, typ GGMLType, raw []byte) error {
	t := &TensorInfo{Name: name, Dimensions: append([]uint64(nil), dims...), Type: typ, Data: raw}
	size := t.SizeBytes()
	if size == 0 {
		return fmt.Errorf("tensor %s: cannot size type %s", name, typ)
	}
	if size != uint64(len(raw)) {
		return fmt.Errorf("tensor %s: dims %v need %d bytes of %s, got %d", name, dims, size, typ, len(raw))
	}
	var offset uint64
	if n := len(w.tensors); n > 0 {
		prev := w.tensors[n-1]
		offset = alignUp(prev.Offset+uint64(len(prev.Data)), DefaultAlignment)
	}
	t.Offset = offset
	w.tensors = append(w.tensors, t)
	return nil
}

func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	var hdr bytes.Buffer
	put := func(v interface{}) { _ = binary.Write(&hdr, binary.LittleEndian, v) }

	put(uint32(GGUFMagic))
	put(uint32(GGUFVersion))
	put(uint64(len(w.tensors)))
	put(uint64(len(w.kv)))

	for _, p := range w.kv {
		writeString(&hdr, p.key)
		if err := writeValue(&hdr, p.value); err != nil {
			return 0, fmt.Errorf("kv %s: %w", p.key, err)
		}
	}
	for _, t := range w.tensors {
		writeString(&hdr, t.Name)
		put(uint32(len(t.Dimensions)))
		for _, d := range t.Dimensions {
			put(d)
		}
		put(uint32(t.Type))
		put(t.Offset)
	}
	hdr.Write(make([]byte, alignUp(uint64(hdr.Len()), DefaultAlignment)-uint64(hdr.Len())))

	bw := bufio.NewWriter(out)
	total, err := bw.Write(hdr.Bytes())
	if err != nil {
		return int64(total), err
	}
	var pos uint64
	for _, t := range w.tensors {
		if pad := t.Offset - pos; pad > 0 {
			n, err := bw.Write(make([]byte, pad))
			total += n
			if err != nil {
				return int64(total), err
			}
		}
		n, err := bw.Write(t.Data)
		total += n
		if err != nil {
			return int64(total), err
		}
		pos = t.Offset + uint64(len(t.Data))
	}
	return int64(total), bw.Flush()
}

func (w *Writer) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := w.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeString(b *bytes.Buffer, s string) {
	_ = binary.Write(b, binary.LittleEndian, uint64(len(s)))
	b.WriteString(s)
}

func writeValue(b *bytes.Buffer, v interface{}) error {
	typed := func(t GGUFMetadataValueType, x interface{}) {
		_ = binary.Write(b, binary.LittleEndian, uint32(t))
		_ = binary.Write(b, binary.LittleEndian, x)
	}
	array := func(t GGUFMetadataValueType, n int) {
		_ = binary.Write(b, binary.LittleEndian, uint32(GGUFMetadataValueTypeArray))
		_ = binary.Write(b, binary.LittleEndian, uint32(t))
		_ = binary.Write(b, binary.LittleEndian, uint64(n))
	}

	switch x := v.(type) {
	case uint8:
		typed(GGUFMetadataValueTypeUint8, x)
	case int8:
		typed(GGUFMetadataValueTypeInt8, x)
	case uint16:
		typed(GGUFMetadataValueTypeUint16, x)
	case int16:
		typed(GGUFMetadataValueTypeInt16, x)
	case uint32:
		typed(GGUFMetadataValueTypeUint32, x)
	case int32:
		typed(GGUFMetadataValueTypeInt32, x)
	case uint64:
		typed(GGUFMetadataValueTypeUint64, x)
	case int64:
		typed(GGUFMetadataValueTypeInt64, x)
	case float32:
		typed(GGUFMetadataValueTypeFloat32, x)
	case float64:
		typed(GGUFMetadataValueTypeFloat64, x)
	case bool:
		var u uint8
		if x {
			u = 1
		}
		typed(GGUFMetadataValueTypeBool, u)
	case string:
		_ = binary.Write(b, binary.LittleEndian, uint32(GGUFMetadataValueTypeString))
		writeString(b, x)
	case []string:
		array(GGUFMetadataValueTypeString, len(x))
		for _, s := range x {
			writeString(b, s)
		}
	case []int32:
		array(GGUFMetadataValueTypeInt32, len(x))
		_ = binary.Write(b, binary.LittleEndian, x)
	case []uint32:
		array(GGUFMetadataValueTypeUint32, len(x))
		_ = binary.Write(b, binary.LittleEndian, x)
	case []float32:
		array(GGUFMetadataValueTypeFloat32, len(x))
		_ = binary.Write(b, binary.LittleEndian, x)
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}
