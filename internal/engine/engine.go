// Package engine is a small CPU engine for GGUF models with tied token
// embeddings and a single parameter-free causal attention step. It exists to
// drive the generation loop against real files, not to run production LLMs.
package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/23skdu/contextwatch/internal/gguf"
	"github.com/23skdu/contextwatch/internal/logger"
	"github.com/23skdu/contextwatch/internal/model"
	"github.com/23skdu/contextwatch/internal/tokenizer"
)

const (
	tensorTokenEmbd  = "token_embd.weight"
	tensorOutputNorm = "output_norm.weight"
	tensorOutput     = "output.weight"

	defaultRMSEps = 1e-5
)

// Engine implements model.Model.
type Engine struct {
	meta       map[string]any
	vocab      int
	dim        int
	contextLen int
	eps        float32

	tokenEmb   [][]float32 // [vocab][dim]
	output     [][]float32 // [vocab][dim]; aliases tokenEmb when tied
	outputNorm []float32   // [dim]
}

var _ model.Model = (*Engine)(nil)

// Open loads the engine and the tokenizer from one GGUF file.
func Open(path string) (*Engine, *tokenizer.Tokenizer, error) {
	f, err := gguf.LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load GGUF: %w", err)
	}
	e, err := NewFromGGUF(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load weights: %w", err)
	}
	tok, err := tokenizer.NewFromGGUF(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	logger.Log.Info("CPU engine initialized", "model", path, "vocab", e.vocab, "dim", e.dim,
		"context_length", e.contextLen)
	return e, tok, nil
}

func NewFromGGUF(f *gguf.GGUFFile) (*Engine, error) {
	if missing := gguf.NewMetadataAnalyzer(f).FindMissingTensors([]string{tensorTokenEmbd, tensorOutputNorm}); len(missing) > 0 {
		return nil, fmt.Errorf("missing tensors: %v", missing)
	}

	emb := f.Tensor(tensorTokenEmbd)
	if len(emb.Dimensions) != 2 {
		return nil, fmt.Errorf("%s: expected 2 dimensions, got %v", tensorTokenEmbd, emb.Dimensions)
	}
	dim, vocab := int(emb.Dimensions[0]), int(emb.Dimensions[1])

	e := &Engine{
		meta:  make(map[string]any, len(f.KV)),
		vocab: vocab,
		dim:   dim,
		eps:   defaultRMSEps,
	}
	for k, v := range f.KV {
		e.meta[k] = v
	}
	if n, err := model.MaxContextLength(e.meta); err == nil {
		e.contextLen = n
	}
	if v, ok := f.KV[f.Architecture()+".attention.layer_norm_rms_epsilon"].(float32); ok && v > 0 {
		e.eps = v
	}

	var err error
	if e.tokenEmb, err = loadMatrix(emb, vocab, dim); err != nil {
		return nil, err
	}
	norm := f.Tensor(tensorOutputNorm)
	if e.outputNorm, err = norm.Float32s(); err != nil {
		return nil, err
	}
	if len(e.outputNorm) != dim {
		return nil, fmt.Errorf("%s: expected %d values, got %d", tensorOutputNorm, dim, len(e.outputNorm))
	}

	e.output = e.tokenEmb
	if out := f.Tensor(tensorOutput); out != nil {
		if e.output, err = loadMatrix(out, vocab, dim); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func loadMatrix(t *gguf.TensorInfo, rows, cols int) ([][]float32, error) {
	if len(t.Dimensions) != 2 || int(t.Dimensions[0]) != cols || int(t.Dimensions[1]) != rows {
		return nil, fmt.Errorf("%s: expected dims [%d %d], got %v", t.Name, cols, rows, t.Dimensions)
	}
	flat, err := t.Float32s()
	if err != nil {
		return nil, err
	}
	m := make([][]float32, rows)
	for i := range m {
		m[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return m, nil
}

func (e *Engine) Metadata() map[string]any { return e.meta }

func (e *Engine) VocabSize() int { return e.vocab }

// ContextLength is 0 when the file declares none; the cache is then unbounded.
func (e *Engine) ContextLength() int { return e.contextLen }

// Forward appends tokens to the cache and returns one logits row per token.
// A nil cache starts a new sequence. The returned handle is the same
// *KVCache, extended in place.
func (e *Engine) Forward(ctx context.Context, tokens []int, cache model.Cache) ([][]float32, model.Cache, error) {
	if len(tokens) == 0 {
		return nil, cache, fmt.Errorf("forward: no tokens")
	}

	var kv *KVCache
	switch c := cache.(type) {
	case nil:
		kv = newKVCache(e.dim, e.contextLen)
	case *KVCache:
		kv = c
	default:
		return nil, cache, fmt.Errorf("forward: unexpected cache type %T", cache)
	}
	if err := kv.reserve(len(tokens)); err != nil {
		return nil, kv, err
	}

	logits := make([][]float32, len(tokens))
	for i, id := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, kv, err
		}
		if id < 0 || id >= e.vocab {
			return nil, kv, fmt.Errorf("forward: token id %d out of range [0, %d)", id, e.vocab)
		}
		logits[i] = e.step(kv, e.tokenEmb[id])
	}
	return logits, kv, nil
}

// step runs one position: attend over the cache (self included), add the
// residual, normalize, project onto the output matrix.
func (e *Engine) step(kv *KVCache, x []float32) []float32 {
	xn := rmsNorm(x, nil, e.eps)
	kv.append(xn)

	scale := float32(1 / math.Sqrt(float64(e.dim)))
	scores := make([]float32, kv.Len())
	for j, k := range kv.keys {
		scores[j] = dot(xn, k) * scale
	}
	softmax(scores)

	h := make([]float32, e.dim)
	copy(h, x)
	for j, k := range kv.keys {
		axpy(scores[j], k, h)
	}

	hn := rmsNorm(h, e.outputNorm, e.eps)
	out := make([]float32, e.vocab)
	for v, row := range e.output {
		out[v] = dot(row, hn)
	}
	return out
}
