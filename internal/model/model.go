// Package model defines the narrow capabilities the generation loop needs
// from a tokenizer and a forward-pass engine.
package model

import "context"

// Cache is an opaque incremental-cache handle. The loop hands it back to the
// model on every call and replaces it with whatever the model returns.
type Cache interface{}

// Model computes next-token logits for a token sequence.
type Model interface {
	// Forward runs tokens through the model. cache is nil on the first call.
	// The returned logits hold one row per input position, each row spanning
	// the vocabulary.
	Forward(ctx context.Context, tokens []int, cache Cache) ([][]float32, Cache, error)

	// Metadata exposes model configuration such as the context length.
	Metadata() map[string]any
}

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int, skipSpecial bool) string
	// EOS returns the end-of-sequence id; ok is false when the vocabulary
	// has none.
	EOS() (id int, ok bool)
}
