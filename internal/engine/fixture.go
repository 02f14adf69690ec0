package engine

import (
	"fmt"

	"github.com/23skdu/contextwatch/internal/gguf"
	"github.com/23skdu/contextwatch/internal/tokenizer"
)

const fixtureArch = "tinylm"

// DefaultFixtureWords is the word chain of the built-in fixture model.
var DefaultFixtureWords = []string{
	"the", "quick", "brown", "fox", "jumps", "over", "a", "lazy",
	"dog", "while", "birds", "sing", "in", "tall", "green", "trees",
}

type FixtureOptions struct {
	Words         []string
	ContextLength int
	F16           bool
}

// Fixture token ids.
const (
	FixtureUnkID = 0
	FixtureBOSID = 1
	FixtureEOSID = 2
	fixtureFirst = 3
)

// NewFixture builds a model whose greedy continuation of any word is the
// next word in opts.Words, and whose continuation of the last word is EOS.
// Embeddings are one-hot so the output matrix alone encodes the chain.
func NewFixture(opts FixtureOptions) (*gguf.Writer, error) {
	words := opts.Words
	if len(words) == 0 {
		words = DefaultFixtureWords
	}
	if opts.ContextLength <= 0 {
		opts.ContextLength = 64
	}

	tokens := []string{"<unk>", "<s>", "</s>"}
	types := []int32{tokenizer.TokenTypeUnknown, tokenizer.TokenTypeControl, tokenizer.TokenTypeControl}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if w == "" || seen[w] {
			return nil, fmt.Errorf("fixture words must be unique and non-empty: %q", w)
		}
		seen[w] = true
		tokens = append(tokens, "▁"+w)
		types = append(types, tokenizer.TokenTypeNormal)
	}

	vocab := len(tokens)
	dim := vocab
	emb := make([]float32, vocab*dim)
	out := make([]float32, vocab*dim)
	norm := make([]float32, dim)
	for i := 0; i < vocab; i++ {
		emb[i*dim+i] = 1
		norm[i] = 1
	}
	// out row j points at the token that should precede j.
	link := func(prev, next int) { out[next*dim+prev] = 1 }
	link(FixtureBOSID, fixtureFirst)
	for i := fixtureFirst; i < vocab-1; i++ {
		link(i, i+1)
	}
	link(vocab-1, FixtureEOSID)

	w := gguf.NewWriter()
	w.SetKV("general.architecture", fixtureArch)
	w.SetKV("general.name", "contextwatch-fixture")
	w.SetKV(fixtureArch+".context_length", uint32(opts.ContextLength))
	w.SetKV(fixtureArch+".embedding_length", uint32(dim))
	w.SetKV(fixtureArch+".attention.layer_norm_rms_epsilon", float32(defaultRMSEps))
	w.SetKV("tokenizer.ggml.model", "llama")
	w.SetKV("tokenizer.ggml.tokens", tokens)
	w.SetKV("tokenizer.ggml.token_type", types)
	w.SetKV("tokenizer.ggml.unknown_token_id", uint32(FixtureUnkID))
	w.SetKV("tokenizer.ggml.bos_token_id", uint32(FixtureBOSID))
	w.SetKV("tokenizer.ggml.eos_token_id", uint32(FixtureEOSID))
	w.SetKV("tokenizer.ggml.add_bos_token", true)

	add := w.AddTensorF32
	if opts.F16 {
		add = w.AddTensorF16
	}
	dims := []uint64{uint64(dim), uint64(vocab)}
	if err := add(tensorTokenEmbd, dims, emb); err != nil {
		return nil, err
	}
	if err := add(tensorOutput, dims, out); err != nil {
		return nil, err
	}
	if err := w.AddTensorF32(tensorOutputNorm, []uint64{uint64(dim)}, norm); err != nil {
		return nil, err
	}
	return w, nil
}
