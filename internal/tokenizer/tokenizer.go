package tokenizer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/23skdu/contextwatch/internal/gguf"
	"github.com/23skdu/contextwatch/internal/logger"
)

// GGUF token types.
const (
	TokenTypeNormal      = 1
	TokenTypeUnknown     = 2
	TokenTypeControl     = 3
	TokenTypeUserDefined = 4
	TokenTypeUnused      = 5
	TokenTypeByte        = 6
)

const (
	spmSpace  = "▁" // sentencepiece word boundary
	gpt2Space = "Ġ" // byte-level BPE space
)

// Tokenizer does greedy longest-match encoding over a GGUF vocabulary.
type Tokenizer struct {
	Tokens []string
	Vocab  map[string]int
	Types  []int32

	space    string
	maxLen   int
	bosID    int
	eosID    int
	unkID    int
	addBOS   bool
	hasEOS   bool
	byteToID [256]int
}

func New(path string) (*Tokenizer, error) {
	f, err := gguf.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewFromGGUF(f)
}

func NewFromGGUF(f *gguf.GGUFFile) (*Tokenizer, error) {
	val, ok := f.KV["tokenizer.ggml.tokens"]
	if !ok {
		return nil, fmt.Errorf("tokenizer.ggml.tokens not found in GGUF")
	}
	arr, ok := val.([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid type for tokenizer.ggml.tokens: %T", val)
	}

	t := &Tokenizer{
		Tokens: make([]string, len(arr)),
		Vocab:  make(map[string]int, len(arr)),
		Types:  make([]int32, len(arr)),
		bosID:  -1,
		eosID:  -1,
		unkID:  -1,
	}
	for i := range t.byteToID {
		t.byteToID[i] = -1
	}

	if types, ok := f.KV["tokenizer.ggml.token_type"].([]interface{}); ok && len(types) == len(arr) {
		for i, v := range types {
			if n, ok := v.(int32); ok {
				t.Types[i] = n
			}
		}
	}

	for i, v := range arr {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("token %d is not a string", i)
		}
		t.Tokens[i] = s
		if t.Types[i] == 0 {
			t.Types[i] = TokenTypeNormal
		}
		if _, dup := t.Vocab[s]; !dup {
			t.Vocab[s] = i
		}
		if len(s) > t.maxLen {
			t.maxLen = len(s)
		}
		switch {
		case t.Types[i] == TokenTypeUnknown && t.unkID < 0:
			t.unkID = i
		case t.Types[i] == TokenTypeByte:
			if b, ok := parseByteToken(s); ok {
				t.byteToID[b] = i
			}
		case t.space == "" && strings.HasPrefix(s, spmSpace):
			t.space = spmSpace
		case t.space == "" && strings.HasPrefix(s, gpt2Space):
			t.space = gpt2Space
		}
	}
	if t.space == "" {
		t.space = " "
	}

	if id, ok := kvID(f.KV, "tokenizer.ggml.eos_token_id", len(arr)); ok {
		t.eosID, t.hasEOS = id, true
	}
	if id, ok := kvID(f.KV, "tokenizer.ggml.bos_token_id", len(arr)); ok {
		t.bosID = id
	}
	if id, ok := kvID(f.KV, "tokenizer.ggml.unknown_token_id", len(arr)); ok {
		t.unkID = id
	}
	t.addBOS, _ = f.KV["tokenizer.ggml.add_bos_token"].(bool)

	return t, nil
}

// EOS reports the end-of-sequence id declared by the file.
func (t *Tokenizer) EOS() (int, bool) { return t.eosID, t.hasEOS }

func (t *Tokenizer) VocabSize() int { return len(t.Tokens) }

// Encode splits text into the longest vocabulary matches. Control tokens are
// never matched from text. Bytes without a match fall back to <0xNN> byte
// tokens, then to the unknown token.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	s := strings.ReplaceAll(text, " ", t.space)
	if t.space == spmSpace && !strings.HasPrefix(s, spmSpace) {
		s = spmSpace + s
	}

	var ids []int
	if t.addBOS && t.bosID >= 0 {
		ids = append(ids, t.bosID)
	}

	for i := 0; i < len(s); {
		id, n := t.longestMatch(s[i:])
		if n > 0 {
			ids = append(ids, id)
			i += n
			continue
		}
		switch {
		case t.byteToID[s[i]] >= 0:
			ids = append(ids, t.byteToID[s[i]])
		case t.unkID >= 0:
			ids = append(ids, t.unkID)
		default:
			return nil, fmt.Errorf("no token for byte 0x%02x at offset %d", s[i], i)
		}
		i++
	}

	logger.Log.Debug("Encoded text", "bytes", len(text), "tokens", len(ids))
	return ids, nil
}

func (t *Tokenizer) longestMatch(s string) (int, int) {
	n := t.maxLen
	if n > len(s) {
		n = len(s)
	}
	for ; n > 0; n-- {
		id, ok := t.Vocab[s[:n]]
		if !ok {
			continue
		}
		switch t.Types[id] {
		case TokenTypeControl, TokenTypeUnknown, TokenTypeUnused:
			continue
		}
		return id, n
	}
	return 0, 0
}

// Decode joins token pieces. With skipSpecial, control and unknown tokens
// are dropped. Out-of-range ids are ignored.
func (t *Tokenizer) Decode(ids []int, skipSpecial bool) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.Tokens) {
			continue
		}
		typ := t.Types[id]
		if skipSpecial && (typ == TokenTypeControl || typ == TokenTypeUnknown) {
			continue
		}
		if typ == TokenTypeByte {
			if b, ok := parseByteToken(t.Tokens[id]); ok {
				sb.WriteByte(b)
				continue
			}
		}
		sb.WriteString(t.Tokens[id])
	}

	out := sb.String()
	if t.space != " " {
		out = strings.ReplaceAll(out, t.space, " ")
	}
	if t.space == spmSpace {
		out = strings.TrimPrefix(out, " ")
	}
	return out
}

// parseByteToken parses sentencepiece byte tokens of the form <0x0A>.
func parseByteToken(s string) (byte, bool) {
	if len(s) != 6 || !strings.HasPrefix(s, "<0x") || s[5] != '>' {
		return 0, false
	}
	v, err := strconv.ParseUint(s[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

func kvID(kv map[string]interface{}, key string, vocab int) (int, bool) {
	var id int
	switch v := kv[key].(type) {
	case uint32:
		id = int(v)
	case int32:
		id = int(v)
	case uint64:
		id = int(v)
	case int64:
		id = int(v)
	default:
		return 0, false
	}
	if id < 0 || id >= vocab {
		return 0, false
	}
	return id, true
}
