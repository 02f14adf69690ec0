package engine

import (
	"errors"
	"fmt"
)

// ErrContextFull is returned by Forward when the cache has no room left.
var ErrContextFull = errors.New("kv cache is full")

// KVCache holds the normalized hidden state of every position seen so far.
// It is the opaque cache handle passed back and forth through Forward.
// A capacity of 0 or less means unbounded.
type KVCache struct {
	dim      int
	capacity int
	keys     [][]float32
}

func newKVCache(dim, capacity int) *KVCache {
	if capacity < 0 {
		capacity = 0
	}
	initial := capacity
	if initial == 0 || initial > 4096 {
		initial = 4096
	}
	return &KVCache{dim: dim, capacity: capacity, keys: make([][]float32, 0, initial)}
}

// Len is the number of cached positions.
func (c *KVCache) Len() int { return len(c.keys) }

func (c *KVCache) Capacity() int { return c.capacity }

func (c *KVCache) reserve(n int) error {
	if c.capacity > 0 && len(c.keys)+n > c.capacity {
		return fmt.Errorf("%w: %d cached + %d new > capacity %d", ErrContextFull, len(c.keys), n, c.capacity)
	}
	return nil
}

func (c *KVCache) append(k []float32) {
	c.keys = append(c.keys, k)
}
