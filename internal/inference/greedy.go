package inference

import (
	"errors"
	"fmt"
	"math"
)

var errEmptyLogits = errors.New("model returned no logits")

// selectGreedy returns the argmax of the final position's logits. Ties go to
// the lowest id and NaN entries are never selected.
func selectGreedy(logits [][]float32) (int, error) {
	if len(logits) == 0 {
		return 0, errEmptyLogits
	}
	last := logits[len(logits)-1]
	if len(last) == 0 {
		return 0, errEmptyLogits
	}

	best := -1
	var bestVal float32
	for i, v := range last {
		if math.IsNaN(float64(v)) {
			continue
		}
		if best < 0 || v > bestVal {
			best = i
			bestVal = v
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("all %d logits are NaN", len(last))
	}
	return best, nil
}
