package inference

import (
	"math"
	"testing"
)

func TestSelectGreedy(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name    string
		logits  [][]float32
		want    int
		wantErr bool
	}{
		{"single row", [][]float32{{1.0, 5.0, 2.0, 0.5}}, 1, false},
		{"uses final position", [][]float32{{9, 0, 0}, {0, 0, 3}}, 2, false},
		{"tie goes to lowest id", [][]float32{{2, 7, 7, 1}}, 1, false},
		{"negative logits", [][]float32{{-3, -1, -2}}, 1, false},
		{"skips NaN", [][]float32{{nan, 1, nan, 0.5}}, 1, false},
		{"all NaN", [][]float32{{nan, nan}}, 0, true},
		{"no rows", nil, 0, true},
		{"empty row", [][]float32{{}}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectGreedy(tt.logits)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
