package engine

import "math"

// rmsNorm returns x / rms(x), scaled elementwise by weight when non-nil.
func rmsNorm(x, weight []float32, eps float32) []float32 {
	var ss float64
	for _, v := range x {
		ss += float64(v) * float64(v)
	}
	inv := float32(1 / math.Sqrt(ss/float64(len(x))+float64(eps)))

	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = v * inv
		if weight != nil {
			out[i] *= weight[i]
		}
	}
	return out
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// axpy computes y += a*x.
func axpy(a float32, x, y []float32) {
	for i := range x {
		y[i] += a * x[i]
	}
}

// softmax normalizes in place, subtracting the max for stability.
func softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxVal := x[0]
	for _, v := range x[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for i, v := range x {
		x[i] = float32(math.Exp(float64(v - maxVal)))
		sum += x[i]
	}
	for i := range x {
		x[i] /= sum
	}
}
