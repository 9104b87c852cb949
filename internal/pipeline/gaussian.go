package pipeline

import "math"

// truncate is the number of standard deviations covered by the kernel.
const truncate = 4.0

// gaussianKernel returns normalized 1-D weights of radius int(4σ+0.5).
func gaussianKernel(sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range k {
		x := float64(i - radius)
		k[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// Gaussian blurs an h×w map with a separable kernel, vertical pass first.
// Samples past the border repeat the nearest edge value. Each
// pass is rounded to float32 like the map itself.
func Gaussian(src []float32, h, w int, sigma float64) []float32 {
	if sigma <= 0 {
		out := make([]float32, len(src))
		copy(out, src)
		return out
	}
	k := gaussianKernel(sigma)
	r := len(k) / 2

	tmp := make([]float32, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range k {
				sy := clamp(y+i-r, h)
				acc += kv * float64(src[sy*w+x])
			}
			tmp[y*w+x] = float32(acc)
		}
	}

	out := make([]float32, len(src))
	for y := 0; y < h; y++ {
		row := tmp[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range k {
				acc += kv * float64(row[clamp(x+i-r, w)])
			}
			out[y*w+x] = float32(acc)
		}
	}
	return out
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
