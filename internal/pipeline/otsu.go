package pipeline

// OtsuBins is the histogram resolution used for threshold estimation.
const OtsuBins = 256

// Otsu returns the threshold maximizing between-class variance over an
// nbins histogram spanning [min, max] of values. A constant input returns
// that constant. Bin edges and centres are computed in float32 to line up
// with the float32 probability map.
func Otsu(values []float32, nbins int) float32 {
	if len(values) == 0 {
		return 0
	}
	lo, hi := values[0], values[0]
	uniform := true
	for _, v := range values {
		if v != values[0] {
			uniform = false
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if uniform {
		return values[0]
	}

	hist, centers := histogram(values, nbins, lo, hi)

	// Cumulative class weights and means from each end.
	w1 := make([]float64, nbins)
	m1 := make([]float64, nbins)
	var cw, cm float64
	for i := 0; i < nbins; i++ {
		cw += float64(hist[i])
		cm += float64(hist[i]) * float64(centers[i])
		w1[i] = cw
		m1[i] = cm / cw
	}
	w2 := make([]float64, nbins)
	m2 := make([]float64, nbins)
	cw, cm = 0, 0
	for i := nbins - 1; i >= 0; i-- {
		cw += float64(hist[i])
		cm += float64(hist[i]) * float64(centers[i])
		w2[i] = cw
		m2[i] = cm / cw
	}

	best, idx := -1.0, 0
	for i := 0; i < nbins-1; i++ {
		d := m1[i] - m2[i+1]
		v := w1[i] * w2[i+1] * d * d
		if v > best {
			best, idx = v, i
		}
	}
	return centers[idx]
}

// histogram bins values into nbins equal-width bins over [lo, hi], the
// last bin closed on the right.
func histogram(values []float32, nbins int, lo, hi float32) ([]int, []float32) {
	edges := make([]float32, nbins+1)
	step := (hi - lo) / float32(nbins)
	for i := range edges {
		edges[i] = float32(i)*step + lo
	}
	edges[nbins] = hi

	hist := make([]int, nbins)
	denom := hi - lo
	for _, v := range values {
		idx := int((v - lo) / denom * float32(nbins))
		if idx == nbins {
			idx--
		}
		if v < edges[idx] {
			idx--
		} else if idx != nbins-1 && v >= edges[idx+1] {
			idx++
		}
		hist[idx]++
	}

	centers := make([]float32, nbins)
	for i := range centers {
		centers[i] = (edges[i] + edges[i+1]) / 2
	}
	return hist, centers
}
