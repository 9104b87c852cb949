package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantMap(h, w int, v float32) ProbabilityMap {
	vals := make([]float32, h*w)
	for i := range vals {
		vals[i] = v
	}
	return ProbabilityMap{H: h, W: w, Values: vals}
}

// diagonalBand is a confident 3-pixel-wide road along the main diagonal.
func diagonalBand(size int) ProbabilityMap {
	p := constantMap(size, size, 0.02)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if d := x - y; d >= -1 && d <= 1 {
				p.Values[y*size+x] = 0.95
			}
		}
	}
	return p
}

func TestProcessAllZeroMapHitsThresholdFloor(t *testing.T) {
	res, err := Process(constantMap(128, 128, 0), 128, 128, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 0.12, res.Threshold)
	assert.Zero(t, res.Binary.Count())
	assert.Zero(t, res.Metrics.RoadPixels)
	assert.Zero(t, res.Metrics.CoveragePercentage)
}

func TestProcessFaintUniformMapIsEmpty(t *testing.T) {
	for _, v := range []float32{0.01, 0.1, 0.12} {
		res, err := Process(constantMap(64, 64, v), 64, 64, DefaultOptions())
		require.NoError(t, err)
		assert.Zero(t, res.Binary.Count(), "value %v", v)
		assert.Zero(t, res.Metrics.RoadPixels, "value %v", v)
	}
}

func TestProcessRemovesIsolatedSpike(t *testing.T) {
	const size = 32
	p := constantMap(size, size, 0)
	for y := 5; y < 10; y++ {
		for x := 5; x < 15; x++ {
			p.Values[y*size+x] = 0.9
		}
	}
	p.Values[25*size+22] = 0.9

	res, err := Process(p, size, size, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 50, res.Binary.Count())
	assert.False(t, res.Binary.At(25, 22))
	assert.True(t, res.Binary.At(7, 10))
	assert.Equal(t, 1, CountComponents(res.Binary, Four))
}

func TestProcessDiagonalRoad(t *testing.T) {
	res, err := Process(diagonalBand(128), 128, 128, DefaultOptions())
	require.NoError(t, err)

	n := res.Metrics.RoadPixels
	assert.InDelta(t, 128, n, 13, "skeleton should be about one diagonal long")
	assert.Equal(t, Round2(float64(n)/(128*128)*100), res.Metrics.CoveragePercentage)
	assert.Equal(t, 1, CountComponents(res.Skeleton, Eight))
	for i, v := range res.Skeleton.Pix {
		if v {
			y, x := i/128, i%128
			assert.LessOrEqual(t, abs(x-y), 1, "skeleton pixel off the road at %d,%d", y, x)
		}
	}
}

func TestProcessThinDiagonalRoad(t *testing.T) {
	for _, width := range []int{1, 2} {
		p := constantMap(128, 128, 0.02)
		for y := 0; y < 128; y++ {
			for x := y; x < y+width && x < 128; x++ {
				p.Values[y*128+x] = 0.95
			}
		}

		res, err := Process(p, 128, 128, DefaultOptions())
		require.NoError(t, err)
		assert.InDelta(t, 128, res.Metrics.RoadPixels, 6, "width %d", width)
		assert.Equal(t, 1, CountComponents(res.Skeleton, Eight), "width %d", width)

		up, err := Process(p, 256, 256, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 4*res.Metrics.RoadPixels, up.Metrics.RoadPixels, "width %d", width)
		assert.InDelta(t, 512, up.Metrics.RoadPixels, 24, "width %d", width)
	}
}

func TestProcessResizesToOriginal(t *testing.T) {
	res, err := Process(diagonalBand(128), 256, 384, DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, 256, res.Skeleton.H)
	require.Equal(t, 384, res.Skeleton.W)
	assert.Equal(t, res.Skeleton.Count(), res.Metrics.RoadPixels)

	small, err := Process(diagonalBand(128), 128, 128, DefaultOptions())
	require.NoError(t, err)
	// Integer factors replicate every skeleton pixel into a 2x3 block.
	assert.Equal(t, 6*small.Metrics.RoadPixels, res.Metrics.RoadPixels)
	assert.Equal(t, Round2(float64(res.Metrics.RoadPixels)/(256*384)*100), res.Metrics.CoveragePercentage)
}

func TestProcessMetricsInvariants(t *testing.T) {
	// A busy pseudo-random map exercises every step.
	p := constantMap(128, 128, 0)
	seed := uint32(2463534242)
	for i := range p.Values {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		p.Values[i] = float32(seed%1000) / 999
	}
	for _, size := range [][2]int{{128, 128}, {50, 70}, {300, 200}} {
		res, err := Process(p, size[0], size[1], DefaultOptions())
		require.NoError(t, err)
		m := res.Metrics
		assert.GreaterOrEqual(t, m.RoadPixels, 0)
		assert.GreaterOrEqual(t, m.CoveragePercentage, 0.0)
		assert.LessOrEqual(t, m.CoveragePercentage, 100.0)
		assert.Equal(t, res.Skeleton.Count(), m.RoadPixels)
	}
}

func TestProcessRejectsBadShapes(t *testing.T) {
	_, err := Process(ProbabilityMap{H: 4, W: 4, Values: make([]float32, 3)}, 4, 4, DefaultOptions())
	assert.ErrorIs(t, err, ErrShape)

	_, err = Process(constantMap(4, 4, 0), 0, 4, DefaultOptions())
	assert.ErrorIs(t, err, ErrShape)
}

func TestComputeMetrics(t *testing.T) {
	m := NewMask(3, 7)
	for i := 0; i < 7; i++ {
		m.Pix[i] = true
	}
	got := ComputeMetrics(m)
	assert.Equal(t, 7, got.RoadPixels)
	assert.Equal(t, 33.33, got.CoveragePercentage)
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{33.333333, 33.33},
		{0.005, 0.01},
		{2.675, 2.67}, // 2.675 is stored just below the tie
		{99.999, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round2(tt.in), "Round2(%v)", tt.in)
	}
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())

	bad := DefaultOptions()
	bad.ThresholdFloor = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultOptions()
	bad.OverlayAlpha = -0.1
	assert.Error(t, bad.Validate())
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
