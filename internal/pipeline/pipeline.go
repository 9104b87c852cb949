package pipeline

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrShape is returned when a probability map or target size is unusable.
var ErrShape = errors.New("pipeline: invalid shape")

// Options tunes the post-processing steps. DefaultOptions reproduces the
// values the production model was calibrated with.
type Options struct {
	Sigma          float64 `json:"sigma"`
	ThresholdFloor float64 `json:"threshold_floor"`
	OtsuScale      float64 `json:"otsu_scale"`
	MinObjectSize  int     `json:"min_object_size"`
	ClosingRadius  int     `json:"closing_radius"`
	OverlayAlpha   float64 `json:"overlay_alpha"`
}

// DefaultOptions returns the calibrated settings.
func DefaultOptions() Options {
	return Options{
		Sigma:          0.7,
		ThresholdFloor: 0.12,
		OtsuScale:      0.9,
		MinObjectSize:  10,
		ClosingRadius:  3,
		OverlayAlpha:   0.6,
	}
}

// Validate checks that every option is in range.
func (o Options) Validate() error {
	if o.Sigma < 0 {
		return fmt.Errorf("pipeline: sigma must not be negative")
	}
	if o.ThresholdFloor < 0 || o.ThresholdFloor >= 1 {
		return fmt.Errorf("pipeline: threshold floor must be in [0,1)")
	}
	if o.OtsuScale <= 0 {
		return fmt.Errorf("pipeline: otsu scale must be positive")
	}
	if o.MinObjectSize < 0 {
		return fmt.Errorf("pipeline: min object size must not be negative")
	}
	if o.ClosingRadius < 0 {
		return fmt.Errorf("pipeline: closing radius must not be negative")
	}
	if o.OverlayAlpha < 0 || o.OverlayAlpha > 1 {
		return fmt.Errorf("pipeline: overlay alpha must be in [0,1]")
	}
	return nil
}

// ProbabilityMap is the network output: one road probability per pixel.
type ProbabilityMap struct {
	H, W   int
	Values []float32
}

// Metrics summarizes a skeleton against the original image size.
type Metrics struct {
	RoadPixels         int     `json:"road_pixels"`
	CoveragePercentage float64 `json:"coverage_percentage"`
}

// Result holds the artifacts of one Process call.
type Result struct {
	// Threshold is the binarization cutoff actually applied.
	Threshold float64
	// Binary is the cleaned mask at working resolution, before closing.
	Binary *Mask
	// Skeleton is the final mask at the original resolution.
	Skeleton *Mask
	Metrics  Metrics
}

// AdaptiveThreshold returns max(floor, otsu(values) * scale).
func AdaptiveThreshold(values []float32, opts Options) float64 {
	return max(opts.ThresholdFloor, float64(Otsu(values, OtsuBins))*opts.OtsuScale)
}

// Process converts prob into a skeleton mask of height×width:
// blur, adaptive threshold, small object removal, closing, thinning and
// nearest-neighbour resize, in that order.
func Process(prob ProbabilityMap, height, width int, opts Options) (*Result, error) {
	if prob.H <= 0 || prob.W <= 0 || len(prob.Values) != prob.H*prob.W {
		return nil, fmt.Errorf("%w: probability map %dx%d with %d values", ErrShape, prob.H, prob.W, len(prob.Values))
	}
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: target %dx%d", ErrShape, height, width)
	}

	smooth := Gaussian(prob.Values, prob.H, prob.W, opts.Sigma)
	th := AdaptiveThreshold(smooth, opts)
	binary := RemoveSmallObjects(Threshold(smooth, prob.H, prob.W, th), opts.MinObjectSize)

	closed := Close(binary, Disk(opts.ClosingRadius))
	skeleton, err := ResizeNearest(Skeletonize(closed), height, width)
	if err != nil {
		return nil, fmt.Errorf("failed to resize skeleton: %w", err)
	}

	return &Result{
		Threshold: th,
		Binary:    binary,
		Skeleton:  skeleton,
		Metrics:   ComputeMetrics(skeleton),
	}, nil
}

// ComputeMetrics counts road pixels and their share of the mask area.
func ComputeMetrics(m *Mask) Metrics {
	n := m.Count()
	total := m.H * m.W
	cov := 0.0
	if total > 0 {
		cov = float64(n) / float64(total) * 100
	}
	return Metrics{RoadPixels: n, CoveragePercentage: Round2(cov)}
}

// Round2 rounds the exact value of v to two decimals.
func Round2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}
