// Package extractor runs one image through inference and post-processing.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Brownie44l1/roadnet-api/internal/imageutil"
	"github.com/Brownie44l1/roadnet-api/internal/model"
	"github.com/Brownie44l1/roadnet-api/internal/pipeline"
)

// ErrBusy is returned when no inference slot frees up before the context
// ends.
var ErrBusy = errors.New("extractor busy")

// Extractor is safe for concurrent use. At most maxConcurrent inferences
// run at a time.
type Extractor struct {
	predictor model.Predictor
	opts      pipeline.Options
	sem       *semaphore.Weighted
}

// Result holds everything produced for one image.
type Result struct {
	Original  *image.NRGBA
	Skeleton  *pipeline.Mask
	Overlay   *image.NRGBA
	Threshold float64
	Metrics   pipeline.Metrics
}

// New returns an Extractor that runs p and post-processes with opts.
// maxConcurrent below 1 is treated as 1.
func New(p model.Predictor, opts pipeline.Options, maxConcurrent int) *Extractor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Extractor{
		predictor: p,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// ExtractBytes decodes data and extracts it. Undecodable input fails with
// imageutil.ErrInvalidImage before any inference.
func (e *Extractor) ExtractBytes(ctx context.Context, data []byte) (*Result, error) {
	img, err := imageutil.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	return e.Extract(ctx, img)
}

// Extract runs img through the model and the post-processing pipeline and
// maps the skeleton back to img's size. It waits for an inference slot until
// ctx ends, then fails with ErrBusy.
func (e *Extractor) Extract(ctx context.Context, img *image.NRGBA) (*Result, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBusy, err)
	}
	defer e.sem.Release(1)

	start := time.Now()
	size := e.predictor.Info().InputSize
	input, err := imageutil.ModelInput(img, size)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	prob, err := e.predictor.Predict(ctx, input)
	if err != nil {
		return nil, err
	}
	inferred := time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	res, err := pipeline.Process(pipeline.ProbabilityMap{H: size, W: size, Values: prob}, b.Dy(), b.Dx(), e.opts)
	if err != nil {
		return nil, fmt.Errorf("post-processing failed: %w", err)
	}

	overlay, err := pipeline.Overlay(img, res.Skeleton, e.opts.OverlayAlpha)
	if err != nil {
		return nil, fmt.Errorf("overlay failed: %w", err)
	}

	log.WithFields(log.Fields{
		"width":       b.Dx(),
		"height":      b.Dy(),
		"threshold":   res.Threshold,
		"road_pixels": res.Metrics.RoadPixels,
		"inference":   inferred,
		"total":       time.Since(start),
	}).Debug("[Extractor] Extracted road skeleton")

	return &Result{
		Original:  img,
		Skeleton:  res.Skeleton,
		Overlay:   overlay,
		Threshold: res.Threshold,
		Metrics:   res.Metrics,
	}, nil
}

// Response encodes r into the JSON body served by the API.
func (r *Result) Response() (*model.PredictionResponse, error) {
	original, err := imageutil.PNGBase64(r.Original)
	if err != nil {
		return nil, err
	}
	mask, err := imageutil.PNGBase64(r.Skeleton.Gray())
	if err != nil {
		return nil, err
	}
	overlay, err := imageutil.PNGBase64(r.Overlay)
	if err != nil {
		return nil, err
	}
	return &model.PredictionResponse{
		OriginalImage: original,
		MaskImage:     mask,
		OverlayImage:  overlay,
		Metrics:       r.Metrics,
	}, nil
}
