package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/roadnet-api/internal/imageutil"
	"github.com/Brownie44l1/roadnet-api/internal/model"
	"github.com/Brownie44l1/roadnet-api/internal/pipeline"
)

// brightness marks bright pixels as road.
type brightness struct {
	calls atomic.Int32
	block chan struct{}
}

func (b *brightness) Predict(ctx context.Context, input []float32) ([]float32, error) {
	b.calls.Add(1)
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([]float32, len(input)/3)
	for i := range out {
		if input[3*i]+input[3*i+1]+input[3*i+2] > 1.5 {
			out[i] = 0.95
		} else {
			out[i] = 0.02
		}
	}
	return out, nil
}

func (b *brightness) Info() model.Info {
	return model.Info{Backend: "stub", InputSize: 128}
}

func (b *brightness) Close() error { return nil }

// diagonalRoad draws a white band of half-width hw along the diagonal.
func diagonalRoad(size, hw int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBA{R: 30, G: 40, B: 30, A: 255}
			if d := x - y; d >= -hw && d <= hw {
				c = color.NRGBA{R: 250, G: 250, B: 250, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestExtractDiagonalRoad(t *testing.T) {
	e := New(&brightness{}, pipeline.DefaultOptions(), 2)

	res, err := e.Extract(context.Background(), diagonalRoad(128, 1))
	require.NoError(t, err)

	n := res.Metrics.RoadPixels
	assert.InDelta(t, 128, n, 13)
	assert.Equal(t, pipeline.Round2(float64(n)/(128*128)*100), res.Metrics.CoveragePercentage)
	assert.Equal(t, 1, pipeline.CountComponents(res.Skeleton, pipeline.Eight))
	assert.Equal(t, image.Rect(0, 0, 128, 128), res.Overlay.Bounds())
	// Skeleton pixels are painted.
	for i, v := range res.Skeleton.Pix {
		if v {
			p := res.Overlay.NRGBAAt(i%128, i/128)
			assert.Greater(t, p.G, p.R)
		}
	}
}

func TestExtractMapsBackToOriginalSize(t *testing.T) {
	e := New(&brightness{}, pipeline.DefaultOptions(), 1)

	res, err := e.Extract(context.Background(), diagonalRoad(256, 3))
	require.NoError(t, err)

	require.Equal(t, 256, res.Skeleton.H)
	require.Equal(t, 256, res.Skeleton.W)
	n := res.Metrics.RoadPixels
	assert.Equal(t, res.Skeleton.Count(), n)
	assert.Greater(t, n, 200)
	assert.Less(t, n, 1500)
	assert.Equal(t, pipeline.Round2(float64(n)/(256*256)*100), res.Metrics.CoveragePercentage)
	for i, v := range res.Skeleton.Pix {
		if v {
			y, x := i/256, i%256
			assert.LessOrEqual(t, abs(x-y), 6, "skeleton pixel off the road at %d,%d", y, x)
		}
	}
}

func TestExtractThinLineOnGray(t *testing.T) {
	// Halving to the model size averages 2x2 blocks, so gray 100 stays
	// background and every block the line crosses turns bright.
	for _, width := range []int{1, 2} {
		img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
		for y := 0; y < 256; y++ {
			for x := 0; x < 256; x++ {
				c := color.NRGBA{R: 100, G: 100, B: 100, A: 255}
				if d := x - y; d >= 0 && d < width {
					c = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
				}
				img.SetNRGBA(x, y, c)
			}
		}

		e := New(&brightness{}, pipeline.DefaultOptions(), 1)
		res, err := e.Extract(context.Background(), img)
		require.NoError(t, err)

		n := res.Metrics.RoadPixels
		// About one skeleton pixel per model row, each upscaled to a 2x2 block.
		assert.InDelta(t, 2*256, n, 32, "width %d", width)
		assert.Equal(t, pipeline.Round2(float64(n)/(256*256)*100), res.Metrics.CoveragePercentage)
		assert.Equal(t, 1, pipeline.CountComponents(res.Skeleton, pipeline.Eight), "width %d", width)
		for i, v := range res.Skeleton.Pix {
			if v {
				y, x := i/256, i%256
				assert.LessOrEqual(t, abs(x-y), 3, "skeleton pixel off the line at %d,%d", y, x)
			}
		}
	}
}

func TestExtractBytesRejectsCorruptInput(t *testing.T) {
	stub := &brightness{}
	e := New(stub, pipeline.DefaultOptions(), 1)

	_, err := e.ExtractBytes(context.Background(), []byte("\xff\xd8\xff\xe0 truncated jpeg"))
	assert.ErrorIs(t, err, imageutil.ErrInvalidImage)
	assert.Zero(t, stub.calls.Load(), "predictor must not run on undecodable input")
}

func TestExtractBusy(t *testing.T) {
	stub := &brightness{block: make(chan struct{})}
	e := New(stub, pipeline.DefaultOptions(), 1)

	done := make(chan error, 1)
	go func() {
		_, err := e.Extract(context.Background(), diagonalRoad(128, 1))
		done <- err
	}()
	require.Eventually(t, func() bool { return stub.calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Extract(ctx, diagonalRoad(128, 1))
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(stub.block)
	assert.NoError(t, <-done)
}

func TestExtractCancelled(t *testing.T) {
	e := New(&brightness{}, pipeline.DefaultOptions(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, diagonalRoad(128, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResponseEncodesImages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, diagonalRoad(64, 2)))

	e := New(&brightness{}, pipeline.DefaultOptions(), 1)
	res, err := e.ExtractBytes(context.Background(), buf.Bytes())
	require.NoError(t, err)

	resp, err := res.Response()
	require.NoError(t, err)
	assert.Equal(t, res.Metrics, resp.Metrics)

	for _, s := range []string{resp.OriginalImage, resp.MaskImage, resp.OverlayImage} {
		raw, err := base64.StdEncoding.DecodeString(s)
		require.NoError(t, err)
		img, err := png.Decode(bytes.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())
	}

	raw, _ := base64.StdEncoding.DecodeString(resp.MaskImage)
	mask, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	white := 0
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if g, ok := mask.At(x, y).(color.Gray); ok && g.Y == 255 {
				white++
			}
		}
	}
	assert.Equal(t, res.Metrics.RoadPixels, white)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
