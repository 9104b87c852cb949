package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/Brownie44l1/roadnet-api/internal/imageutil"
)

// RoadColor marks skeleton pixels in the overlay.
var RoadColor = color.NRGBA{R: 0, G: 255, B: 0, A: 255}

// displayMat dilates the skeleton once with a 3×3 square so it is visible
// when drawn. The caller closes the result.
func displayMat(skeleton *Mask) (gocv.Mat, error) {
	src, err := skeleton.toMat()
	if err != nil {
		return gocv.Mat{}, err
	}
	defer src.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()

	dst := gocv.NewMat()
	gocv.Dilate(src, &dst, kernel)
	return dst, nil
}

// DisplayMask is the thickened skeleton drawn by Overlay. It is never used
// for metrics.
func DisplayMask(skeleton *Mask) (*Mask, error) {
	m, err := displayMat(skeleton)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return maskFromMat(m)
}

// Overlay paints the thickened skeleton onto a copy of orig and blends
// the painted copy with orig at alpha / 1-alpha.
func Overlay(orig *image.NRGBA, skeleton *Mask, alpha float64) (*image.NRGBA, error) {
	b := orig.Bounds()
	if b.Dx() != skeleton.W || b.Dy() != skeleton.H {
		return nil, fmt.Errorf("%w: overlay %dx%d on image %dx%d", ErrShape, skeleton.W, skeleton.H, b.Dx(), b.Dy())
	}

	base, err := imageutil.RGBMat(orig)
	if err != nil {
		return nil, err
	}
	defer base.Close()

	display, err := displayMat(skeleton)
	if err != nil {
		return nil, err
	}
	defer display.Close()

	paint := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(RoadColor.R), float64(RoadColor.G), float64(RoadColor.B), 0),
		skeleton.H, skeleton.W, gocv.MatTypeCV8UC3)
	defer paint.Close()

	painted := base.Clone()
	defer painted.Close()
	paint.CopyToWithMask(&painted, display)

	blend := gocv.NewMat()
	defer blend.Close()
	gocv.AddWeighted(painted, alpha, base, 1-alpha, 0, &blend)

	return imageutil.FromRGBMat(blend)
}
