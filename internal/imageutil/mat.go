package imageutil

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// RGBMat copies the RGB channels of img into a new CV_8UC3 Mat in R, G, B
// order. The caller closes it.
func RGBMat(img *image.NRGBA) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return gocv.Mat{}, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	buf := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+4*w]
		for x := 0; x < w; x++ {
			buf = append(buf, row[4*x], row[4*x+1], row[4*x+2])
		}
	}

	wrapped, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, buf)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to wrap image: %w", err)
	}
	defer wrapped.Close()
	return wrapped.Clone(), nil
}

// FromRGBMat converts a CV_8UC3 Mat in R, G, B order to opaque NRGBA.
func FromRGBMat(m gocv.Mat) (*image.NRGBA, error) {
	if m.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("expected 8-bit 3-channel mat, got type %v", m.Type())
	}
	w, h := m.Cols(), m.Rows()
	raw := m.ToBytes()
	if len(raw) != w*h*3 {
		return nil, fmt.Errorf("mat %dx%d holds %d bytes", w, h, len(raw))
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		out.Pix[4*i] = raw[3*i]
		out.Pix[4*i+1] = raw[3*i+1]
		out.Pix[4*i+2] = raw[3*i+2]
		out.Pix[4*i+3] = 255
	}
	return out, nil
}
