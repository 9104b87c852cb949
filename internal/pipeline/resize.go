package pipeline

import (
	"image"

	"gocv.io/x/gocv"
)

// ResizeNearest rescales m to h×w with OpenCV nearest-neighbour
// interpolation. The result stays strictly binary.
func ResizeNearest(m *Mask, h, w int) (*Mask, error) {
	if m.H == h && m.W == w {
		return m.Clone(), nil
	}
	src, err := m.toMat()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(w, h), 0, 0, gocv.InterpolationNearestNeighbor)
	return maskFromMat(dst)
}
