package pipeline

import (
	"fmt"

	"gocv.io/x/gocv"
)

// toMat copies m into a new CV_8UC1 Mat holding 0 and 255. The caller
// closes it.
func (m *Mask) toMat() (gocv.Mat, error) {
	buf := make([]byte, len(m.Pix))
	for i, v := range m.Pix {
		if v {
			buf[i] = 255
		}
	}
	wrapped, err := gocv.NewMatFromBytes(m.H, m.W, gocv.MatTypeCV8UC1, buf)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to wrap mask: %w", err)
	}
	defer wrapped.Close()
	return wrapped.Clone(), nil
}

// maskFromMat reads a single-channel 8-bit Mat. Any non-zero value is set.
func maskFromMat(mat gocv.Mat) (*Mask, error) {
	if mat.Type() != gocv.MatTypeCV8UC1 {
		return nil, fmt.Errorf("%w: expected 8-bit single-channel mat, got type %v", ErrShape, mat.Type())
	}
	out := NewMask(mat.Rows(), mat.Cols())
	raw := mat.ToBytes()
	if len(raw) != len(out.Pix) {
		return nil, fmt.Errorf("%w: mat %dx%d holds %d bytes", ErrShape, out.W, out.H, len(raw))
	}
	for i, v := range raw {
		out.Pix[i] = v != 0
	}
	return out, nil
}
