// Package pipeline turns a road probability map into a one-pixel-wide
// road skeleton at the caller's resolution, together with its coverage
// metrics and a display overlay.
package pipeline

import "image"

// Mask is a row-major binary image.
type Mask struct {
	H, W int
	Pix  []bool
}

// NewMask allocates an all-false mask.
func NewMask(h, w int) *Mask {
	return &Mask{H: h, W: w, Pix: make([]bool, h*w)}
}

// At reports the value at (y, x). Coordinates outside the mask are false.
func (m *Mask) At(y, x int) bool {
	if y < 0 || y >= m.H || x < 0 || x >= m.W {
		return false
	}
	return m.Pix[y*m.W+x]
}

// Set assigns the value at (y, x).
func (m *Mask) Set(y, x int, v bool) {
	m.Pix[y*m.W+x] = v
}

// Count returns the number of true pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	c := &Mask{H: m.H, W: m.W, Pix: make([]bool, len(m.Pix))}
	copy(c.Pix, m.Pix)
	return c
}

// Equal reports whether both masks have the same shape and pixels.
func (m *Mask) Equal(o *Mask) bool {
	if m.H != o.H || m.W != o.W {
		return false
	}
	for i, v := range m.Pix {
		if o.Pix[i] != v {
			return false
		}
	}
	return true
}

// Gray renders the mask as 0/255 grayscale.
func (m *Mask) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.W, m.H))
	for i, v := range m.Pix {
		if v {
			g.Pix[i] = 255
		}
	}
	return g
}

// Threshold returns the mask of values strictly greater than th.
func Threshold(values []float32, h, w int, th float64) *Mask {
	m := NewMask(h, w)
	for i, v := range values {
		m.Pix[i] = float64(v) > th
	}
	return m
}
