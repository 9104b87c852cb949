// Package unet implements the forward pass of the ConvLSTM U-Net road
// segmentation network on the CPU.
//
// Feature maps are channels-last, matching the layout of the exported
// Keras weights, so kernels can be used without transposition.
package unet

import "fmt"

// Tensor is a single H×W×C feature map stored in row-major HWC order.
type Tensor struct {
	H, W, C int
	Data    []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(h, w, c int) *Tensor {
	return &Tensor{H: h, W: w, C: c, Data: make([]float32, h*w*c)}
}

// FromHWC wraps data without copying. len(data) must be h*w*c.
func FromHWC(h, w, c int, data []float32) (*Tensor, error) {
	if len(data) != h*w*c {
		return nil, fmt.Errorf("tensor: expected %d values for %dx%dx%d, got %d", h*w*c, h, w, c, len(data))
	}
	return &Tensor{H: h, W: w, C: c, Data: data}, nil
}

func (t *Tensor) at(y, x, c int) float32 {
	return t.Data[(y*t.W+x)*t.C+c]
}

// Sequence is a time-ordered list of feature maps of identical shape.
type Sequence []*Tensor

// Concat joins tensors of equal spatial size along the channel axis.
func Concat(ts ...*Tensor) *Tensor {
	h, w := ts[0].H, ts[0].W
	c := 0
	for _, t := range ts {
		if t.H != h || t.W != w {
			panic(fmt.Sprintf("unet: concat spatial mismatch %dx%d vs %dx%d", t.H, t.W, h, w))
		}
		c += t.C
	}
	out := NewTensor(h, w, c)
	for p := 0; p < h*w; p++ {
		off := p * c
		for _, t := range ts {
			copy(out.Data[off:off+t.C], t.Data[p*t.C:(p+1)*t.C])
			off += t.C
		}
	}
	return out
}
