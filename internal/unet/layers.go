package unet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Activation is applied element-wise in place.
type Activation func([]float32)

// ReLU clamps negative values to zero.
func ReLU(v []float32) {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
}

// Sigmoid is the logistic function.
func Sigmoid(v []float32) {
	for i, x := range v {
		v[i] = sigmoid(x)
	}
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// hardSigmoid is the piecewise linear approximation used by tf.keras 2.x.
func hardSigmoid(x float32) float32 {
	y := 0.2*x + 0.5
	if y < 0 {
		return 0
	}
	if y > 1 {
		return 1
	}
	return y
}

func tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

// Conv2D is a stride-1 convolution with "same" padding. Kernel is laid
// out as (K, K, In, Out), Bias as (Out).
type Conv2D struct {
	K, In, Out int
	Kernel     []float32
	Bias       []float32
	Activation Activation
}

// Forward applies the convolution to x.
func (c *Conv2D) Forward(x *Tensor) *Tensor {
	if x.C != c.In {
		panic(fmt.Sprintf("unet: conv expects %d input channels, got %d", c.In, x.C))
	}
	out := NewTensor(x.H, x.W, c.Out)
	if c.Bias != nil {
		for p := 0; p < x.H*x.W; p++ {
			copy(out.Data[p*c.Out:(p+1)*c.Out], c.Bias)
		}
	}
	c.accumulate(x, out)
	if c.Activation != nil {
		c.Activation(out.Data)
	}
	return out
}

// accumulate adds conv(x) into out without bias or activation.
func (c *Conv2D) accumulate(x *Tensor, out *Tensor) {
	rows := x.H * x.W
	depth := c.K * c.K * c.In

	a := x.Data
	if c.K > 1 {
		a = im2col(x, c.K)
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: rows, Cols: depth, Stride: depth, Data: a},
		blas32.General{Rows: depth, Cols: c.Out, Stride: c.Out, Data: c.Kernel},
		1,
		blas32.General{Rows: rows, Cols: c.Out, Stride: c.Out, Data: out.Data},
	)
}

// im2col expands every K×K neighbourhood into a row ordered (ky, kx, c).
// Samples outside the map are zero.
func im2col(x *Tensor, k int) []float32 {
	pad := k / 2
	depth := k * k * x.C
	cols := make([]float32, x.H*x.W*depth)
	for y := 0; y < x.H; y++ {
		for xx := 0; xx < x.W; xx++ {
			row := cols[(y*x.W+xx)*depth:]
			for ky := 0; ky < k; ky++ {
				sy := y + ky - pad
				if sy < 0 || sy >= x.H {
					continue
				}
				for kx := 0; kx < k; kx++ {
					sx := xx + kx - pad
					if sx < 0 || sx >= x.W {
						continue
					}
					src := x.Data[(sy*x.W+sx)*x.C : (sy*x.W+sx+1)*x.C]
					copy(row[(ky*k+kx)*x.C:], src)
				}
			}
		}
	}
	return cols
}

// BatchNorm is batch normalization in inference mode.
type BatchNorm struct {
	Gamma, Beta, Mean, Variance []float32
	Epsilon                     float32
}

// Forward normalizes x per channel. The result is a new tensor.
func (b *BatchNorm) Forward(x *Tensor) *Tensor {
	scale := make([]float32, x.C)
	shift := make([]float32, x.C)
	for c := range scale {
		inv := float32(1/math.Sqrt(float64(b.Variance[c]+b.Epsilon))) * b.Gamma[c]
		scale[c] = inv
		shift[c] = b.Beta[c] - b.Mean[c]*inv
	}
	out := NewTensor(x.H, x.W, x.C)
	for i, v := range x.Data {
		c := i % x.C
		out.Data[i] = v*scale[c] + shift[c]
	}
	return out
}

// MaxPool2 is a 2×2 max pool with stride 2 and valid padding.
func MaxPool2(x *Tensor) *Tensor {
	out := NewTensor(x.H/2, x.W/2, x.C)
	for y := 0; y < out.H; y++ {
		for xx := 0; xx < out.W; xx++ {
			for c := 0; c < x.C; c++ {
				m := x.at(2*y, 2*xx, c)
				m = max(m, x.at(2*y, 2*xx+1, c))
				m = max(m, x.at(2*y+1, 2*xx, c))
				m = max(m, x.at(2*y+1, 2*xx+1, c))
				out.Data[(y*out.W+xx)*out.C+c] = m
			}
		}
	}
	return out
}

// UpSample2 doubles both spatial dimensions by nearest-neighbour repetition.
func UpSample2(x *Tensor) *Tensor {
	out := NewTensor(x.H*2, x.W*2, x.C)
	for y := 0; y < out.H; y++ {
		for xx := 0; xx < out.W; xx++ {
			src := x.Data[((y/2)*x.W+xx/2)*x.C : ((y/2)*x.W+xx/2+1)*x.C]
			copy(out.Data[(y*out.W+xx)*out.C:], src)
		}
	}
	return out
}

// AddCoordChannels appends two channels holding the normalized column and
// row position, each spaced linearly from -1 to 1.
func AddCoordChannels(x *Tensor) *Tensor {
	xs := linspace(-1, 1, x.W)
	ys := linspace(-1, 1, x.H)
	out := NewTensor(x.H, x.W, x.C+2)
	for y := 0; y < x.H; y++ {
		for xx := 0; xx < x.W; xx++ {
			p := y*x.W + xx
			dst := out.Data[p*out.C : (p+1)*out.C]
			copy(dst, x.Data[p*x.C:(p+1)*x.C])
			dst[x.C] = xs[xx]
			dst[x.C+1] = ys[y]
		}
	}
	return out
}

func linspace(start, stop float32, n int) []float32 {
	out := make([]float32, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float32(n-1)
	for i := range out {
		out[i] = start + float32(i)*step
	}
	out[n-1] = stop
	return out
}

// ConvLSTM2D is a convolutional LSTM returning only its final hidden
// state. Gates are packed along the last kernel axis in the order input,
// forget, cell, output.
type ConvLSTM2D struct {
	Filters             int
	Input               Conv2D // In -> 4*Filters, with bias
	Recurrent           Conv2D // Filters -> 4*Filters, no bias
	RecurrentActivation func(float32) float32
}

// Forward runs the recurrence over seq from a zero initial state.
func (l *ConvLSTM2D) Forward(seq Sequence) *Tensor {
	if len(seq) == 0 {
		panic("unet: convlstm needs at least one time step")
	}
	f := l.Filters
	h := NewTensor(seq[0].H, seq[0].W, f)
	cell := make([]float32, len(h.Data))
	for t, x := range seq {
		z := l.Input.Forward(x)
		// The initial state is zero so the recurrent term vanishes at t=0.
		if t > 0 {
			l.Recurrent.accumulate(h, z)
		}
		for p := 0; p < h.H*h.W; p++ {
			g := z.Data[p*4*f : (p+1)*4*f]
			for j := 0; j < f; j++ {
				i := l.RecurrentActivation(g[j])
				fg := l.RecurrentActivation(g[f+j])
				cand := tanh(g[2*f+j])
				o := l.RecurrentActivation(g[3*f+j])
				k := p*f + j
				cell[k] = fg*cell[k] + i*cand
				h.Data[k] = o * tanh(cell[k])
			}
		}
	}
	return h
}
