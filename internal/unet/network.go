package unet

import (
	"context"
	"fmt"
)

// Recurrent activations accepted by Architecture.RecurrentActivation.
const (
	HardSigmoid = "hard_sigmoid"
	Logistic    = "sigmoid"
)

// Architecture pins the layer graph. Two networks built from the same
// Architecture accept the same weight archive.
type Architecture struct {
	InputSize           int     `json:"input_size"`
	InputChannels       int     `json:"input_channels"`
	EncoderFilters      [3]int  `json:"encoder_filters"`
	BottleneckFilters   int     `json:"bottleneck_filters"`
	Kernel              int     `json:"kernel"`
	Epsilon             float32 `json:"epsilon"`
	RecurrentActivation string  `json:"recurrent_activation"`
}

// DefaultArchitecture is the graph the production weights were trained on.
func DefaultArchitecture() Architecture {
	return Architecture{
		InputSize:           128,
		InputChannels:       3,
		EncoderFilters:      [3]int{32, 64, 128},
		BottleneckFilters:   256,
		Kernel:              3,
		Epsilon:             1e-3,
		RecurrentActivation: HardSigmoid,
	}
}

// Validate reports whether the architecture can be built.
func (a Architecture) Validate() error {
	if a.InputSize <= 0 || a.InputSize%8 != 0 {
		return fmt.Errorf("unet: input size %d must be a positive multiple of 8", a.InputSize)
	}
	if a.InputChannels <= 0 {
		return fmt.Errorf("unet: input channels must be positive")
	}
	for i, f := range a.EncoderFilters {
		if f <= 0 {
			return fmt.Errorf("unet: encoder stage %d has no filters", i+1)
		}
	}
	if a.BottleneckFilters <= 0 {
		return fmt.Errorf("unet: bottleneck filters must be positive")
	}
	if a.Kernel <= 0 || a.Kernel%2 == 0 {
		return fmt.Errorf("unet: kernel size %d must be odd", a.Kernel)
	}
	switch a.RecurrentActivation {
	case HardSigmoid, Logistic:
	default:
		return fmt.Errorf("unet: unknown recurrent activation %q", a.RecurrentActivation)
	}
	return nil
}

// Param names one weight array and its shape.
type Param struct {
	Name  string
	Shape []int
}

// Size is the number of elements in the array.
func (p Param) Size() int {
	n := 1
	for _, d := range p.Shape {
		n *= d
	}
	return n
}

// Params lists every weight array the architecture consumes, in graph order.
func (a Architecture) Params() []Param {
	k := a.Kernel
	f := a.EncoderFilters
	b := a.BottleneckFilters
	var ps []Param

	conv := func(name string, k, in, out int) {
		ps = append(ps,
			Param{name + ".kernel", []int{k, k, in, out}},
			Param{name + ".bias", []int{out}},
		)
	}
	bn := func(name string, c int) {
		for _, s := range []string{"gamma", "beta", "moving_mean", "moving_variance"} {
			ps = append(ps, Param{name + "." + s, []int{c}})
		}
	}

	in := a.InputChannels + 2
	for i := 0; i < 3; i++ {
		stage := fmt.Sprintf("enc%d", i+1)
		conv(stage+".conv", k, in, f[i])
		bn(stage+".bn", f[i])
		in = f[i]
	}

	ps = append(ps,
		Param{"bottleneck.kernel", []int{k, k, f[2], 4 * b}},
		Param{"bottleneck.recurrent_kernel", []int{k, k, b, 4 * b}},
		Param{"bottleneck.bias", []int{4 * b}},
	)

	in = b
	for i := 2; i >= 0; i-- {
		stage := fmt.Sprintf("dec%d", i+1)
		conv(stage+".conv", k, in+f[i], f[i])
		bn(stage+".bn", f[i])
		in = f[i]
	}

	conv("head", 1, f[0], 1)
	return ps
}

// Weights maps parameter names to flat row-major arrays.
type Weights map[string][]float32

type stage struct {
	conv Conv2D
	bn   BatchNorm
}

// Network is an immutable, fully wired instance of the architecture.
// Infer may be called from multiple goroutines.
type Network struct {
	arch       Architecture
	encoder    [3]stage
	bottleneck ConvLSTM2D
	decoder    [3]stage // decoder[i] mirrors encoder[i]
	head       Conv2D
}

// New wires a network from weights. Every parameter of arch must be
// present with the right number of elements.
func New(arch Architecture, w Weights) (*Network, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	for _, p := range arch.Params() {
		v, ok := w[p.Name]
		if !ok {
			return nil, fmt.Errorf("unet: missing parameter %s", p.Name)
		}
		if len(v) != p.Size() {
			return nil, fmt.Errorf("unet: parameter %s has %d values, want %d %v", p.Name, len(v), p.Size(), p.Shape)
		}
	}

	k := arch.Kernel
	f := arch.EncoderFilters
	b := arch.BottleneckFilters
	n := &Network{arch: arch}

	mkStage := func(name string, in, out int) stage {
		return stage{
			conv: Conv2D{K: k, In: in, Out: out, Kernel: w[name+".conv.kernel"], Bias: w[name+".conv.bias"], Activation: ReLU},
			bn: BatchNorm{
				Gamma:    w[name+".bn.gamma"],
				Beta:     w[name+".bn.beta"],
				Mean:     w[name+".bn.moving_mean"],
				Variance: w[name+".bn.moving_variance"],
				Epsilon:  arch.Epsilon,
			},
		}
	}

	in := arch.InputChannels + 2
	for i := 0; i < 3; i++ {
		n.encoder[i] = mkStage(fmt.Sprintf("enc%d", i+1), in, f[i])
		in = f[i]
	}

	ra := hardSigmoid
	if arch.RecurrentActivation == Logistic {
		ra = sigmoid
	}
	n.bottleneck = ConvLSTM2D{
		Filters:             b,
		Input:               Conv2D{K: k, In: f[2], Out: 4 * b, Kernel: w["bottleneck.kernel"], Bias: w["bottleneck.bias"]},
		Recurrent:           Conv2D{K: k, In: b, Out: 4 * b, Kernel: w["bottleneck.recurrent_kernel"]},
		RecurrentActivation: ra,
	}

	in = b
	for i := 2; i >= 0; i-- {
		n.decoder[i] = mkStage(fmt.Sprintf("dec%d", i+1), in+f[i], f[i])
		in = f[i]
	}

	n.head = Conv2D{K: 1, In: f[0], Out: 1, Kernel: w["head.kernel"], Bias: w["head.bias"], Activation: Sigmoid}
	return n, nil
}

// Architecture returns the graph the network was built from.
func (n *Network) Architecture() Architecture {
	return n.arch
}

// Infer maps an HWC image normalized to [0,1] to a per-pixel road
// probability map of InputSize×InputSize values. The context is checked
// once before the forward pass; a started pass always runs to completion.
func (n *Network) Infer(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := n.arch.InputSize
	x, err := FromHWC(s, s, n.arch.InputChannels, input)
	if err != nil {
		return nil, fmt.Errorf("unet: %w", err)
	}
	return n.Forward(Sequence{x}).Data, nil
}

// Forward runs the graph over a sequence of frames and returns the
// single-channel sigmoid output for the final step.
func (n *Network) Forward(seq Sequence) *Tensor {
	frames := make(Sequence, len(seq))
	for t, x := range seq {
		frames[t] = AddCoordChannels(x)
	}

	// Encoder stages run independently on every frame.
	var skips [3]Sequence
	for i := range n.encoder {
		st := &n.encoder[i]
		next := make(Sequence, len(frames))
		skips[i] = make(Sequence, len(frames))
		for t, x := range frames {
			c := st.bn.Forward(st.conv.Forward(x))
			skips[i][t] = c
			next[t] = MaxPool2(c)
		}
		frames = next
	}

	d := n.bottleneck.Forward(frames)

	for i := 2; i >= 0; i-- {
		st := &n.decoder[i]
		u := Concat(UpSample2(d), skips[i][0])
		d = st.bn.Forward(st.conv.Forward(u))
	}
	return n.head.Forward(d)
}
