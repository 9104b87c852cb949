package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/Brownie44l1/roadnet-api/internal/unet"
)

// NativePredictor runs the network in-process from an .npz weight archive.
type NativePredictor struct {
	net  *unet.Network
	info Info
}

// NewNativePredictor builds the network and loads weights from path. A
// missing file is not an error: the network is randomly initialized from
// seed and Info().Trained reports false. Any other load failure is
// returned.
func NewNativePredictor(path string, arch unet.Architecture, seed uint64) (*NativePredictor, error) {
	trained := true
	w, err := unet.Load(path, arch)
	if err != nil {
		if !errors.Is(err, unet.ErrWeightsNotFound) {
			return nil, fmt.Errorf("failed to load weights: %w", err)
		}
		trained = false
		w = unet.RandomInit(arch, seed)
	}
	return NewNativePredictorFromWeights(arch, w, path, trained)
}

// NewNativePredictorFromWeights wires a predictor from in-memory weights.
func NewNativePredictorFromWeights(arch unet.Architecture, w unet.Weights, source string, trained bool) (*NativePredictor, error) {
	net, err := unet.New(arch, w)
	if err != nil {
		return nil, fmt.Errorf("failed to build network: %w", err)
	}
	return &NativePredictor{
		net: net,
		info: Info{
			Backend:   BackendNative,
			Source:    source,
			Trained:   trained,
			InputSize: net.Architecture().InputSize,
		},
	}, nil
}

func (p *NativePredictor) Predict(ctx context.Context, input []float32) ([]float32, error) {
	out, err := p.net.Infer(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return out, nil
}

// Info describes the wired network and where its weights came from.
func (p *NativePredictor) Info() Info {
	return p.info
}

// Close is a no-op; the network holds no external resources.
func (p *NativePredictor) Close() error {
	return nil
}
