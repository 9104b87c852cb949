package model

import (
	"context"

	"github.com/Brownie44l1/roadnet-api/internal/pipeline"
)

// Backend names accepted in configuration.
const (
	BackendNative = "native"
	BackendONNX   = "onnx"
)

// Predictor maps a normalized HWC image of InputSize×InputSize×3 values to
// an InputSize×InputSize road probability map. Implementations must be
// safe for concurrent use.
type Predictor interface {
	Predict(ctx context.Context, input []float32) ([]float32, error)
	Info() Info
	Close() error
}

// Info describes a loaded predictor.
type Info struct {
	Backend   string `json:"backend"`
	Source    string `json:"source"`
	Trained   bool   `json:"trained"`
	InputSize int    `json:"input_size"`
}

// Metadata describes the tensors of an exported ONNX graph.
type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	ImageSize   int     `json:"image_size"`
}

// DefaultMetadata matches a tf2onnx export of the segmentation network:
// one batch, one time step, channels last.
func DefaultMetadata() Metadata {
	return Metadata{
		InputName:   "input",
		OutputName:  "output",
		InputShape:  []int64{1, 1, 128, 128, 3},
		OutputShape: []int64{1, 128, 128, 1},
		ImageSize:   128,
	}
}

// PredictionResponse is the body returned for a processed image. Images
// are base64-encoded PNGs.
type PredictionResponse struct {
	OriginalImage string           `json:"original_image"`
	MaskImage     string           `json:"mask_image"`
	OverlayImage  string           `json:"overlay_image"`
	Metrics       pipeline.Metrics `json:"metrics"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Model  Info   `json:"model"`
}
