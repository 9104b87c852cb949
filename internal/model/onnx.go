package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXPredictor runs an exported copy of the network through ONNX Runtime.
// The graph structure travels inside the .onnx file.
type ONNXPredictor struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	info         Info
}

// NewONNXPredictor loads modelPath. libraryPath, when set, points at the
// onnxruntime shared library; metadataPath, when set, overrides
// DefaultMetadata.
func NewONNXPredictor(modelPath, metadataPath, libraryPath string) (*ONNXPredictor, error) {
	metadata := DefaultMetadata()
	if metadataPath != "" {
		metaFile, err := os.ReadFile(metadataPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}
		if err := json.Unmarshal(metaFile, &metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}
	if err := validateMetadata(metadata); err != nil {
		return nil, err
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXPredictor{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		info: Info{
			Backend:   BackendONNX,
			Source:    modelPath,
			Trained:   true,
			InputSize: metadata.ImageSize,
		},
	}, nil
}

func validateMetadata(m Metadata) error {
	s := int64(m.ImageSize)
	if s <= 0 {
		return fmt.Errorf("metadata: image_size must be positive")
	}
	if product(m.InputShape) != s*s*3 {
		return fmt.Errorf("metadata: input shape %v does not hold a %dx%dx3 image", m.InputShape, s, s)
	}
	if product(m.OutputShape) != s*s {
		return fmt.Errorf("metadata: output shape %v does not hold a %dx%d map", m.OutputShape, s, s)
	}
	if m.InputName == "" || m.OutputName == "" {
		return fmt.Errorf("metadata: tensor names are required")
	}
	return nil
}

func product(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// Predict serializes access to the bound tensors; sessions created with
// fixed tensors cannot run concurrently.
func (p *ONNXPredictor) Predict(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := p.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("expected %d input values, got %d", len(data), len(input))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	copy(data, input)
	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, len(p.outputTensor.GetData()))
	copy(out, p.outputTensor.GetData())
	return out, nil
}

// Info describes the loaded graph.
func (p *ONNXPredictor) Info() Info {
	return p.info
}

// Close releases the tensors and session and tears down the ONNX Runtime
// environment.
func (p *ONNXPredictor) Close() error {
	if p.inputTensor != nil {
		p.inputTensor.Destroy()
	}
	if p.outputTensor != nil {
		p.outputTensor.Destroy()
	}
	if p.session != nil {
		p.session.Destroy()
	}
	return ort.DestroyEnvironment()
}
