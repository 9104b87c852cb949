package main

import (
	"errors"
	"io/fs"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/roadnet-api/internal/config"
	"github.com/Brownie44l1/roadnet-api/internal/model"
)

// openPredictor loads the configured backend. A missing model file never
// fails startup: the native network is used with random weights and a
// warning is logged.
func openPredictor(mc config.ModelConfig) (model.Predictor, error) {
	var (
		p   model.Predictor
		err error
	)
	switch mc.Backend {
	case model.BackendONNX:
		if _, statErr := os.Stat(mc.ONNXPath); errors.Is(statErr, fs.ErrNotExist) {
			log.Warnf("[Main] ONNX model %s not found, falling back to the native backend", mc.ONNXPath)
			p, err = model.NewNativePredictor(mc.WeightsPath, mc.Architecture, mc.Seed)
		} else {
			p, err = model.NewONNXPredictor(mc.ONNXPath, mc.MetadataPath, mc.ONNXLibrary)
		}
	default:
		p, err = model.NewNativePredictor(mc.WeightsPath, mc.Architecture, mc.Seed)
	}
	if err != nil {
		return nil, err
	}

	info := p.Info()
	if !info.Trained {
		log.Warnf("[Main] FATAL: weights not found at %s; predictions come from an untrained network", mc.WeightsPath)
	} else {
		log.WithFields(log.Fields{"backend": info.Backend, "source": info.Source}).Info("[Main] Model loaded")
	}
	return p, nil
}
