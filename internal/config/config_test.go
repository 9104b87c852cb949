package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/roadnet-api/internal/model"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, int64(10<<20), c.Server.MaxUploadBytes)
	assert.Equal(t, model.BackendNative, c.Model.Backend)
	assert.Equal(t, 0.12, c.Pipeline.ThresholdFloor)
	assert.Equal(t, 128, c.Model.Architecture.InputSize)
}

func TestLoadFromFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"port":"9090"},"pipeline":{"sigma":1.5}}`), 0644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", c.Server.Port)
	assert.Equal(t, 1.5, c.Pipeline.Sigma)
	assert.Equal(t, 10, c.Pipeline.MinObjectSize)
	assert.Equal(t, 4, c.Server.MaxConcurrent)
	require.NoError(t, c.Validate())
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":`), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	c := Default()
	c.Model.Backend = model.BackendONNX
	c.Log.Format = "json"
	require.NoError(t, c.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(c, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":                   "7000",
		"ROADNET_WEIGHTS":        "/data/w.npz",
		"ROADNET_BACKEND":        "onnx",
		"ROADNET_LOG_LEVEL":      "debug",
		"ROADNET_MAX_CONCURRENT": "2",
	}
	c := Default()
	require.NoError(t, c.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "7000", c.Server.Port)
	assert.Equal(t, "/data/w.npz", c.Model.WeightsPath)
	assert.Equal(t, model.BackendONNX, c.Model.Backend)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 2, c.Server.MaxConcurrent)

	env["ROADNET_MAX_CONCURRENT"] = "many"
	assert.Error(t, Default().ApplyEnv(func(k string) string { return env[k] }))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = "http" }},
		{"port range", func(c *Config) { c.Server.Port = "70000" }},
		{"upload", func(c *Config) { c.Server.MaxUploadBytes = 0 }},
		{"timeout", func(c *Config) { c.Server.RequestTimeout = -1 }},
		{"concurrency", func(c *Config) { c.Server.MaxConcurrent = 0 }},
		{"backend", func(c *Config) { c.Model.Backend = "tensorflow" }},
		{"weights", func(c *Config) { c.Model.WeightsPath = "" }},
		{"onnx path", func(c *Config) { c.Model.Backend = model.BackendONNX; c.Model.ONNXPath = "" }},
		{"architecture", func(c *Config) { c.Model.Architecture.Kernel = 2 }},
		{"pipeline", func(c *Config) { c.Pipeline.OverlayAlpha = 2 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
