package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Brownie44l1/roadnet-api/internal/model"
	"github.com/Brownie44l1/roadnet-api/internal/pipeline"
	"github.com/Brownie44l1/roadnet-api/internal/unet"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig     `json:"server"`
	Model    ModelConfig      `json:"model"`
	Pipeline pipeline.Options `json:"pipeline"`
	Log      LogConfig        `json:"log"`
}

// ServerConfig holds HTTP settings
type ServerConfig struct {
	Port           string `json:"port"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
	// RequestTimeout is in seconds; 0 disables the per-request deadline.
	RequestTimeout int `json:"request_timeout"`
	MaxConcurrent  int `json:"max_concurrent"`
}

// ModelConfig selects and locates the inference backend
type ModelConfig struct {
	Backend      string            `json:"backend"`
	WeightsPath  string            `json:"weights_path"`
	ONNXPath     string            `json:"onnx_path"`
	MetadataPath string            `json:"metadata_path"`
	ONNXLibrary  string            `json:"onnx_library"`
	Seed         uint64            `json:"seed"`
	Architecture unet.Architecture `json:"architecture"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			MaxUploadBytes: 10 << 20,
			RequestTimeout: 60,
			MaxConcurrent:  4,
		},
		Model: ModelConfig{
			Backend:      model.BackendNative,
			WeightsPath:  filepath.Join("models", "best_convlstm_unet.npz"),
			ONNXPath:     filepath.Join("models", "convlstm_unet.onnx"),
			Seed:         42,
			Architecture: unet.DefaultArchitecture(),
		},
		Pipeline: pipeline.DefaultOptions(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from
// the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := getenv("ROADNET_WEIGHTS"); v != "" {
		c.Model.WeightsPath = v
	}
	if v := getenv("ROADNET_BACKEND"); v != "" {
		c.Model.Backend = v
	}
	if v := getenv("ROADNET_ONNX_MODEL"); v != "" {
		c.Model.ONNXPath = v
	}
	if v := getenv("ONNXRUNTIME_SHARED_LIBRARY"); v != "" {
		c.Model.ONNXLibrary = v
	}
	if v := getenv("ROADNET_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("ROADNET_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ROADNET_MAX_CONCURRENT: %w", err)
		}
		c.Server.MaxConcurrent = n
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server.port must be a number between 1 and 65535")
	}

	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout cannot be negative")
	}

	if c.Server.MaxConcurrent < 1 {
		return fmt.Errorf("server.max_concurrent must be at least 1")
	}

	switch c.Model.Backend {
	case model.BackendNative:
		if c.Model.WeightsPath == "" {
			return fmt.Errorf("model.weights_path cannot be empty")
		}
		if err := c.Model.Architecture.Validate(); err != nil {
			return fmt.Errorf("model.architecture: %w", err)
		}
	case model.BackendONNX:
		if c.Model.ONNXPath == "" {
			return fmt.Errorf("model.onnx_path cannot be empty")
		}
	default:
		return fmt.Errorf("model.backend must be %q or %q", model.BackendNative, model.BackendONNX)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}

	return nil
}
