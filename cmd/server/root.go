package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/roadnet-api/internal/config"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg is resolved once per invocation: defaults, file, environment, flags.
	cfg *config.Config

	configPath  string
	logLevel    string
	backend     string
	weightsPath string
)

var rootCmd = &cobra.Command{
	Use:           "roadnet",
	Short:         "Road network skeleton extraction from aerial imagery",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = resolveConfig(cmd)
		if err != nil {
			return err
		}
		return setupLogging(cfg.Log)
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Inference backend (native or onnx)")
	rootCmd.PersistentFlags().StringVarP(&weightsPath, "weights", "w", "", "Path to the .npz weight archive")
}

func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	c := config.Default()
	if configPath != "" {
		var err error
		if c, err = config.LoadFromFile(configPath); err != nil {
			return nil, err
		}
	}
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("backend") {
		c.Model.Backend = backend
	}
	if flags.Changed("weights") {
		c.Model.WeightsPath = weightsPath
	}
	if flags.Changed("port") {
		c.Server.Port = servePort
	}
	if flags.Changed("max-concurrent") {
		c.Server.MaxConcurrent = serveMaxConcurrent
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func setupLogging(lc config.LogConfig) error {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	if lc.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stderr)
	return nil
}
