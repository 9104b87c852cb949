package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/roadnet-api/internal/extractor"
	"github.com/Brownie44l1/roadnet-api/internal/handlers"
)

var (
	servePort          string
	serveMaxConcurrent int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the extraction HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "8080", "Port to listen on")
	serveCmd.Flags().IntVar(&serveMaxConcurrent, "max-concurrent", 4, "Maximum concurrent inferences")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	predictor, err := openPredictor(cfg.Model)
	if err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}
	defer predictor.Close()

	ex := extractor.New(predictor, cfg.Pipeline, cfg.Server.MaxConcurrent)
	timeout := time.Duration(cfg.Server.RequestTimeout) * time.Second
	handler := handlers.NewHandler(ex, predictor.Info(), cfg.Server.MaxUploadBytes, timeout)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Infof("[Main] Server starting on port %s", cfg.Server.Port)
	log.Info("[Main] Endpoints:")
	log.Info("[Main]   GET  /health  - Health check")
	log.Info("[Main]   POST /predict - Extract road skeleton from an image upload")
	log.Infof("[Main] Upload test: curl -X POST -F \"file=@tile.png\" http://localhost:%s/predict", cfg.Server.Port)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("[Main] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
