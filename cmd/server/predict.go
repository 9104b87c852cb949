package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/roadnet-api/internal/extractor"
	"github.com/Brownie44l1/roadnet-api/internal/imageutil"
	"github.com/Brownie44l1/roadnet-api/internal/pipeline"
)

var (
	predictOutputDir string
	predictJobs      int
)

var predictCmd = &cobra.Command{
	Use:   "predict <image>...",
	Short: "Extract road skeletons from image files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPredict(cmd.Context(), args)
	},
}

func init() {
	predictCmd.Flags().StringVarP(&predictOutputDir, "output", "o", ".", "Directory for mask and overlay PNGs")
	predictCmd.Flags().IntVarP(&predictJobs, "jobs", "j", 2, "Number of images processed in parallel")
	rootCmd.AddCommand(predictCmd)
}

// fileResult is one line of the JSON report written to stdout.
type fileResult struct {
	File      string           `json:"file"`
	Mask      string           `json:"mask"`
	Overlay   string           `json:"overlay"`
	Threshold float64          `json:"threshold"`
	Metrics   pipeline.Metrics `json:"metrics"`
}

func runPredict(ctx context.Context, files []string) error {
	if predictJobs < 1 {
		return fmt.Errorf("--jobs must be at least 1")
	}
	if err := os.MkdirAll(predictOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	predictor, err := openPredictor(cfg.Model)
	if err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}
	defer predictor.Close()

	ex := extractor.New(predictor, cfg.Pipeline, predictJobs)
	results := make([]fileResult, len(files))

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Extracting roads"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(predictJobs)
	for i, file := range files {
		g.Go(func() error {
			res, err := extractFile(gctx, ex, file, predictOutputDir)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			results[i] = *res
			bar.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func extractFile(ctx context.Context, ex *extractor.Extractor, path, outDir string) (*fileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	res, err := ex.ExtractBytes(ctx, data)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	maskPath := filepath.Join(outDir, base+"_mask.png")
	overlayPath := filepath.Join(outDir, base+"_overlay.png")
	if err := writePNG(maskPath, res.Skeleton.Gray()); err != nil {
		return nil, err
	}
	if err := writePNG(overlayPath, res.Overlay); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"file":        path,
		"road_pixels": res.Metrics.RoadPixels,
	}).Debug("[Predict] Wrote outputs")

	return &fileResult{
		File:      path,
		Mask:      maskPath,
		Overlay:   overlayPath,
		Threshold: res.Threshold,
		Metrics:   res.Metrics,
	}, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := imageutil.EncodePNG(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
