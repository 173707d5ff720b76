package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/cloodei/apt-attendance/internal/config"
	"github.com/cloodei/apt-attendance/internal/gallery"
	"github.com/cloodei/apt-attendance/internal/inference"
	"github.com/cloodei/apt-attendance/internal/vision"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <reference-dir>",
	Short: "Build the gallery index from reference images",
	Long: `Build the enrolled gallery index from a directory of reference images.
The directory contains one subdirectory per student, named by student ID,
holding one or more face photos:

    references/
      1001/front.jpg
      1001/side.jpg
      1002/photo.png

Each image goes through face detection and identity embedding on the model
server; the strongest detected face becomes a reference embedding.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("out", "gallery.idx", "Output path for the gallery index")
	enrollCmd.Flags().Int("concurrency", 4, "Number of images processed in parallel")
	enrollCmd.Flags().Float64("min-confidence", 0, "Detection confidence floor (defaults to the pipeline threshold)")
}

type referenceImage struct {
	studentID int64
	path      string
}

func collectReferenceImages(dir string) ([]referenceImage, error) {
	students, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference directory: %w", err)
	}

	var images []referenceImage
	for _, student := range students {
		if !student.IsDir() {
			continue
		}
		studentID, err := strconv.ParseInt(student.Name(), 10, 64)
		if err != nil {
			fmt.Printf("Skipping %s: directory name is not a student ID\n", student.Name())
			continue
		}

		files, err := os.ReadDir(filepath.Join(dir, student.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read student directory %s: %w", student.Name(), err)
		}
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(file.Name())) {
			case ".jpg", ".jpeg", ".png", ".bmp":
				images = append(images, referenceImage{
					studentID: studentID,
					path:      filepath.Join(dir, student.Name(), file.Name()),
				})
			}
		}
	}
	return images, nil
}

// embedReference picks the strongest face in a reference image and embeds it.
func embedReference(ctx context.Context, client *inference.Client, cfg *config.PipelineConfig, path string, minConfidence float64) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	detections, err := client.DetectFaces(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	best := inference.Detection{Score: -1}
	for _, det := range detections {
		if det.Score > best.Score {
			best = det
		}
	}
	if best.Score < minConfidence {
		return nil, fmt.Errorf("no face above confidence %.2f", minConfidence)
	}

	frame, err := vision.DecodeFrame(data, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	crop, err := vision.Crop(frame, best.Box)
	if err != nil {
		return nil, fmt.Errorf("failed to crop face: %w", err)
	}

	size := cfg.Embedding.InputSize
	cropData, err := vision.EncodeJPEG(vision.ResizeTo(crop, size, size))
	if err != nil {
		return nil, err
	}

	embedding, err := client.EmbedFace(ctx, cropData)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return embedding, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	outPath := mustGetString(cmd, "out")
	concurrency := mustGetInt(cmd, "concurrency")
	minConfidence := mustGetFloat64(cmd, "min-confidence")
	if minConfidence <= 0 {
		minConfidence = cfg.Pipeline.Detection.MinConfidence
	}
	if concurrency < 1 {
		concurrency = 1
	}

	images, err := collectReferenceImages(args[0])
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("no reference images found under %s", args[0])
	}
	fmt.Printf("Reference images to enroll: %d\n\n", len(images))

	client := inference.NewClient(cfg.ModelServer.URL)
	index := gallery.NewIndex(cfg.Pipeline.Match.MinSimilarity)
	ctx := context.Background()

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Enrolling faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var mu sync.Mutex
	var failed []string

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, img := range images {
		wg.Add(1)
		go func(img referenceImage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			embedding, err := embedReference(ctx, client, &cfg.Pipeline, img.path, minConfidence)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, fmt.Sprintf("%s: %v", img.path, err))
				return
			}
			if err := index.Add(img.studentID, embedding); err != nil {
				failed = append(failed, fmt.Sprintf("%s: %v", img.path, err))
			}
		}(img)
	}
	wg.Wait()
	fmt.Println()

	for _, f := range failed {
		fmt.Printf("Failed: %s\n", f)
	}
	if index.Count() == 0 {
		return fmt.Errorf("no reference images could be enrolled")
	}

	if err := index.Save(outPath); err != nil {
		return fmt.Errorf("failed to save gallery index: %w", err)
	}

	fmt.Printf("\nGallery index written to %s\n", outPath)
	fmt.Printf("  Embeddings: %d\n", index.Count())
	fmt.Printf("  Students:   %d\n", index.Students())
	fmt.Printf("  Dimension:  %d\n", index.Dim())
	if len(failed) > 0 {
		fmt.Printf("  Failed:     %d\n", len(failed))
	}
	return nil
}
