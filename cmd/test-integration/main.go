package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"time"

	"imgdiff/internal/imgio"
	"imgdiff/internal/logging"
	"imgdiff/internal/pipeline"
	"imgdiff/internal/render"
	"imgdiff/internal/storage"
	"imgdiff/internal/watch"
)

// Manual end-to-end check: synthesizes an image pair, runs a thorough
// comparison through the pipeline with history enabled, then watches the
// pair and confirms that a rewrite triggers a recompare.
func main() {
	fmt.Println("🔍 Testing pipeline + storage + watch integration")

	dir, err := os.MkdirTemp("", "imgdiff-integration")
	if err != nil {
		log.Fatal("Failed to create temp dir:", err)
	}
	defer os.RemoveAll(dir)

	left := filepath.Join(dir, "left.png")
	right := filepath.Join(dir, "right.png")
	if err := writeTestImage(left, 0); err != nil {
		log.Fatal("Failed to write left image:", err)
	}
	if err := writeTestImage(right, 40); err != nil {
		log.Fatal("Failed to write right image:", err)
	}

	store, err := storage.New(filepath.Join(dir, "integration.db"))
	if err != nil {
		log.Fatal("Failed to create storage:", err)
	}
	defer store.Close()

	fmt.Println("✅ History database ready")

	logger := logging.New("info", "text")
	rc := pipeline.RunnerConfig{
		Render:       render.DefaultOptions(),
		Mode:         "thorough",
		OpacityFloor: 64,
		Timeout:      10 * time.Second,
		Loader:       imgio.Loader{},
		OutputDir:    filepath.Join(dir, "out"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pipe := pipeline.New(ctx, 1, pipeline.NewRunner(rc), logger, store)
	defer pipe.Stop()

	res, err := pipe.EnqueueAndWait(ctx, pipeline.Job{
		ID:    pipeline.NewID("integration"),
		Left:  left,
		Right: right,
	})
	if err != nil {
		log.Fatal("Comparison failed:", err)
	}

	fmt.Println("✅ Thorough comparison completed")
	fmt.Printf("📊 Result:\n")
	fmt.Printf("   Badness: %d\n", res.Badness)
	fmt.Printf("   Offset A: %v\n", res.OffsetA)
	fmt.Printf("   Offset B: %v\n", res.OffsetB)
	fmt.Printf("   Composite: %s\n", res.OutputPath)
	fmt.Printf("   Duration: %s\n", res.Duration)

	stats, err := store.Stats()
	if err != nil {
		log.Fatal("Failed to get stats:", err)
	}
	fmt.Printf("   History: %d total, %d completed\n", stats.Total, stats.Completed)

	fmt.Println("\n🚀 Setting up watcher...")

	events, unsubscribe := pipe.Subscribe()
	defer unsubscribe()

	watcher, err := watch.New(left, right, 100*time.Millisecond, pipe, pipeline.Request{}, logger)
	if err != nil {
		log.Fatal("Failed to create watcher:", err)
	}
	if err := watcher.Start(); err != nil {
		log.Fatal("Failed to start watcher:", err)
	}
	defer watcher.Stop()

	fmt.Println("✅ Watcher running, rewriting left image...")

	if err := writeTestImage(left, 80); err != nil {
		log.Fatal("Failed to rewrite left image:", err)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-deadline:
			log.Fatal("Watcher never triggered a recompare")
		case ev := <-events:
			if ev.Type != pipeline.EventFinished {
				continue
			}
			fmt.Printf("📸 Recompare finished: badness %d\n", ev.Result.Badness)
			fmt.Println("✅ Test completed")
			return
		}
	}
}

// writeTestImage writes a gradient with a colored patch so comparisons have
// something to find.
func writeTestImage(path string, patch uint8) error {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			v := uint8((x*4 + y*5) % 256)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 0xff})
		}
	}
	for y := 10; y < 20; y++ {
		for x := 10; x < 30; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: patch, G: patch, B: 255 - patch, A: 0xff})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
