package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"imgdiff/internal/diff"
	"imgdiff/internal/fsutil"
	"imgdiff/internal/imgio"
	"imgdiff/internal/raster"
	"imgdiff/internal/render"
)

// RunnerConfig describes the standard compare executor shared by the CLI
// one-shot path and the server.
type RunnerConfig struct {
	Render       render.Options
	Mode         string // default highlight mode, jobs may override
	OpacityFloor uint8
	Timeout      time.Duration
	ReportDelay  time.Duration
	Status       diff.StatusSink
	Loader       imgio.Loader
	OutputDir    string // composites land here as <job id>.png; empty disables writing
}

// NewRunner returns an Executor that loads both inputs, optionally runs a
// highlight search, renders the composite, and writes it out. A highlight
// that runs out of time degrades to an unhighlighted composite.
func NewRunner(rc RunnerConfig) Executor {
	return func(ctx context.Context, job Job) (*Result, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !fsutil.FileExists(job.Left) {
			return nil, fmt.Errorf("input file does not exist: %s", job.Left)
		}
		if !fsutil.FileExists(job.Right) {
			return nil, fmt.Errorf("input file does not exist: %s", job.Right)
		}

		var imgA, imgB image.Image
		var g errgroup.Group
		g.Go(func() error {
			var err error
			imgA, err = rc.Loader.Load(job.Left)
			return err
		})
		g.Go(func() error {
			var err error
			imgB, err = rc.Loader.Load(job.Right)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		mode := job.Request.Mode
		if mode == "" {
			mode = rc.Mode
		}
		opts := diff.Options{
			OpacityFloor: rc.OpacityFloor,
			Timeout:      rc.Timeout,
			ReportDelay:  rc.ReportDelay,
			Status:       rc.Status,
		}

		res := &Result{Mode: mode}
		var masks *diff.Masks
		switch mode {
		case "", "none":
		case "fast":
			m, ok := diff.FastHighlight(imgA, imgB, opts)
			if ok {
				masks = m
			} else {
				res.TimedOut = true
			}
		case "thorough":
			m, ok := diff.ThoroughHighlight(imgA, imgB, rc.Render.Background, opts)
			if ok {
				masks = m
			} else {
				res.TimedOut = true
			}
		default:
			return nil, fmt.Errorf("unknown highlight mode %q", mode)
		}

		var maskA, maskB *raster.Gray
		if masks != nil {
			res.Badness = masks.Badness
			res.OffsetA = masks.OffsetA
			res.OffsetB = masks.OffsetB
			maskA, maskB = masks.A, masks.B
		}
		comp := render.Tile(imgA, imgB, maskA, maskB, rc.Render)

		out := job.Request.OutputPath
		if out == "" && rc.OutputDir != "" {
			out = filepath.Join(rc.OutputDir, job.ID+".png")
		}
		if out != "" {
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return nil, err
			}
			if err := imgio.Save(out, comp); err != nil {
				return nil, err
			}
			res.OutputPath = out
		}
		return res, nil
	}
}
