package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"imgdiff/internal/config"
	"imgdiff/internal/imgio"
	"imgdiff/internal/pipeline"
	"imgdiff/internal/render"
	"imgdiff/internal/server"
	"imgdiff/internal/storage"
	"imgdiff/internal/viewer"
)

type serveFunc func(ctx context.Context, addr string, store *storage.Store, pipe *pipeline.Pipeline, log *slog.Logger) error

func defaultServe(ctx context.Context, addr string, store *storage.Store, pipe *pipeline.Pipeline, log *slog.Logger) error {
	return server.New(addr, store, pipe, log).Start(ctx)
}

type viewFunc func(path, command string, grace time.Duration) error

// Root carries the dependencies the CLI commands share.
type Root struct {
	cfg     *config.Config
	log     *slog.Logger
	serveFn serveFunc
	viewFn  viewFunc
}

// NewRoot wires a Root with the default server and viewer implementations.
func NewRoot(cfg *config.Config, logger *slog.Logger) *Root {
	return &Root{
		cfg:     cfg,
		log:     logger,
		serveFn: defaultServe,
		viewFn:  viewer.ShowPath,
	}
}

// openStore opens the history database when enabled. A nil store with a nil
// error means history is switched off.
func (r *Root) openStore() (*storage.Store, error) {
	if !r.cfg.Storage.Enabled {
		return nil, nil
	}
	path, err := config.ExpandUser(r.cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	return storage.New(path)
}

// compareSettings is everything the compare command collects from its flags.
type compareSettings struct {
	output  string
	viewer  string
	grace   time.Duration
	mode    string
	floor   uint8
	timeout time.Duration
	render  render.Options
}

// runCompare resolves the input pair, runs one comparison through the
// pipeline and either writes the composite where asked or hands it to a
// viewer from a temp dir.
func (r *Root) runCompare(ctx context.Context, left, right string, cs compareSettings) error {
	left, right, err := imgio.ResolvePair(left, right)
	if err != nil {
		return err
	}

	out := cs.output
	var tempDir string
	if out == "" {
		tempDir, err = os.MkdirTemp("", "imgdiff")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tempDir)
		out = filepath.Join(tempDir, compositeName(left, right))
	}

	store, err := r.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rc := pipeline.RunnerConfig{
		Render:       cs.render,
		Mode:         cs.mode,
		OpacityFloor: cs.floor,
		Timeout:      cs.timeout,
		ReportDelay:  r.cfg.Highlight.ReportDelay(),
		Status:       r.newStatusSink(),
		Loader:       imgio.Loader{Magick: r.cfg.Magick.Enabled},
	}
	pipe := pipeline.New(ctx, 1, pipeline.NewRunner(rc), r.log, store)
	defer pipe.Stop()

	job := pipeline.Job{
		ID:    pipeline.NewID("cli"),
		Left:  left,
		Right: right,
		Request: pipeline.Request{
			Mode:       cs.mode,
			OutputPath: out,
		},
	}
	if _, err := pipe.EnqueueAndWait(ctx, job); err != nil {
		return err
	}

	if tempDir == "" {
		return nil
	}
	return r.viewFn(out, cs.viewer, cs.grace)
}

// compositeName mirrors the temp file naming of the viewer flow: both
// basenames keep their extensions.
func compositeName(left, right string) string {
	return fmt.Sprintf("%s-vs-%s.png", filepath.Base(left), filepath.Base(right))
}

// renderOptions turns the configured layout into runner options. The colors
// were validated on load, so parse errors cannot happen here.
func (r *Root) renderOptions() render.Options {
	bg, _ := render.ParseColor(r.cfg.Render.BGColor)
	sep, _ := render.ParseColor(r.cfg.Render.SepColor)
	return render.Options{
		Orientation: r.cfg.Render.Orientation,
		Spacing:     r.cfg.Render.Spacing,
		Border:      r.cfg.Render.Border,
		Background:  bg,
		Separator:   sep,
	}
}

func (r *Root) printHistory(w io.Writer, store *storage.Store, limit int) error {
	recs, err := store.ListRecent(limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "no comparisons recorded yet")
		return nil
	}
	for _, rec := range recs {
		line := fmt.Sprintf("%-28s %-9s %s", rec.ID, rec.Status, humanize.Time(rec.CreatedAt))
		switch rec.Status {
		case "completed":
			line += fmt.Sprintf("  badness %s in %s",
				humanize.Comma(rec.Badness), time.Duration(rec.DurationMS)*time.Millisecond)
		case "failed":
			line += "  " + rec.Error
		}
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "    %s vs %s\n", rec.Left, rec.Right)
	}
	return nil
}

func (r *Root) printStats(w io.Writer, store *storage.Store) error {
	st, err := store.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Comparisons: %d total\n", st.Total)
	fmt.Fprintf(w, "  queued:    %d\n", st.Queued)
	fmt.Fprintf(w, "  running:   %d\n", st.Running)
	fmt.Fprintf(w, "  completed: %d\n", st.Completed)
	fmt.Fprintf(w, "  failed:    %d\n", st.Failed)
	if st.Completed > 0 {
		avg := time.Duration(st.AvgDurationMS * float64(time.Millisecond))
		fmt.Fprintf(w, "Average duration: %s\n", avg)
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
