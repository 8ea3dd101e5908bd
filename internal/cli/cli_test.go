package cli

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imgdiff/internal/config"
	"imgdiff/internal/pipeline"
	"imgdiff/internal/render"
	"imgdiff/internal/storage"
)

func TestCompareWritesComposite(t *testing.T) {
	root := newTestRoot(t)
	dir := t.TempDir()
	left := writePNG(t, filepath.Join(dir, "left.png"), 4, 3, color.NRGBA{R: 0xff, A: 0xff})
	right := writePNG(t, filepath.Join(dir, "right.png"), 4, 3, color.NRGBA{B: 0xff, A: 0xff})
	out := filepath.Join(dir, "composite.png")

	if _, err := runCommand(t, root, left, right, "-o", out, "--lr"); err != nil {
		t.Fatalf("compare failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("composite missing: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("composite is not a png: %v", err)
	}
	// Two 4x3 images side by side with the default 3px gap.
	if got := img.Bounds().Size(); got.X != 11 || got.Y != 3 {
		t.Fatalf("expected an 11x3 composite, got %dx%d", got.X, got.Y)
	}
}

func TestCompareOpensViewerFromTempDir(t *testing.T) {
	root := newTestRoot(t)
	var (
		viewedPath    string
		viewedCmd     string
		viewedGrace   time.Duration
		existedAtView bool
	)
	root.viewFn = func(path, command string, grace time.Duration) error {
		viewedPath, viewedCmd, viewedGrace = path, command, grace
		_, err := os.Stat(path)
		existedAtView = err == nil
		return nil
	}

	dir := t.TempDir()
	left := writePNG(t, filepath.Join(dir, "a.png"), 2, 2, color.NRGBA{R: 0xff, A: 0xff})
	right := writePNG(t, filepath.Join(dir, "b.png"), 2, 2, color.NRGBA{G: 0xff, A: 0xff})

	if _, err := runCommand(t, root, left, right, "--viewer", "feh", "--grace", "0.25"); err != nil {
		t.Fatalf("compare failed: %v", err)
	}

	if got := filepath.Base(viewedPath); got != "a.png-vs-b.png.png" {
		t.Fatalf("unexpected composite name %q", got)
	}
	if !existedAtView {
		t.Fatalf("composite did not exist when the viewer ran")
	}
	if viewedCmd != "feh" || viewedGrace != 250*time.Millisecond {
		t.Fatalf("viewer got command %q grace %s", viewedCmd, viewedGrace)
	}
	if _, err := os.Stat(viewedPath); !os.IsNotExist(err) {
		t.Fatalf("temp composite %s was not cleaned up", viewedPath)
	}
}

func TestCompareEogFlagOverridesViewer(t *testing.T) {
	root := newTestRoot(t)
	var viewedCmd string
	root.viewFn = func(path, command string, grace time.Duration) error {
		viewedCmd = command
		return nil
	}

	dir := t.TempDir()
	left := writePNG(t, filepath.Join(dir, "a.png"), 2, 2, color.NRGBA{R: 0xff, A: 0xff})
	right := writePNG(t, filepath.Join(dir, "b.png"), 2, 2, color.NRGBA{G: 0xff, A: 0xff})

	if _, err := runCommand(t, root, left, right, "--viewer", "feh", "--eog"); err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if viewedCmd != "eog" {
		t.Fatalf("expected --eog to win, viewer ran %q", viewedCmd)
	}
}

func TestCompareResolvesDirectoryArgument(t *testing.T) {
	root := newTestRoot(t)
	dirA := t.TempDir()
	dirB := t.TempDir()
	left := writePNG(t, filepath.Join(dirA, "shot.png"), 2, 2, color.NRGBA{R: 0xff, A: 0xff})
	writePNG(t, filepath.Join(dirB, "shot.png"), 2, 2, color.NRGBA{B: 0xff, A: 0xff})

	out := filepath.Join(t.TempDir(), "out.png")
	if _, err := runCommand(t, root, left, dirB, "-o", out); err != nil {
		t.Fatalf("compare with directory argument failed: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("composite missing: %v", err)
	}
}

func TestCompareRejectsBadFlags(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"conflicting orientations", []string{"x.png", "y.png", "--lr", "--tb"}, "only one of"},
		{"opacity floor range", []string{"x.png", "y.png", "--opacity-floor", "300"}, "out of range"},
		{"bad color", []string{"x.png", "y.png", "--bgcolor", "zzz"}, "bad color"},
		{"missing argument", []string{"x.png"}, "accepts 2 arg"},
		{"missing input", []string{"x.png", "y.png", "-o", "out.png"}, "does not exist"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runCommand(t, newTestRoot(t), tc.args...)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %q", tc.want, err)
			}
		})
	}
}

func TestOrientationFlagPick(t *testing.T) {
	cases := []struct {
		name         string
		auto, lr, tb bool
		want         string
	}{
		{"lr flag", false, true, false, render.LeftRight},
		{"tb flag", false, false, true, render.TopBottom},
		{"auto flag", true, false, false, render.Auto},
		{"no flag keeps config", false, false, false, render.TopBottom},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pickOrientation(render.TopBottom, tc.auto, tc.lr, tc.tb)
			if err != nil {
				t.Fatalf("pickOrientation failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}

	if _, err := pickOrientation(render.Auto, true, true, false); err == nil {
		t.Fatalf("expected conflicting flags to error")
	}
}

func TestColorFlagValue(t *testing.T) {
	var c color.NRGBA
	v := newColorValue("fff", &c)
	if c != (color.NRGBA{0xff, 0xff, 0xff, 0xff}) {
		t.Fatalf("default not applied, got %+v", c)
	}
	if v.Type() != "color" {
		t.Fatalf("unexpected type %q", v.Type())
	}

	if err := v.Set("f80"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if c != (color.NRGBA{0xff, 0x88, 0x00, 0xff}) {
		t.Fatalf("short hex parsed wrong: %+v", c)
	}
	if v.String() != "ff8800" {
		t.Fatalf("unexpected string %q", v.String())
	}

	if err := v.Set("8080807f"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if v.String() != "8080807f" {
		t.Fatalf("alpha not printed: %q", v.String())
	}

	if err := v.Set("nope"); err == nil {
		t.Fatalf("expected error for a bad color")
	}
}

func TestServeCommandUsesInjectedFunction(t *testing.T) {
	root := newTestRoot(t)
	var gotAddr string
	root.serveFn = func(ctx context.Context, addr string, store *storage.Store, pipe *pipeline.Pipeline, log *slog.Logger) error {
		gotAddr = addr
		if pipe == nil {
			t.Errorf("expected a pipeline")
		}
		if store != nil {
			t.Errorf("expected no store while history is disabled")
		}
		return nil
	}

	if _, err := runCommand(t, root, "serve", "--addr", "127.0.0.1:9999"); err != nil {
		t.Fatalf("serve failed: %v", err)
	}
	if gotAddr != "127.0.0.1:9999" {
		t.Fatalf("unexpected addr %q", gotAddr)
	}
}

func TestHistoryCommand(t *testing.T) {
	root := newTestRoot(t)
	root.cfg.Storage.Enabled = true
	root.cfg.Storage.Path = filepath.Join(t.TempDir(), "history.db")

	store, err := storage.New(root.cfg.Storage.Path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.RecordQueued(storage.Comparison{ID: "cli-1", Left: "a.png", Right: "b.png", Mode: "fast"}); err != nil {
		t.Fatalf("record queued: %v", err)
	}
	if err := store.RecordStarted("cli-1"); err != nil {
		t.Fatalf("record started: %v", err)
	}
	if err := store.RecordFinished("cli-1", storage.Finish{Badness: 42, DurationMS: 120, OutputPath: "out.png"}); err != nil {
		t.Fatalf("record finished: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	out, err := runCommand(t, root, "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	for _, want := range []string{"cli-1", "completed", "42", "a.png vs b.png"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in history output %q", want, out)
		}
	}

	out, err = runCommand(t, root, "history", "--stats")
	if err != nil {
		t.Fatalf("history --stats failed: %v", err)
	}
	for _, want := range []string{"1 total", "completed: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in stats output %q", want, out)
		}
	}
}

func TestHistoryDisabled(t *testing.T) {
	root := newTestRoot(t)
	_, err := runCommand(t, root, "history")
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("expected a disabled-history error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, newTestRoot(t), "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "imgdiff v1.0.0") {
		t.Fatalf("expected version string, got %q", out)
	}
}

func TestConfigCommands(t *testing.T) {
	root := newTestRoot(t)

	out, err := runCommand(t, root, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"config file:", `"render"`, `"highlight"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in config output %q", want, out)
		}
	}

	out, err = runCommand(t, root, "config", "validate")
	if err != nil {
		t.Fatalf("config validate failed: %v", err)
	}
	if !strings.Contains(out, "configuration is valid") {
		t.Fatalf("unexpected validate output %q", out)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("IMGDIFF_CONFIG", path)
	root := newTestRoot(t)

	if _, err := runCommand(t, root, "config", "init"); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file missing: %v", err)
	}
	if !strings.Contains(string(data), "orientation") {
		t.Fatalf("unexpected config contents %q", data)
	}

	if _, err := runCommand(t, root, "config", "init"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite refusal, got %v", err)
	}
}

// Test helpers

func newTestRoot(t *testing.T) *Root {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Enabled = false
	cfg.Magick.Enabled = false

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	root := NewRoot(cfg, logger)
	root.viewFn = func(path, command string, grace time.Duration) error { return nil }
	return root
}

func runCommand(t *testing.T, root *Root, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(root)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writePNG(t *testing.T, path string, w, h int, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	return path
}
