package viewer

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, A: 255})
	return img
}

func TestShowHonorsGrace(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX no-op command")
	}
	grace := 50 * time.Millisecond
	started := time.Now()
	if err := Show(testImage(), "a-vs-b.png", "true", grace); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if elapsed := time.Since(started); elapsed < grace {
		t.Errorf("returned after %v, want at least %v", elapsed, grace)
	}
}

func TestShowFileVisibleToViewer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell script viewer")
	}
	dir := t.TempDir()
	seen := filepath.Join(dir, "seen")
	script := filepath.Join(dir, "grab.sh")
	body := "#!/bin/sh\nprintf '%s' \"$1\" > " + seen + "\ncp \"$1\" " + seen + ".png\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := Show(testImage(), "left-vs-right.png", script, 0); err != nil {
		t.Fatalf("Show: %v", err)
	}

	raw, err := os.ReadFile(seen)
	if err != nil {
		t.Fatalf("viewer never saw the file: %v", err)
	}
	shown := string(raw)
	if !strings.HasSuffix(shown, "left-vs-right.png") {
		t.Errorf("viewer argument = %q", shown)
	}
	if _, err := os.Stat(shown); !os.IsNotExist(err) {
		t.Errorf("temp file %s not cleaned up (err=%v)", shown, err)
	}
	if _, err := os.Stat(seen + ".png"); err != nil {
		t.Errorf("copy made during viewing missing: %v", err)
	}
}

func TestShowUnknownCommand(t *testing.T) {
	err := Show(testImage(), "x.png", "imgdiff-no-such-viewer-cmd", 0)
	if err == nil {
		t.Fatal("expected error for unknown viewer command")
	}
}
