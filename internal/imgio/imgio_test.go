package imgio

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 40), B: 200, A: 255})
		}
	}
	return img
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := testImage()

	for _, name := range []string{"out.png", "out.bmp"} {
		path := filepath.Join(dir, name)
		if err := Save(path, src); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if got.Bounds().Dx() != 8 || got.Bounds().Dy() != 6 {
			t.Fatalf("%s: bounds = %v", name, got.Bounds())
		}
		if !sameColor(got.At(3, 2), src.NRGBAAt(3, 2)) {
			t.Errorf("%s: pixel (3,2) = %v, want %v", name, got.At(3, 2), src.NRGBAAt(3, 2))
		}
	}
}

func TestSaveJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jpg")
	if err := Save(path, testImage()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Bounds().Dx() != 8 || got.Bounds().Dy() != 6 {
		t.Fatalf("bounds = %v", got.Bounds())
	}
}

func TestSaveUnknownExtensionWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.artifact")
	if err := Save(path, testImage()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	_, format, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if format != "png" {
		t.Errorf("format = %q, want png", format)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.png")
	if err := os.WriteFile(path, []byte("not an image at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestResolvePair(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "other")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, b, err := ResolvePair(file, sub)
	if err != nil {
		t.Fatalf("file+dir: %v", err)
	}
	if a != file || b != filepath.Join(sub, "shot.png") {
		t.Errorf("file+dir = %q, %q", a, b)
	}

	a, b, err = ResolvePair(sub, file)
	if err != nil {
		t.Fatalf("dir+file: %v", err)
	}
	if a != filepath.Join(sub, "shot.png") || b != file {
		t.Errorf("dir+file = %q, %q", a, b)
	}

	a, b, err = ResolvePair(file, file)
	if err != nil || a != file || b != file {
		t.Errorf("file+file = %q, %q, %v", a, b, err)
	}

	if _, _, err := ResolvePair(dir, sub); err == nil {
		t.Error("dir+dir should fail")
	}
}
