package fsutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestIsImageFile(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"shot.png", true},
		{"shot.PNG", true},
		{"photo.jpeg", true},
		{"anim.gif", true},
		{"scan.tiff", true},
		{"pic.webp", true},
		{"notes.txt", false},
		{"archive.png.zip", false},
		{"noext", false},
	}
	for _, c := range cases {
		if got := IsImageFile(c.path); got != c.want {
			t.Errorf("IsImageFile(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string) string {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	a := mustWrite("a.png")
	b := mustWrite("nested/b.jpg")
	mustWrite("nested/readme.md")
	mustWrite("c.txt")

	files, err := ListImages(dir)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	sort.Strings(files)
	want := []string{a, b}
	sort.Strings(want)
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.png")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(file) {
		t.Error("existing file reported missing")
	}
	if FileExists(dir) {
		t.Error("directory reported as file")
	}
	if FileExists(filepath.Join(dir, "absent")) {
		t.Error("missing path reported existing")
	}
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "present")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	got := FirstExisting(filepath.Join(dir, "no1"), file, dir)
	if got != file {
		t.Errorf("FirstExisting = %q, want %q", got, file)
	}
	if got := FirstExisting(filepath.Join(dir, "no1"), filepath.Join(dir, "no2")); got != "" {
		t.Errorf("FirstExisting with no hits = %q", got)
	}
}

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	if err := AtomicWrite(path, []byte("first"), 0o644); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	if err := AtomicWrite(path, []byte("second"), 0o644); err != nil {
		t.Fatalf("AtomicWrite overwrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		for _, e := range entries {
			t.Logf("entry: %s", e.Name())
		}
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}
