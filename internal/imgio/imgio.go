package imgio

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

const jpegQuality = 90

// Loader decodes comparison inputs. When Magick is set, files the standard
// decoders reject are retried through ImageMagick, which understands far
// more formats than the Go ecosystem does.
type Loader struct {
	Magick bool
}

// Load reads and decodes the image at path.
func (l Loader) Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	img, err := decode(f, strings.ToLower(filepath.Ext(path)))
	f.Close()
	if err == nil {
		return img, nil
	}
	if l.Magick {
		if img, merr := magickLoad(path); merr == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("decode %s: %w", path, err)
}

// Load decodes path with the default loader (no ImageMagick fallback).
func Load(path string) (image.Image, error) {
	return Loader{}.Load(path)
}

func decode(f *os.File, ext string) (image.Image, error) {
	switch ext {
	case ".jpg", ".jpeg":
		return jpeg.Decode(f)
	case ".png":
		return png.Decode(f)
	case ".gif":
		return gif.Decode(f)
	case ".bmp":
		return bmp.Decode(f)
	case ".tif", ".tiff":
		return tiff.Decode(f)
	case ".webp":
		return webp.Decode(f)
	default:
		img, _, err := image.Decode(f)
		return img, err
	}
}

// Save encodes img to path. The format follows the file extension; paths
// without a recognized extension are written as PNG.
func Save(path string, img image.Image) error {
	if _, err := imaging.FormatFromFilename(path); err != nil {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return imaging.Save(img, path, imaging.JPEGQuality(jpegQuality))
}

// ResolvePair applies the directory shorthand for comparison arguments: when
// exactly one of the two is a directory, the other's basename is joined onto
// it. Two directories cannot name a comparison.
func ResolvePair(a, b string) (string, string, error) {
	aDir, bDir := isDir(a), isDir(b)
	switch {
	case aDir && bDir:
		return "", "", fmt.Errorf("at least one argument must be a file, not a directory")
	case bDir:
		b = filepath.Join(b, filepath.Base(a))
	case aDir:
		a = filepath.Join(a, filepath.Base(b))
	}
	return a, b, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
