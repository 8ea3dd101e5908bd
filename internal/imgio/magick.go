package imgio

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"gopkg.in/gographics/imagick.v3/imagick"
)

// magickLoad reads path with an ImageMagick wand and hands the pixels back
// through an in-memory PNG round trip.
func magickLoad(path string) (image.Image, error) {
	imagick.Initialize()
	defer imagick.Terminate()

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImage(path); err != nil {
		return nil, fmt.Errorf("imagemagick read %s: %w", path, err)
	}
	if err := mw.SetImageFormat("PNG"); err != nil {
		return nil, fmt.Errorf("imagemagick convert %s: %w", path, err)
	}
	blob := mw.GetImageBlob()
	if len(blob) == 0 {
		return nil, fmt.Errorf("imagemagick export %s: empty blob", path)
	}
	return png.Decode(bytes.NewReader(blob))
}
