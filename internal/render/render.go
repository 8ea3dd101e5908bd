package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"imgdiff/internal/raster"
)

const (
	Auto      = "auto"
	LeftRight = "lr"
	TopBottom = "tb"
)

// goldenRatio is the combined aspect ratio automatic orientation aims for.
const goldenRatio = 1.618

// Options control how two images are tiled into one canvas.
type Options struct {
	Orientation string // "auto", "lr" or "tb"
	Spacing     int    // gap between the images, in pixels
	Border      int    // border around everything, in pixels
	Background  color.NRGBA
	Separator   color.NRGBA
}

// DefaultOptions mirrors the CLI defaults: automatic orientation, a 3 px
// gap, no border, white background with a light grey separator.
func DefaultOptions() Options {
	return Options{
		Orientation: Auto,
		Spacing:     3,
		Border:      0,
		Background:  color.NRGBA{0xff, 0xff, 0xff, 0xff},
		Separator:   color.NRGBA{0xcc, 0xcc, 0xcc, 0xff},
	}
}

// ParseColor parses rgb, rgba, rrggbb or rrggbbaa hex notation without a
// leading '#'. Single hex digits scale up (4 -> 0x44); alpha defaults to
// opaque.
func ParseColor(s string) (color.NRGBA, error) {
	var c color.NRGBA
	nibble := func(i int) (uint8, error) {
		v, err := strconv.ParseUint(s[i:i+1], 16, 8)
		return uint8(v) * 0x11, err
	}
	wide := func(i int) (uint8, error) {
		v, err := strconv.ParseUint(s[i:i+2], 16, 8)
		return uint8(v), err
	}
	var err error
	switch len(s) {
	case 3, 4:
		if c.R, err = nibble(0); err == nil {
			if c.G, err = nibble(1); err == nil {
				c.B, err = nibble(2)
			}
		}
		c.A = 0xff
		if err == nil && len(s) == 4 {
			c.A, err = nibble(3)
		}
	case 6, 8:
		if c.R, err = wide(0); err == nil {
			if c.G, err = wide(2); err == nil {
				c.B, err = wide(4)
			}
		}
		c.A = 0xff
		if err == nil && len(s) == 8 {
			c.A, err = wide(6)
		}
	default:
		return c, fmt.Errorf("bad color %q; expected rgb/rgba/rrggbb/rrggbbaa", s)
	}
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("bad color %q; expected rgb/rgba/rrggbb/rrggbbaa", s)
	}
	return c, nil
}

// PickOrientation chooses "lr" or "tb" for two image sizes: whichever makes
// the combined canvas's aspect ratio closer to 1:1.618. Ties stay "lr".
func PickOrientation(a, b image.Point, spacing int) string {
	aspectLR := aspect(a.X+spacing+b.X, max(a.Y, b.Y, 1))
	aspectTB := aspect(max(a.X, b.X, 1), a.Y+spacing+b.Y)
	if goodness(aspectLR) >= goodness(aspectTB) {
		return LeftRight
	}
	return TopBottom
}

func aspect(w, h int) float64 {
	if h < 1 {
		h = 1
	}
	return float64(w) / float64(h)
}

func goodness(got float64) float64 {
	if got > goldenRatio {
		return goldenRatio / got
	}
	return got / goldenRatio
}

// Tile combines two images into one canvas: background-filled, border
// around the outside, a spacing gap with a one-pixel separator line between
// them, each image centered across the shared axis. Masks weight each
// image's paste; nil pastes at full opacity.
func Tile(a, b image.Image, maskA, maskB *raster.Gray, opts Options) *image.RGBA {
	sa := a.Bounds().Size()
	sb := b.Bounds().Size()

	orientation := opts.Orientation
	if orientation == "" || orientation == Auto {
		orientation = PickOrientation(sa, sb, opts.Spacing)
	}

	bw, sp := opts.Border, opts.Spacing
	var w, h int
	var posA, posB image.Point
	var sep image.Rectangle
	if orientation == LeftRight {
		w = bw + sa.X + sp + sb.X + bw
		h = bw + max(sa.Y, sb.Y) + bw
		posA = image.Pt(bw, (h-sa.Y)/2)
		posB = image.Pt(bw+sa.X+sp, (h-sb.Y)/2)
		x := bw + sa.X + sp/2
		sep = image.Rect(x, 0, x+1, h)
	} else {
		w = bw + max(sa.X, sb.X) + bw
		h = bw + sa.Y + sp + sb.Y + bw
		posA = image.Pt((w-sa.X)/2, bw)
		posB = image.Pt((w-sb.X)/2, bw+sa.Y+sp)
		y := bw + sa.Y + sp/2
		sep = image.Rect(0, y, w, y+1)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	pasteMasked(canvas, a, posA, maskA)
	pasteMasked(canvas, b, posB, maskB)

	draw.Draw(canvas, sep, image.NewUniform(opts.Separator), image.Point{}, draw.Over)
	return canvas
}

func pasteMasked(dst *image.RGBA, src image.Image, at image.Point, mask *raster.Gray) {
	r := image.Rectangle{Min: at, Max: at.Add(src.Bounds().Size())}
	if mask == nil {
		draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
		return
	}
	draw.DrawMask(dst, r, src, src.Bounds().Min, mask.Alpha(), image.Point{}, draw.Over)
}
