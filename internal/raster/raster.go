package raster

import (
	"fmt"
	"image"
)

// Gray is a flat single-channel pixel buffer with stride == W.
type Gray struct {
	W, H int
	Pix  []uint8
}

// NewGray returns a zeroed w×h buffer.
func NewGray(w, h int) *Gray {
	return &Gray{W: w, H: h, Pix: make([]uint8, w*h)}
}

// NewGrayFilled returns a w×h buffer with every cell set to v.
func NewGrayFilled(w, h int, v uint8) *Gray {
	g := NewGray(w, h)
	if v != 0 {
		g.Fill(v)
	}
	return g
}

func (g *Gray) At(x, y int) uint8 { return g.Pix[y*g.W+x] }

func (g *Gray) Set(x, y int, v uint8) { g.Pix[y*g.W+x] = v }

// Fill sets every cell to v.
func (g *Gray) Fill(v uint8) {
	for i := range g.Pix {
		g.Pix[i] = v
	}
}

// Clone returns an independent copy.
func (g *Gray) Clone() *Gray {
	c := &Gray{W: g.W, H: g.H, Pix: make([]uint8, len(g.Pix))}
	copy(c.Pix, g.Pix)
	return c
}

// Alpha exposes the buffer as an image.Alpha sharing the same pixels,
// for use as a draw mask.
func (g *Gray) Alpha() *image.Alpha {
	return &image.Alpha{Pix: g.Pix, Stride: g.W, Rect: image.Rect(0, 0, g.W, g.H)}
}

// Luminance converts img to an 8-bit luminance buffer using the standard
// 299/587/114 weights.
func Luminance(img image.Image) *Gray {
	b := img.Bounds()
	g := NewGray(b.Dx(), b.Dy())
	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < g.H; y++ {
			copy(g.Pix[y*g.W:(y+1)*g.W], src.Pix[y*src.Stride:y*src.Stride+g.W])
		}
	case *image.RGBA:
		lumFromRGBA(g, src.Pix, src.Stride)
	case *image.NRGBA:
		// Alpha is ignored for diffing; treat channels as opaque.
		lumFromRGBA(g, src.Pix, src.Stride)
	default:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, gg, bb, _ := img.At(x, y).RGBA()
				g.Pix[i] = uint8((299*(r>>8) + 587*(gg>>8) + 114*(bb>>8)) / 1000)
				i++
			}
		}
	}
	return g
}

func lumFromRGBA(g *Gray, pix []uint8, stride int) {
	for y := 0; y < g.H; y++ {
		row := pix[y*stride:]
		out := g.Pix[y*g.W:]
		for x := 0; x < g.W; x++ {
			p := row[x*4:]
			out[x] = uint8((299*uint32(p[0]) + 587*uint32(p[1]) + 114*uint32(p[2])) / 1000)
		}
	}
}

func checkSameSize(op string, a, b *Gray) {
	if a.W != b.W || a.H != b.H {
		panic(fmt.Sprintf("raster: %s size mismatch %dx%d vs %dx%d", op, a.W, a.H, b.W, b.H))
	}
}

func checkRegion(op string, g *Gray, x, y, w, h int) {
	if x < 0 || y < 0 || w < 0 || h < 0 || x+w > g.W || y+h > g.H {
		panic(fmt.Sprintf("raster: %s region %dx%d at (%d,%d) outside %dx%d buffer",
			op, w, h, x, y, g.W, g.H))
	}
}

// AbsDiff writes the per-cell absolute difference of a and b into dst.
// All three buffers must have identical dimensions.
func AbsDiff(dst, a, b *Gray) {
	checkSameSize("absdiff", a, b)
	checkSameSize("absdiff", dst, a)
	for i, av := range a.Pix {
		bv := b.Pix[i]
		if av >= bv {
			dst.Pix[i] = av - bv
		} else {
			dst.Pix[i] = bv - av
		}
	}
}

// AbsDiffRegions writes the absolute difference of the w×h window of a at
// (ax,ay) against the w×h window of b at (bx,by) into dst, which must be
// exactly w×h. A window falling outside its buffer is a caller bug.
func AbsDiffRegions(dst, a, b *Gray, ax, ay, bx, by, w, h int) {
	checkRegion("absdiff", a, ax, ay, w, h)
	checkRegion("absdiff", b, bx, by, w, h)
	if dst.W != w || dst.H != h {
		panic(fmt.Sprintf("raster: absdiff dst %dx%d, want %dx%d", dst.W, dst.H, w, h))
	}
	for y := 0; y < h; y++ {
		ra := a.Pix[(ay+y)*a.W+ax:]
		rb := b.Pix[(by+y)*b.W+bx:]
		rd := dst.Pix[y*w:]
		for x := 0; x < w; x++ {
			av, bv := ra[x], rb[x]
			if av >= bv {
				rd[x] = av - bv
			} else {
				rd[x] = bv - av
			}
		}
	}
}

// MinInto lowers every cell of acc to min(acc, src).
func MinInto(acc, src *Gray) {
	checkSameSize("min", acc, src)
	for i, v := range src.Pix {
		if v < acc.Pix[i] {
			acc.Pix[i] = v
		}
	}
}

// MaxFilter writes the size×size-window maximum of src into dst, with the
// window clamped at the edges. tmp is caller-provided scratch so repeated
// calls allocate nothing; all three buffers must share src's dimensions.
// size must be odd and positive.
func MaxFilter(dst, tmp, src *Gray, size int) {
	checkSameSize("maxfilter", dst, src)
	checkSameSize("maxfilter", tmp, src)
	if size < 1 || size%2 == 0 {
		panic(fmt.Sprintf("raster: maxfilter size %d, want odd positive", size))
	}
	r := size / 2
	w, h := src.W, src.H
	// Horizontal pass src -> tmp.
	for y := 0; y < h; y++ {
		row := src.Pix[y*w : (y+1)*w]
		out := tmp.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			lo, hi := x-r, x+r
			if lo < 0 {
				lo = 0
			}
			if hi > w-1 {
				hi = w - 1
			}
			m := row[lo]
			for i := lo + 1; i <= hi; i++ {
				if row[i] > m {
					m = row[i]
				}
			}
			out[x] = m
		}
	}
	// Vertical pass tmp -> dst.
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			lo, hi := y-r, y+r
			if lo < 0 {
				lo = 0
			}
			if hi > h-1 {
				hi = h - 1
			}
			m := tmp.Pix[lo*w+x]
			for i := lo + 1; i <= hi; i++ {
				if v := tmp.Pix[i*w+x]; v > m {
					m = v
				}
			}
			dst.Pix[y*w+x] = m
		}
	}
}

// Roll writes src cyclically shifted by (dx, dy) into dst. Cells pushed past
// an edge re-enter on the opposite side. dst and src must not alias.
func Roll(dst, src *Gray, dx, dy int) {
	checkSameSize("roll", dst, src)
	w, h := src.W, src.H
	if w == 0 || h == 0 {
		return
	}
	dx = ((dx % w) + w) % w
	dy = ((dy % h) + h) % h
	for y := 0; y < h; y++ {
		sy := y - dy
		if sy < 0 {
			sy += h
		}
		srow := src.Pix[sy*w : (sy+1)*w]
		drow := dst.Pix[y*w : (y+1)*w]
		copy(drow[dx:], srow[:w-dx])
		copy(drow[:dx], srow[w-dx:])
	}
}

// Paste copies all of src into dst with src's origin at (x, y), clipping at
// dst's edges.
func Paste(dst, src *Gray, x, y int) {
	for sy := 0; sy < src.H; sy++ {
		dy := y + sy
		if dy < 0 || dy >= dst.H {
			continue
		}
		sx0, dx0 := 0, x
		if dx0 < 0 {
			sx0 = -dx0
			dx0 = 0
		}
		n := src.W - sx0
		if dx0+n > dst.W {
			n = dst.W - dx0
		}
		if n <= 0 {
			continue
		}
		copy(dst.Pix[dy*dst.W+dx0:dy*dst.W+dx0+n], src.Pix[sy*src.W+sx0:sy*src.W+sx0+n])
	}
}

// Crop returns a copy of the w×h window of src at (x, y).
func Crop(src *Gray, x, y, w, h int) *Gray {
	checkRegion("crop", src, x, y, w, h)
	out := NewGray(w, h)
	for row := 0; row < h; row++ {
		copy(out.Pix[row*w:(row+1)*w], src.Pix[(y+row)*src.W+x:(y+row)*src.W+x+w])
	}
	return out
}
