package diff

import (
	"image"
	"image/color"
	"time"

	"imgdiff/internal/raster"
)

// DefaultOpacityFloor keeps fully matching regions faintly tinted so the
// compared area stays visible.
const DefaultOpacityFloor = 64

// Options control a highlight run.
type Options struct {
	// OpacityFloor is the minimum mask opacity; 0 maps differences
	// straight through.
	OpacityFloor uint8
	// Timeout bounds the whole sweep; 0 disables cancellation.
	Timeout time.Duration
	// ReportDelay suppresses progress output for quick runs.
	ReportDelay time.Duration
	// Status receives throttled progress; nil discards it.
	Status StatusSink
}

// Masks is the outcome of a highlight run: one opacity mask per input
// image, in that image's own coordinate space. Offsets and Badness describe
// the winning alignment and are only meaningful in fast mode.
type Masks struct {
	A, B    *raster.Gray
	OffsetA image.Point
	OffsetB image.Point
	Badness int64
}

// axisSpan decides the search geometry for one axis: which image takes the
// moving offset (the larger one; on equal dimensions image B nominally
// moves through its single zero step) and how many offsets the sweep
// visits. Steps is always at least 1, so degenerate images still enumerate
// a 1×1 grid.
func axisSpan(da, db int) (aMoves bool, steps int) {
	d := da - db
	if d < 0 {
		d = -d
	}
	return da > db, d + 1
}

// gridSize returns the number of candidate offsets for two luminance
// buffers.
func gridSize(a, b *raster.Gray) int {
	_, xs := axisSpan(a.W, b.W)
	_, ys := axisSpan(a.H, b.H)
	return xs * ys
}

type fastResult struct {
	diff           *raster.Gray
	ax, ay, bx, by int
	badness        int64
}

// fastSearch enumerates every offset keeping the smaller image fully inside
// the larger on both axes, x outer and y inner, and keeps the first offset
// with minimal badness. Returns false if the budget ran out.
func fastSearch(la, lb *raster.Gray, prog *Progress) (fastResult, bool) {
	w, h := min(la.W, lb.W), min(la.H, lb.H)
	aMovesX, xSteps := axisSpan(la.W, lb.W)
	aMovesY, ySteps := axisSpan(la.H, lb.H)

	cur := raster.NewGray(w, h)
	best := raster.NewGray(w, h)
	res := fastResult{badness: int64(255)*int64(w)*int64(h) + 1}

	for x := 0; x < xSteps; x++ {
		ax, bx := 0, x
		if aMovesX {
			ax, bx = x, 0
		}
		for y := 0; y < ySteps; y++ {
			if !prog.Advance() {
				return fastResult{}, false
			}
			ay, by := 0, y
			if aMovesY {
				ay, by = y, 0
			}
			Difference(cur, la, lb, ax, ay, bx, by)
			if v := Badness(cur); v < res.badness {
				res.badness = v
				res.ax, res.ay, res.bx, res.by = ax, ay, bx, by
				best, cur = cur, best
			}
		}
	}
	res.diff = best
	return res, true
}

// FastHighlight aligns b against a at the single best offset and builds one
// opacity mask per image. Pixels outside the aligned overlap are fully
// opaque: there is nothing to compare them against, so they always count as
// differing. The second return is false when the time budget ran out, in
// which case the caller should proceed without highlighting.
func FastHighlight(a, b image.Image, opts Options) (*Masks, bool) {
	la, lb := raster.Luminance(a), raster.Luminance(b)
	prog := NewProgress(gridSize(la, lb), opts.Timeout, opts.ReportDelay, opts.Status)

	res, ok := fastSearch(la, lb, prog)
	if !ok {
		return nil, false
	}

	smoothed := raster.NewGray(res.diff.W, res.diff.H)
	tmp := raster.NewGray(res.diff.W, res.diff.H)
	raster.MaxFilter(smoothed, tmp, res.diff, 9)
	BuildMask(smoothed, opts.OpacityFloor)

	maskA := raster.NewGrayFilled(la.W, la.H, 0xff)
	maskB := raster.NewGrayFilled(lb.W, lb.H, 0xff)
	raster.Paste(maskA, smoothed, res.ax, res.ay)
	raster.Paste(maskB, smoothed, res.bx, res.by)

	return &Masks{
		A:       maskA,
		B:       maskB,
		OffsetA: image.Pt(res.ax, res.ay),
		OffsetB: image.Pt(res.bx, res.by),
		Badness: res.badness,
	}, true
}

// thoroughSweep accumulates the cell-wise minimum smoothed difference over
// every offset. Both canvases are already padded to the same size; the
// canvas whose image does not take the crop offset in fast mode is the one
// that rolls. Returns false if the budget ran out.
func thoroughSweep(ca, cb *raster.Gray, la, lb *raster.Gray, prog *Progress) (*raster.Gray, bool) {
	aMovesX, xSteps := axisSpan(la.W, lb.W)
	aMovesY, ySteps := axisSpan(la.H, lb.H)

	w, h := ca.W, ca.H
	sa, sb := ca.Clone(), cb.Clone()
	spare := raster.NewGray(w, h)
	diffBuf := raster.NewGray(w, h)
	filt := raster.NewGray(w, h)
	tmp := raster.NewGray(w, h)
	acc := raster.NewGrayFilled(w, h, 255)

	rollY := func(n int) {
		if aMovesY {
			raster.Roll(spare, sb, 0, n)
			sb, spare = spare, sb
		} else {
			raster.Roll(spare, sa, 0, n)
			sa, spare = spare, sa
		}
	}
	rollX := func(n int) {
		if aMovesX {
			raster.Roll(spare, sb, n, 0)
			sb, spare = spare, sb
		} else {
			raster.Roll(spare, sa, n, 0)
			sa, spare = spare, sa
		}
	}

	for x := 0; x < xSteps; x++ {
		for y := 0; y < ySteps; y++ {
			if !prog.Advance() {
				return nil, false
			}
			raster.AbsDiff(diffBuf, sa, sb)
			raster.MaxFilter(filt, tmp, diffBuf, 7)
			raster.MinInto(acc, filt)
			rollY(1)
		}
		rollY(-ySteps)
		rollX(1)
	}
	return acc, true
}

// ThoroughHighlight sweeps the same offset grid as FastHighlight but keeps,
// per pixel, the smallest smoothed difference seen at any offset. A pixel
// ends up dark if it matches something in the other image at some shift,
// which tolerates partial row/column insertions. bg fills the canvas
// padding around the smaller image.
//
// Known limitation: a single shared accumulator tracks a canvas-global
// minimum, so overlapping sub-regions that match at different shifts can
// blur into each other near matched/unmatched boundaries.
//
// The second return is false when the time budget ran out; the caller
// should proceed without highlighting.
func ThoroughHighlight(a, b image.Image, bg color.Color, opts Options) (*Masks, bool) {
	la, lb := raster.Luminance(a), raster.Luminance(b)
	w, h := max(la.W, lb.W), max(la.H, lb.H)
	pad := luminanceOf(bg)

	ca := raster.NewGrayFilled(w, h, pad)
	cb := raster.NewGrayFilled(w, h, pad)
	raster.Paste(ca, la, 0, 0)
	raster.Paste(cb, lb, 0, 0)

	prog := NewProgress(gridSize(la, lb), opts.Timeout, opts.ReportDelay, opts.Status)
	acc, ok := thoroughSweep(ca, cb, la, lb, prog)
	if !ok {
		return nil, false
	}

	final := raster.NewGray(w, h)
	tmp := raster.NewGray(w, h)
	raster.MaxFilter(final, tmp, acc, 5)

	maskA := raster.Crop(final, 0, 0, la.W, la.H)
	maskB := raster.Crop(final, 0, 0, lb.W, lb.H)
	BuildMask(maskA, opts.OpacityFloor)
	BuildMask(maskB, opts.OpacityFloor)

	return &Masks{A: maskA, B: maskB}, true
}
