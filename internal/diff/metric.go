package diff

import (
	"image/color"

	"imgdiff/internal/raster"
)

// Difference fills dst with the absolute luminance difference of the
// dst-sized window of a at (ax, ay) and the dst-sized window of b at
// (bx, by). A window that does not fit its buffer is a caller bug in
// offset construction and panics.
func Difference(dst, a, b *raster.Gray, ax, ay, bx, by int) {
	raster.AbsDiffRegions(dst, a, b, ax, ay, bx, by, dst.W, dst.H)
}

// Badness reduces a difference map to an ordering key: the sum of all cell
// magnitudes. Zero means the compared windows were identical; the maximum
// for a w×h map is 255*w*h. Only relative comparisons are meaningful.
func Badness(m *raster.Gray) int64 {
	var sum int64
	for _, v := range m.Pix {
		sum += int64(v)
	}
	return sum
}

// BuildMask remaps a difference map in place into an opacity mask:
// v -> floor + v*(255-floor)/255, truncating. Every cell ends up in
// [floor, 255], so fully similar pixels keep a visible tint while fully
// different pixels are opaque regardless of floor.
func BuildMask(m *raster.Gray, floor uint8) {
	span := uint32(255 - floor)
	for i, v := range m.Pix {
		m.Pix[i] = floor + uint8(uint32(v)*span/255)
	}
}

// luminanceOf collapses a fill color to the 8-bit luminance used for
// canvas padding.
func luminanceOf(c color.Color) uint8 {
	r, g, b, _ := c.RGBA()
	return uint8((299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000)
}
