package imaging

import (
	"image"
	"math"
)

// cubicA matches the bicubic coefficient OpenCV uses for INTER_CUBIC.
const cubicA = -0.75

func cubicWeights(t float64) [4]float64 {
	var w [4]float64
	w[0] = ((cubicA*(t+1)-5*cubicA)*(t+1)+8*cubicA)*(t+1) - 4*cubicA
	w[1] = ((cubicA+2)*t-(cubicA+3))*t*t + 1
	w[2] = ((cubicA+2)*(1-t)-(cubicA+3))*(1-t)*(1-t) + 1
	w[3] = 1 - w[0] - w[1] - w[2]
	return w
}

// SampleCubic interpolates img at (x, y) in pixel-centre coordinates relative
// to img.Rect.Min. Taps outside the image read as zero. inside reports whether
// (x, y) lies within the image extent.
func SampleCubic(img *image.RGBA, x, y float64) (rgb [3]uint8, inside bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if x < -0.5 || y < -0.5 || x > float64(w)-0.5 || y > float64(h)-0.5 || math.IsNaN(x) || math.IsNaN(y) {
		return rgb, false
	}
	x0, y0 := math.Floor(x), math.Floor(y)
	wx, wy := cubicWeights(x-x0), cubicWeights(y-y0)
	ix, iy := int(x0), int(y0)

	var acc [3]float64
	for j := 0; j < 4; j++ {
		sy := iy - 1 + j
		if sy < 0 || sy >= h || wy[j] == 0 {
			continue
		}
		for i := 0; i < 4; i++ {
			sx := ix - 1 + i
			if sx < 0 || sx >= w || wx[i] == 0 {
				continue
			}
			k := wx[i] * wy[j]
			off := img.PixOffset(b.Min.X+sx, b.Min.Y+sy)
			acc[0] += k * float64(img.Pix[off])
			acc[1] += k * float64(img.Pix[off+1])
			acc[2] += k * float64(img.Pix[off+2])
		}
	}
	return [3]uint8{clamp8(acc[0]), clamp8(acc[1]), clamp8(acc[2])}, true
}

// Covered reports whether the pixel nearest (x, y) has non-zero alpha.
func Covered(img *image.RGBA, x, y float64) bool {
	b := img.Bounds()
	ix, iy := int(math.Floor(x+0.5)), int(math.Floor(y+0.5))
	ix = min(max(ix, 0), b.Dx()-1)
	iy = min(max(iy, 0), b.Dy()-1)
	return img.Pix[img.PixOffset(b.Min.X+ix, b.Min.Y+iy)+3] != 0
}
