package compositor

import (
	"image"
	"math"

	"panofuse/internal/warp"
)

// DefaultSeamWidth is the feather band in pixels.
const DefaultSeamWidth = 16

// distanceToEdge returns, for every pixel of img, the chamfer distance to the
// nearest pixel outside the alpha footprint. Pixels beyond the image border
// count as outside.
func distanceToEdge(img *image.RGBA) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	d := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)+3] == 0 {
				d[y*w+x] = 0
			} else {
				d[y*w+x] = math.Inf(1)
			}
		}
	}
	at := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return d[y*w+x]
	}
	// Two-pass 3x3 chamfer with unit and diagonal steps.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := d[y*w+x]
			if v == 0 {
				continue
			}
			v = math.Min(v, at(x-1, y)+1)
			v = math.Min(v, at(x, y-1)+1)
			v = math.Min(v, at(x-1, y-1)+math.Sqrt2)
			v = math.Min(v, at(x+1, y-1)+math.Sqrt2)
			d[y*w+x] = v
		}
	}
	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			v := d[y*w+x]
			if v == 0 {
				continue
			}
			v = math.Min(v, at(x+1, y)+1)
			v = math.Min(v, at(x, y+1)+1)
			v = math.Min(v, at(x+1, y+1)+math.Sqrt2)
			v = math.Min(v, at(x-1, y+1)+math.Sqrt2)
			d[y*w+x] = v
		}
	}
	return d
}

// blendInto writes the footprint of src into dst, where dstOrigin is the
// target coordinate of dst's top-left pixel. Where dst already has content
// the new pixel weight is min(1, d/seam) with d the distance to the footprint
// edge. It returns the touched rectangle in target coordinates.
func blendInto(dst *image.RGBA, dstOrigin image.Point, src warp.Result, seam int) image.Rectangle {
	target := dst.Bounds().Sub(dst.Rect.Min).Add(dstOrigin)
	clip := src.Bounds().Intersect(target)
	if clip.Empty() {
		return image.Rectangle{}
	}

	var dist []float64
	if seam > 0 {
		dist = distanceToEdge(src.Image)
	}
	sw := src.Image.Rect.Dx()
	touched := image.Rectangle{}

	for ty := clip.Min.Y; ty < clip.Max.Y; ty++ {
		for tx := clip.Min.X; tx < clip.Max.X; tx++ {
			sx, sy := tx-src.Offset.X, ty-src.Offset.Y
			so := src.Image.PixOffset(src.Image.Rect.Min.X+sx, src.Image.Rect.Min.Y+sy)
			if src.Image.Pix[so+3] == 0 {
				continue
			}
			do := dst.PixOffset(dst.Rect.Min.X+tx-dstOrigin.X, dst.Rect.Min.Y+ty-dstOrigin.Y)
			wgt := 1.0
			if seam > 0 && dst.Pix[do+3] != 0 {
				wgt = math.Min(1, dist[sy*sw+sx]/float64(seam))
			}
			if wgt >= 1 || dst.Pix[do+3] == 0 {
				copy(dst.Pix[do:do+3], src.Image.Pix[so:so+3])
			} else {
				for c := 0; c < 3; c++ {
					v := wgt*float64(src.Image.Pix[so+c]) + (1-wgt)*float64(dst.Pix[do+c])
					dst.Pix[do+c] = uint8(v + 0.5)
				}
			}
			dst.Pix[do+3] = 255
			touched = touched.Union(image.Rect(tx, ty, tx+1, ty+1))
		}
	}
	return touched
}
