package imaging

import (
	"image"

	"golang.org/x/image/draw"
)

// ResizeToWidth scales img to width w keeping the aspect ratio.
func ResizeToWidth(img *image.RGBA, w int) *image.RGBA {
	b := img.Bounds()
	if w <= 0 || b.Dx() == 0 || b.Dx() == w {
		return img
	}
	h := max(1, int(float64(b.Dy())*float64(w)/float64(b.Dx())+0.5))
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}
