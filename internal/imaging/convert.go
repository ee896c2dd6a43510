package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ToRGBA returns img as an *image.RGBA anchored at (0, 0). RGBA inputs already
// anchored at the origin are returned as is.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Clone copies an RGBA image.
func Clone(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Rect)
	if img.Stride == out.Stride {
		copy(out.Pix, img.Pix)
		return out
	}
	n := 4 * img.Rect.Dx()
	for y := 0; y < img.Rect.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+n], img.Pix[y*img.Stride:y*img.Stride+n])
	}
	return out
}

// Gray converts to single-channel luminance using the BT.601 weights.
func Gray(img *image.RGBA) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		src := img.Pix[off : off+4*b.Dx()]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			r, g, bl := uint32(src[4*x]), uint32(src[4*x+1]), uint32(src[4*x+2])
			dst[x] = uint8((299*r + 587*g + 114*bl + 500) / 1000)
		}
	}
	return out
}

// GrayToRGBA expands a single-channel image to opaque RGBA.
func GrayToRGBA(g *image.Gray) *image.RGBA {
	b := g.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := g.Pix[g.PixOffset(b.Min.X+x, b.Min.Y+y)]
			out.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return out
}

// Opaque forces every alpha value to 255.
func Opaque(img *image.RGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
}
