package imaging

import (
	"image"
	"image/color"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Red is the overlay colour for motion boxes and timestamps.
var Red = color.RGBA{R: 255, A: 255}

// TimestampLayout renders e.g. "Monday 02 January 2006 03:04:05PM".
const TimestampLayout = "Monday 02 January 2006 03:04:05PM"

// DrawRect outlines r with the given line thickness, clipped to img.
func DrawRect(img *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	r = r.Canon()
	fill := func(band image.Rectangle) {
		band = band.Intersect(img.Bounds())
		for y := band.Min.Y; y < band.Max.Y; y++ {
			for x := band.Min.X; x < band.Max.X; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	}
	t := thickness
	fill(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t))
	fill(image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y))
	fill(image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y))
	fill(image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y))
}

// DrawLabel writes text with its baseline at pt.
func DrawLabel(img *image.RGBA, text string, pt image.Point, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(pt.X, pt.Y),
	}
	d.DrawString(text)
}

// DrawTimestamp writes ts in the bottom-left corner.
func DrawTimestamp(img *image.RGBA, ts time.Time) {
	b := img.Bounds()
	DrawLabel(img, ts.Format(TimestampLayout), image.Pt(b.Min.X+10, b.Max.Y-10), Red)
}
