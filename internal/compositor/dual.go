package compositor

import (
	"errors"
	"image"
	"time"

	"panofuse/internal/imaging"
	"panofuse/internal/warp"
)

// DualResult is one fixed-size dual-stream composite.
type DualResult struct {
	Image   *image.RGBA     // left.W + right.W by left.H
	Content image.Rectangle // extent actually covered by either frame
	Blend   time.Duration
}

// Compose places left at the origin and blends the warped right frame over
// it on a canvas sized to both frames side by side. Nothing is retained
// between calls.
func Compose(left *image.RGBA, right warp.Result, rightWidth, seam int) (DualResult, error) {
	start := time.Now()
	lb := left.Bounds()
	if lb.Empty() || right.Image == nil {
		return DualResult{}, errors.New("compose: empty input")
	}
	if rightWidth <= 0 {
		rightWidth = lb.Dx()
	}
	out := image.NewRGBA(image.Rect(0, 0, lb.Dx()+rightWidth, lb.Dy()))
	for y := 0; y < lb.Dy(); y++ {
		off := left.PixOffset(lb.Min.X, lb.Min.Y+y)
		copy(out.Pix[y*out.Stride:], left.Pix[off:off+4*lb.Dx()])
	}
	for y := 0; y < lb.Dy(); y++ {
		for x := 0; x < lb.Dx(); x++ {
			out.Pix[y*out.Stride+4*x+3] = 255
		}
	}

	content := image.Rect(0, 0, lb.Dx(), lb.Dy())
	touched := blendInto(out, image.Point{}, right, seam)
	content = content.Union(touched)

	imaging.Opaque(out)
	return DualResult{Image: out, Content: content, Blend: time.Since(start)}, nil
}
