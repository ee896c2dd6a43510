// Package warp resamples frames into panorama coordinates.
package warp

import (
	"errors"
	"image"

	"panofuse/internal/geometry"
)

// DefaultMaxPixels bounds the output of a single warp.
const DefaultMaxPixels = 64 << 20

// ErrDegenerate marks a transform whose output cannot be rendered.
var ErrDegenerate = errors.New("degenerate warp")

// Result is a warped image placed at Offset in target coordinates. Alpha is
// 255 inside the warped footprint and 0 for border fill.
type Result struct {
	Image  *image.RGBA
	Offset image.Point
}

// Bounds is the warped image's rectangle in target coordinates.
func (r Result) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Image.Rect.Dx(), r.Image.Rect.Dy()).Add(r.Offset)
}

// Warper maps a frame into target coordinates.
type Warper interface {
	Warp(src *image.RGBA) (Result, error)
}

// PlanarFactory builds a perspective warper for h.
type PlanarFactory func(h geometry.Homography, maxPixels int) Warper

func checkSize(r image.Rectangle, maxPixels int) error {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if r.Empty() {
		return errors.Join(ErrDegenerate, errors.New("empty output"))
	}
	if r.Dx()*r.Dy() > maxPixels || r.Dx() > 1<<16 || r.Dy() > 1<<16 {
		return errors.Join(ErrDegenerate, errors.New("output exceeds pixel budget"))
	}
	return nil
}
