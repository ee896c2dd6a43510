// Package compositor merges warped frames into panorama canvases.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"time"

	"panofuse/internal/imaging"
	"panofuse/internal/warp"
)

var (
	ErrEmptyFootprint = errors.New("warped frame has an empty footprint")
	ErrCanvasTooLarge = errors.New("canvas would exceed its pixel budget")
)

// DefaultMaxCanvasPixels bounds canvas growth.
const DefaultMaxCanvasPixels = 256 << 20

// Options tunes fusion.
type Options struct {
	SeamWidth int
	MaxPixels int
}

// Canvas is a growing panorama. Coordinates are those of the reference frame:
// the reference occupies (0,0)-(w,h) and Origin is the reference coordinate
// of the buffer's top-left pixel. Alpha marks covered pixels.
type Canvas struct {
	img      *image.RGBA
	origin   image.Point
	opts     Options
	reallocs int
}

// FuseStats describes one fusion.
type FuseStats struct {
	Blend     time.Duration
	Grown     bool
	Footprint image.Rectangle
	Bounds    image.Rectangle
}

// New seeds a canvas with the reference frame. Reference pixels with zero
// alpha, such as the border of a spherical projection, stay uncovered.
func New(reference *image.RGBA, opts Options) *Canvas {
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxCanvasPixels
	}
	img := imaging.Clone(imaging.ToRGBA(reference))
	return &Canvas{img: img, opts: opts}
}

// Bounds is the covered extent in reference coordinates.
func (c *Canvas) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.img.Rect.Dx(), c.img.Rect.Dy()).Add(c.origin)
}

// Origin is the reference coordinate of the top-left canvas pixel.
func (c *Canvas) Origin() image.Point { return c.origin }

// Image exposes the live buffer. Callers must not retain it across fusions.
func (c *Canvas) Image() *image.RGBA { return c.img }

// Snapshot copies the buffer for use outside the driver.
func (c *Canvas) Snapshot() *image.RGBA { return imaging.Clone(c.img) }

// Reallocations counts how many times the buffer grew.
func (c *Canvas) Reallocations() int { return c.reallocs }

// Fuse merges a warped frame, growing the buffer to the union of the current
// bounds and the frame footprint when needed.
func (c *Canvas) Fuse(frame warp.Result) (FuseStats, error) {
	start := time.Now()
	if frame.Image == nil || frame.Bounds().Empty() {
		return FuseStats{}, ErrEmptyFootprint
	}
	footprint := frame.Bounds()

	stats := FuseStats{Footprint: footprint}
	union := c.Bounds().Union(footprint)
	if union != c.Bounds() {
		if err := c.grow(union); err != nil {
			return FuseStats{}, err
		}
		stats.Grown = true
	}

	blendInto(c.img, c.origin, frame, c.opts.SeamWidth)
	stats.Bounds = c.Bounds()
	stats.Blend = time.Since(start)
	return stats, nil
}

func (c *Canvas) grow(union image.Rectangle) error {
	if union.Dx()*union.Dy() > c.opts.MaxPixels || union.Dx() > 1<<16 || union.Dy() > 1<<16 {
		return fmt.Errorf("%w: %dx%d", ErrCanvasTooLarge, union.Dx(), union.Dy())
	}
	next := image.NewRGBA(image.Rect(0, 0, union.Dx(), union.Dy()))
	shift := c.origin.Sub(union.Min)
	for y := 0; y < c.img.Rect.Dy(); y++ {
		src := c.img.Pix[y*c.img.Stride : y*c.img.Stride+4*c.img.Rect.Dx()]
		copy(next.Pix[next.PixOffset(shift.X, shift.Y+y):], src)
	}
	c.img = next
	c.origin = union.Min
	c.reallocs++
	return nil
}
