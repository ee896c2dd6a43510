package geometry

import (
	"image"
	"math"
)

// Point is a sub-pixel image location.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// snapEps absorbs floating point noise when rounding bounds to pixels.
const snapEps = 1e-6

// Bounds returns the smallest integer rectangle holding every point as a pixel centre.
// The result is half-open, so a single point yields a 1x1 rectangle.
func Bounds(pts []Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return image.Rect(
		int(math.Floor(minX+snapEps)),
		int(math.Floor(minY+snapEps)),
		int(math.Ceil(maxX-snapEps))+1,
		int(math.Ceil(maxY-snapEps))+1,
	)
}

// Corners returns the pixel-centre corners of a w x h image in clockwise order.
func Corners(w, h int) [4]Point {
	return [4]Point{
		{0, 0},
		{float64(w - 1), 0},
		{float64(w - 1), float64(h - 1)},
		{0, float64(h - 1)},
	}
}

// collinear reports whether three points lie on one line within tol (twice the triangle area).
func collinear(a, b, c Point, tol float64) bool {
	area := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
	return math.Abs(area) <= tol
}
