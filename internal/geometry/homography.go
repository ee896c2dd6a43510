package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Homography is a row-major 3x3 projective transform.
type Homography [9]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Translation returns a pure translation by (tx, ty).
func Translation(tx, ty float64) Homography {
	return Homography{1, 0, tx, 0, 1, ty, 0, 0, 1}
}

// FromDense copies a 3x3 gonum matrix.
func FromDense(m mat.Matrix) Homography {
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.At(r, c)
		}
	}
	return h
}

// Dense returns h as a gonum matrix.
func (h Homography) Dense() *mat.Dense {
	data := make([]float64, 9)
	copy(data, h[:])
	return mat.NewDense(3, 3, data)
}

// Apply maps p through h. ok is false when p maps to infinity.
func (h Homography) Apply(p Point) (q Point, ok bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return Point{}, false
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// Mul returns h·o, so applying the result equals applying o then h.
func (h Homography) Mul(o Homography) Homography {
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += h[r*3+k] * o[k*3+c]
			}
			out[r*3+c] = s
		}
	}
	return out
}

// Det returns the determinant.
func (h Homography) Det() float64 {
	return mat.Det(h.Dense())
}

// Normalize scales h so that h[8] == 1. Matrices with h[8] near zero are returned unchanged.
func (h Homography) Normalize() Homography {
	if math.Abs(h[8]) < 1e-12 {
		return h
	}
	s := 1 / h[8]
	for i := range h {
		h[i] *= s
	}
	return h
}

// Invertible reports whether h can be inverted and stays well conditioned.
func (h Homography) Invertible() bool {
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	n := h.Normalize()
	if math.Abs(n.Det()) < 1e-8 {
		return false
	}
	return mat.Cond(n.Dense(), 2) < 1e12
}

// Inverse returns h⁻¹ normalized to h[8] == 1.
func (h Homography) Inverse() (Homography, error) {
	if !h.Invertible() {
		return Homography{}, ErrSingular
	}
	var inv mat.Dense
	if err := inv.Inverse(h.Dense()); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return FromDense(&inv).Normalize(), nil
}

// MapCorners maps the corners of a w x h image. It fails when a corner maps
// to infinity or behind the projection centre.
func (h Homography) MapCorners(w, hgt int) ([4]Point, error) {
	var out [4]Point
	h = h.Normalize()
	for i, c := range Corners(w, hgt) {
		den := h[6]*c.X + h[7]*c.Y + h[8]
		if den <= 1e-9 {
			return out, fmt.Errorf("%w: corner %d maps behind the camera", ErrDegenerate, i)
		}
		p, _ := h.Apply(c)
		out[i] = p
	}
	return out, nil
}

// ReprojectionError is the forward transfer distance of one pair under h.
func (h Homography) ReprojectionError(src, dst Point) float64 {
	p, ok := h.Apply(src)
	if !ok {
		return math.Inf(1)
	}
	return p.Dist(dst)
}
