package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FitDLT solves for the homography mapping src onto dst with the normalized
// direct linear transform. With more than four pairs the result is the
// algebraic least-squares fit.
func FitDLT(src, dst []Point) (Homography, error) {
	if len(src) != len(dst) {
		return Homography{}, fmt.Errorf("point count mismatch: %d src, %d dst", len(src), len(dst))
	}
	if len(src) < 4 {
		return Homography{}, ErrTooFewPoints
	}

	ts, ok := normalizer(src)
	if !ok {
		return Homography{}, ErrDegenerate
	}
	td, ok := normalizer(dst)
	if !ok {
		return Homography{}, ErrDegenerate
	}

	n := len(src)
	a := mat.NewDense(2*n, 9, nil)
	for i := range src {
		s, _ := ts.Apply(src[i])
		d, _ := td.Apply(dst[i])
		a.SetRow(2*i, []float64{-s.X, -s.Y, -1, 0, 0, 0, d.X * s.X, d.X * s.Y, d.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -s.X, -s.Y, -1, d.Y * s.X, d.Y * s.Y, d.Y})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return Homography{}, fmt.Errorf("%w: svd did not converge", ErrDegenerate)
	}
	var v mat.Dense
	svd.VTo(&v)
	sol := mat.Col(nil, 8, &v)

	var hn Homography
	copy(hn[:], sol)

	tdInv, err := td.Inverse()
	if err != nil {
		return Homography{}, err
	}
	h := tdInv.Mul(hn).Mul(ts)
	if math.Abs(h[8]) < 1e-12 {
		return Homography{}, ErrDegenerate
	}
	return h.Normalize(), nil
}

// normalizer returns the similarity moving the centroid to the origin with
// mean distance sqrt(2).
func normalizer(pts []Point) (Homography, bool) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pts))
	cy /= float64(len(pts))

	var mean float64
	for _, p := range pts {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= float64(len(pts))
	if mean < 1e-9 {
		return Homography{}, false
	}
	s := math.Sqrt2 / mean
	return Homography{s, 0, -s * cx, 0, s, -s * cy, 0, 0, 1}, true
}
