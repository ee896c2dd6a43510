package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Degrees converts an angle to radians.
func Degrees(deg float64) float64 {
	return deg * math.Pi / 180
}

// EulerRotation builds R = Rz(roll)·Ry(yaw)·Rx(pitch). Angles are in radians.
func EulerRotation(pitch, yaw, roll float64) *mat.Dense {
	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(pitch), -math.Sin(pitch),
		0, math.Sin(pitch), math.Cos(pitch),
	})
	ry := mat.NewDense(3, 3, []float64{
		math.Cos(yaw), 0, math.Sin(yaw),
		0, 1, 0,
		-math.Sin(yaw), 0, math.Cos(yaw),
	})
	rz := mat.NewDense(3, 3, []float64{
		math.Cos(roll), -math.Sin(roll), 0,
		math.Sin(roll), math.Cos(roll), 0,
		0, 0, 1,
	})
	var zy, r mat.Dense
	zy.Mul(rz, ry)
	r.Mul(&zy, rx)
	return &r
}

// Intrinsics is a pinhole camera with square pixels and no skew.
type Intrinsics struct {
	Focal float64
	Cx    float64
	Cy    float64
}

// CentredIntrinsics places the principal point at the centre of a w x h frame.
func CentredIntrinsics(focal float64, w, h int) Intrinsics {
	return Intrinsics{Focal: focal, Cx: float64(w) / 2, Cy: float64(h) / 2}
}

// K returns the calibration matrix.
func (in Intrinsics) K() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		in.Focal, 0, in.Cx,
		0, in.Focal, in.Cy,
		0, 0, 1,
	})
}
