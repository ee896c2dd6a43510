package warp

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"

	"panofuse/internal/geometry"
	"panofuse/internal/imaging"
)

// Spherical projects a rotated pinhole frame onto a sphere of radius Focal.
type Spherical struct {
	Focal      float64
	Rotation   *mat.Dense
	Intrinsics geometry.Intrinsics
	MaxPixels  int
}

// NewSpherical builds a warper from Euler angles in degrees. The principal
// point is the centre of the frames it will warp.
func NewSpherical(focal, pitch, yaw, roll float64, w, h int) Spherical {
	return Spherical{
		Focal:      focal,
		Rotation:   geometry.EulerRotation(geometry.Degrees(pitch), geometry.Degrees(yaw), geometry.Degrees(roll)),
		Intrinsics: geometry.CentredIntrinsics(focal, w, h),
	}
}

type mat3 [9]float64

func flatten(m mat.Matrix) mat3 {
	var out mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = m.At(r, c)
		}
	}
	return out
}

func (m mat3) apply(x, y, z float64) (float64, float64, float64) {
	return m[0]*x + m[1]*y + m[2]*z,
		m[3]*x + m[4]*y + m[5]*z,
		m[6]*x + m[7]*y + m[8]*z
}

func (s Spherical) projectors() (rKinv, kRinv mat3, err error) {
	if s.Focal <= 0 {
		return rKinv, kRinv, fmt.Errorf("%w: focal length %v", ErrDegenerate, s.Focal)
	}
	k := s.Intrinsics.K()
	var kInv mat.Dense
	if err := kInv.Inverse(k); err != nil {
		return rKinv, kRinv, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	var a, b mat.Dense
	a.Mul(s.Rotation, &kInv)
	b.Mul(k, s.Rotation.T())
	return flatten(&a), flatten(&b), nil
}

// forward maps an image point onto the sphere.
func (s Spherical) forward(rKinv mat3, x, y float64) (u, v float64) {
	xr, yr, zr := rKinv.apply(x, y, 1)
	u = s.Focal * math.Atan2(xr, zr)
	w := yr / math.Sqrt(xr*xr+yr*yr+zr*zr)
	v = s.Focal * (math.Pi - math.Acos(w))
	return u, v
}

// backward maps a sphere point into the image. ok is false behind the camera.
func (s Spherical) backward(kRinv mat3, u, v float64) (x, y float64, ok bool) {
	u /= s.Focal
	v /= s.Focal
	sinv := math.Sin(math.Pi - v)
	xs := sinv * math.Sin(u)
	ys := math.Cos(math.Pi - v)
	zs := sinv * math.Cos(u)
	x, y, z := kRinv.apply(xs, ys, zs)
	if z <= 0 {
		return 0, 0, false
	}
	return x / z, y / z, true
}

// roi bounds the projection of the frame border.
func (s Spherical) roi(rKinv mat3, w, h int) image.Rectangle {
	minU, minV := math.Inf(1), math.Inf(1)
	maxU, maxV := math.Inf(-1), math.Inf(-1)
	visit := func(x, y float64) {
		u, v := s.forward(rKinv, x, y)
		minU, maxU = math.Min(minU, u), math.Max(maxU, u)
		minV, maxV = math.Min(minV, v), math.Max(maxV, v)
	}
	for x := 0; x < w; x++ {
		visit(float64(x), 0)
		visit(float64(x), float64(h-1))
	}
	for y := 0; y < h; y++ {
		visit(0, float64(y))
		visit(float64(w-1), float64(y))
	}
	return image.Rect(int(math.Floor(minU)), int(math.Floor(minV)), int(math.Ceil(maxU))+1, int(math.Ceil(maxV))+1)
}

func (s Spherical) Warp(src *image.RGBA) (Result, error) {
	if s.Rotation == nil {
		return Result{}, fmt.Errorf("%w: missing rotation", ErrDegenerate)
	}
	rKinv, kRinv, err := s.projectors()
	if err != nil {
		return Result{}, err
	}
	sb := src.Bounds()
	roi := s.roi(rKinv, sb.Dx(), sb.Dy())
	if err := checkSize(roi, s.MaxPixels); err != nil {
		return Result{}, err
	}

	out := image.NewRGBA(image.Rect(0, 0, roi.Dx(), roi.Dy()))
	for y := 0; y < roi.Dy(); y++ {
		for x := 0; x < roi.Dx(); x++ {
			sx, sy, ok := s.backward(kRinv, float64(roi.Min.X+x), float64(roi.Min.Y+y))
			if !ok {
				continue
			}
			rgb, inside := imaging.SampleCubic(src, sx, sy)
			if !inside {
				continue
			}
			off := out.PixOffset(x, y)
			out.Pix[off], out.Pix[off+1], out.Pix[off+2], out.Pix[off+3] = rgb[0], rgb[1], rgb[2], 255
		}
	}
	return Result{Image: out, Offset: roi.Min}, nil
}
