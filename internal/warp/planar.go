package warp

import (
	"fmt"
	"image"

	"panofuse/internal/geometry"
	"panofuse/internal/imaging"
)

// Planar applies a perspective transform with inverse-mapped bicubic sampling.
// Source pixels with zero alpha stay outside the output footprint.
type Planar struct {
	H         geometry.Homography
	MaxPixels int
}

// NewPlanar is the pure-Go PlanarFactory.
func NewPlanar(h geometry.Homography, maxPixels int) Warper {
	return Planar{H: h, MaxPixels: maxPixels}
}

// Footprint is the integer bounding box of a w x hgt frame mapped through h,
// checked against maxPixels.
func Footprint(h geometry.Homography, w, hgt, maxPixels int) (image.Rectangle, error) {
	corners, err := h.MapCorners(w, hgt)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	bbox := geometry.Bounds(corners[:])
	if err := checkSize(bbox, maxPixels); err != nil {
		return image.Rectangle{}, err
	}
	return bbox, nil
}

func (p Planar) Warp(src *image.RGBA) (Result, error) {
	sb := src.Bounds()
	bbox, err := Footprint(p.H, sb.Dx(), sb.Dy(), p.MaxPixels)
	if err != nil {
		return Result{}, err
	}
	inv, err := p.H.Inverse()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	out := image.NewRGBA(image.Rect(0, 0, bbox.Dx(), bbox.Dy()))
	for y := 0; y < bbox.Dy(); y++ {
		ty := float64(bbox.Min.Y + y)
		for x := 0; x < bbox.Dx(); x++ {
			s, ok := inv.Apply(geometry.Pt(float64(bbox.Min.X+x), ty))
			if !ok {
				continue
			}
			rgb, inside := imaging.SampleCubic(src, s.X, s.Y)
			if !inside || !imaging.Covered(src, s.X, s.Y) {
				continue
			}
			off := out.PixOffset(x, y)
			out.Pix[off], out.Pix[off+1], out.Pix[off+2], out.Pix[off+3] = rgb[0], rgb[1], rgb[2], 255
		}
	}
	return Result{Image: out, Offset: bbox.Min}, nil
}
