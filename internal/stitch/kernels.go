package stitch

import (
	"image"

	"panofuse/internal/geometry"
	"panofuse/internal/imaging"
	"panofuse/internal/motion"
	"panofuse/internal/warp"
)

// Kernels are the pixel stages a run can delegate to an accelerated backend.
// Nil fields fall back to the pure-Go implementations.
type Kernels struct {
	Name    string
	Planar  warp.PlanarFactory
	Blur    imaging.BlurFunc
	Tracker motion.Factory
}

// NativeKernels returns the pure-Go stages.
func NativeKernels() Kernels {
	return Kernels{Name: "native", Planar: warp.NewPlanar, Blur: imaging.GaussianBlur, Tracker: motion.NewDetector}
}

func (k Kernels) planar(h geometry.Homography, maxPixels int) warp.Warper {
	if k.Planar == nil {
		return warp.NewPlanar(h, maxPixels)
	}
	return k.Planar(h, maxPixels)
}

func (k Kernels) blur(g *image.Gray, ksize int) *image.Gray {
	if k.Blur == nil {
		return imaging.GaussianBlur(g, ksize)
	}
	return k.Blur(g, ksize)
}

func (k Kernels) tracker(opts motion.Options) motion.Detector {
	if k.Tracker == nil {
		return motion.New(opts)
	}
	return k.Tracker(opts)
}
