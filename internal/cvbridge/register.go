//go:build withcv

package cvbridge

import (
	"panofuse/internal/backend"
	"panofuse/internal/config"
	"panofuse/internal/features"
	"panofuse/internal/geometry"
	"panofuse/internal/sink"
)

// Enabled reports whether OpenCV backends were compiled in.
const Enabled = true

// Register adds the OpenCV backends to r. SIFT and the OpenCV kernels become
// the preferred choices for "auto".
func Register(r *backend.Registry) {
	r.RegisterExtractor("sift", true, func(n int) features.Extractor { return &SIFT{MaxFeatures: n} })
	r.RegisterExtractor("orb", true, func(n int) features.Extractor { return &ORB{MaxFeatures: n} })
	r.PreferExtractor("sift")
	r.RegisterMatcher(FLANN{})
	r.RegisterMatcher(BF{})
	r.RegisterEstimator("opencv", func(cfg config.Registration) geometry.HomographyEstimator {
		return &RANSAC{MaxIterations: cfg.MaxIterations, Confidence: cfg.Confidence, MinInliers: cfg.MinInliers}
	})
	r.RegisterKernels(Kernels())
	r.RegisterOpener(VideoCaptureOpener{})
	r.RegisterDisplay(func(title string) (sink.Sink, error) { return NewWindow(title), nil })
}
