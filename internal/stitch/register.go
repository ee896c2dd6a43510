package stitch

import (
	"errors"
	"fmt"
	"image"

	"panofuse/internal/features"
	"panofuse/internal/geometry"
	"panofuse/internal/imaging"
)

// Registration bundles the collaborators that align one frame to another.
type Registration struct {
	Extractor       features.Extractor
	Matcher         features.Matcher
	Estimator       geometry.HomographyEstimator
	Filter          features.FilterOptions
	InlierThreshold float64
	Kernels         Kernels
}

// Alignment is the outcome of registering a query frame onto a train frame.
type Alignment struct {
	H       geometry.Homography
	Matches int
	Inliers int
}

func (r Registration) validate() error {
	switch {
	case r.Extractor == nil:
		return errors.New("stitch: no feature extractor")
	case r.Matcher == nil:
		return errors.New("stitch: no matcher")
	case r.Estimator == nil:
		return errors.New("stitch: no homography estimator")
	}
	return nil
}

func (r Registration) describe(img *image.RGBA) (features.Features, error) {
	f, err := r.Extractor.DetectAndCompute(imaging.Gray(img))
	if err != nil {
		return features.Features{}, fmt.Errorf("detect: %w", err)
	}
	return f, nil
}

// align maps query coordinates into train coordinates. The estimator is not
// called when the ratio test leaves too few pairs.
func (r Registration) align(query, train features.Features) (Alignment, error) {
	corr, err := features.Correspond(r.Matcher, query, train, r.Filter)
	if err != nil {
		return Alignment{Matches: corr.Len()}, err
	}
	thr := r.InlierThreshold
	if thr <= 0 {
		thr = geometry.DefaultInlierThreshold
	}
	h, mask, err := r.Estimator.Fit(corr.Src, corr.Dst, thr)
	return Alignment{H: h, Matches: corr.Len(), Inliers: countTrue(mask)}, err
}

func countTrue(mask []bool) int {
	n := 0
	for _, v := range mask {
		if v {
			n++
		}
	}
	return n
}
