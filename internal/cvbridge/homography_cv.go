//go:build withcv

package cvbridge

import (
	"fmt"

	"gocv.io/x/gocv"

	"panofuse/internal/geometry"
)

// RANSAC delegates estimation to cv::findHomography and applies the same
// acceptance policy as the pure-Go estimator.
type RANSAC struct {
	MaxIterations int
	Confidence    float64
	MinInliers    int
}

func (r *RANSAC) Name() string { return "opencv" }

func (r *RANSAC) Fit(src, dst []geometry.Point, threshold float64) (geometry.Homography, []bool, error) {
	if len(src) != len(dst) || len(src) < 4 {
		return geometry.Homography{}, nil, fmt.Errorf("%w: %d pairs", geometry.ErrTooFewPoints, len(src))
	}
	maxIter := r.MaxIterations
	if maxIter <= 0 {
		maxIter = geometry.DefaultMaxIterations
	}
	conf := r.Confidence
	if conf <= 0 {
		conf = geometry.DefaultConfidence
	}
	minInliers := r.MinInliers
	if minInliers <= 0 {
		minInliers = geometry.DefaultMinInliers
	}

	srcVec := gocv.NewPoint2fVectorFromPoints(point2f(src))
	defer srcVec.Close()
	dstVec := gocv.NewPoint2fVectorFromPoints(point2f(dst))
	defer dstVec.Close()
	srcMat := gocv.NewMatFromPoint2fVector(srcVec, true)
	defer srcMat.Close()
	dstMat := gocv.NewMatFromPoint2fVector(dstVec, true)
	defer dstMat.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	hm := gocv.FindHomography(srcMat, &dstMat, gocv.HomograpyMethodRANSAC, threshold, &mask, maxIter, conf)
	defer hm.Close()
	if hm.Empty() || hm.Rows() != 3 || hm.Cols() != 3 {
		return geometry.Homography{}, nil, geometry.ErrAlignmentFailed
	}

	var h geometry.Homography
	for i := 0; i < 9; i++ {
		h[i] = hm.GetDoubleAt(i/3, i%3)
	}
	inliers := make([]bool, len(src))
	if !mask.Empty() {
		for i := range inliers {
			inliers[i] = mask.GetUCharAt(i, 0) != 0
		}
	}
	if err := geometry.CheckModel(h, inliers, minInliers); err != nil {
		return geometry.Homography{}, inliers, err
	}
	return h.Normalize(), inliers, nil
}

func point2f(pts []geometry.Point) []gocv.Point2f {
	out := make([]gocv.Point2f, len(pts))
	for i, p := range pts {
		out[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return out
}
