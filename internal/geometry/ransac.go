package geometry

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
)

// RANSAC constants.
const (
	DefaultInlierThreshold = 5.0   // Maximum reprojection error in pixels for an inlier.
	DefaultMaxIterations   = 2000  // Upper bound on sampling rounds.
	DefaultConfidence      = 0.995 // Probability of drawing at least one outlier-free sample.
	DefaultMinInliers      = 8

	sampleSize = 4
)

// HomographyEstimator fits a homography from src to dst while tolerating
// outliers. The returned mask marks the pairs the model agrees with.
type HomographyEstimator interface {
	Name() string
	Fit(src, dst []Point, threshold float64) (Homography, []bool, error)
}

// RANSAC is a pure Go robust estimator built on FitDLT.
type RANSAC struct {
	MaxIterations int
	Confidence    float64
	MinInliers    int
	Seed          int64
}

// NewRANSAC returns an estimator with the default parameters.
func NewRANSAC(seed int64) *RANSAC {
	return &RANSAC{
		MaxIterations: DefaultMaxIterations,
		Confidence:    DefaultConfidence,
		MinInliers:    DefaultMinInliers,
		Seed:          seed,
	}
}

func (r *RANSAC) Name() string { return "ransac" }

// Fit runs RANSAC followed by a least-squares refinement over the best consensus set.
func (r *RANSAC) Fit(src, dst []Point, threshold float64) (Homography, []bool, error) {
	if len(src) != len(dst) {
		return Homography{}, nil, fmt.Errorf("point count mismatch: %d src, %d dst", len(src), len(dst))
	}
	if len(src) < sampleSize {
		return Homography{}, nil, fmt.Errorf("%w: %v", ErrAlignmentFailed, ErrTooFewPoints)
	}
	if threshold <= 0 {
		threshold = DefaultInlierThreshold
	}
	maxIter := r.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	conf := r.Confidence
	if conf <= 0 || conf >= 1 {
		conf = DefaultConfidence
	}

	rng := rand.New(rand.NewSource(r.Seed))
	n := len(src)

	var (
		best      Homography
		bestMask  []bool
		bestCount int
		bestErr   = math.Inf(1)
		sample    [sampleSize]int
		sSrc      = make([]Point, sampleSize)
		sDst      = make([]Point, sampleSize)
	)

	for iter, limit := 0, maxIter; iter < limit; iter++ {
		drawSample(rng, n, sample[:])
		for i, idx := range sample {
			sSrc[i], sDst[i] = src[idx], dst[idx]
		}
		if degenerateSample(sSrc) || degenerateSample(sDst) {
			continue
		}
		h, err := FitDLT(sSrc, sDst)
		if err != nil || !h.Invertible() {
			continue
		}
		mask, count, total := score(h, src, dst, threshold)
		if count > bestCount || (count == bestCount && total < bestErr) {
			best, bestMask, bestCount, bestErr = h, mask, count, total
			limit = min(limit, adaptiveIterations(conf, float64(count)/float64(n), maxIter))
		}
	}

	minInliers := max(r.MinInliers, sampleSize)
	if bestCount < minInliers {
		return Homography{}, nil, fmt.Errorf("%w: %d inliers of %d pairs (need %d)", ErrAlignmentFailed, bestCount, n, minInliers)
	}

	refined, mask, err := refine(best, bestMask, bestCount, src, dst, threshold)
	if err != nil {
		return Homography{}, nil, err
	}
	return refined, mask, CheckModel(refined, mask, minInliers)
}

// CheckModel applies the acceptance policy shared by every estimator.
func CheckModel(h Homography, mask []bool, minInliers int) error {
	if !h.Invertible() {
		return fmt.Errorf("%w: %v", ErrAlignmentFailed, ErrSingular)
	}
	count := 0
	for _, in := range mask {
		if in {
			count++
		}
	}
	if count < minInliers {
		return fmt.Errorf("%w: %d inliers (need %d)", ErrAlignmentFailed, count, minInliers)
	}
	return nil
}

// refine refits over the consensus set and keeps the refit only if it does not lose support.
func refine(h Homography, mask []bool, count int, src, dst []Point, threshold float64) (Homography, []bool, error) {
	inSrc := make([]Point, 0, count)
	inDst := make([]Point, 0, count)
	for i, in := range mask {
		if in {
			inSrc = append(inSrc, src[i])
			inDst = append(inDst, dst[i])
		}
	}
	refit, err := FitDLT(inSrc, inDst)
	if err != nil || !refit.Invertible() {
		return h, mask, nil
	}
	refMask, refCount, _ := score(refit, src, dst, threshold)
	if refCount < count {
		return h, mask, nil
	}
	return refit, refMask, nil
}

func score(h Homography, src, dst []Point, threshold float64) ([]bool, int, float64) {
	mask := make([]bool, len(src))
	count := 0
	total := 0.0
	for i := range src {
		e := h.ReprojectionError(src[i], dst[i])
		if e <= threshold {
			mask[i] = true
			count++
			total += e
		}
	}
	return mask, count, total
}

// adaptiveIterations is the number of rounds needed to reach conf given the inlier ratio.
func adaptiveIterations(conf, ratio float64, maxIter int) int {
	if ratio >= 1 {
		return 1
	}
	if ratio <= 0 {
		return maxIter
	}
	den := math.Log(1 - math.Pow(ratio, sampleSize))
	if den >= 0 {
		return maxIter
	}
	n := math.Ceil(math.Log(1-conf) / den)
	if n > float64(maxIter) {
		return maxIter
	}
	return max(int(n), 1)
}

func drawSample(rng *rand.Rand, n int, out []int) {
	for i := range out {
		for {
			idx := rng.Intn(n)
			if !slices.Contains(out[:i], idx) {
				out[i] = idx
				break
			}
		}
	}
}

func degenerateSample(pts []Point) bool {
	const tol = 1e-6
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				if collinear(pts[i], pts[j], pts[k], tol) {
					return true
				}
			}
		}
	}
	return false
}
