package features

import (
	"fmt"

	"panofuse/internal/geometry"
)

const (
	DefaultK        = 2
	DefaultRatio    = 0.7
	DefaultMinCount = 10
)

// FilterOptions configures the ratio test.
type FilterOptions struct {
	K        int
	Ratio    float64
	MinCount int
}

// DefaultFilterOptions returns k=2, ratio 0.7, minimum 10.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{K: DefaultK, Ratio: DefaultRatio, MinCount: DefaultMinCount}
}

// Correspondences holds matched locations, Src[i] pairing with Dst[i].
type Correspondences struct {
	Src      []geometry.Point
	Dst      []geometry.Point
	QueryIdx []int
	TrainIdx []int
}

func (c Correspondences) Len() int { return len(c.Src) }

// FilterMatches applies the ratio test to k-NN results. A query is kept when
// its best distance is strictly below ratio times the second best. Every query
// contributes at most one pair. When fewer than opts.MinCount pairs survive the
// accepted pairs are still returned together with ErrInsufficientCorrespondence.
func FilterMatches(query, train Features, knn [][]Neighbor, opts FilterOptions) (Correspondences, error) {
	if len(knn) != query.Len() {
		return Correspondences{}, fmt.Errorf("knn result has %d rows for %d query keypoints", len(knn), query.Len())
	}
	var c Correspondences
	for qi, nn := range knn {
		if len(nn) < 2 {
			continue
		}
		best, second := nn[0], nn[1]
		if !(best.Distance < opts.Ratio*second.Distance) {
			continue
		}
		if best.TrainIdx < 0 || best.TrainIdx >= train.Len() {
			return Correspondences{}, fmt.Errorf("train index %d out of range", best.TrainIdx)
		}
		q := query.Keypoints[qi]
		t := train.Keypoints[best.TrainIdx]
		c.Src = append(c.Src, geometry.Pt(q.X, q.Y))
		c.Dst = append(c.Dst, geometry.Pt(t.X, t.Y))
		c.QueryIdx = append(c.QueryIdx, qi)
		c.TrainIdx = append(c.TrainIdx, best.TrainIdx)
	}
	if c.Len() < opts.MinCount {
		return c, fmt.Errorf("%w: %d accepted, need %d", ErrInsufficientCorrespondence, c.Len(), opts.MinCount)
	}
	return c, nil
}

// Correspond matches query against train and filters the result.
func Correspond(m Matcher, query, train Features, opts FilterOptions) (Correspondences, error) {
	k := max(opts.K, 2)
	if query.Len() == 0 || train.Len() < 2 {
		return Correspondences{}, fmt.Errorf("%w: %d query and %d train keypoints", ErrInsufficientCorrespondence, query.Len(), train.Len())
	}
	knn, err := m.KnnMatch(query.Descriptors, train.Descriptors, k)
	if err != nil {
		return Correspondences{}, fmt.Errorf("knn match: %w", err)
	}
	return FilterMatches(query, train, knn, opts)
}
