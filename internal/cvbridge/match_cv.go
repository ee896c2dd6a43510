//go:build withcv

package cvbridge

import (
	"gocv.io/x/gocv"

	"panofuse/internal/features"
)

// FLANN wraps cv::FlannBasedMatcher.
type FLANN struct{}

func (FLANN) Name() string { return "flann" }

func (FLANN) KnnMatch(query, train []features.Descriptor, k int) ([][]features.Neighbor, error) {
	m := gocv.NewFlannBasedMatcher()
	defer m.Close()
	return knn(query, train, k, m.KnnMatch)
}

// BF wraps cv::BFMatcher with the L2 norm.
type BF struct{}

func (BF) Name() string { return "bf" }

func (BF) KnnMatch(query, train []features.Descriptor, k int) ([][]features.Neighbor, error) {
	m := gocv.NewBFMatcherWithParams(gocv.NormL2, false)
	defer m.Close()
	return knn(query, train, k, m.KnnMatch)
}

type knnFunc func(query, train gocv.Mat, k int) [][]gocv.DMatch

func knn(query, train []features.Descriptor, k int, fn knnFunc) ([][]features.Neighbor, error) {
	if len(query) == 0 || len(train) == 0 {
		return make([][]features.Neighbor, len(query)), nil
	}
	dim := len(query[0])
	q, err := descriptorMat(query, dim)
	if err != nil {
		return nil, err
	}
	defer q.Close()
	t, err := descriptorMat(train, dim)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	raw := fn(q, t, k)
	out := make([][]features.Neighbor, len(query))
	for _, row := range raw {
		for _, dm := range row {
			if dm.QueryIdx < 0 || dm.QueryIdx >= len(out) {
				continue
			}
			out[dm.QueryIdx] = append(out[dm.QueryIdx], features.Neighbor{TrainIdx: dm.TrainIdx, Distance: dm.Distance})
		}
	}
	return out, nil
}

func descriptorMat(ds []features.Descriptor, dim int) (gocv.Mat, error) {
	m := gocv.NewMatWithSize(len(ds), dim, gocv.MatTypeCV32F)
	for r, d := range ds {
		if len(d) != dim {
			m.Close()
			return gocv.Mat{}, features.ErrDescriptorLength
		}
		for c, v := range d {
			m.SetFloatAt(r, c, v)
		}
	}
	return m, nil
}
