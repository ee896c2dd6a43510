package features

import (
	"fmt"
	"math"
	"sort"
)

// BruteForce is an exhaustive L2 matcher.
type BruteForce struct{}

func (BruteForce) Name() string { return "bruteforce" }

func (BruteForce) KnnMatch(query, train []Descriptor, k int) ([][]Neighbor, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	out := make([][]Neighbor, len(query))
	for qi, q := range query {
		nn := make([]Neighbor, 0, k+1)
		for ti, t := range train {
			if len(t) != len(q) {
				return nil, fmt.Errorf("%w: query %d has %d, train %d has %d", ErrDescriptorLength, qi, len(q), ti, len(t))
			}
			d := l2(q, t)
			if len(nn) == k && d >= nn[k-1].Distance {
				continue
			}
			pos := sort.Search(len(nn), func(i int) bool { return nn[i].Distance > d })
			nn = append(nn, Neighbor{})
			copy(nn[pos+1:], nn[pos:])
			nn[pos] = Neighbor{TrainIdx: ti, Distance: d}
			if len(nn) > k {
				nn = nn[:k]
			}
		}
		out[qi] = nn
	}
	return out, nil
}

func l2(a, b Descriptor) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return math.Sqrt(s)
}
