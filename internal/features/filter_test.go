package features

import (
	"errors"
	"testing"
)

func keypoints(n int) Features {
	f := Features{}
	for i := 0; i < n; i++ {
		f.Keypoints = append(f.Keypoints, Keypoint{X: float64(i), Y: float64(2 * i)})
		f.Descriptors = append(f.Descriptors, Descriptor{float32(i)})
	}
	return f
}

func TestFilterMatchesRatioIsStrict(t *testing.T) {
	query, train := keypoints(3), keypoints(3)
	knn := [][]Neighbor{
		{{TrainIdx: 0, Distance: 7}, {TrainIdx: 1, Distance: 10}},    // 7 == 0.7*10, rejected
		{{TrainIdx: 1, Distance: 6.99}, {TrainIdx: 2, Distance: 10}}, // accepted
		{{TrainIdx: 2, Distance: 1}},                                 // no second neighbour
	}
	c, err := FilterMatches(query, train, knn, FilterOptions{K: 2, Ratio: 0.7, MinCount: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 accepted pair, got %d", c.Len())
	}
	if c.QueryIdx[0] != 1 || c.TrainIdx[0] != 1 {
		t.Fatalf("wrong pair accepted: query %d train %d", c.QueryIdx[0], c.TrainIdx[0])
	}
	if c.Src[0].X != 1 || c.Dst[0].Y != 2 {
		t.Fatalf("unexpected locations %+v -> %+v", c.Src[0], c.Dst[0])
	}
}

func TestFilterMatchesBelowMinimum(t *testing.T) {
	query, train := keypoints(2), keypoints(2)
	knn := [][]Neighbor{
		{{TrainIdx: 0, Distance: 1}, {TrainIdx: 1, Distance: 10}},
		{{TrainIdx: 1, Distance: 1}, {TrainIdx: 0, Distance: 10}},
	}
	c, err := FilterMatches(query, train, knn, DefaultFilterOptions())
	if !errors.Is(err, ErrInsufficientCorrespondence) {
		t.Fatalf("expected ErrInsufficientCorrespondence, got %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("accepted pairs should still be reported, got %d", c.Len())
	}
}

type countingMatcher struct {
	calls int
}

func (m *countingMatcher) Name() string { return "counting" }

func (m *countingMatcher) KnnMatch(query, train []Descriptor, k int) ([][]Neighbor, error) {
	m.calls++
	return BruteForce{}.KnnMatch(query, train, k)
}

func TestCorrespondSkipsEmptyTrain(t *testing.T) {
	m := &countingMatcher{}
	_, err := Correspond(m, keypoints(5), keypoints(1), DefaultFilterOptions())
	if !errors.Is(err, ErrInsufficientCorrespondence) {
		t.Fatalf("expected ErrInsufficientCorrespondence, got %v", err)
	}
	if m.calls != 0 {
		t.Fatalf("matcher should not run with a single train descriptor")
	}
}

func TestBruteForceOrdersNeighbours(t *testing.T) {
	train := []Descriptor{{0, 0}, {3, 4}, {1, 0}, {10, 10}}
	knn, err := BruteForce{}.KnnMatch([]Descriptor{{0, 0}}, train, 3)
	if err != nil {
		t.Fatal(err)
	}
	got := knn[0]
	if len(got) != 3 {
		t.Fatalf("expected 3 neighbours, got %d", len(got))
	}
	wantIdx := []int{0, 2, 1}
	wantDist := []float64{0, 1, 5}
	for i := range got {
		if got[i].TrainIdx != wantIdx[i] || got[i].Distance != wantDist[i] {
			t.Fatalf("neighbour %d: got %+v", i, got[i])
		}
	}
}

func TestBruteForceRejectsMixedLengths(t *testing.T) {
	_, err := BruteForce{}.KnnMatch([]Descriptor{{0, 0}}, []Descriptor{{1}}, 2)
	if !errors.Is(err, ErrDescriptorLength) {
		t.Fatalf("expected ErrDescriptorLength, got %v", err)
	}
}
