package features

import "image"

// Keypoint is a detected interest point.
type Keypoint struct {
	X, Y     float64
	Size     float64
	Angle    float64
	Response float64
	Octave   int
}

// Descriptor is a fixed-length feature vector compared by L2 distance.
type Descriptor []float32

// Features pairs keypoints 1:1 with their descriptors.
type Features struct {
	Keypoints   []Keypoint
	Descriptors []Descriptor
}

func (f Features) Len() int { return len(f.Keypoints) }

// Neighbor is one k-NN result for a query descriptor.
type Neighbor struct {
	TrainIdx int
	Distance float64
}

// Extractor detects keypoints and computes their descriptors.
type Extractor interface {
	Name() string
	IsAvailable() bool
	DetectAndCompute(img *image.Gray) (Features, error)
}

// Matcher finds the k nearest train descriptors for every query descriptor.
// Each inner slice is sorted by ascending distance.
type Matcher interface {
	Name() string
	KnnMatch(query, train []Descriptor, k int) ([][]Neighbor, error)
}
