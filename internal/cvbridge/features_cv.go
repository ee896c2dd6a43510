//go:build withcv

package cvbridge

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"panofuse/internal/features"
)

// SIFT wraps cv::SIFT.
type SIFT struct {
	MaxFeatures int
}

func (s *SIFT) Name() string      { return "sift" }
func (s *SIFT) IsAvailable() bool { return true }

func (s *SIFT) DetectAndCompute(img *image.Gray) (features.Features, error) {
	sift := gocv.NewSIFT()
	defer sift.Close()
	return detect(img, s.MaxFeatures, sift.DetectAndCompute)
}

// ORB wraps cv::ORB. Binary descriptors are widened to float32 so every
// matcher compares them by L2 distance.
type ORB struct {
	MaxFeatures int
}

func (o *ORB) Name() string      { return "orb" }
func (o *ORB) IsAvailable() bool { return true }

func (o *ORB) DetectAndCompute(img *image.Gray) (features.Features, error) {
	var orb gocv.ORB
	if o.MaxFeatures > 0 {
		orb = gocv.NewORBWithParams(o.MaxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
	} else {
		orb = gocv.NewORB()
	}
	defer orb.Close()
	return detect(img, 0, orb.DetectAndCompute)
}

type detectFunc func(src, mask gocv.Mat) ([]gocv.KeyPoint, gocv.Mat)

func detect(img *image.Gray, limit int, fn detectFunc) (features.Features, error) {
	if img == nil || img.Rect.Empty() {
		return features.Features{}, features.ErrEmptyImage
	}
	src, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return features.Features{}, fmt.Errorf("convert frame: %w", err)
	}
	defer src.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	kps, desc := fn(src, mask)
	defer desc.Close()

	n := len(kps)
	if desc.Empty() {
		n = 0
	} else if desc.Rows() < n {
		n = desc.Rows()
	}
	if limit > 0 && n > limit {
		n = limit
	}
	out := features.Features{
		Keypoints:   make([]features.Keypoint, 0, n),
		Descriptors: make([]features.Descriptor, 0, n),
	}
	off := img.Rect.Min
	for i := 0; i < n; i++ {
		kp := kps[i]
		out.Keypoints = append(out.Keypoints, features.Keypoint{
			X:        kp.X + float64(off.X),
			Y:        kp.Y + float64(off.Y),
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
		})
		out.Descriptors = append(out.Descriptors, rowDescriptor(desc, i))
	}
	return out, nil
}

func rowDescriptor(m gocv.Mat, row int) features.Descriptor {
	d := make(features.Descriptor, m.Cols())
	switch m.Type() {
	case gocv.MatTypeCV32F:
		for c := range d {
			d[c] = m.GetFloatAt(row, c)
		}
	default:
		for c := range d {
			d[c] = float32(m.GetUCharAt(row, c))
		}
	}
	return d
}
