package stitch

import (
	"context"
	"image"
	"math/rand/v2"
	"sync"
	"time"

	"panofuse/internal/capture"
	"panofuse/internal/features"
	"panofuse/internal/geometry"
	"panofuse/internal/imaging"
	"panofuse/internal/sink"
)

// noiseScene is an opaque random texture, unique enough for patch matching.
func noiseScene(w, h int, seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		v := uint8(rng.IntN(256))
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, uint8(rng.IntN(256)), v/2, 255
	}
	return img
}

func crop(img *image.RGBA, r image.Rectangle) *image.RGBA {
	return imaging.ToRGBA(img.SubImage(r))
}

// patchExtractor places keypoints on a fixed grid and describes each by its
// raw 7x7 neighbourhood.
type patchExtractor struct {
	step int
}

func (p patchExtractor) Name() string      { return "patch" }
func (p patchExtractor) IsAvailable() bool { return true }

func (p patchExtractor) DetectAndCompute(g *image.Gray) (features.Features, error) {
	const r = 3
	b := g.Bounds()
	var f features.Features
	for y := b.Min.Y + 5; y+r < b.Max.Y; y += p.step {
		for x := b.Min.X + 5; x+r < b.Max.X; x += p.step {
			d := make(features.Descriptor, 0, (2*r+1)*(2*r+1))
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					d = append(d, float32(g.GrayAt(x+dx, y+dy).Y))
				}
			}
			f.Keypoints = append(f.Keypoints, features.Keypoint{X: float64(x), Y: float64(y), Size: 7})
			f.Descriptors = append(f.Descriptors, d)
		}
	}
	return f, nil
}

// countingEstimator records how often estimation ran.
type countingEstimator struct {
	inner geometry.HomographyEstimator
	calls int
}

func (c *countingEstimator) Name() string { return "counting" }

func (c *countingEstimator) Fit(src, dst []geometry.Point, thr float64) (geometry.Homography, []bool, error) {
	c.calls++
	return c.inner.Fit(src, dst, thr)
}

// sliceSource replays frames from memory.
type sliceSource struct {
	frames []*image.RGBA
	next   int
	closed bool
}

func (s *sliceSource) Read(ctx context.Context) (imaging.Frame, error) {
	if err := ctx.Err(); err != nil {
		return imaging.Frame{}, err
	}
	if s.next >= len(s.frames) {
		return imaging.Frame{}, capture.ErrCaptureExhausted
	}
	f := imaging.Frame{Index: s.next, Timestamp: time.Unix(int64(s.next), 0), Image: s.frames[s.next]}
	s.next++
	return f, nil
}

func (s *sliceSource) Info() capture.Info {
	return capture.Info{Name: "memory", Length: len(s.frames)}
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

// recordingSink keeps copies of emitted images.
type recordingSink struct {
	mu     sync.Mutex
	images []*image.RGBA
	metas  []sink.Meta
	quitAt int
}

func (r *recordingSink) Emit(ctx context.Context, img image.Image, meta sink.Meta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, imaging.Clone(imaging.ToRGBA(img)))
	r.metas = append(r.metas, meta)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) QuitRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quitAt > 0 && len(r.images) >= r.quitAt
}

func testRegistration() (Registration, *countingEstimator) {
	est := &countingEstimator{inner: geometry.NewRANSAC(7)}
	return Registration{
		Extractor:       patchExtractor{step: 10},
		Matcher:         features.BruteForce{},
		Estimator:       est,
		Filter:          features.DefaultFilterOptions(),
		InlierThreshold: geometry.DefaultInlierThreshold,
	}, est
}
