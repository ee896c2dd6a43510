// Package motion finds moving regions in a stream of composites by
// differencing against a running average.
package motion

import (
	"image"
	"math"
)

// Tracker defaults.
const (
	DefaultWarmupFrames     = 32
	DefaultAccumWeight      = 0.5
	DefaultDeltaThreshold   = 5
	DefaultMinArea          = 500
	DefaultDilateIterations = 2
	DefaultBlurKernel       = 21
)

// State is the tracker lifecycle.
type State int

const (
	WarmingUp State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "warming_up"
}

// Options configures a Tracker.
type Options struct {
	WarmupFrames     int
	AccumWeight      float64
	DeltaThreshold   int
	MinArea          int
	DilateIterations int
}

// DefaultOptions returns the stock detector settings.
func DefaultOptions() Options {
	return Options{
		WarmupFrames:     DefaultWarmupFrames,
		AccumWeight:      DefaultAccumWeight,
		DeltaThreshold:   DefaultDeltaThreshold,
		MinArea:          DefaultMinArea,
		DilateIterations: DefaultDilateIterations,
	}
}

// Detector reports moving regions in successive gray composites.
type Detector interface {
	Update(g *image.Gray) []image.Rectangle
}

// Factory builds a Detector.
type Factory func(opts Options) Detector

// NewDetector is the pure-Go Factory.
func NewDetector(opts Options) Detector { return New(opts) }

// Tracker holds the running background average. It is not safe for
// concurrent use.
type Tracker struct {
	opts   Options
	avg    []float64
	w, h   int
	frames int
}

// New returns a tracker in the WarmingUp state.
func New(opts Options) *Tracker {
	if opts.AccumWeight <= 0 || opts.AccumWeight > 1 {
		opts.AccumWeight = DefaultAccumWeight
	}
	if opts.WarmupFrames < 0 {
		opts.WarmupFrames = 0
	}
	return &Tracker{opts: opts}
}

// State reports WarmingUp until more than WarmupFrames frames were seen.
func (t *Tracker) State() State {
	if t.frames > t.opts.WarmupFrames {
		return Active
	}
	return WarmingUp
}

// Frames is the number of frames folded into the average.
func (t *Tracker) Frames() int { return t.frames }

// Update folds g into the background and returns the bounding boxes of the
// moving regions. Nothing is returned while warming up. A change of frame
// size restarts the model.
func (t *Tracker) Update(g *image.Gray) []image.Rectangle {
	b := g.Bounds()
	if t.avg == nil || b.Dx() != t.w || b.Dy() != t.h {
		t.reset(g)
		return nil
	}
	t.frames++

	a := t.opts.AccumWeight
	mask := make([]bool, t.w*t.h)
	for y := 0; y < t.h; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < t.w; x++ {
			i := y*t.w + x
			v := float64(row[x])
			t.avg[i] = (1-a)*t.avg[i] + a*v
			bg := math.Min(255, math.Round(t.avg[i]))
			mask[i] = math.Abs(v-bg) > float64(t.opts.DeltaThreshold)
		}
	}

	if t.State() == WarmingUp {
		return nil
	}
	for i := 0; i < t.opts.DilateIterations; i++ {
		mask = dilate(mask, t.w, t.h)
	}
	return regions(mask, t.w, t.h, t.opts.MinArea)
}

func (t *Tracker) reset(g *image.Gray) {
	b := g.Bounds()
	t.w, t.h = b.Dx(), b.Dy()
	t.avg = make([]float64, t.w*t.h)
	for y := 0; y < t.h; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < t.w; x++ {
			t.avg[y*t.w+x] = float64(row[x])
		}
	}
	t.frames = 1
}

// Union returns the smallest rectangle containing every region.
func Union(rs []image.Rectangle) image.Rectangle {
	var u image.Rectangle
	for _, r := range rs {
		u = u.Union(r)
	}
	return u
}
