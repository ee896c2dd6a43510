// Package stitch drives the capture, registration and fusion loop for
// sequential panoramas and dual-stream rigs.
package stitch

import (
	"errors"
	"image"
	"time"

	"panofuse/internal/compositor"
	"panofuse/internal/features"
	"panofuse/internal/geometry"
	"panofuse/internal/imaging"
	"panofuse/internal/warp"
)

// Sampler decides which captured frames are processed.
type Sampler interface {
	Keep(index int) bool
}

// EveryNth keeps frames whose index is a multiple of n. Values below 2 keep
// every frame.
type EveryNth int

func (n EveryNth) Keep(index int) bool {
	return n < 2 || index%int(n) == 0
}

// WidthCap shrinks frames wider than its value, keeping the aspect ratio.
// Zero disables it.
type WidthCap int

// Applies reports whether img would be resized.
func (c WidthCap) Applies(img image.Image) bool {
	return c > 0 && img.Bounds().Dx() > int(c)
}

func (c WidthCap) Apply(img *image.RGBA) *image.RGBA {
	if !c.Applies(img) {
		return img
	}
	return imaging.ResizeToWidth(img, int(c))
}

// Outcome classifies what happened to one frame.
type Outcome string

const (
	OutcomeReference Outcome = "reference"
	OutcomeFused     Outcome = "fused"
	OutcomeComposed  Outcome = "composed"
	OutcomeSkipped   Outcome = "skipped"
)

// FrameEvent reports one processed frame to observers.
type FrameEvent struct {
	RunID   string        `json:"run_id"`
	Index   int           `json:"index"`
	Outcome Outcome       `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
	Matches int           `json:"matches"`
	Inliers int           `json:"inliers"`
	Blend   time.Duration `json:"blend_ns"`
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	Content int           `json:"content_width,omitempty"`
	Regions int           `json:"regions"`
	Time    time.Time     `json:"time"`

	err error
}

// Observer receives frame events synchronously on the driver goroutine.
type Observer func(FrameEvent)

// Summary describes a finished run.
type Summary struct {
	RunID       string          `json:"run_id"`
	Frames      int             `json:"frames"`
	Sampled     int             `json:"sampled"`
	Fused       int             `json:"fused"`
	Skipped     int             `json:"skipped"`
	Canvas      image.Rectangle `json:"canvas"`
	MeanBlend   time.Duration   `json:"mean_blend_ns"`
	Saved       string          `json:"saved,omitempty"`
	Interrupted bool            `json:"interrupted"`
	StopReason  string          `json:"stop_reason,omitempty"`
	Elapsed     time.Duration   `json:"elapsed_ns"`
}

// Meta flattens the summary for job results.
func (s Summary) Meta() map[string]any {
	return map[string]any{
		"frames":        s.Frames,
		"sampled":       s.Sampled,
		"fused":         s.Fused,
		"skipped":       s.Skipped,
		"canvas_width":  s.Canvas.Dx(),
		"canvas_height": s.Canvas.Dy(),
		"mean_blend_ms": float64(s.MeanBlend.Microseconds()) / 1000,
		"saved":         s.Saved,
		"interrupted":   s.Interrupted,
		"stop_reason":   s.StopReason,
	}
}

// frameSkippable reports whether err only invalidates the current frame.
func frameSkippable(err error) bool {
	return errors.Is(err, features.ErrInsufficientCorrespondence) ||
		errors.Is(err, features.ErrEmptyImage) ||
		errors.Is(err, geometry.ErrAlignmentFailed) ||
		errors.Is(err, geometry.ErrTooFewPoints) ||
		errors.Is(err, warp.ErrDegenerate) ||
		errors.Is(err, compositor.ErrCanvasTooLarge) ||
		errors.Is(err, compositor.ErrEmptyFootprint)
}

func meanDuration(total time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
