package stitch

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"time"

	"panofuse/internal/capture"
	"panofuse/internal/compositor"
	"panofuse/internal/geometry"
	"panofuse/internal/imaging"
	"panofuse/internal/logging"
	"panofuse/internal/motion"
	"panofuse/internal/sink"
	"panofuse/internal/warp"
)

// DefaultFrameWidth is the width both streams are resized to.
const DefaultFrameWidth = 400

// BoxThickness is the line width of the motion overlay.
const BoxThickness = 3

// DualOptions tunes a dual-stream run.
type DualOptions struct {
	FrameWidth    int
	SeamWidth     int
	MaxWarpPixels int

	// ReuseTransform registers once and keeps the homography until a warp
	// fails, then registers again.
	ReuseTransform bool

	// Motion enables the overlay tracker when non-nil. MotionBlur is the
	// Gaussian kernel applied to the gray composite before tracking.
	Motion     *motion.Options
	MotionBlur int
	Timestamp  bool
}

// Dual stitches two synchronized streams into a fixed-size composite per frame.
type Dual struct {
	RunID        string
	Left, Right  capture.Source
	Registration Registration
	Options      DualOptions
	Sink         sink.Sink

	// Persist receives the last composite once the run ends.
	Persist  sink.Sink
	Observer Observer
	Log      *slog.Logger
}

type dualState struct {
	tracker motion.Detector
	cached  *geometry.Homography
	total   int
	last    *image.RGBA
	lastIdx int
	blend   time.Duration
	summary Summary
}

// Run reads both streams in lockstep until either ends, composing and
// emitting one panorama per pair.
func (d *Dual) Run(ctx context.Context) (Summary, error) {
	if err := d.Registration.validate(); err != nil {
		return Summary{}, err
	}
	if d.Left == nil || d.Right == nil {
		return Summary{}, errors.New("stitch: dual run needs two sources")
	}
	defer d.Left.Close()
	defer d.Right.Close()

	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	out := d.Sink
	if out == nil {
		out = sink.Discard{}
	}
	width := d.Options.FrameWidth
	if width <= 0 {
		width = DefaultFrameWidth
	}

	start := time.Now()
	st := &dualState{summary: Summary{RunID: d.RunID}}
	if d.Options.Motion != nil {
		st.tracker = d.Registration.Kernels.tracker(*d.Options.Motion)
	}
	log.Info("starting cameras", "run_id", d.RunID, "left", d.Left.Info().Name, "right", d.Right.Info().Name, "fps", d.Left.Info().FPS)

	for {
		if ctx.Err() != nil {
			st.summary.Interrupted = true
			break
		}
		left, err := d.Left.Read(ctx)
		if err != nil {
			d.stop(ctx, log, st, err)
			break
		}
		right, err := d.Right.Read(ctx)
		if err != nil {
			d.stop(ctx, log, st, err)
			break
		}
		st.summary.Frames++
		st.summary.Sampled++

		ev, composite := d.step(st, imaging.ResizeToWidth(left.Image, width), imaging.ResizeToWidth(right.Image, width))
		ev.RunID, ev.Index, ev.Time = d.RunID, left.Index, time.Now()
		if ev.Outcome == OutcomeSkipped {
			st.summary.Skipped++
			logging.LogFrameSkipped(log, d.RunID, left.Index, ev.err)
		} else {
			st.total++
			if d.Options.Timestamp {
				ts := left.Timestamp
				if ts.IsZero() {
					ts = time.Now()
				}
				imaging.DrawTimestamp(composite, ts)
			}
			st.last, st.lastIdx = composite, left.Index
			meta := sink.Meta{RunID: d.RunID, FrameIndex: left.Index, Timestamp: left.Timestamp}
			if err := out.Emit(ctx, composite, meta); err != nil {
				log.Warn("sink emit failed", "run_id", d.RunID, "frame", left.Index, "error", err)
			}
		}
		if d.Observer != nil {
			d.Observer(ev)
		}
		if sink.QuitRequested(out) {
			st.summary.Interrupted = true
			break
		}
	}

	log.Info("cleaning up", "run_id", d.RunID, "total", st.total)
	if c, ok := st.tracker.(io.Closer); ok {
		c.Close()
	}
	st.summary.MeanBlend = meanDuration(st.blend, st.summary.Fused)
	if st.last != nil {
		st.summary.Canvas = st.last.Rect
	}

	var persistErr error
	if st.last != nil && d.Persist != nil {
		meta := sink.Meta{RunID: d.RunID, FrameIndex: st.lastIdx, Timestamp: time.Now(), Final: true}
		persistErr = d.Persist.Emit(context.WithoutCancel(ctx), st.last, meta)
		if f, ok := d.Persist.(*sink.File); ok && persistErr == nil {
			st.summary.Saved = f.Path
		}
	}
	st.summary.Elapsed = time.Since(start)
	return st.summary, persistErr
}

func (d *Dual) stop(ctx context.Context, log *slog.Logger, st *dualState, err error) {
	switch {
	case errors.Is(err, capture.ErrCaptureExhausted):
	case ctx.Err() != nil:
		st.summary.Interrupted = true
	default:
		log.Error("capture failed", "run_id", d.RunID, "error", err)
		st.summary.StopReason = err.Error()
	}
}

// step registers right onto left, composes and overlays motion.
func (d *Dual) step(st *dualState, left, right *image.RGBA) (FrameEvent, *image.RGBA) {
	var a Alignment
	res, err := d.warpRight(st, left, right, &a)
	if err != nil {
		return skippedAfter(err, a), nil
	}
	comp, err := compositor.Compose(left, res, right.Rect.Dx(), d.Options.SeamWidth)
	if err != nil {
		return skippedAfter(err, a), nil
	}
	st.summary.Fused++
	st.blend += comp.Blend

	ev := FrameEvent{
		Outcome: OutcomeComposed,
		Matches: a.Matches,
		Inliers: a.Inliers,
		Blend:   comp.Blend,
		Width:   comp.Image.Rect.Dx(),
		Height:  comp.Image.Rect.Dy(),
		Content: comp.Content.Dx(),
	}
	if st.tracker != nil {
		gray := d.Registration.Kernels.blur(imaging.Gray(comp.Image), d.Options.MotionBlur)
		if regions := st.tracker.Update(gray); len(regions) > 0 {
			imaging.DrawRect(comp.Image, motion.Union(regions), imaging.Red, BoxThickness)
			ev.Regions = len(regions)
		}
	}
	return ev, comp.Image
}

// warpRight maps right into left coordinates, reusing the cached homography
// when enabled. A cached transform that fails to warp is dropped and the
// pair is registered afresh.
func (d *Dual) warpRight(st *dualState, left, right *image.RGBA, a *Alignment) (warp.Result, error) {
	if d.Options.ReuseTransform && st.cached != nil {
		res, err := d.Registration.Kernels.planar(*st.cached, d.Options.MaxWarpPixels).Warp(right)
		if err == nil {
			a.H = *st.cached
			return res, nil
		}
		st.cached = nil
	}

	fl, err := d.Registration.describe(left)
	if err != nil {
		return warp.Result{}, err
	}
	fr, err := d.Registration.describe(right)
	if err != nil {
		return warp.Result{}, err
	}
	*a, err = d.Registration.align(fr, fl)
	if err != nil {
		return warp.Result{}, err
	}
	res, err := d.Registration.Kernels.planar(a.H, d.Options.MaxWarpPixels).Warp(right)
	if err != nil {
		return warp.Result{}, err
	}
	if d.Options.ReuseTransform {
		h := a.H
		st.cached = &h
	}
	return res, nil
}
