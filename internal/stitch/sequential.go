package stitch

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"panofuse/internal/capture"
	"panofuse/internal/compositor"
	"panofuse/internal/features"
	"panofuse/internal/imaging"
	"panofuse/internal/logging"
	"panofuse/internal/sink"
	"panofuse/internal/warp"
)

// SphericalOptions configures the pre-warp applied to every sampled frame.
// Angles are in degrees.
type SphericalOptions struct {
	Focal float64
	Pitch float64
	Yaw   float64
	Roll  float64
}

// SequentialOptions tunes a sequential run.
type SequentialOptions struct {
	Sampler       Sampler
	WidthCap      WidthCap
	Spherical     *SphericalOptions
	Compositor    compositor.Options
	MaxWarpPixels int
}

// Sequential fuses one source into a growing panorama registered against a
// single reference.
type Sequential struct {
	RunID        string
	Source       capture.Source
	Registration Registration
	Options      SequentialOptions

	// Reference is registered against every frame. When nil the first sampled
	// frame becomes the reference.
	Reference *image.RGBA

	// Sink receives the canvas after every fusion; Persist receives it once
	// at the end of the run.
	Sink    sink.Sink
	Persist sink.Sink

	Observer Observer
	Log      *slog.Logger
}

type sequentialState struct {
	canvas      *compositor.Canvas
	reference   *image.RGBA
	refFeatures features.Features
	haveRef     bool
	blendTotal  time.Duration
	summary     Summary
}

// Run processes frames until the source is exhausted, fails, or ctx is
// cancelled. The source is closed before returning. Per-frame failures are
// logged and skipped.
func (s *Sequential) Run(ctx context.Context) (Summary, error) {
	if err := s.Registration.validate(); err != nil {
		return Summary{}, err
	}
	if s.Source == nil {
		return Summary{}, errors.New("stitch: no capture source")
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	out := s.Sink
	if out == nil {
		out = sink.Discard{}
	}
	sampler := s.Options.Sampler
	if sampler == nil {
		sampler = EveryNth(1)
	}

	start := time.Now()
	st := &sequentialState{summary: Summary{RunID: s.RunID}}
	defer s.Source.Close()

	info := s.Source.Info()
	log.Info("beginning sequential matching",
		"run_id", s.RunID, "source", info.Name,
		"length", info.Length, "width", info.Width, "height", info.Height, "fps", info.FPS)

	if s.Reference != nil {
		ref := imaging.ToRGBA(s.Reference)
		f, err := s.Registration.describe(ref)
		if err != nil {
			return st.summary, err
		}
		st.reference, st.refFeatures, st.haveRef = ref, f, true
		log.Debug("reference features cached", "keypoints", f.Len())
	}

	for {
		if ctx.Err() != nil {
			st.summary.Interrupted = true
			break
		}
		frame, err := s.Source.Read(ctx)
		if errors.Is(err, capture.ErrCaptureExhausted) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				st.summary.Interrupted = true
			} else {
				log.Error("capture failed", "run_id", s.RunID, "error", err)
				st.summary.StopReason = err.Error()
			}
			break
		}
		st.summary.Frames++
		if !sampler.Keep(frame.Index) {
			continue
		}
		st.summary.Sampled++

		ev := s.step(st, frame)
		ev.RunID, ev.Index, ev.Time = s.RunID, frame.Index, time.Now()
		if st.canvas != nil {
			b := st.canvas.Bounds()
			ev.Width, ev.Height = b.Dx(), b.Dy()
		}
		if ev.Outcome == OutcomeSkipped {
			st.summary.Skipped++
			logging.LogFrameSkipped(log, s.RunID, frame.Index, ev.err)
			if !frameSkippable(ev.err) {
				log.Error("unexpected frame failure", "run_id", s.RunID, "frame", frame.Index, "error", ev.err)
			}
		} else if err := out.Emit(ctx, st.canvas.Image(), sink.Meta{RunID: s.RunID, FrameIndex: frame.Index, Timestamp: frame.Timestamp}); err != nil {
			log.Warn("sink emit failed", "run_id", s.RunID, "frame", frame.Index, "error", err)
		}
		if s.Observer != nil {
			s.Observer(ev)
		}
		if sink.QuitRequested(out) {
			log.Info("quit requested", "run_id", s.RunID)
			st.summary.Interrupted = true
			break
		}
	}

	log.Info("sequential matching completed", "run_id", s.RunID, "source", info.Name)
	st.summary.MeanBlend = meanDuration(st.blendTotal, st.summary.Fused)
	if st.canvas != nil {
		st.summary.Canvas = st.canvas.Bounds()
	}

	var persistErr error
	if st.canvas != nil && s.Persist != nil {
		meta := sink.Meta{RunID: s.RunID, FrameIndex: st.summary.Frames, Timestamp: time.Now(), Final: true}
		persistErr = s.Persist.Emit(context.WithoutCancel(ctx), st.canvas.Image(), meta)
		if persistErr == nil {
			if f, ok := s.Persist.(*sink.File); ok {
				st.summary.Saved = f.Path
			}
		}
	}
	st.summary.Elapsed = time.Since(start)
	return st.summary, persistErr
}

// step handles one sampled frame and reports what happened to it.
func (s *Sequential) step(st *sequentialState, frame imaging.Frame) FrameEvent {
	img := s.Options.WidthCap.Apply(frame.Image)

	if sp := s.Options.Spherical; sp != nil {
		w := warp.NewSpherical(sp.Focal, sp.Pitch, sp.Yaw, sp.Roll, img.Rect.Dx(), img.Rect.Dy())
		w.MaxPixels = s.Options.MaxWarpPixels
		res, err := w.Warp(img)
		if err != nil {
			return skipped(err)
		}
		img = res.Image
	}

	f, err := s.Registration.describe(img)
	if err != nil {
		return skipped(err)
	}

	if !st.haveRef {
		st.reference, st.refFeatures, st.haveRef = img, f, true
		st.canvas = compositor.New(img, s.Options.Compositor)
		return FrameEvent{Outcome: OutcomeReference, Matches: f.Len(), Inliers: f.Len()}
	}

	a, err := s.Registration.align(f, st.refFeatures)
	if err != nil {
		return skippedAfter(err, a)
	}
	res, err := s.Registration.Kernels.planar(a.H, s.Options.MaxWarpPixels).Warp(img)
	if err != nil {
		return skippedAfter(err, a)
	}

	if st.canvas == nil {
		st.canvas = compositor.New(st.reference, s.Options.Compositor)
	}
	stats, err := st.canvas.Fuse(res)
	if err != nil {
		return skippedAfter(err, a)
	}
	st.summary.Fused++
	st.blendTotal += stats.Blend
	return FrameEvent{Outcome: OutcomeFused, Matches: a.Matches, Inliers: a.Inliers, Blend: stats.Blend}
}

func skipped(err error) FrameEvent {
	return FrameEvent{Outcome: OutcomeSkipped, Reason: err.Error(), err: err}
}

func skippedAfter(err error, a Alignment) FrameEvent {
	ev := skipped(err)
	ev.Matches, ev.Inliers = a.Matches, a.Inliers
	return ev
}
