package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"panofuse/internal/capture"
	"panofuse/internal/compositor"
	"panofuse/internal/config"
	"panofuse/internal/features"
	"panofuse/internal/geometry"
	"panofuse/internal/imaging"
	"panofuse/internal/motion"
	"panofuse/internal/report"
	"panofuse/internal/sink"
	"panofuse/internal/sink/magick"
	"panofuse/internal/stitch"
	"panofuse/internal/storage"
)

// Backends resolves collaborators by name. *backend.Registry implements it.
type Backends interface {
	Extractor(name string, maxFeatures int) (features.Extractor, error)
	Matcher(name string) (features.Matcher, error)
	Estimator(cfg config.Registration) (geometry.HomographyEstimator, error)
	Open(path string) (capture.Source, error)
	Display(title string) (sink.Sink, error)
	Kernels(name string) (stitch.Kernels, error)
}

type watchOpener func(dir string, idle time.Duration) (capture.Source, error)

type reportFunc func(dir, runID string, events []stitch.FrameEvent) (report.Files, error)

// router implements Processor and routes jobs to their drivers.
type router struct {
	log       *slog.Logger
	store     *storage.Store
	cfg       *config.Config
	backends  Backends
	preview   sink.Sink
	onFrame   func(stitch.FrameEvent)
	openWatch watchOpener
	render    reportFunc
	writer    sink.Writer
}

func newRouter(logger *slog.Logger, store *storage.Store, cfg *config.Config, backends Backends, preview sink.Sink, onFrame func(stitch.FrameEvent)) Processor {
	var writer sink.Writer = sink.NativeWriter{Quality: cfg.Output.Quality}
	if cfg.Output.Writer == "imagick" {
		writer = magick.Writer{Quality: cfg.Output.Quality}
	}
	return &router{
		log:      logger,
		store:    store,
		cfg:      cfg,
		backends: backends,
		preview:  preview,
		onFrame:  onFrame,
		openWatch: func(dir string, idle time.Duration) (capture.Source, error) {
			return capture.NewWatch(dir, idle)
		},
		render: report.Render,
		writer: writer,
	}
}

func (r *router) Process(ctx context.Context, job Job) Result {
	switch job.Type {
	case JobSequential:
		return r.handleSequential(ctx, job, false)
	case JobWatch:
		return r.handleSequential(ctx, job, true)
	case JobDual:
		return r.handleDual(ctx, job)
	default:
		return Result{Job: job, Error: fmt.Errorf("unknown job type: %s", job.Type)}
	}
}

// registration resolves collaborators, letting job options override config.
func (r *router) registration(job Job) (stitch.Registration, error) {
	fc := r.cfg.Features
	extractor, err := r.backends.Extractor(getStringOption(job.Options, "detector", fc.Detector), fc.MaxFeatures)
	if err != nil {
		return stitch.Registration{}, err
	}
	matcher, err := r.backends.Matcher(getStringOption(job.Options, "matcher", fc.Matcher))
	if err != nil {
		return stitch.Registration{}, err
	}
	rc := r.cfg.Registration
	rc.Estimator = getStringOption(job.Options, "estimator", rc.Estimator)
	estimator, err := r.backends.Estimator(rc)
	if err != nil {
		return stitch.Registration{}, err
	}
	kernels, err := r.backends.Kernels(getStringOption(job.Options, "kernels", r.cfg.Processing.Kernels))
	if err != nil {
		return stitch.Registration{}, err
	}
	return stitch.Registration{
		Extractor: extractor,
		Matcher:   matcher,
		Estimator: estimator,
		Filter: features.FilterOptions{
			K:        getIntOption(job.Options, "knn", fc.KNN),
			Ratio:    getFloat64Option(job.Options, "ratio", fc.Ratio),
			MinCount: getIntOption(job.Options, "min", fc.MinCorrespondence),
		},
		InlierThreshold: rc.InlierThreshold,
		Kernels:         kernels,
	}, nil
}

// observer records frames, forwards them to subscribers and keeps them for
// the report.
func (r *router) observer(events *[]stitch.FrameEvent) stitch.Observer {
	return func(ev stitch.FrameEvent) {
		if r.store != nil {
			_ = r.store.RecordFrame(storage.FrameRecord{
				RunID:        ev.RunID,
				FrameIndex:   ev.Index,
				Outcome:      string(ev.Outcome),
				Reason:       ev.Reason,
				Matches:      ev.Matches,
				Inliers:      ev.Inliers,
				BlendMS:      float64(ev.Blend.Microseconds()) / 1000,
				CanvasWidth:  ev.Width,
				CanvasHeight: ev.Height,
				Regions:      ev.Regions,
			})
		}
		if r.onFrame != nil {
			r.onFrame(ev)
		}
		*events = append(*events, ev)
	}
}

// sinks assembles the per-frame outputs. Display failures only warn.
func (r *router) sinks(job Job, title string, extra ...sink.Sink) sink.Multi {
	out := sink.NewMulti(append([]sink.Sink{r.preview}, extra...)...)
	if getBoolOption(job.Options, "display", false) {
		win, err := r.backends.Display(title)
		if err != nil {
			r.log.Warn("display unavailable", "job", job.ID, "error", err)
		} else {
			out = append(out, win)
		}
	}
	return out
}

func (r *router) persist(job Job) sink.Sink {
	if !getBoolOption(job.Options, "save", false) || job.Output == "" {
		return nil
	}
	return &sink.File{Path: job.Output, Writer: r.writer}
}

func (r *router) handleSequential(ctx context.Context, job Job, watch bool) Result {
	reg, err := r.registration(job)
	if err != nil {
		return Result{Job: job, Error: err}
	}

	var src capture.Source
	if watch {
		idle := capture.DefaultIdleTimeout
		if d, err := time.ParseDuration(getStringOption(job.Options, "idle", r.cfg.Sequential.IdleTimeout)); err == nil && d > 0 {
			idle = d
		}
		src, err = r.openWatch(job.InputPath, idle)
	} else {
		src, err = r.backends.Open(job.InputPath)
	}
	if err != nil {
		return Result{Job: job, Error: err}
	}

	sc := r.cfg.Sequential
	opts := stitch.SequentialOptions{
		Sampler:       stitch.EveryNth(getIntOption(job.Options, "stride", sc.Stride)),
		WidthCap:      stitch.WidthCap(getIntOption(job.Options, "maxWidth", sc.MaxWidth)),
		Compositor:    compositorOptions(r.cfg),
		MaxWarpPixels: r.cfg.Compositor.MaxWarpPixels,
	}
	if getBoolOption(job.Options, "spherical", sc.Spherical.Enabled) {
		sp := sc.Spherical
		opts.Spherical = &stitch.SphericalOptions{Focal: sp.Focal, Pitch: sp.Pitch, Yaw: sp.Yaw, Roll: sp.Roll}
	}

	var events []stitch.FrameEvent
	drv := &stitch.Sequential{
		RunID:        job.ID,
		Source:       src,
		Registration: reg,
		Options:      opts,
		Sink:         r.sinks(job, "Result"),
		Persist:      r.persist(job),
		Observer:     r.observer(&events),
		Log:          r.log,
	}
	if ref := getStringOption(job.Options, "reference", sc.ReferencePath); ref != "" {
		img, err := imaging.Load(ref)
		if err != nil {
			src.Close()
			return Result{Job: job, Error: fmt.Errorf("load reference: %w", err)}
		}
		drv.Reference = img
	}
	defer drv.Sink.Close()

	summary, err := drv.Run(ctx)
	return r.finish(job, summary, events, err)
}

func (r *router) handleDual(ctx context.Context, job Job) Result {
	rightPath := getStringOption(job.Options, "right", "")
	if rightPath == "" {
		return Result{Job: job, Error: errors.New("dual job needs a right stream")}
	}
	reg, err := r.registration(job)
	if err != nil {
		return Result{Job: job, Error: err}
	}
	left, err := r.backends.Open(job.InputPath)
	if err != nil {
		return Result{Job: job, Error: err}
	}
	right, err := r.backends.Open(rightPath)
	if err != nil {
		left.Close()
		return Result{Job: job, Error: err}
	}

	dc := r.cfg.Dual
	var extra []sink.Sink
	if path := getStringOption(job.Options, "outputVideo", dc.OutputVideo); path != "" {
		if sink.FFmpegAvailable() {
			fps := dc.VideoFPS
			if fps <= 0 {
				fps = left.Info().FPS
			}
			extra = append(extra, &sink.Video{Path: path, FPS: fps})
		} else {
			r.log.Warn("ffmpeg not found, skipping video output", "job", job.ID, "path", path)
		}
	}

	opts := stitch.DualOptions{
		FrameWidth:     getIntOption(job.Options, "width", dc.FrameWidth),
		SeamWidth:      r.cfg.Compositor.SeamWidth,
		MaxWarpPixels:  r.cfg.Compositor.MaxWarpPixels,
		ReuseTransform: getBoolOption(job.Options, "reuseTransform", dc.ReuseTransform),
		Timestamp:      getBoolOption(job.Options, "timestamp", dc.Timestamp),
	}
	if mc := r.cfg.Motion; getBoolOption(job.Options, "motion", mc.Enabled) {
		opts.Motion = &motion.Options{
			WarmupFrames:     mc.WarmupFrames,
			AccumWeight:      mc.AccumWeight,
			DeltaThreshold:   mc.DeltaThreshold,
			MinArea:          mc.MinArea,
			DilateIterations: mc.DilateIterations,
		}
		opts.MotionBlur = mc.BlurKernel
	}

	var events []stitch.FrameEvent
	drv := &stitch.Dual{
		RunID:        job.ID,
		Left:         left,
		Right:        right,
		Registration: reg,
		Options:      opts,
		Sink:         r.sinks(job, "Result", extra...),
		Persist:      r.persist(job),
		Observer:     r.observer(&events),
		Log:          r.log,
	}
	summary, runErr := drv.Run(ctx)
	if err := drv.Sink.Close(); err != nil && runErr == nil {
		runErr = err
	}
	res := r.finish(job, summary, events, runErr)
	for _, s := range extra {
		if v, ok := s.(*sink.Video); ok {
			res.Meta["video"] = v.Path
			res.Meta["video_frames"] = v.Frames()
		}
	}
	return res
}

// finish builds the job result and renders the optional report.
func (r *router) finish(job Job, summary stitch.Summary, events []stitch.FrameEvent, err error) Result {
	meta := summary.Meta()
	if dir := getStringOption(job.Options, "report", r.cfg.Paths.ReportDir); dir != "" && len(events) > 0 {
		files, rerr := r.render(dir, job.ID, events)
		if rerr != nil {
			r.log.Warn("report failed", "job", job.ID, "error", rerr)
		} else {
			meta["report_registration"] = files.Registration
			meta["report_blend"] = files.Blend
		}
	}
	return Result{Job: job, Error: err, Meta: meta}
}

func compositorOptions(cfg *config.Config) compositor.Options {
	return compositor.Options{SeamWidth: cfg.Compositor.SeamWidth, MaxPixels: cfg.Compositor.MaxCanvasPixels}
}

// Helper functions to safely extract typed options from job.Options. Values
// decoded from JSON arrive as float64 or json.Number.
func getBoolOption(options map[string]any, key string, def bool) bool {
	if val, ok := options[key].(bool); ok {
		return val
	}
	return def
}

func getStringOption(options map[string]any, key string, def string) string {
	if val, ok := options[key].(string); ok && val != "" {
		return val
	}
	return def
}

func getIntOption(options map[string]any, key string, def int) int {
	switch val := options[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func getFloat64Option(options map[string]any, key string, def float64) float64 {
	switch val := options[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
	}
	return def
}
