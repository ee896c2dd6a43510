package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"panofuse/internal/capture"
	"panofuse/internal/config"
	"panofuse/internal/features"
	"panofuse/internal/geometry"
	"panofuse/internal/imaging"
	"panofuse/internal/report"
	"panofuse/internal/sink"
	"panofuse/internal/stitch"
	"panofuse/internal/storage"
)

func TestRouterRegistrationHonoursJobOptions(t *testing.T) {
	be := &stubBackends{}
	r := newTestRouter(be)

	var opts map[string]any
	if err := json.Unmarshal([]byte(`{"detector":"orb","matcher":"flann","knn":3,"ratio":0.8,"min":12}`), &opts); err != nil {
		t.Fatal(err)
	}
	reg, err := r.registration(Job{ID: "seq-1", Options: opts})
	if err != nil {
		t.Fatalf("registration: %v", err)
	}
	if be.extractor != "orb" || be.matcher != "flann" {
		t.Fatalf("unexpected backends requested: %q %q", be.extractor, be.matcher)
	}
	if reg.Filter.K != 3 || reg.Filter.Ratio != 0.8 || reg.Filter.MinCount != 12 {
		t.Fatalf("unexpected filter %+v", reg.Filter)
	}
	if be.estimator.Estimator != "ransac" {
		t.Fatalf("expected config estimator, got %q", be.estimator.Estimator)
	}
	if be.kernels != "auto" || reg.Kernels.Name != "native" {
		t.Fatalf("expected config kernels, got %q -> %q", be.kernels, reg.Kernels.Name)
	}
}

func TestRouterRegistrationRejectsMissingKernels(t *testing.T) {
	be := &stubBackends{}
	r := newTestRouter(be)
	if _, err := r.registration(Job{ID: "seq-k", Options: map[string]any{"kernels": "opencv"}}); err == nil {
		t.Fatalf("expected error for unavailable kernels")
	}
	if be.kernels != "opencv" {
		t.Fatalf("job option should select kernels, got %q", be.kernels)
	}
}

func TestRouterRegistrationPropagatesUnsupported(t *testing.T) {
	be := &stubBackends{extractorErr: errors.New("unsupported environment: sift")}
	r := newTestRouter(be)
	res := r.Process(context.Background(), Job{ID: "seq-2", Type: JobSequential, InputPath: "in.mp4", Options: map[string]any{"detector": "sift"}})
	if res.Error == nil {
		t.Fatalf("expected error for unavailable extractor")
	}
	if be.opened != "" {
		t.Fatalf("source must not be opened when registration fails")
	}
}

func TestRouterSequentialEmptySource(t *testing.T) {
	be := &stubBackends{}
	r := newTestRouter(be)
	res := r.Process(context.Background(), Job{ID: "seq-3", Type: JobSequential, InputPath: "clip.mp4"})
	if res.Error != nil {
		t.Fatalf("unexpected error %v", res.Error)
	}
	if be.opened != "clip.mp4" {
		t.Fatalf("expected clip.mp4 to be opened, got %q", be.opened)
	}
	if res.Meta["frames"] != 0 || res.Meta["fused"] != 0 {
		t.Fatalf("unexpected meta %v", res.Meta)
	}
}

func TestRouterSequentialPersistsReferenceFrame(t *testing.T) {
	frame := imaging.ToRGBA(imagingTestPattern(64, 48))
	be := &stubBackends{frames: []*imaging.Frame{{Index: 0, Image: frame}}}
	r := newTestRouter(be)
	out := filepath.Join(t.TempDir(), "pano.png")

	res := r.Process(context.Background(), Job{
		ID:        "seq-4",
		Type:      JobSequential,
		InputPath: "frames",
		Output:    out,
		Options:   map[string]any{"save": true, "spherical": false, "stride": 1},
	})
	if res.Error != nil {
		t.Fatalf("unexpected error %v", res.Error)
	}
	if res.Meta["saved"] != out {
		t.Fatalf("expected saved path in meta, got %v", res.Meta["saved"])
	}
	img, err := imaging.Load(out)
	if err != nil {
		t.Fatalf("load saved canvas: %v", err)
	}
	if img.Rect.Dx() != 64 || img.Rect.Dy() != 48 {
		t.Fatalf("unexpected canvas size %v", img.Rect)
	}
}

func TestRouterWatchUsesIdleOption(t *testing.T) {
	be := &stubBackends{}
	r := newTestRouter(be)
	var gotDir string
	var gotIdle time.Duration
	r.openWatch = func(dir string, idle time.Duration) (capture.Source, error) {
		gotDir, gotIdle = dir, idle
		return &stubSource{}, nil
	}
	res := r.Process(context.Background(), Job{ID: "watch-1", Type: JobWatch, InputPath: "/incoming", Options: map[string]any{"idle": "2s"}})
	if res.Error != nil {
		t.Fatalf("unexpected error %v", res.Error)
	}
	if gotDir != "/incoming" || gotIdle != 2*time.Second {
		t.Fatalf("unexpected watch args %q %v", gotDir, gotIdle)
	}
}

func TestRouterDualRequiresRightStream(t *testing.T) {
	r := newTestRouter(&stubBackends{})
	res := r.Process(context.Background(), Job{ID: "dual-1", Type: JobDual, InputPath: "left.mp4"})
	if res.Error == nil {
		t.Fatalf("expected error without right stream")
	}
}

func TestRouterUnknownJobType(t *testing.T) {
	r := newTestRouter(&stubBackends{})
	res := r.Process(context.Background(), Job{ID: "x", Type: "mosaic"})
	if res.Error == nil {
		t.Fatalf("expected error for unknown job type")
	}
}

func TestRouterObserverRecordsFrames(t *testing.T) {
	store, err := storage.New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	r := newTestRouter(&stubBackends{})
	r.store = store
	var forwarded int
	r.onFrame = func(stitch.FrameEvent) { forwarded++ }

	var events []stitch.FrameEvent
	obs := r.observer(&events)
	obs(stitch.FrameEvent{RunID: "seq-5", Index: 4, Outcome: stitch.OutcomeFused, Matches: 50, Inliers: 40, Blend: 2 * time.Millisecond, Width: 900, Height: 405})
	obs(stitch.FrameEvent{RunID: "seq-5", Index: 8, Outcome: stitch.OutcomeSkipped, Reason: "alignment failed"})

	if forwarded != 2 || len(events) != 2 {
		t.Fatalf("expected 2 forwarded events, got %d/%d", forwarded, len(events))
	}
	frames, err := store.RunFrames("seq-5")
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 2 || frames[0].BlendMS != 2 || frames[1].Reason != "alignment failed" {
		t.Fatalf("unexpected frames %+v", frames)
	}
}

func TestRouterFinishRendersReport(t *testing.T) {
	r := newTestRouter(&stubBackends{})
	var called string
	r.render = func(dir, runID string, events []stitch.FrameEvent) (report.Files, error) {
		called = runID
		return report.Files{Registration: filepath.Join(dir, "r.png"), Blend: filepath.Join(dir, "b.png")}, nil
	}
	res := r.finish(Job{ID: "seq-6", Options: map[string]any{"report": "/tmp/reports"}}, stitch.Summary{}, []stitch.FrameEvent{{Index: 0}}, nil)
	if called != "seq-6" {
		t.Fatalf("report not rendered")
	}
	if res.Meta["report_registration"] != "/tmp/reports/r.png" {
		t.Fatalf("unexpected meta %v", res.Meta)
	}
}

func TestOptionHelpers(t *testing.T) {
	opts := map[string]any{"a": float64(4), "b": json.Number("7"), "c": 3, "d": "x", "e": true}
	if getIntOption(opts, "a", 0) != 4 || getIntOption(opts, "b", 0) != 7 || getIntOption(opts, "c", 0) != 3 {
		t.Fatalf("int option conversion failed")
	}
	if getIntOption(opts, "missing", 9) != 9 {
		t.Fatalf("expected default")
	}
	if getFloat64Option(opts, "c", 0) != 3 {
		t.Fatalf("float option conversion failed")
	}
	if getStringOption(opts, "d", "y") != "x" || getStringOption(opts, "missing", "y") != "y" {
		t.Fatalf("string option failed")
	}
	if !getBoolOption(opts, "e", false) || getBoolOption(opts, "missing", false) {
		t.Fatalf("bool option failed")
	}
}

// Stubs

func newTestRouter(be *stubBackends) *router {
	cfg := config.Default()
	return &router{
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:      cfg,
		backends: be,
		openWatch: func(string, time.Duration) (capture.Source, error) {
			return &stubSource{}, nil
		},
		render: report.Render,
		writer: sink.NativeWriter{Quality: 90},
	}
}

type stubBackends struct {
	extractor    string
	matcher      string
	estimator    config.Registration
	opened       string
	kernels      string
	extractorErr error
	frames       []*imaging.Frame
}

func (s *stubBackends) Extractor(name string, maxFeatures int) (features.Extractor, error) {
	s.extractor = name
	if s.extractorErr != nil {
		return nil, s.extractorErr
	}
	return &features.Harris{MaxFeatures: maxFeatures}, nil
}

func (s *stubBackends) Matcher(name string) (features.Matcher, error) {
	s.matcher = name
	return features.BruteForce{}, nil
}

func (s *stubBackends) Estimator(cfg config.Registration) (geometry.HomographyEstimator, error) {
	s.estimator = cfg
	return geometry.NewRANSAC(cfg.Seed), nil
}

func (s *stubBackends) Open(path string) (capture.Source, error) {
	s.opened = path
	return &stubSource{frames: s.frames}, nil
}

func (s *stubBackends) Display(string) (sink.Sink, error) {
	return nil, errors.New("no display")
}

func (s *stubBackends) Kernels(name string) (stitch.Kernels, error) {
	s.kernels = name
	if name == "opencv" {
		return stitch.Kernels{}, errors.New("unsupported environment: kernels \"opencv\"")
	}
	return stitch.NativeKernels(), nil
}

type stubSource struct {
	frames []*imaging.Frame
	next   int
}

func (s *stubSource) Read(ctx context.Context) (imaging.Frame, error) {
	if s.next >= len(s.frames) {
		return imaging.Frame{}, capture.ErrCaptureExhausted
	}
	f := *s.frames[s.next]
	s.next++
	return f, nil
}

func (s *stubSource) Info() capture.Info { return capture.Info{Name: "stub"} }
func (s *stubSource) Close() error       { return nil }
