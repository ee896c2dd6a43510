package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"panofuse/internal/config"
	"panofuse/internal/pipeline"
	"panofuse/internal/storage"
)

func TestCommandsSubmitJobs(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	temp := t.TempDir()

	cases := []struct {
		name       string
		args       []string
		expectType pipeline.JobType
		input      string
	}{
		{"video", []string{"video", filepath.Join(temp, "walk.mp4")}, pipeline.JobSequential, filepath.Join(temp, "walk.mp4")},
		{"watch", []string{"watch", temp, "--idle", "5s"}, pipeline.JobWatch, temp},
		{"dual", []string{"dual", "left.mp4", "right.mp4", "--reuse-transform"}, pipeline.JobDual, "left.mp4"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fakePipe.reset()
			captureOutput(t, func() {
				if err := execute(root, tc.args...); err != nil {
					t.Fatalf("run failed: %v", err)
				}
			})
			if len(fakePipe.jobs) != 1 {
				t.Fatalf("expected one job, got %d", len(fakePipe.jobs))
			}
			job := fakePipe.jobs[0]
			if job.Type != tc.expectType {
				t.Fatalf("expected type %s, got %s", tc.expectType, job.Type)
			}
			if job.InputPath != tc.input {
				t.Fatalf("expected input %s, got %s", tc.input, job.InputPath)
			}
			if job.ID == "" {
				t.Fatalf("job id not assigned")
			}
		})
	}

	dual := fakePipe.jobs[0]
	if dual.Options["right"] != "right.mp4" || dual.Options["reuseTransform"] != true {
		t.Fatalf("unexpected dual options %+v", dual.Options)
	}
}

func TestVideoFlagsOverrideConfig(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	args := []string{"video", "clip.mp4", "-k", "3", "-l", "0.6", "-m", "12", "--stride", "2",
		"--no-spherical", "--save", "--save_path", "pano.png", "--detector", "orb"}
	captureOutput(t, func() {
		if err := execute(root, args...); err != nil {
			t.Fatalf("video failed: %v", err)
		}
	})

	job := fakePipe.jobs[0]
	if job.Output != "pano.png" {
		t.Fatalf("expected save path pano.png, got %q", job.Output)
	}
	want := map[string]any{
		"knn":       3,
		"ratio":     0.6,
		"min":       12,
		"stride":    2,
		"spherical": false,
		"save":      true,
		"detector":  "orb",
		"maxWidth":  root.cfg.Sequential.MaxWidth,
	}
	for k, v := range want {
		if job.Options[k] != v {
			t.Errorf("option %s = %v, want %v", k, job.Options[k], v)
		}
	}
}

func TestCommandDefaultsFollowConfig(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	root.cfg.Features.KNN = 4
	root.cfg.Sequential.Spherical.Enabled = false
	root.cfg.Dual.FrameWidth = 320

	captureOutput(t, func() {
		if err := execute(root, "video", "clip.mp4"); err != nil {
			t.Fatal(err)
		}
		if err := execute(root, "dual", "a", "b"); err != nil {
			t.Fatal(err)
		}
	})
	if got := fakePipe.jobs[0].Options["knn"]; got != 4 {
		t.Fatalf("knn = %v", got)
	}
	if got := fakePipe.jobs[0].Options["spherical"]; got != false {
		t.Fatalf("spherical = %v", got)
	}
	if got := fakePipe.jobs[1].Options["width"]; got != 320 {
		t.Fatalf("width = %v", got)
	}
}

func TestCommandsValidateArguments(t *testing.T) {
	root, _ := newTestRoot(t)
	if err := execute(root, "video"); err == nil {
		t.Fatalf("expected error for missing video path")
	}
	if err := execute(root, "dual", "only-one"); err == nil {
		t.Fatalf("expected error for a single dual stream")
	}
	if err := execute(root, "--debug", "--quiet", "version"); err == nil {
		t.Fatalf("expected error for --debug with --quiet")
	}
}

func TestServeCommandUsesInjectedFunction(t *testing.T) {
	root, _ := newTestRoot(t)
	var called bool
	root.serveFn = func(ctx context.Context, cfg config.Server, store *storage.Store, pipe pipelineClient, log *slog.Logger) error {
		called = true
		if cfg.Addr != ":9999" {
			t.Fatalf("unexpected addr %s", cfg.Addr)
		}
		if cfg.GRPCAddr != root.cfg.Server.GRPCAddr {
			t.Fatalf("unexpected grpc addr %s", cfg.GRPCAddr)
		}
		return nil
	}
	if err := execute(root, "serve", "--addr", ":9999"); err != nil {
		t.Fatalf("serve failed: %v", err)
	}
	if !called {
		t.Fatalf("serve function was not invoked")
	}
}

func TestConfigCommands(t *testing.T) {
	root, _ := newTestRoot(t)

	showOut := captureOutput(t, func() {
		if err := execute(root, "config", "show"); err != nil {
			t.Fatalf("config show failed: %v", err)
		}
	})
	if !strings.Contains(showOut, "Current configuration") || !strings.Contains(showOut, "Stride: 4") {
		t.Fatalf("expected configuration output, got %q", showOut)
	}

	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	writeFile(t, good, `{"features": {"knn": 3}}`)
	writeFile(t, bad, `{"features": {"ratio": 4}}`)

	validOut := captureOutput(t, func() {
		if err := execute(root, "config", "validate", good); err != nil {
			t.Fatalf("validate good config: %v", err)
		}
	})
	if !strings.Contains(validOut, "valid") {
		t.Fatalf("expected valid message, got %q", validOut)
	}
	if err := execute(root, "config", "validate", bad); err == nil {
		t.Fatalf("expected invalid ratio to fail validation")
	}
	if err := execute(root, "config", "validate", filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected missing file to fail")
	}

	versionOut := captureOutput(t, func() {
		if err := execute(root, "version"); err != nil {
			t.Fatalf("version failed: %v", err)
		}
	})
	if !strings.Contains(versionOut, "panofuse "+version) || !strings.Contains(versionOut, "[harris]") {
		t.Fatalf("expected version and backends, got %q", versionOut)
	}
}

func TestRunsCommandReadsStore(t *testing.T) {
	root, _ := newTestRoot(t)
	store, err := storage.New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	root.store = store

	if err := store.RecordRunQueued(storage.RunRecord{ID: "seq-1", Variant: "sequential", Status: "queued", InputPath: "walk.mp4"}); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordFrame(storage.FrameRecord{RunID: "seq-1", FrameIndex: 4, Outcome: "fused", Matches: 80, Inliers: 61}); err != nil {
		t.Fatal(err)
	}

	out := captureOutput(t, func() {
		if err := execute(root, "runs"); err != nil {
			t.Fatalf("runs failed: %v", err)
		}
	})
	if !strings.Contains(out, "seq-1") || !strings.Contains(out, "walk.mp4") {
		t.Fatalf("expected run listed, got %q", out)
	}

	out = captureOutput(t, func() {
		if err := execute(root, "runs", "--frames", "seq-1"); err != nil {
			t.Fatalf("runs --frames failed: %v", err)
		}
	})
	if !strings.Contains(out, "fused") || !strings.Contains(out, "61") {
		t.Fatalf("expected frame listed, got %q", out)
	}

	root.store = nil
	if err := execute(root, "runs"); err == nil {
		t.Fatalf("expected error without a store")
	}
}

func TestEnqueueAndWaitPropagatesErrors(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	job := pipeline.Job{ID: "err-job", Type: pipeline.JobSequential}
	fakePipe.jobErrors["err-job"] = context.DeadlineExceeded
	if _, err := root.enqueueAndWait(context.Background(), job); err == nil {
		t.Fatalf("expected error from pipeline result")
	}
}

func TestEnqueueAndWaitCollectsResultAfterInterrupt(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	ctx, cancel := context.WithCancel(context.Background())
	fakePipe.onSubmit = cancel

	meta, err := root.enqueueAndWait(ctx, pipeline.Job{ID: "seq-int", Type: pipeline.JobSequential})
	if err != nil {
		t.Fatalf("expected interrupted run to complete, got %v", err)
	}
	if meta["ok"] != true {
		t.Fatalf("expected run meta, got %+v", meta)
	}
}

func TestEnqueueRefusesCancelledContext(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := root.enqueueAndWait(ctx, pipeline.Job{ID: "late"}); err == nil {
		t.Fatalf("expected cancelled context error")
	}
	if len(fakePipe.jobs) != 0 {
		t.Fatalf("job should not be submitted")
	}
}

func TestNewIDHasPrefix(t *testing.T) {
	a, b := newID("seq"), newID("seq")
	if !strings.HasPrefix(a, "seq-") || a == b {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
}

// Test helpers

func newTestRoot(t *testing.T) (*Root, *fakePipeline) {
	t.Helper()

	cfg := config.Default()
	tmp := t.TempDir()
	cfg.Paths.DefaultOutput = filepath.Join(tmp, "output")
	cfg.Paths.DatabasePath = filepath.Join(tmp, "panofuse.db")

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	pipe := newFakePipeline()

	root := &Root{
		pipeline: pipe,
		cfg:      cfg,
		log:      logger,
		store:    nil,
		backends: stubBackends{},
		serveFn:  defaultServe,
	}
	return root, pipe
}

func execute(root *Root, args ...string) error {
	cmd := newRootCmd(root)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

type stubBackends struct{}

func (stubBackends) Names() map[string][]string {
	return map[string][]string{
		"extractor": {"harris"},
		"matcher":   {"bruteforce"},
		"estimator": {"ransac"},
		"capture":   {"sequence"},
	}
}

func (stubBackends) HasDisplay() bool { return false }

type fakePipeline struct {
	mu        sync.Mutex
	jobs      []pipeline.Job
	subs      map[int]chan pipeline.Result
	nextSubID int
	jobErrors map[string]error
	onSubmit  func()
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		subs:      make(map[int]chan pipeline.Result),
		jobErrors: make(map[string]error),
	}
}

func (f *fakePipeline) Submit(job pipeline.Job) error {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	subs := make([]chan pipeline.Result, 0, len(f.subs))
	for _, ch := range f.subs {
		subs = append(subs, ch)
	}
	err := f.errorFor(job)
	onSubmit := f.onSubmit
	f.mu.Unlock()

	if onSubmit != nil {
		onSubmit()
	}
	go func() {
		res := pipeline.Result{Job: job, Error: err, Meta: map[string]any{"ok": true}}
		for _, ch := range subs {
			ch <- res
		}
	}()
	return nil
}

func (f *fakePipeline) Subscribe() (<-chan pipeline.Result, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSubID
	f.nextSubID++
	ch := make(chan pipeline.Result, 2)
	f.subs[id] = ch
	unsub := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[id]; ok {
			delete(f.subs, id)
		}
	}
	return ch, unsub
}

func (f *fakePipeline) errorFor(job pipeline.Job) error {
	if err, ok := f.jobErrors[job.ID]; ok {
		return err
	}
	if err, ok := f.jobErrors[string(job.Type)]; ok {
		return err
	}
	return nil
}

func (f *fakePipeline) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = nil
	f.jobErrors = make(map[string]error)
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&buf, r)
		close(done)
	}()

	fn()

	_ = w.Close()
	os.Stdout = oldStdout
	<-done
	return buf.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
