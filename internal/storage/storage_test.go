package storage

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordRunQueued(RunRecord{ID: "seq-1", Variant: "sequential", Status: "queued", InputPath: "in.mp4", OutputPath: "out.png", OptionsJSON: `{"stride":4}`}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := s.RecordRunStart("seq-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.RecordRunResult("seq-1", "completed", map[string]any{"fused": 3}, ""); err != nil {
		t.Fatalf("result: %v", err)
	}

	runs, err := s.RecentRuns(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.Status != "completed" || r.Variant != "sequential" || r.StartedAt == nil || r.CompletedAt == nil {
		t.Fatalf("unexpected record %+v", r)
	}

	meta, err := s.RunMeta("seq-1")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta["fused"] != float64(3) {
		t.Fatalf("unexpected meta %v", meta)
	}
}

func TestRunFramesOrdered(t *testing.T) {
	s := newTestStore(t)
	for _, idx := range []int{8, 0, 4} {
		rec := FrameRecord{RunID: "seq-2", FrameIndex: idx, Outcome: "fused", Matches: 40, Inliers: 35, BlendMS: 1.5, CanvasWidth: 720, CanvasHeight: 405}
		if err := s.RecordFrame(rec); err != nil {
			t.Fatalf("record frame: %v", err)
		}
	}
	if err := s.RecordFrame(FrameRecord{RunID: "other", FrameIndex: 1, Outcome: "skipped", Reason: "alignment failed"}); err != nil {
		t.Fatal(err)
	}

	frames, err := s.RunFrames("seq-2")
	if err != nil {
		t.Fatalf("frames: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, want := range []int{0, 4, 8} {
		if frames[i].FrameIndex != want {
			t.Fatalf("frame %d: got index %d want %d", i, frames[i].FrameIndex, want)
		}
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	if err := s.RecordRunStart("x"); err != nil {
		t.Fatalf("nil store should ignore writes: %v", err)
	}
	if err := s.RecordFrame(FrameRecord{}); err != nil {
		t.Fatalf("nil store should ignore frames: %v", err)
	}
	if _, err := s.RecentRuns(1); err == nil {
		t.Fatalf("nil store should refuse reads")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
