package report

import (
	"os"
	"testing"
	"time"

	"panofuse/internal/stitch"
)

func TestRenderWritesPlots(t *testing.T) {
	dir := t.TempDir()
	events := []stitch.FrameEvent{
		{Index: 8, Outcome: stitch.OutcomeFused, Matches: 80, Inliers: 70, Blend: 3 * time.Millisecond},
		{Index: 0, Outcome: stitch.OutcomeReference, Matches: 300, Inliers: 300},
		{Index: 4, Outcome: stitch.OutcomeSkipped, Matches: 6},
	}
	files, err := Render(dir, "seq-1", events)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, p := range []string{files.Registration, files.Blend} {
		st, err := os.Stat(p)
		if err != nil {
			t.Fatalf("missing plot %s: %v", p, err)
		}
		if st.Size() == 0 {
			t.Fatalf("empty plot %s", p)
		}
	}
}

func TestRenderRejectsEmptyRun(t *testing.T) {
	if _, err := Render(t.TempDir(), "empty", nil); err == nil {
		t.Fatalf("expected error for empty run")
	}
}
