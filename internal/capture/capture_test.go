package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"panofuse/internal/imaging"
)

func writeFrame(t *testing.T, path string, v uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	if err := imaging.Save(path, img, 90); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestSequenceReadsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, filepath.Join(dir, "frame_002.png"), 20)
	writeFrame(t, filepath.Join(dir, "frame_001.png"), 10)
	writeFrame(t, filepath.Join(dir, "frame_003.png"), 30)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := NewSequence(dir, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()
	if src.Info().Length != 3 {
		t.Fatalf("expected 3 frames, got %d", src.Info().Length)
	}
	ctx := context.Background()
	for i, want := range []uint8{10, 20, 30} {
		f, err := src.Read(ctx)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if f.Index != i || f.Image.RGBAAt(0, 0).R != want {
			t.Fatalf("frame %d: index %d value %d", i, f.Index, f.Image.RGBAAt(0, 0).R)
		}
	}
	if _, err := src.Read(ctx); !errors.Is(err, ErrCaptureExhausted) {
		t.Fatalf("expected ErrCaptureExhausted, got %v", err)
	}
	if src.Info().Width != 8 {
		t.Fatalf("width not recorded: %+v", src.Info())
	}
}

func TestSequenceRejectsUnknownFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.xyz")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSequence(path, 0); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestSequenceCorruptFrameFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.png"), []byte("not a png"), 0644); err != nil {
		t.Fatal(err)
	}
	src, err := NewSequence(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Read(context.Background()); !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
}

func TestParseRate(t *testing.T) {
	cases := map[string]float64{"30000/1001": 30000.0 / 1001, "25": 25, "0/0": 0, "": 0}
	for in, want := range cases {
		if got := parseRate(in); got != want {
			t.Fatalf("parseRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, filepath.Join(dir, "a.png"), 1)

	w, err := NewWatch(dir, 2*time.Second)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()
	ctx := context.Background()

	f, err := w.Read(ctx)
	if err != nil || f.Image.RGBAAt(0, 0).R != 1 {
		t.Fatalf("existing frame: %v", err)
	}

	tmp := filepath.Join(t.TempDir(), "b.png")
	writeFrame(t, tmp, 2)
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.Rename(tmp, filepath.Join(dir, "b.png"))
	}()
	f, err = w.Read(ctx)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	if f.Index != 1 || f.Image.RGBAAt(0, 0).R != 2 {
		t.Fatalf("unexpected frame %d value %d", f.Index, f.Image.RGBAAt(0, 0).R)
	}
}

func TestWatchIdleTimeout(t *testing.T) {
	w, err := NewWatch(t.TempDir(), 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if _, err := w.Read(context.Background()); !errors.Is(err, ErrCaptureExhausted) {
		t.Fatalf("expected ErrCaptureExhausted, got %v", err)
	}
}
