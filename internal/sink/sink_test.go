package sink

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"path/filepath"
	"testing"

	"panofuse/internal/imaging"
)

type recordingSink struct {
	emitted int
	quit    bool
	err     error
}

func (r *recordingSink) Emit(context.Context, image.Image, Meta) error {
	r.emitted++
	return r.err
}
func (r *recordingSink) Close() error        { return nil }
func (r *recordingSink) QuitRequested() bool { return r.quit }

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("boom")}
	m := NewMulti(a, nil, b)
	if len(m) != 2 {
		t.Fatalf("nil sink should be dropped, got %d", len(m))
	}
	err := m.Emit(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)), Meta{})
	if err == nil || a.emitted != 1 || b.emitted != 1 {
		t.Fatalf("expected both sinks called and error joined, got %v", err)
	}
	if QuitRequested(m) {
		t.Fatalf("no sink asked to quit")
	}
	b.quit = true
	if !QuitRequested(m) {
		t.Fatalf("quit request should propagate through Multi")
	}
}

func TestFileWritesImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "stitched.png")
	f := &File{Path: path}
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	if err := f.Emit(context.Background(), img, Meta{Final: true}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	got, err := imaging.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Bounds().Dx() != 4 {
		t.Fatalf("unexpected size %v", got.Bounds())
	}
}

func TestPreviewKeepsLatest(t *testing.T) {
	p := NewPreview(70, 0)
	if data, _ := p.Latest(); data != nil {
		t.Fatalf("preview should start empty")
	}
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	if err := p.Emit(context.Background(), img, Meta{RunID: "r1", FrameIndex: 4}); err != nil {
		t.Fatal(err)
	}
	data, meta := p.Latest()
	if meta.FrameIndex != 4 {
		t.Fatalf("meta not stored: %+v", meta)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("preview is not a jpeg: %v", err)
	}
	if decoded.Bounds().Dx() != 16 {
		t.Fatalf("unexpected preview size %v", decoded.Bounds())
	}
}
