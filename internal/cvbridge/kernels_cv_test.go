//go:build withcv

package cvbridge

import (
	"image"
	"io"
	"log/slog"
	"math"
	"testing"

	"panofuse/internal/backend"
	"panofuse/internal/geometry"
	"panofuse/internal/imaging"
	"panofuse/internal/motion"
	"panofuse/internal/warp"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := img.PixOffset(x, y)
			img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = uint8(4*x), uint8(4*y), 128, 255
		}
	}
	return img
}

func TestRegisterPrefersOpenCV(t *testing.T) {
	r := backend.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	Register(r)

	if ext, err := r.Extractor(backend.Auto, 0); err != nil || ext.Name() != "sift" {
		t.Fatalf("auto extractor should be sift, got %v %v", ext, err)
	}
	if k, err := r.Kernels(backend.Auto); err != nil || k.Name != "opencv" {
		t.Fatalf("auto kernels should be opencv, got %q %v", k.Name, err)
	}
}

func TestPlanarMatchesNativeTranslation(t *testing.T) {
	src := gradient(40, 30)
	h := geometry.Translation(7, 5)
	got, err := NewPlanar(h, 0).Warp(src)
	if err != nil {
		t.Fatal(err)
	}
	want, err := warp.NewPlanar(h, 0).Warp(src)
	if err != nil {
		t.Fatal(err)
	}
	if got.Offset != want.Offset || got.Image.Rect != want.Image.Rect {
		t.Fatalf("footprint %v@%v, want %v@%v", got.Image.Rect, got.Offset, want.Image.Rect, want.Offset)
	}
	for _, p := range []image.Point{{10, 10}, {20, 15}, {30, 20}} {
		g, w := got.Image.RGBAAt(p.X, p.Y), want.Image.RGBAAt(p.X, p.Y)
		if g.A != 255 || math.Abs(float64(g.R)-float64(w.R)) > 2 || math.Abs(float64(g.G)-float64(w.G)) > 2 {
			t.Fatalf("pixel %v: got %v want %v", p, g, w)
		}
	}
	for i := 3; i < len(got.Image.Pix); i += 4 {
		if a := got.Image.Pix[i]; a != 0 && a != 255 {
			t.Fatalf("alpha must be binary, got %d", a)
		}
	}
}

func TestGaussianBlurMatchesNative(t *testing.T) {
	g := imaging.Gray(gradient(32, 32))
	g.Pix[16*g.Stride+16] = 255
	got, want := GaussianBlur(g, 5), imaging.GaussianBlur(g, 5)
	for i := range want.Pix {
		if math.Abs(float64(got.Pix[i])-float64(want.Pix[i])) > 1 {
			t.Fatalf("pixel %d: got %d want %d", i, got.Pix[i], want.Pix[i])
		}
	}
}

func TestMotionTrackerFindsInjectedRectangle(t *testing.T) {
	opts := motion.DefaultOptions()
	opts.WarmupFrames = 2
	tr := NewMotionTracker(opts)
	defer tr.Close()

	bg := image.NewGray(image.Rect(0, 0, 120, 90))
	for i := 0; i < 4; i++ {
		if rs := tr.Update(bg); len(rs) != 0 {
			t.Fatalf("static frame %d reported %v", i, rs)
		}
	}
	moved := image.NewGray(bg.Rect)
	for y := 30; y < 60; y++ {
		for x := 40; x < 80; x++ {
			moved.Pix[y*moved.Stride+x] = 255
		}
	}
	rs := tr.Update(moved)
	if len(rs) != 1 {
		t.Fatalf("expected one region, got %v", rs)
	}
	if !rs[0].Overlaps(image.Rect(40, 30, 80, 60)) {
		t.Fatalf("region %v misses the injected block", rs[0])
	}
}
