//go:build withcv

package cvbridge

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"panofuse/internal/geometry"
	"panofuse/internal/imaging"
	"panofuse/internal/motion"
	"panofuse/internal/stitch"
	"panofuse/internal/warp"
)

// Kernels returns the OpenCV warp, blur and motion stages.
func Kernels() stitch.Kernels {
	return stitch.Kernels{
		Name:    "opencv",
		Planar:  NewPlanar,
		Blur:    GaussianBlur,
		Tracker: func(opts motion.Options) motion.Detector { return NewMotionTracker(opts) },
	}
}

// Planar warps with cv::warpPerspective. Output alpha keeps the warp.Result
// contract: 255 where every contributing source pixel was covered, 0 elsewhere.
type Planar struct {
	H         geometry.Homography
	MaxPixels int
}

// NewPlanar is a warp.PlanarFactory.
func NewPlanar(h geometry.Homography, maxPixels int) warp.Warper {
	return Planar{H: h, MaxPixels: maxPixels}
}

func (p Planar) Warp(src *image.RGBA) (warp.Result, error) {
	sb := src.Bounds()
	bbox, err := warp.Footprint(p.H, sb.Dx(), sb.Dy(), p.MaxPixels)
	if err != nil {
		return warp.Result{}, err
	}
	h := geometry.Translation(-float64(bbox.Min.X), -float64(bbox.Min.Y)).Mul(p.H)

	in, err := gocv.ImageToMatRGBA(src)
	if err != nil {
		return warp.Result{}, err
	}
	defer in.Close()
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for i := 0; i < 9; i++ {
		m.SetDoubleAt(i/3, i%3, h[i])
	}
	out := gocv.NewMat()
	defer out.Close()
	gocv.WarpPerspectiveWithParams(in, &out, m, image.Pt(bbox.Dx(), bbox.Dy()),
		gocv.InterpolationCubic, gocv.BorderConstant, color.RGBA{})

	img, err := out.ToImage()
	if err != nil {
		return warp.Result{}, err
	}
	rgba := imaging.Clone(imaging.ToRGBA(img))
	for i := 0; i < len(rgba.Pix); i += 4 {
		if rgba.Pix[i+3] != 255 {
			rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2], rgba.Pix[i+3] = 0, 0, 0, 0
		}
	}
	return warp.Result{Image: rgba, Offset: bbox.Min}, nil
}

// GaussianBlur wraps cv::GaussianBlur with the same kernel rules as
// imaging.GaussianBlur, which it falls back to when conversion fails.
func GaussianBlur(g *image.Gray, ksize int) *image.Gray {
	if ksize < 3 {
		return g
	}
	if ksize%2 == 0 {
		ksize++
	}
	src, err := gocv.ImageGrayToMatGray(g)
	if err != nil {
		return imaging.GaussianBlur(g, ksize)
	}
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.GaussianBlur(src, &dst, image.Pt(ksize, ksize), 0, 0, gocv.BorderReflect101)

	img, err := dst.ToImage()
	if err != nil {
		return imaging.GaussianBlur(g, ksize)
	}
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	return imaging.GaussianBlur(g, ksize)
}

// MotionTracker is the OpenCV rendition of motion.Tracker: a running
// weighted average, absolute difference, threshold, dilation and external
// contours. Close releases the background model.
type MotionTracker struct {
	opts   motion.Options
	avg    gocv.Mat
	ready  bool
	size   image.Point
	frames int
}

// NewMotionTracker returns a tracker in the warming-up state.
func NewMotionTracker(opts motion.Options) *MotionTracker {
	if opts.AccumWeight <= 0 || opts.AccumWeight > 1 {
		opts.AccumWeight = motion.DefaultAccumWeight
	}
	if opts.WarmupFrames < 0 {
		opts.WarmupFrames = 0
	}
	return &MotionTracker{opts: opts}
}

// Update folds g into the background and returns the bounding boxes of
// moving regions once warmed up. A change of frame size restarts the model.
func (t *MotionTracker) Update(g *image.Gray) []image.Rectangle {
	src, err := gocv.ImageGrayToMatGray(g)
	if err != nil {
		return nil
	}
	defer src.Close()

	b := g.Bounds()
	if !t.ready || b.Size() != t.size {
		t.reset(src, b.Size())
		return nil
	}
	t.frames++

	gocv.AccumulatedWeighted(src, &t.avg, t.opts.AccumWeight)
	if t.frames <= t.opts.WarmupFrames {
		return nil
	}
	bg := gocv.NewMat()
	defer bg.Close()
	gocv.ConvertScaleAbs(t.avg, &bg, 1, 0)
	delta := gocv.NewMat()
	defer delta.Close()
	gocv.AbsDiff(src, bg, &delta)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(delta, &thresh, float32(t.opts.DeltaThreshold), 255, gocv.ThresholdBinary)
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	for i := 0; i < t.opts.DilateIterations; i++ {
		gocv.Dilate(thresh, &thresh, kernel)
	}

	contours := gocv.FindContours(thresh, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	var out []image.Rectangle
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		if gocv.ContourArea(c) < float64(t.opts.MinArea) {
			continue
		}
		out = append(out, gocv.BoundingRect(c).Add(b.Min))
	}
	return out
}

func (t *MotionTracker) reset(src gocv.Mat, size image.Point) {
	if t.ready {
		t.avg.Close()
	}
	t.avg = gocv.NewMat()
	src.ConvertTo(&t.avg, gocv.MatTypeCV32F)
	t.ready, t.size, t.frames = true, size, 1
}

func (t *MotionTracker) Close() error {
	if t.ready {
		t.ready = false
		return t.avg.Close()
	}
	return nil
}
