package imaging

import (
	"image"
	"math"
)

// BlurFunc smooths a gray image with a ksize x ksize Gaussian.
type BlurFunc func(g *image.Gray, ksize int) *image.Gray

// GaussianBlur applies a separable ksize x ksize Gaussian with the sigma
// OpenCV derives from the kernel size. Borders are reflected without
// repeating the edge pixel.
func GaussianBlur(g *image.Gray, ksize int) *image.Gray {
	if ksize < 3 {
		return g
	}
	if ksize%2 == 0 {
		ksize++
	}
	kernel := gaussianKernel(ksize)
	r := ksize / 2
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			var s float64
			for k := -r; k <= r; k++ {
				s += kernel[k+r] * float64(row[reflect101(x+k, w)])
			}
			tmp[y*w+x] = s
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for k := -r; k <= r; k++ {
				s += kernel[k+r] * tmp[reflect101(y+k, h)*w+x]
			}
			out.Pix[y*out.Stride+x] = clamp8(s)
		}
	}
	return out
}

func gaussianKernel(ksize int) []float64 {
	sigma := 0.3*(float64(ksize-1)*0.5-1) + 0.8
	r := ksize / 2
	k := make([]float64, ksize)
	var sum float64
	for i := range k {
		d := float64(i - r)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
