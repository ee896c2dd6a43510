package features

import (
	"image"
	"math"
	"sort"
)

// Harris detector defaults.
const (
	harrisK          = 0.04
	harrisRelThresh  = 0.01 // Fraction of the strongest response a corner must reach.
	patchRadius      = 8    // Descriptor patch is 16x16 around the corner.
	descriptorGrid   = 8    // Patch is pooled into an 8x8 grid.
	DefaultMaxPoints = 1500
)

// Harris detects Harris corners and describes each with a normalized,
// pooled intensity patch. It needs no native libraries.
type Harris struct {
	MaxFeatures int
}

func (h *Harris) Name() string      { return "harris" }
func (h *Harris) IsAvailable() bool { return true }

func (h *Harris) DetectAndCompute(img *image.Gray) (Features, error) {
	b := img.Bounds()
	w, ht := b.Dx(), b.Dy()
	margin := patchRadius + 1
	if w <= 2*margin || ht <= 2*margin {
		return Features{}, ErrEmptyImage
	}
	maxFeatures := h.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxPoints
	}

	px := make([]float64, w*ht)
	for y := 0; y < ht; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x, v := range row {
			px[y*w+x] = float64(v)
		}
	}

	resp := harrisResponse(px, w, ht)

	var peak float64
	for _, r := range resp {
		peak = math.Max(peak, r)
	}
	if peak <= 0 {
		return Features{}, nil
	}
	thresh := peak * harrisRelThresh

	type candidate struct {
		x, y int
		r    float64
	}
	var cands []candidate
	for y := margin; y < ht-margin; y++ {
		for x := margin; x < w-margin; x++ {
			r := resp[y*w+x]
			if r <= thresh || !localMax(resp, w, x, y, r) {
				continue
			}
			cands = append(cands, candidate{x, y, r})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].r != cands[j].r {
			return cands[i].r > cands[j].r
		}
		if cands[i].y != cands[j].y {
			return cands[i].y < cands[j].y
		}
		return cands[i].x < cands[j].x
	})

	var f Features
	for _, c := range cands {
		if f.Len() >= maxFeatures {
			break
		}
		d, ok := describe(px, w, c.x, c.y)
		if !ok {
			continue
		}
		f.Keypoints = append(f.Keypoints, Keypoint{
			X:        float64(c.x + b.Min.X),
			Y:        float64(c.y + b.Min.Y),
			Size:     2 * patchRadius,
			Angle:    -1,
			Response: c.r,
		})
		f.Descriptors = append(f.Descriptors, d)
	}
	return f, nil
}

func harrisResponse(px []float64, w, h int) []float64 {
	ixx := make([]float64, w*h)
	iyy := make([]float64, w*h)
	ixy := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			at := func(dx, dy int) float64 { return px[(y+dy)*w+x+dx] }
			gx := (at(1, -1) + 2*at(1, 0) + at(1, 1)) - (at(-1, -1) + 2*at(-1, 0) + at(-1, 1))
			gy := (at(-1, 1) + 2*at(0, 1) + at(1, 1)) - (at(-1, -1) + 2*at(0, -1) + at(1, -1))
			i := y*w + x
			ixx[i] = gx * gx
			iyy[i] = gy * gy
			ixy[i] = gx * gy
		}
	}
	resp := make([]float64, w*h)
	for y := 2; y < h-2; y++ {
		for x := 2; x < w-2; x++ {
			var sxx, syy, sxy float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					i := (y+dy)*w + x + dx
					sxx += ixx[i]
					syy += iyy[i]
					sxy += ixy[i]
				}
			}
			det := sxx*syy - sxy*sxy
			tr := sxx + syy
			resp[y*w+x] = det - harrisK*tr*tr
		}
	}
	return resp
}

// localMax keeps the first of equal neighbours in scan order.
func localMax(resp []float64, w, x, y int, r float64) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := resp[(y+dy)*w+x+dx]
			if n > r || (n == r && (dy < 0 || (dy == 0 && dx < 0))) {
				return false
			}
		}
	}
	return true
}

// describe pools the 16x16 patch into 2x2 cells, removes the mean and scales to unit length.
func describe(px []float64, w, cx, cy int) (Descriptor, bool) {
	const cell = 2 * patchRadius / descriptorGrid
	vals := make([]float64, descriptorGrid*descriptorGrid)
	var mean float64
	for gy := 0; gy < descriptorGrid; gy++ {
		for gx := 0; gx < descriptorGrid; gx++ {
			var s float64
			for oy := 0; oy < cell; oy++ {
				for ox := 0; ox < cell; ox++ {
					x := cx - patchRadius + gx*cell + ox
					y := cy - patchRadius + gy*cell + oy
					s += px[y*w+x]
				}
			}
			vals[gy*descriptorGrid+gx] = s
			mean += s
		}
	}
	mean /= float64(len(vals))
	var norm float64
	for i := range vals {
		vals[i] -= mean
		norm += vals[i] * vals[i]
	}
	norm = math.Sqrt(norm)
	if norm < 1e-6 {
		return nil, false
	}
	d := make(Descriptor, len(vals))
	for i, v := range vals {
		d[i] = float32(v / norm)
	}
	return d, true
}
