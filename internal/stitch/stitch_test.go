package stitch

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"panofuse/internal/compositor"
	"panofuse/internal/features"
	"panofuse/internal/geometry"
	"panofuse/internal/motion"
	"panofuse/internal/warp"
)

func TestEveryNth(t *testing.T) {
	var kept []int
	for i := 0; i < 10; i++ {
		if EveryNth(4).Keep(i) {
			kept = append(kept, i)
		}
	}
	assert.Equal(t, []int{0, 4, 8}, kept)
	assert.True(t, EveryNth(0).Keep(3))
	assert.True(t, EveryNth(1).Keep(7))
}

func TestWidthCap(t *testing.T) {
	wide := image.NewRGBA(image.Rect(0, 0, 1440, 810))
	out := WidthCap(720).Apply(wide)
	assert.Equal(t, 720, out.Rect.Dx())
	assert.Equal(t, 405, out.Rect.Dy())

	narrow := image.NewRGBA(image.Rect(0, 0, 640, 480))
	assert.Same(t, narrow, WidthCap(720).Apply(narrow))
	assert.Same(t, wide, WidthCap(0).Apply(wide))
}

func TestFrameSkippable(t *testing.T) {
	assert.True(t, frameSkippable(features.ErrInsufficientCorrespondence))
	assert.True(t, frameSkippable(geometry.ErrAlignmentFailed))
	assert.True(t, frameSkippable(compositor.ErrCanvasTooLarge))
	assert.False(t, frameSkippable(errors.New("disk full")))
}

func TestSummaryMeta(t *testing.T) {
	s := Summary{Frames: 12, Fused: 3, Canvas: image.Rect(-10, 0, 510, 300)}
	m := s.Meta()
	assert.Equal(t, 520, m["canvas_width"])
	assert.Equal(t, 3, m["fused"])
}

func TestZeroKernelsFallBackToNative(t *testing.T) {
	var k Kernels
	assert.IsType(t, warp.Planar{}, k.planar(geometry.Identity(), 0))
	assert.IsType(t, &motion.Tracker{}, k.tracker(motion.DefaultOptions()))

	g := image.NewGray(image.Rect(0, 0, 8, 8))
	g.Pix[27] = 255
	blurred := k.blur(g, 3)
	assert.Less(t, blurred.Pix[27], uint8(255))
	assert.Equal(t, "native", NativeKernels().Name)
}
