package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestInverseRoundTrip(t *testing.T) {
	h := Homography{1.1, 0.05, 12, -0.02, 0.95, -7, 1e-5, 2e-5, 1}
	inv, err := h.Inverse()
	require.NoError(t, err)

	p := Pt(123, 45)
	q, ok := h.Apply(p)
	require.True(t, ok)
	back, ok := inv.Apply(q)
	require.True(t, ok)
	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)
}

func TestInverseSingular(t *testing.T) {
	_, err := Homography{}.Inverse()
	assert.ErrorIs(t, err, ErrSingular)
}

func TestBoundsAbsorbsRoundingNoise(t *testing.T) {
	corners, err := Translation(349.9999999999, 0).MapCorners(400, 300)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(350, 0, 750, 300), Bounds(corners[:]))
}

func TestMapCornersBehindCamera(t *testing.T) {
	h := Homography{1, 0, 0, 0, 1, 0, -0.01, 0, 1}
	_, err := h.MapCorners(400, 300)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestFitDLTExact(t *testing.T) {
	want := Homography{0.9, 0.1, 5, -0.1, 1.05, 3, 1e-4, -5e-5, 1}
	src := []Point{{0, 0}, {100, 0}, {100, 80}, {0, 80}, {50, 30}}
	dst := mapAll(t, want, src)
	h, err := FitDLT(src, dst)
	require.NoError(t, err)
	for i := range h {
		assert.InDelta(t, want[i], h[i], 1e-7)
	}
}

func TestEulerRotationIsOrthonormal(t *testing.T) {
	r := EulerRotation(0, Degrees(45), Degrees(45))
	var prod mat.Dense
	prod.Mul(r, r.T())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, prod.At(i, j), 1e-12)
		}
	}
}
