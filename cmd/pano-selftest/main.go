// Command pano-selftest stitches a synthetic scene end to end with the
// pure-Go backends and reports the composite sizes.
package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"panofuse/internal/backend"
	"panofuse/internal/capture"
	"panofuse/internal/compositor"
	"panofuse/internal/config"
	"panofuse/internal/features"
	"panofuse/internal/imaging"
	"panofuse/internal/logging"
	"panofuse/internal/sink"
	"panofuse/internal/stitch"

	"github.com/google/uuid"
)

const (
	sceneW, sceneH = 900, 360
	frameW         = 560
	overlap        = 2*frameW - sceneW
)

func main() {
	fmt.Println("Running panofuse self-test")

	cfg := config.Default()
	logger := logging.New("info", "text")
	registry := backend.New(logger)

	dir, err := os.MkdirTemp("", "pano-selftest-")
	if err != nil {
		log.Fatal("Failed to create work dir:", err)
	}
	defer os.RemoveAll(dir)

	scene := texturedScene(sceneW, sceneH, 7)
	left := imaging.ToRGBA(scene.SubImage(image.Rect(0, 0, frameW, sceneH)))
	right := imaging.ToRGBA(scene.SubImage(image.Rect(sceneW-frameW, 0, sceneW, sceneH)))
	leftPath := filepath.Join(dir, "frame_000.png")
	rightPath := filepath.Join(dir, "frame_001.png")
	for path, img := range map[string]image.Image{leftPath: left, rightPath: right} {
		if err := imaging.Save(path, img, 0); err != nil {
			log.Fatal("Failed to write frame:", err)
		}
	}
	fmt.Printf("Scene %dx%d, two frames of %dx%d overlapping by %d px\n", sceneW, sceneH, frameW, sceneH, overlap)

	extractor, err := registry.Extractor("harris", cfg.Features.MaxFeatures)
	if err != nil {
		log.Fatal("No extractor:", err)
	}
	matcher, err := registry.Matcher("bruteforce")
	if err != nil {
		log.Fatal("No matcher:", err)
	}
	estimator, err := registry.Estimator(cfg.Registration)
	if err != nil {
		log.Fatal("No estimator:", err)
	}
	reg := stitch.Registration{
		Extractor:       extractor,
		Matcher:         matcher,
		Estimator:       estimator,
		Filter:          features.FilterOptions{K: cfg.Features.KNN, Ratio: cfg.Features.Ratio, MinCount: cfg.Features.MinCorrespondence},
		InlierThreshold: cfg.Registration.InlierThreshold,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	failed := false

	seqOut := filepath.Join(dir, "sequential.png")
	seq := stitch.Sequential{
		RunID:        "selftest-seq-" + uuid.NewString()[:8],
		Source:       capture.NewSequenceFiles("selftest", []string{leftPath, rightPath}, 0),
		Registration: reg,
		Options: stitch.SequentialOptions{
			Sampler:    stitch.EveryNth(1),
			Compositor: compositor.Options{SeamWidth: cfg.Compositor.SeamWidth, MaxPixels: cfg.Compositor.MaxCanvasPixels},
		},
		Persist: &sink.File{Path: seqOut},
		Log:     logger,
	}
	sum, err := seq.Run(ctx)
	switch {
	case err != nil:
		fmt.Printf("FAIL sequential: %v\n", err)
		failed = true
	case sum.Fused != 1:
		fmt.Printf("FAIL sequential: fused %d of 1 frames (skipped %d)\n", sum.Fused, sum.Skipped)
		failed = true
	default:
		fmt.Printf("OK   sequential: canvas %dx%d, mean blend %s\n", sum.Canvas.Dx(), sum.Canvas.Dy(), sum.MeanBlend)
	}

	dualOut := filepath.Join(dir, "dual.png")
	dual := stitch.Dual{
		RunID:        "selftest-dual-" + uuid.NewString()[:8],
		Left:         capture.NewSequenceFiles("left", []string{leftPath}, 0),
		Right:        capture.NewSequenceFiles("right", []string{rightPath}, 0),
		Registration: reg,
		Options: stitch.DualOptions{
			FrameWidth: frameW,
			SeamWidth:  cfg.Compositor.SeamWidth,
		},
		Persist: &sink.File{Path: dualOut},
		Log:     logger,
	}
	sum, err = dual.Run(ctx)
	switch {
	case err != nil:
		fmt.Printf("FAIL dual: %v\n", err)
		failed = true
	case sum.Fused != 1:
		fmt.Printf("FAIL dual: composed %d of 1 pairs\n", sum.Fused)
		failed = true
	default:
		b, err := imaging.Load(dualOut)
		if err != nil {
			fmt.Printf("FAIL dual: reading composite: %v\n", err)
			failed = true
			break
		}
		fmt.Printf("OK   dual: composite %dx%d\n", b.Bounds().Dx(), b.Bounds().Dy())
	}

	if failed {
		os.Exit(1)
	}
	fmt.Println("Self-test passed")
}

// texturedScene draws random rectangles over a gradient so the Harris
// detector finds plenty of distinct corners.
func texturedScene(w, h int, seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed*31+1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 96, 255})
		}
	}
	for i := 0; i < 220; i++ {
		x, y := rng.IntN(w-12), rng.IntN(h-12)
		r := image.Rect(x, y, x+6+rng.IntN(30), y+6+rng.IntN(30))
		c := color.RGBA{uint8(rng.IntN(256)), uint8(rng.IntN(256)), uint8(rng.IntN(256)), 255}
		draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
	}
	return img
}
