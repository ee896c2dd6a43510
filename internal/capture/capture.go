// Package capture reads frames from image sequences, directories being
// filled by a camera, and video files.
package capture

import (
	"context"
	"errors"

	"panofuse/internal/imaging"
)

var (
	// ErrCaptureExhausted ends a stream normally.
	ErrCaptureExhausted = errors.New("capture exhausted")
	// ErrCaptureFailed wraps decode and device failures.
	ErrCaptureFailed = errors.New("capture failed")
	ErrUnsupported   = errors.New("unsupported capture source")
)

// Info describes a stream. Zero values mean unknown.
type Info struct {
	Name   string
	Width  int
	Height int
	FPS    float64
	Length int
}

// Source yields frames in order. Read returns ErrCaptureExhausted at the end
// of the stream.
type Source interface {
	Read(ctx context.Context) (imaging.Frame, error)
	Info() Info
	Close() error
}

// Opener opens a path as a Source.
type Opener interface {
	Name() string
	IsAvailable() bool
	CanOpen(path string) bool
	Open(path string) (Source, error)
}
