// Package sink delivers composites to files, video encoders, previews and displays.
package sink

import (
	"context"
	"errors"
	"image"
	"time"
)

// Meta describes an emitted composite.
type Meta struct {
	RunID      string
	FrameIndex int
	Timestamp  time.Time
	Final      bool
}

// Sink consumes composites. Emit must not retain img after returning.
type Sink interface {
	Emit(ctx context.Context, img image.Image, meta Meta) error
	Close() error
}

// Quitter is implemented by interactive sinks that can ask the run to stop.
type Quitter interface {
	QuitRequested() bool
}

// QuitRequested reports whether s, or any sink it fans out to, asked to stop.
func QuitRequested(s Sink) bool {
	q, ok := s.(Quitter)
	return ok && q.QuitRequested()
}

// Multi fans out to several sinks.
type Multi []Sink

// NewMulti drops nil sinks.
func NewMulti(sinks ...Sink) Multi {
	var m Multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m Multi) Emit(ctx context.Context, img image.Image, meta Meta) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, img, meta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func (m Multi) QuitRequested() bool {
	for _, s := range m {
		if QuitRequested(s) {
			return true
		}
	}
	return false
}

// Discard drops everything.
type Discard struct{}

func (Discard) Emit(context.Context, image.Image, Meta) error { return nil }
func (Discard) Close() error                                  { return nil }
