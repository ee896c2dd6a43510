package sink

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"time"
)

// Preview keeps the latest composite as JPEG for HTTP clients.
type Preview struct {
	mu      sync.RWMutex
	jpeg    []byte
	meta    Meta
	quality int
	every   time.Duration
	last    time.Time
}

// NewPreview encodes at most once per interval.
func NewPreview(quality int, interval time.Duration) *Preview {
	if quality <= 0 {
		quality = 80
	}
	return &Preview{quality: quality, every: interval}
}

func (p *Preview) Emit(ctx context.Context, img image.Image, meta Meta) error {
	p.mu.RLock()
	skip := !meta.Final && p.every > 0 && time.Since(p.last) < p.every
	p.mu.RUnlock()
	if skip {
		return nil
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		return err
	}
	p.mu.Lock()
	p.jpeg = buf.Bytes()
	p.meta = meta
	p.last = time.Now()
	p.mu.Unlock()
	return nil
}

// Latest returns the most recent JPEG, or nil if nothing was emitted yet.
func (p *Preview) Latest() ([]byte, Meta) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.jpeg, p.meta
}

func (p *Preview) Close() error { return nil }
