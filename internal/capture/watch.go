package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"panofuse/internal/imaging"
)

// DefaultIdleTimeout ends a watch when no new frame arrives for this long.
const DefaultIdleTimeout = 30 * time.Second

// Watch yields images as they appear in a directory. Files already present
// are read first in name order. The stream ends after IdleTimeout without a
// new file.
type Watch struct {
	dir     string
	watcher *fsnotify.Watcher
	pending []string
	seen    map[string]struct{}
	idle    time.Duration
	settle  time.Duration
	next    int
	info    Info
	log     *slog.Logger
}

// NewWatch starts watching dir.
func NewWatch(dir string, idle time.Duration) (*Watch, error) {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	existing, err := ListImages(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("%w: watch %s: %v", ErrCaptureFailed, dir, err)
	}
	w := &Watch{
		dir:     dir,
		watcher: watcher,
		seen:    make(map[string]struct{}),
		idle:    idle,
		settle:  200 * time.Millisecond,
		info:    Info{Name: dir},
		log:     slog.Default(),
	}
	for _, f := range existing {
		w.enqueue(f)
	}
	w.log.Info("watching directory", "dir", dir, "existing", len(existing), "idle_timeout", idle)
	return w, nil
}

func (w *Watch) enqueue(path string) {
	if _, ok := w.seen[path]; ok {
		return
	}
	w.seen[path] = struct{}{}
	w.pending = append(w.pending, path)
}

func (w *Watch) Read(ctx context.Context) (imaging.Frame, error) {
	timer := time.NewTimer(w.idle)
	defer timer.Stop()
	for len(w.pending) == 0 {
		select {
		case <-ctx.Done():
			return imaging.Frame{}, ctx.Err()
		case <-timer.C:
			return imaging.Frame{}, ErrCaptureExhausted
		case event, ok := <-w.watcher.Events:
			if !ok {
				return imaging.Frame{}, ErrCaptureExhausted
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !imaging.IsImageFile(event.Name) {
				continue
			}
			w.enqueue(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return imaging.Frame{}, ErrCaptureExhausted
			}
			return imaging.Frame{}, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
		}
	}

	path := w.pending[0]
	w.pending = w.pending[1:]
	img, err := w.load(ctx, path)
	if err != nil {
		return imaging.Frame{}, err
	}
	idx := w.next
	w.next++
	if w.info.Width == 0 {
		w.info.Width, w.info.Height = img.Rect.Dx(), img.Rect.Dy()
	}
	ts := time.Now()
	if st, err := os.Stat(path); err == nil {
		ts = st.ModTime()
	}
	return imaging.Frame{Index: idx, Timestamp: ts, Image: img}, nil
}

// load retries once after a short delay, since a camera may still be writing.
func (w *Watch) load(ctx context.Context, path string) (*image.RGBA, error) {
	img, err := imaging.Load(path)
	if err == nil {
		return img, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(w.settle):
	}
	img, err = imaging.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	return img, nil
}

func (w *Watch) Info() Info   { return w.info }
func (w *Watch) Close() error { return w.watcher.Close() }
