package sink

import (
	"context"
	"image"
	"log/slog"

	"panofuse/internal/imaging"
)

// Writer persists a single image to a path.
type Writer interface {
	Write(path string, img image.Image) error
}

// NativeWriter encodes with the Go image codecs.
type NativeWriter struct {
	Quality int
}

func (w NativeWriter) Write(path string, img image.Image) error {
	return imaging.Save(path, img, w.Quality)
}

// File writes every emitted image to Path, overwriting the previous one.
type File struct {
	Path   string
	Writer Writer
}

func (f *File) Emit(ctx context.Context, img image.Image, meta Meta) error {
	if err := ctx.Err(); err != nil && !meta.Final {
		return err
	}
	w := f.Writer
	if w == nil {
		w = NativeWriter{}
	}
	if err := w.Write(f.Path, img); err != nil {
		return err
	}
	slog.Default().Info("image saved", "path", f.Path, "run", meta.RunID, "frame", meta.FrameIndex)
	return nil
}

func (f *File) Close() error { return nil }
