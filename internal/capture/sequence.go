package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"panofuse/internal/imaging"
)

// Sequence reads a fixed list of image files as consecutive frames.
type Sequence struct {
	name  string
	files []string
	next  int
	fps   float64
	start time.Time
	info  Info
}

// NewSequence opens a directory of images or a single image file.
func NewSequence(path string, fps float64) (*Sequence, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	var files []string
	if st.IsDir() {
		files, err = ListImages(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
		}
	} else {
		if !imaging.IsImageFile(path) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
		}
		files = []string{path}
	}
	return NewSequenceFiles(path, files, fps), nil
}

// NewSequenceFiles reads the given files in order.
func NewSequenceFiles(name string, files []string, fps float64) *Sequence {
	if fps <= 0 {
		fps = 25
	}
	return &Sequence{
		name:  name,
		files: files,
		fps:   fps,
		start: time.Now(),
		info:  Info{Name: name, FPS: fps, Length: len(files)},
	}
}

func (s *Sequence) Read(ctx context.Context) (imaging.Frame, error) {
	if err := ctx.Err(); err != nil {
		return imaging.Frame{}, err
	}
	if s.next >= len(s.files) {
		return imaging.Frame{}, ErrCaptureExhausted
	}
	path := s.files[s.next]
	img, err := imaging.Load(path)
	if err != nil {
		return imaging.Frame{}, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	idx := s.next
	s.next++
	if s.info.Width == 0 {
		s.info.Width, s.info.Height = img.Rect.Dx(), img.Rect.Dy()
	}
	return imaging.Frame{
		Index:     idx,
		Timestamp: s.start.Add(time.Duration(float64(idx) / s.fps * float64(time.Second))),
		Image:     img,
	}, nil
}

func (s *Sequence) Info() Info   { return s.info }
func (s *Sequence) Close() error { return nil }

// SequenceOpener opens directories and still images.
type SequenceOpener struct {
	FPS float64
}

func (SequenceOpener) Name() string      { return "sequence" }
func (SequenceOpener) IsAvailable() bool { return true }

func (SequenceOpener) CanOpen(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	return st.IsDir() || imaging.IsImageFile(path)
}

func (o SequenceOpener) Open(path string) (Source, error) {
	return NewSequence(path, o.FPS)
}
