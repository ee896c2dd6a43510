//go:build withcv

package cvbridge

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"panofuse/internal/capture"
	"panofuse/internal/imaging"
)

// VideoCapture reads frames from a file or camera through cv::VideoCapture.
type VideoCapture struct {
	vc    *gocv.VideoCapture
	mat   gocv.Mat
	info  capture.Info
	next  int
	start time.Time
}

// OpenVideoCapture opens path. A bare integer opens that camera device.
func OpenVideoCapture(path string) (*VideoCapture, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if id, convErr := strconv.Atoi(path); convErr == nil {
		vc, err = gocv.OpenVideoCapture(id)
	} else {
		vc, err = gocv.VideoCaptureFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrCaptureFailed, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: cannot open %s", capture.ErrCaptureFailed, path)
	}
	info := capture.Info{
		Name:   filepath.Base(path),
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    vc.Get(gocv.VideoCaptureFPS),
		Length: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}
	return &VideoCapture{vc: vc, mat: gocv.NewMat(), info: info, start: time.Now()}, nil
}

func (v *VideoCapture) Read(ctx context.Context) (imaging.Frame, error) {
	if err := ctx.Err(); err != nil {
		return imaging.Frame{}, err
	}
	if !v.vc.Read(&v.mat) || v.mat.Empty() {
		return imaging.Frame{}, capture.ErrCaptureExhausted
	}
	img, err := v.mat.ToImage()
	if err != nil {
		return imaging.Frame{}, fmt.Errorf("%w: %v", capture.ErrCaptureFailed, err)
	}
	f := imaging.Frame{Index: v.next, Timestamp: v.timestamp(), Image: imaging.ToRGBA(img)}
	v.next++
	return f, nil
}

func (v *VideoCapture) timestamp() time.Time {
	if v.info.FPS <= 0 {
		return time.Now()
	}
	return v.start.Add(time.Duration(float64(v.next) / v.info.FPS * float64(time.Second)))
}

func (v *VideoCapture) Info() capture.Info { return v.info }

func (v *VideoCapture) Close() error {
	v.mat.Close()
	return v.vc.Close()
}

// VideoCaptureOpener takes precedence over ffmpeg for video files and camera
// indices.
type VideoCaptureOpener struct{}

func (VideoCaptureOpener) Name() string      { return "opencv" }
func (VideoCaptureOpener) IsAvailable() bool { return true }

func (VideoCaptureOpener) CanOpen(path string) bool {
	if _, err := strconv.Atoi(path); err == nil {
		return true
	}
	return capture.IsVideoFile(path)
}

func (VideoCaptureOpener) Open(path string) (capture.Source, error) {
	return OpenVideoCapture(path)
}

