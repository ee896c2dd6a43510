package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// Video encodes emitted composites to a file through ffmpeg. The frame size
// is fixed by the first image; later images are cropped or padded to it.
type Video struct {
	Path string
	FPS  float64

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	size   image.Point
	frame  *image.RGBA
	count  int
}

// FFmpegAvailable reports whether the encoder binary is on PATH.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

func (v *Video) start(size image.Point) error {
	fps := v.FPS
	if fps <= 0 {
		fps = 25
	}
	// yuv420p needs even dimensions.
	size.X += size.X % 2
	size.Y += size.Y % 2
	v.cmd = exec.Command("ffmpeg",
		"-y",
		"-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", size.X, size.Y),
		"-r", strconv.FormatFloat(fps, 'f', 3, 64),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		v.Path,
	)
	v.cmd.Stderr = &v.stderr
	stdin, err := v.cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := v.cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	v.stdin = stdin
	v.size = size
	v.frame = image.NewRGBA(image.Rectangle{Max: size})
	slog.Default().Info("video writer started", "path", v.Path, "size", size, "fps", fps)
	return nil
}

func (v *Video) Emit(ctx context.Context, img image.Image, meta Meta) error {
	if v.cmd == nil {
		if err := v.start(img.Bounds().Size()); err != nil {
			return err
		}
	}
	draw.Draw(v.frame, v.frame.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.Draw(v.frame, v.frame.Bounds(), img, img.Bounds().Min, draw.Src)
	if _, err := v.stdin.Write(v.frame.Pix); err != nil {
		return fmt.Errorf("write frame %d: %w (%s)", meta.FrameIndex, err, strings.TrimSpace(v.stderr.String()))
	}
	v.count++
	return nil
}

// Frames is the number of frames written.
func (v *Video) Frames() int { return v.count }

func (v *Video) Close() error {
	if v.cmd == nil {
		return nil
	}
	errIn := v.stdin.Close()
	errWait := v.cmd.Wait()
	if errWait != nil {
		errWait = fmt.Errorf("ffmpeg: %w (%s)", errWait, strings.TrimSpace(v.stderr.String()))
	}
	v.cmd = nil
	return errors.Join(errIn, errWait)
}
