package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"panofuse/internal/imaging"
)

// FFmpeg decodes a video through an ffmpeg rawvideo pipe.
type FFmpeg struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout *bufio.Reader
	stderr bytes.Buffer
	info   Info
	next   int
	start  time.Time
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

// Probe reads stream geometry and rate with ffprobe.
func Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("%w: ffprobe %s: %v", ErrCaptureFailed, path, err)
	}
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return Info{}, fmt.Errorf("%w: parse ffprobe output: %v", ErrCaptureFailed, err)
	}
	if len(probe.Streams) == 0 {
		return Info{}, fmt.Errorf("%w: no video stream in %s", ErrCaptureFailed, path)
	}
	s := probe.Streams[0]
	info := Info{Name: path, Width: s.Width, Height: s.Height}
	info.FPS = parseRate(s.AvgFrameRate)
	if info.FPS == 0 {
		info.FPS = parseRate(s.RFrameRate)
	}
	info.Length, _ = strconv.Atoi(s.NbFrames)
	return info, nil
}

func parseRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	if !ok {
		v, _ := strconv.ParseFloat(r, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// OpenFFmpeg starts decoding path.
func OpenFFmpeg(path string) (*FFmpeg, error) {
	info, err := Probe(context.Background(), path)
	if err != nil {
		return nil, err
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: unknown frame size for %s", ErrCaptureFailed, path)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)
	f := &FFmpeg{cmd: cmd, cancel: cancel, info: info, start: time.Now()}
	cmd.Stderr = &f.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrCaptureFailed, err)
	}
	f.stdout = bufio.NewReaderSize(stdout, 4*info.Width*info.Height)

	slog.Default().Info("video opened",
		"path", path,
		"length", info.Length,
		"width", info.Width,
		"height", info.Height,
		"fps", info.FPS,
	)
	return f, nil
}

func (f *FFmpeg) Read(ctx context.Context) (imaging.Frame, error) {
	if err := ctx.Err(); err != nil {
		return imaging.Frame{}, err
	}
	img := image.NewRGBA(image.Rect(0, 0, f.info.Width, f.info.Height))
	if _, err := io.ReadFull(f.stdout, img.Pix); err != nil {
		if errors.Is(err, io.EOF) {
			return imaging.Frame{}, ErrCaptureExhausted
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return imaging.Frame{}, fmt.Errorf("%w: truncated frame: %s", ErrCaptureFailed, strings.TrimSpace(f.stderr.String()))
		}
		return imaging.Frame{}, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	idx := f.next
	f.next++
	ts := f.start
	if f.info.FPS > 0 {
		ts = ts.Add(time.Duration(float64(idx) / f.info.FPS * float64(time.Second)))
	}
	return imaging.Frame{Index: idx, Timestamp: ts, Image: img}, nil
}

func (f *FFmpeg) Info() Info { return f.info }

func (f *FFmpeg) Close() error {
	f.cancel()
	err := f.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Killed by cancel; not a decode failure.
		return nil
	}
	return err
}

// FFmpegOpener opens video files when ffmpeg and ffprobe are on PATH.
type FFmpegOpener struct{}

func (FFmpegOpener) Name() string { return "ffmpeg" }

func (FFmpegOpener) IsAvailable() bool {
	_, err1 := exec.LookPath("ffmpeg")
	_, err2 := exec.LookPath("ffprobe")
	return err1 == nil && err2 == nil
}

func (FFmpegOpener) CanOpen(path string) bool { return IsVideoFile(path) }

func (FFmpegOpener) Open(path string) (Source, error) { return OpenFFmpeg(path) }
