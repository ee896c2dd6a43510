//go:build withcv

package cvbridge

import (
	"context"
	"image"

	"gocv.io/x/gocv"

	"panofuse/internal/sink"
)

const keyQuit = 'q'

// Window shows composites in a HighGUI window. Pressing q requests a stop.
// HighGUI must be driven from the thread that created the window.
type Window struct {
	win  *gocv.Window
	quit bool
}

// NewWindow opens a titled preview window.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

func (w *Window) Emit(ctx context.Context, img image.Image, meta sink.Meta) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return err
	}
	defer mat.Close()
	w.win.IMShow(mat)
	if w.win.WaitKey(1)&0xFF == keyQuit {
		w.quit = true
	}
	return nil
}

func (w *Window) QuitRequested() bool { return w.quit }

func (w *Window) Close() error { return w.win.Close() }
