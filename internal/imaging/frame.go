package imaging

import (
	"image"
	"time"
)

// Frame is one captured picture. Frames are not modified after capture.
type Frame struct {
	Index     int
	Timestamp time.Time
	Image     *image.RGBA
}

func (f Frame) Width() int  { return f.Image.Bounds().Dx() }
func (f Frame) Height() int { return f.Image.Bounds().Dy() }
