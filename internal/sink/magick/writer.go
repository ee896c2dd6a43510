// Package magick persists composites through ImageMagick.
package magick

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/gographics/imagick.v3/imagick"

	"panofuse/internal/imaging"
)

// Writer encodes with MagickWand, which covers formats the Go codecs do not
// (webp, jp2, heic, 16-bit tiff) and applies the configured quality.
type Writer struct {
	Quality int
}

func (w Writer) Write(path string, img image.Image) error {
	rgba := imaging.ToRGBA(img)
	b := rgba.Bounds()

	imagick.Initialize()
	defer imagick.Terminate()

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ConstituteImage(uint(b.Dx()), uint(b.Dy()), "RGBA", imagick.PIXEL_CHAR, rgba.Pix); err != nil {
		return fmt.Errorf("constitute image: %w", err)
	}
	if format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); format != "" {
		if err := mw.SetImageFormat(format); err != nil {
			return fmt.Errorf("set format %s: %w", format, err)
		}
	}
	if w.Quality > 0 {
		if err := mw.SetImageCompressionQuality(uint(w.Quality)); err != nil {
			return fmt.Errorf("set quality: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := mw.WriteImage(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
