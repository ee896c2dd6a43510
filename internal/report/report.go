// Package report renders per-run diagnostics plots.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"panofuse/internal/stitch"
)

var (
	matchColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	inlierColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	blendColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Files lists the plots written for one run.
type Files struct {
	Registration string
	Blend        string
}

// Render writes a registration plot (matches and inliers per frame) and a
// blend time plot into dir.
func Render(dir, runID string, events []stitch.FrameEvent) (Files, error) {
	if len(events) == 0 {
		return Files{}, errors.New("report: no frame events")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Files{}, fmt.Errorf("create report dir: %w", err)
	}
	sorted := append([]stitch.FrameEvent(nil), events...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Index < sorted[b].Index })

	matches := make(plotter.XYs, 0, len(sorted))
	inliers := make(plotter.XYs, 0, len(sorted))
	blend := make(plotter.XYs, 0, len(sorted))
	for _, ev := range sorted {
		x := float64(ev.Index)
		matches = append(matches, plotter.XY{X: x, Y: float64(ev.Matches)})
		inliers = append(inliers, plotter.XY{X: x, Y: float64(ev.Inliers)})
		if ev.Outcome == stitch.OutcomeFused || ev.Outcome == stitch.OutcomeComposed {
			blend = append(blend, plotter.XY{X: x, Y: float64(ev.Blend.Microseconds()) / 1000})
		}
	}

	files := Files{
		Registration: filepath.Join(dir, runID+"_registration.png"),
		Blend:        filepath.Join(dir, runID+"_blend.png"),
	}

	pReg := plot.New()
	pReg.Title.Text = fmt.Sprintf("%s - Correspondences", runID)
	pReg.X.Label.Text = "Frame"
	pReg.Y.Label.Text = "Pairs"
	if err := addLine(pReg, matches, "matches", matchColor); err != nil {
		return Files{}, err
	}
	if err := addLine(pReg, inliers, "inliers", inlierColor); err != nil {
		return Files{}, err
	}
	pReg.Legend.Top = true
	if err := pReg.Save(10*vg.Inch, 4*vg.Inch, files.Registration); err != nil {
		return Files{}, fmt.Errorf("save registration plot: %w", err)
	}

	pBlend := plot.New()
	pBlend.Title.Text = fmt.Sprintf("%s - Blend Time", runID)
	pBlend.X.Label.Text = "Frame"
	pBlend.Y.Label.Text = "ms"
	if len(blend) > 0 {
		if err := addLine(pBlend, blend, "blend", blendColor); err != nil {
			return Files{}, err
		}
	}
	if err := pBlend.Save(10*vg.Inch, 4*vg.Inch, files.Blend); err != nil {
		return Files{}, fmt.Errorf("save blend plot: %w", err)
	}
	return files, nil
}

func addLine(p *plot.Plot, pts plotter.XYs, label string, c color.Color) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}
