package report

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/psfsim/internal/psf"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// centreRow returns the middle row of m against the column offset from the
// centre column.
func centreRow(m *psf.Image) plotter.XYs {
	r := m.Rows / 2
	c0 := m.Cols / 2
	pts := make(plotter.XYs, m.Cols)
	for c := range m.Cols {
		pts[c] = plotter.XY{X: float64(c - c0), Y: m.At(r, c)}
	}
	return pts
}

func centreCol(m *psf.Image) plotter.XYs {
	r0 := m.Rows / 2
	c := m.Cols / 2
	pts := make(plotter.XYs, m.Rows)
	for r := range m.Rows {
		pts[r] = plotter.XY{X: float64(r - r0), Y: m.At(r, c)}
	}
	return pts
}

func writePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("report: write png: %w", err)
	}
	return nil
}

// KernelProfile plots the centre row and column of kernel, and the centre
// row of target when one is given, as a PNG.
func KernelProfile(w io.Writer, kernel, target *psf.Image) error {
	if kernel == nil || kernel.Rows == 0 || kernel.Cols == 0 {
		return errors.New("report: empty kernel")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Kernel profile %dx%d", kernel.Rows, kernel.Cols)
	p.X.Label.Text = "offset (px)"
	p.Y.Label.Text = "weight"
	p.Add(plotter.NewGrid())

	series := []any{"kernel row", centreRow(kernel), "kernel column", centreCol(kernel)}
	if target != nil && target.Rows > 0 && target.Cols > 0 {
		series = append(series, "target row", centreRow(target))
	}
	if err := plotutil.AddLinePoints(p, series...); err != nil {
		return fmt.Errorf("report: kernel profile: %w", err)
	}
	return writePNG(w, p)
}

// CostHistory plots the cost after each solver iteration as a PNG. The cost
// axis is logarithmic when every value is positive.
func CostHistory(w io.Writer, history []float64) error {
	if len(history) == 0 {
		return errors.New("report: empty cost history")
	}
	pts := make(plotter.XYs, len(history))
	for i, v := range history {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}

	p := plot.New()
	p.Title.Text = "Fit cost"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "cost"
	p.Add(plotter.NewGrid())
	if slices.Min(history) > 0 {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("report: cost history: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = plotutil.Color(0)
	p.Add(line)
	return writePNG(w, p)
}
