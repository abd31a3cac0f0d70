package ellipse

import (
	"math"

	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/units"
)

// Alignment is the closed-form orientation handed to the real-time kernel.
type Alignment struct {
	Rotation    float64 // radians
	Ratio       float64 // width relative to the kernel footprint
	Contraction float64 // width / height
}

// Align derives the kernel alignment from e for a kernel kernelSizePx pixels
// wide.
func Align(e Ellipse, kernelSizePx float64) Alignment {
	a := Alignment{Rotation: units.Radians(e.AngleDegrees) - math.Pi/2}
	if kernelSizePx > 0 {
		a.Ratio = e.Width / kernelSizePx
	}
	if e.Height > 0 {
		a.Contraction = e.Width / e.Height
	}
	return a
}

// Unwarp rotates img by -angle about the image centre and stretches rows by
// width/height, mapping the fitted ellipse onto a circle of diameter Width.
// The output has the same size as img.
func Unwarp(img *psf.Image, e Ellipse) *psf.Image {
	sy := 1.0
	if e.Height > 0 {
		sy = e.Width / e.Height
	}
	cx, cy := float64(img.Cols)/2, float64(img.Rows)/2
	s2d := psf.RotateScaleAbout(cx, cy, -units.Radians(e.AngleDegrees), 1, sy)
	return psf.Warp(img, s2d, psf.BiLinear)
}
