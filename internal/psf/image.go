// Package psf holds the floating-point image type used for point-spread
// functions and kernels, the resampling helpers that move PSFs between
// angular and screen-space sampling, and the oracle contract through which
// PSFs are produced.
package psf

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrEmpty is returned when an image has no energy to normalize.
var ErrEmpty = errors.New("psf: image has zero or non-finite sum")

// Image is a dense row-major float64 image.
type Image struct {
	Rows, Cols int
	Pix        []float64
}

// New allocates a zeroed rows×cols image.
func New(rows, cols int) *Image {
	return &Image{Rows: rows, Cols: cols, Pix: make([]float64, rows*cols)}
}

// Delta returns the 1×1 identity PSF.
func Delta() *Image {
	return &Image{Rows: 1, Cols: 1, Pix: []float64{1}}
}

// FromRows builds an image from a slice of equal-length rows.
func FromRows(rows [][]float64) *Image {
	if len(rows) == 0 {
		return New(0, 0)
	}
	img := New(len(rows), len(rows[0]))
	for r, row := range rows {
		copy(img.Pix[r*img.Cols:(r+1)*img.Cols], row)
	}
	return img
}

// At returns the value at (row, col).
func (m *Image) At(r, c int) float64 { return m.Pix[r*m.Cols+c] }

// Set stores v at (row, col).
func (m *Image) Set(r, c int, v float64) { m.Pix[r*m.Cols+c] = v }

// Radius is the support radius of a square, odd-sized PSF.
func (m *Image) Radius() int { return m.Rows / 2 }

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	out := &Image{Rows: m.Rows, Cols: m.Cols, Pix: make([]float64, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// Sum returns the total energy.
func (m *Image) Sum() float64 {
	if len(m.Pix) == 0 {
		return 0
	}
	return floats.Sum(m.Pix)
}

// Max returns the largest value.
func (m *Image) Max() float64 {
	if len(m.Pix) == 0 {
		return 0
	}
	return floats.Max(m.Pix)
}

// Min returns the smallest value.
func (m *Image) Min() float64 {
	if len(m.Pix) == 0 {
		return 0
	}
	return floats.Min(m.Pix)
}

// Scale multiplies every value by f in place.
func (m *Image) Scale(f float64) {
	floats.Scale(f, m.Pix)
}

// Normalized returns a copy scaled to sum to 1.
func (m *Image) Normalized() (*Image, error) {
	s := m.Sum()
	if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return nil, ErrEmpty
	}
	out := m.Clone()
	out.Scale(1 / s)
	return out, nil
}

// NormalizedMax returns a copy scaled so its maximum is 1.
func (m *Image) NormalizedMax() (*Image, error) {
	mx := m.Max()
	if mx <= 0 || math.IsNaN(mx) || math.IsInf(mx, 0) {
		return nil, ErrEmpty
	}
	out := m.Clone()
	out.Scale(1 / mx)
	return out, nil
}

// Validate checks the shape invariants of a stored PSF: square, odd-sized,
// non-negative and finite.
func (m *Image) Validate() error {
	if m.Rows != m.Cols || m.Rows%2 != 1 {
		return fmt.Errorf("psf: want square odd-sized image, got %dx%d", m.Rows, m.Cols)
	}
	for i, v := range m.Pix {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("psf: invalid value %g at index %d", v, i)
		}
	}
	return nil
}

// Pad centres m inside a zeroed rows×cols image. The target must not be
// smaller than m.
func Pad(m *Image, rows, cols int) *Image {
	out := New(rows, cols)
	r0 := (rows - m.Rows) / 2
	c0 := (cols - m.Cols) / 2
	for r := 0; r < m.Rows; r++ {
		copy(out.Pix[(r+r0)*cols+c0:(r+r0)*cols+c0+m.Cols], m.Pix[r*m.Cols:(r+1)*m.Cols])
	}
	return out
}

// Crop copies the rows×cols window starting at (r0, c0), clipped to m.
func Crop(m *Image, r0, c0, rows, cols int) *Image {
	r0 = max(r0, 0)
	c0 = max(c0, 0)
	rows = min(rows, m.Rows-r0)
	cols = min(cols, m.Cols-c0)
	out := New(max(rows, 0), max(cols, 0))
	for r := 0; r < out.Rows; r++ {
		copy(out.Pix[r*out.Cols:(r+1)*out.Cols], m.Pix[(r0+r)*m.Cols+c0:(r0+r)*m.Cols+c0+out.Cols])
	}
	return out
}

// CropCentered crops a size×size window around the image centre. The window
// starts at centre - size/2 and ends at centre + size/2 inclusive, so even
// sizes grow by one to stay symmetric.
func CropCentered(m *Image, size int) *Image {
	start := max(m.Rows/2-size/2, 0)
	end := min(m.Rows/2+size/2+1, m.Rows)
	return Crop(m, start, start, end-start, end-start)
}

// Diff returns |a - b| element-wise. The images must have the same shape.
func Diff(a, b *Image) (*Image, error) {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		return nil, fmt.Errorf("psf: shape mismatch %dx%d vs %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	out := New(a.Rows, a.Cols)
	for i := range out.Pix {
		out.Pix[i] = math.Abs(a.Pix[i] - b.Pix[i])
	}
	return out, nil
}
