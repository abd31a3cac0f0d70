package psf

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Interpolation selects the resampling filter used when resizing or warping
// PSFs.
type Interpolation int

const (
	Nearest Interpolation = iota
	BiLinear
	CatmullRom
)

var interpolations = []struct {
	Name  string
	Value Interpolation
}{
	{"nearest", Nearest},
	{"bilinear", BiLinear},
	{"catmullrom", CatmullRom},
}

// ParseInterpolation looks up an interpolation by name.
func ParseInterpolation(name string) (Interpolation, error) {
	for _, d := range interpolations {
		if d.Name == name {
			return d.Value, nil
		}
	}
	return 0, fmt.Errorf("psf: unknown interpolation %q", name)
}

func (i Interpolation) String() string {
	for _, d := range interpolations {
		if d.Value == i {
			return d.Name
		}
	}
	return fmt.Sprintf("Interpolation(%d)", int(i))
}

func (i Interpolation) interpolator() draw.Interpolator {
	switch i {
	case Nearest:
		return draw.NearestNeighbor
	case CatmullRom:
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}

// ResampleQuantum is the precision of Resize and Warp relative to the peak.
// Resampling goes through x/image/draw, which works at 16 bits per channel,
// so every resample quantizes to the peak: values carry an
// absolute error of up to Max()/(2·65535), about 7.6e-6 of the peak, and
// tails below that level become zero. Same-size Resize is exact.
const ResampleQuantum = 1.0 / 0xffff

// toGray16 quantizes m into a 16-bit image scaled by its maximum. Negative
// values clamp to zero. The returned scale maps gray levels back to values.
func toGray16(m *Image) (*image.Gray16, float64) {
	g := image.NewGray16(image.Rect(0, 0, m.Cols, m.Rows))
	scale := m.Max()
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return g, 0
	}
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			v := m.At(r, c) / scale
			v = math.Min(math.Max(v, 0), 1)
			off := g.PixOffset(c, r)
			q := uint16(math.Round(v * 0xffff))
			g.Pix[off] = uint8(q >> 8)
			g.Pix[off+1] = uint8(q)
		}
	}
	return g, scale
}

func fromGray16(g *image.Gray16, scale float64) *Image {
	b := g.Bounds()
	out := New(b.Dy(), b.Dx())
	for r := 0; r < out.Rows; r++ {
		for c := 0; c < out.Cols; c++ {
			off := g.PixOffset(b.Min.X+c, b.Min.Y+r)
			q := uint16(g.Pix[off])<<8 | uint16(g.Pix[off+1])
			out.Set(r, c, float64(q)/0xffff*scale)
		}
	}
	return out
}

// Resize resamples m to rows×cols. Same-size requests return a copy;
// otherwise the result is quantized to ResampleQuantum of the peak.
func Resize(m *Image, rows, cols int, interp Interpolation) *Image {
	if rows == m.Rows && cols == m.Cols {
		return m.Clone()
	}
	if m.Rows == 0 || m.Cols == 0 || rows <= 0 || cols <= 0 {
		return New(max(rows, 0), max(cols, 0))
	}
	src, scale := toGray16(m)
	if scale == 0 {
		return New(rows, cols)
	}
	dst := image.NewGray16(image.Rect(0, 0, cols, rows))
	interp.interpolator().Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return fromGray16(dst, scale)
}

// ResizeToRadius resamples a PSF so that its support radius is radius
// pixels. Fractional radii blend the floor and ceil resamples by the
// fractional part, each normalized first. The result sums to 1.
func ResizeToRadius(m *Image, radius float64, interp Interpolation) (*Image, error) {
	if radius < 1e-3 {
		return Resize(m, 1, 1, interp).Normalized()
	}
	hi := int(math.Ceil(radius))
	lo := int(math.Floor(radius))

	larger, err := Resize(m, 2*hi+1, 2*hi+1, interp).Normalized()
	if err != nil {
		return nil, err
	}
	if hi == lo {
		return larger, nil
	}
	smaller, err := Resize(m, 2*lo+1, 2*lo+1, interp).Normalized()
	if err != nil {
		return nil, err
	}
	smaller = Pad(smaller, larger.Rows, larger.Cols)

	frac := radius - float64(lo)
	out := New(larger.Rows, larger.Cols)
	for i := range out.Pix {
		out.Pix[i] = (1-frac)*smaller.Pix[i] + frac*larger.Pix[i]
	}
	return out.Normalized()
}

// Warp applies the affine map s2d, taking source coordinates to destination
// coordinates, and returns an image of the same size as m. Coordinates are
// continuous with pixel centres at +0.5, so the centre of an n×n image is
// (n/2, n/2). Destination pixels that map outside the source are zero.
// Values are quantized to ResampleQuantum of the peak.
func Warp(m *Image, s2d f64.Aff3, interp Interpolation) *Image {
	src, scale := toGray16(m)
	if scale == 0 {
		return New(m.Rows, m.Cols)
	}
	dst := image.NewGray16(image.Rect(0, 0, m.Cols, m.Rows))
	interp.interpolator().Transform(dst, s2d, src, src.Bounds(), draw.Src, nil)
	return fromGray16(dst, scale)
}

// RotateScaleAbout builds the affine map that translates centre (cx, cy) to
// the origin, rotates by angle radians, scales x by sx and y by sy, and
// translates back.
func RotateScaleAbout(cx, cy, angle, sx, sy float64) f64.Aff3 {
	cos, sin := math.Cos(angle), math.Sin(angle)
	a := sx * cos
	b := -sx * sin
	d := sy * sin
	e := sy * cos
	return f64.Aff3{
		a, b, cx - a*cx - b*cy,
		d, e, cy - d*cx - e*cy,
	}
}
