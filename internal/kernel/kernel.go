// Package kernel evaluates the separable complex-exponential blur kernel
// used by the real-time renderer: a sum of up to three lobes
// exp(-a·x²)·(cos(b·x²), sin(b·x²)) combined with weights (A, B).
package kernel

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/psfsim/internal/psf"
)

// MaxComponents is the largest supported number of lobes.
const MaxComponents = 3

// ErrDegenerateKernel is returned when the kernel energy is not a positive
// finite number.
var ErrDegenerateKernel = errors.New("kernel: degenerate kernel")

// Component holds one lobe: LowerA/LowerB (a, b) shape the lobe and
// UpperA/UpperB (A, B) weight its real and imaginary parts.
type Component struct {
	LowerA float64 `json:"a"`
	LowerB float64 `json:"b"`
	UpperA float64 `json:"A"`
	UpperB float64 `json:"B"`
}

// Parameters is a complete kernel description. Radius is the lobe support
// in lobe coordinates.
type Parameters struct {
	Radius     float64     `json:"radius"`
	Components []Component `json:"components"`
}

// Validate checks the component count and that every value is finite.
func (p Parameters) Validate() error {
	if n := len(p.Components); n < 1 || n > MaxComponents {
		return fmt.Errorf("kernel: need 1-%d components, got %d", MaxComponents, n)
	}
	if !(p.Radius > 0) || math.IsInf(p.Radius, 0) {
		return fmt.Errorf("kernel: radius must be positive and finite, got %g", p.Radius)
	}
	for i, c := range p.Components {
		for _, v := range [4]float64{c.LowerA, c.LowerB, c.UpperA, c.UpperB} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("kernel: component %d has non-finite value %g", i, v)
			}
		}
	}
	return nil
}

// Vector flattens p as [radius, a0, b0, A0, B0, a1, ...].
func (p Parameters) Vector() []float64 {
	v := make([]float64, 0, 1+4*len(p.Components))
	v = append(v, p.Radius)
	for _, c := range p.Components {
		v = append(v, c.LowerA, c.LowerB, c.UpperA, c.UpperB)
	}
	return v
}

// FromVector is the inverse of Vector.
func FromVector(v []float64) (Parameters, error) {
	if len(v) < 5 || (len(v)-1)%4 != 0 {
		return Parameters{}, fmt.Errorf("kernel: invalid parameter vector length %d", len(v))
	}
	p := Parameters{Radius: v[0], Components: make([]Component, (len(v)-1)/4)}
	for i := range p.Components {
		o := 1 + 4*i
		p.Components[i] = Component{LowerA: v[o], LowerB: v[o+1], UpperA: v[o+2], UpperB: v[o+3]}
	}
	return p, nil
}

// Tap is one complex sample of a lobe profile.
type Tap struct {
	Re, Im float64
}

// ConvolutionKernel is the evaluated, energy-normalized separable kernel.
// Horizontal and Vertical are indexed [component][tap]. Offsets and Scales
// hold, per component, the bracketing of (h.Re, h.Im, v.Re, v.Im); the
// Bracketed profiles are (value - offset) / scale.
type ConvolutionKernel struct {
	Params               Parameters
	TapsH, TapsV         int
	Horizontal, Vertical [][]Tap
	Offsets, Scales      [][4]float64

	BracketedHorizontal, BracketedVertical [][]Tap
}

func lobe(a, b, x float64) Tap {
	x2 := x * x
	e := math.Exp(-a * x2)
	return Tap{Re: e * math.Cos(b*x2), Im: e * math.Sin(b*x2)}
}

func profile(radius float64, taps int, c Component) []Tap {
	out := make([]Tap, 2*taps+1)
	for i := -taps; i <= taps; i++ {
		x := 0.0
		if taps > 0 {
			x = radius * float64(i) / float64(taps)
		}
		out[i+taps] = lobe(c.LowerA, c.LowerB, x)
	}
	return out
}

func combine(c Component, h, v Tap) float64 {
	return c.UpperA*(h.Re*v.Re-h.Im*v.Im) + c.UpperB*(h.Re*v.Im+h.Im*v.Re)
}

// Compute evaluates p with tapsH horizontal and tapsV vertical taps on each
// side of the centre and scales the profiles so the 2D kernel sums to 1.
func Compute(p Parameters, tapsH, tapsV int) (*ConvolutionKernel, error) {
	if len(p.Components) == 0 {
		return nil, fmt.Errorf("kernel: no components")
	}
	if tapsH < 0 || tapsV < 0 {
		return nil, fmt.Errorf("kernel: negative tap count %d/%d", tapsH, tapsV)
	}
	n := len(p.Components)
	k := &ConvolutionKernel{
		Params:     p,
		TapsH:      tapsH,
		TapsV:      tapsV,
		Horizontal: make([][]Tap, n),
		Vertical:   make([][]Tap, n),
		Offsets:    make([][4]float64, n),
		Scales:     make([][4]float64, n),

		BracketedHorizontal: make([][]Tap, n),
		BracketedVertical:   make([][]Tap, n),
	}

	accum := 0.0
	for i, c := range p.Components {
		k.Horizontal[i] = profile(p.Radius, tapsH, c)
		k.Vertical[i] = profile(p.Radius, tapsV, c)
		for _, h := range k.Horizontal[i] {
			for _, v := range k.Vertical[i] {
				accum += combine(c, h, v)
			}
		}
	}
	if !(accum > 0) || math.IsInf(accum, 0) {
		return nil, fmt.Errorf("%w: energy %g", ErrDegenerateKernel, accum)
	}

	s := 1 / math.Sqrt(accum)
	for i := range p.Components {
		scaleTaps(k.Horizontal[i], s)
		scaleTaps(k.Vertical[i], s)
		k.Offsets[i], k.Scales[i] = bracket(k.Horizontal[i], k.Vertical[i])
		off, sc := k.Offsets[i], k.Scales[i]
		k.BracketedHorizontal[i] = bracketed(k.Horizontal[i], off[0], sc[0], off[1], sc[1])
		k.BracketedVertical[i] = bracketed(k.Vertical[i], off[2], sc[2], off[3], sc[3])
	}
	return k, nil
}

func scaleTaps(taps []Tap, s float64) {
	for i := range taps {
		taps[i].Re *= s
		taps[i].Im *= s
	}
}

func bracket(h, v []Tap) (off, scale [4]float64) {
	off = [4]float64{math.Inf(1), math.Inf(1), math.Inf(1), math.Inf(1)}
	for _, t := range h {
		off[0] = math.Min(off[0], t.Re)
		off[1] = math.Min(off[1], t.Im)
	}
	for _, t := range v {
		off[2] = math.Min(off[2], t.Re)
		off[3] = math.Min(off[3], t.Im)
	}
	for _, t := range h {
		scale[0] += t.Re - off[0]
		scale[1] += t.Im - off[1]
	}
	for _, t := range v {
		scale[2] += t.Re - off[2]
		scale[3] += t.Im - off[3]
	}
	return off, scale
}

func bracketed(taps []Tap, offRe, scRe, offIm, scIm float64) []Tap {
	out := make([]Tap, len(taps))
	for i, t := range taps {
		if scRe != 0 {
			out[i].Re = (t.Re - offRe) / scRe
		}
		if scIm != 0 {
			out[i].Im = (t.Im - offIm) / scIm
		}
	}
	return out
}

// Image renders the 2D kernel: rows follow the vertical profile and columns
// the horizontal one.
func (k *ConvolutionKernel) Image() *psf.Image {
	img := psf.New(2*k.TapsV+1, 2*k.TapsH+1)
	for i, c := range k.Params.Components {
		for r, v := range k.Vertical[i] {
			for col, h := range k.Horizontal[i] {
				img.Pix[r*img.Cols+col] += combine(c, h, v)
			}
		}
	}
	return img
}

// Generate2D evaluates p and renders the normalized 2D kernel.
func Generate2D(p Parameters, tapsH, tapsV int) (*psf.Image, error) {
	k, err := Compute(p, tapsH, tapsV)
	if err != nil {
		return nil, err
	}
	return k.Image(), nil
}
