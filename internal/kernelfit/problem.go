package kernelfit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/psfsim/internal/kernel"
	"github.com/banshee-data/psfsim/internal/monitoring"
	"github.com/banshee-data/psfsim/internal/psf"
)

// costScale keeps the cost of well-fitted kernels in a readable range.
const costScale = 1e6

// problem is the least-squares formulation: residual i is
// (K_i/ΣK - T_i)·sqrt(costScale/N), so ‖r‖² equals the cost.
type problem struct {
	target []float64
	taps   int
	scale  float64
	evals  int
}

func newProblem(target *psf.Image, taps int) (*problem, error) {
	if target.Rows != 2*taps+1 || target.Cols != 2*taps+1 {
		return nil, fmt.Errorf("kernelfit: target is %dx%d, want %d", target.Rows, target.Cols, 2*taps+1)
	}
	n := len(target.Pix)
	return &problem{
		target: target.Pix,
		taps:   taps,
		scale:  math.Sqrt(costScale / float64(n)),
	}, nil
}

func (p *problem) kernel(x []float64) (*psf.Image, error) {
	params, err := kernel.FromVector(x)
	if err != nil {
		return nil, err
	}
	return kernel.Generate2D(params, p.taps, p.taps)
}

// residuals fills dst; a degenerate kernel yields NaN residuals.
func (p *problem) residuals(dst, x []float64) {
	p.evals++
	k, err := p.kernel(x)
	if err != nil {
		for i := range dst {
			dst[i] = math.NaN()
		}
		return
	}
	sum := k.Sum()
	for i, t := range p.target {
		dst[i] = (k.Pix[i]/sum - t) * p.scale
	}
}

func (p *problem) cost(x []float64) float64 {
	r := make([]float64, len(p.target))
	p.residuals(r, x)
	return floats.Dot(r, r)
}

// jacobian approximates ∂r/∂x by central differences with a step relative
// to max(|x_i|, 1).
func (p *problem) jacobian(dst *mat.Dense, x []float64, step float64) {
	scale := make([]float64, len(x))
	y := make([]float64, len(x))
	for i, v := range x {
		scale[i] = math.Max(math.Abs(v), 1)
		y[i] = v / scale[i]
	}
	xs := make([]float64, len(x))
	f := func(r, y []float64) {
		floats.MulTo(xs, y, scale)
		p.residuals(r, xs)
	}
	fd.Jacobian(dst, f, y, &fd.JacobianSettings{Formula: fd.Central, Step: step})
	for j, s := range scale {
		for i := 0; i < len(p.target); i++ {
			dst.Set(i, j, dst.At(i, j)/s)
		}
	}
	p.repairColumns(dst, x, scale, step)
}

func columnFinite(dst *mat.Dense, j int) bool {
	rows, _ := dst.Dims()
	for i := 0; i < rows; i++ {
		if !finite(dst.At(i, j)) {
			return false
		}
	}
	return true
}

// repairColumns replaces columns whose central difference touched a
// degenerate kernel with a one-sided difference towards the side that
// renders, or zeroes them when neither side does. A zero column freezes
// that variable for the step.
func (p *problem) repairColumns(dst *mat.Dense, x, scale []float64, step float64) {
	m := len(p.target)
	var r0 []float64
	r1 := make([]float64, m)
	xs := make([]float64, len(x))
	for j := range x {
		if columnFinite(dst, j) {
			continue
		}
		if r0 == nil {
			r0 = make([]float64, m)
			p.residuals(r0, x)
		}
		h := step * scale[j]
		repaired := false
		for _, sign := range []float64{1, -1} {
			copy(xs, x)
			xs[j] += sign * h
			p.residuals(r1, xs)
			ok := true
			for i := 0; i < m; i++ {
				d := sign * (r1[i] - r0[i]) / h
				if !finite(d) {
					ok = false
					break
				}
				dst.Set(i, j, d)
			}
			if ok {
				repaired = true
				break
			}
		}
		if !repaired {
			for i := 0; i < m; i++ {
				dst.Set(i, j, 0)
			}
		}
		monitoring.Tracef("[KernelFit] jacobian column %d hit a degenerate kernel, one-sided=%v", j, repaired)
	}
}

// Cost returns mean((K/ΣK - T)²)·1e6 for params against target, where K is
// rendered at the target's resolution.
func Cost(params kernel.Parameters, target *psf.Image) (float64, error) {
	if target.Rows%2 != 1 {
		return 0, fmt.Errorf("kernelfit: target must be odd-sized, got %d", target.Rows)
	}
	p, err := newProblem(target, target.Rows/2)
	if err != nil {
		return 0, err
	}
	c := p.cost(params.Vector())
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return c, fmt.Errorf("kernelfit: %w: cost %g", kernel.ErrDegenerateKernel, c)
	}
	return c, nil
}
