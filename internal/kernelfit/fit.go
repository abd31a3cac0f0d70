package kernelfit

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/psfsim/internal/kernel"
	"github.com/banshee-data/psfsim/internal/monitoring"
	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/psfbin"
)

// Result is the outcome of one fit.
type Result struct {
	Params      kernel.Parameters
	Cost        float64
	InitialCost float64
	Iterations  int
	Evaluations int
	Termination Termination
	Elapsed     time.Duration
	Metrics     Metrics

	// Kernel is the fitted kernel at the target resolution and Diff is
	// |Kernel - Target|.
	Kernel      *psf.Image
	Diff        *psf.Image
	Target      *Target
	CostHistory []float64
}

// Fit prepares the entry's PSF as a target and fits the kernel to it.
func Fit(ctx context.Context, entry psfbin.Entry, s Settings) (*Result, error) {
	target, err := PrepareTarget(entry, s)
	if err != nil {
		return nil, fmt.Errorf("fitting: %w", err)
	}
	monitoring.Diagf("[KernelFit] target ellipse %.2fx%.2f at %.1f deg", target.Ellipse.Width, target.Ellipse.Height, target.Ellipse.AngleDegrees)
	res, err := FitTarget(ctx, target.Image, s)
	if res != nil {
		res.Target = target
	}
	return res, err
}

// FitTarget fits the kernel to an already prepared, normalized target of
// side s.TargetSize(). On cancellation the best parameters so far are
// returned together with the context error.
func FitTarget(ctx context.Context, target *psf.Image, s Settings) (*Result, error) {
	prob, err := newProblem(target, s.Taps())
	if err != nil {
		return nil, fmt.Errorf("fitting: %w", err)
	}
	initial, err := s.InitialParameters()
	if err != nil {
		return nil, fmt.Errorf("fitting: %w", err)
	}
	lower, upper := s.Bounds(len(initial.Components))

	clock := s.clock()
	start := clock.Now()
	monitoring.Opsf("[KernelFit] fitting %d component(s) with %v, target %dx%d", len(initial.Components), s.Method, target.Rows, target.Cols)

	var sr solverResult
	switch s.Method {
	case NelderMead:
		sr, err = nelderMead(ctx, prob, initial.Vector(), lower, upper, s)
	default:
		sr, err = dogleg(ctx, prob, initial.Vector(), lower, upper, s)
	}
	if sr.x == nil {
		return nil, fmt.Errorf("fitting: %w", err)
	}

	params, perr := kernel.FromVector(sr.x)
	if perr != nil {
		return nil, fmt.Errorf("fitting: %w", perr)
	}
	res := &Result{
		Params:      params,
		Cost:        sr.cost,
		InitialCost: sr.initialCost,
		Iterations:  sr.iterations,
		Evaluations: prob.evals,
		Termination: sr.termination,
		Elapsed:     clock.Since(start),
		CostHistory: sr.history,
	}
	if k, kerr := prob.kernel(sr.x); kerr == nil {
		if res.Kernel, kerr = k.Normalized(); kerr == nil {
			res.Diff, _ = psf.Diff(res.Kernel, target)
			res.Metrics = Compare(res.Kernel, target)
		}
	}
	monitoring.Opsf("[KernelFit] %v after %d iterations: cost %.6g -> %.6g (%v)",
		res.Termination, res.Iterations, res.InitialCost, res.Cost, res.Elapsed.Round(time.Millisecond))
	if err != nil {
		return res, fmt.Errorf("fitting: %w", err)
	}
	return res, nil
}

// Metrics compares a fitted kernel with its target.
type Metrics struct {
	MAV  float64 // mean absolute value of the difference
	MSE  float64
	RMSE float64
	PSNR float64 // dB relative to the target peak
}

// Compare computes the fit quality metrics of k against target.
func Compare(k, target *psf.Image) Metrics {
	var m Metrics
	if len(k.Pix) != len(target.Pix) || len(k.Pix) == 0 {
		return m
	}
	d, _ := psf.Diff(k, target)
	sq := make([]float64, len(d.Pix))
	for i, v := range d.Pix {
		sq[i] = v * v
	}
	m.MAV = stat.Mean(d.Pix, nil)
	m.MSE = stat.Mean(sq, nil)
	m.RMSE = math.Sqrt(m.MSE)
	peak := target.Max()
	if m.MSE > 0 && peak > 0 {
		m.PSNR = 10 * math.Log10(peak*peak/m.MSE)
	} else {
		m.PSNR = math.Inf(1)
	}
	return m
}
