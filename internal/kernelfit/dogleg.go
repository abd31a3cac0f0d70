package kernelfit

import (
	"context"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/psfsim/internal/kernel"
	"github.com/banshee-data/psfsim/internal/monitoring"
)

// Termination says why a solver stopped.
type Termination int

const (
	Converged Termination = iota
	IterationLimit
	TimeLimit
	Cancelled
)

var terminations = []struct {
	Name  string
	Value Termination
}{
	{"converged", Converged},
	{"iteration-limit", IterationLimit},
	{"time-limit", TimeLimit},
	{"cancelled", Cancelled},
}

func (t Termination) String() string {
	for _, d := range terminations {
		if d.Value == t {
			return d.Name
		}
	}
	return fmt.Sprintf("Termination(%d)", int(t))
}

const (
	initialTrustRadius = 0.1
	maxTrustRadius     = 100
	minTrustRadius     = 1e-12
	functionTolerance  = 1e-8
	gradientTolerance  = 1e-12
)

type solverResult struct {
	x           []float64
	cost        float64
	initialCost float64
	iterations  int
	termination Termination
	history     []float64
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// dogleg minimizes ‖r(x)‖² inside [lower, upper] with a trust-region dogleg
// method. Steps are projected onto the box and variables held at a bound by
// the gradient are frozen for the step. The best iterate is returned on
// budget exhaustion.
func dogleg(ctx context.Context, p *problem, x0, lower, upper []float64, s Settings) (solverResult, error) {
	n, m := len(x0), len(p.target)
	x := slices.Clone(x0)
	project(x, lower, upper)

	r := make([]float64, m)
	p.residuals(r, x)
	f := floats.Dot(r, r)
	if !finite(f) {
		return solverResult{}, fmt.Errorf("%w: initial cost %g", kernel.ErrDegenerateKernel, f)
	}
	res := solverResult{initialCost: f, history: []float64{f}}

	clock := s.clock()
	start := clock.Now()
	delta := initialTrustRadius
	jac := mat.NewDense(m, n, nil)
	trial := make([]float64, n)
	step := make([]float64, n)
	rt := make([]float64, m)

	finish := func(t Termination) (solverResult, error) {
		res.x, res.cost, res.termination = x, f, t
		return res, nil
	}

	for iter := 0; ; iter++ {
		res.iterations = iter
		if iter >= s.MaxIterations {
			return finish(IterationLimit)
		}
		if err := ctx.Err(); err != nil {
			res.x, res.cost, res.termination = x, f, Cancelled
			return res, err
		}
		if s.MaxDuration > 0 && clock.Now().Sub(start) >= s.MaxDuration {
			return finish(TimeLimit)
		}

		p.jacobian(jac, x, s.DiffStepSize)
		rv := mat.NewVecDense(m, r)
		var g mat.VecDense
		g.MulVec(jac.T(), rv)

		// Freeze variables pinned at a bound by the gradient.
		free := 0
		for i := 0; i < n; i++ {
			gi := g.AtVec(i)
			if (x[i] <= lower[i] && gi > 0) || (x[i] >= upper[i] && gi < 0) {
				g.SetVec(i, 0)
				for k := 0; k < m; k++ {
					jac.Set(k, i, 0)
				}
				continue
			}
			free++
		}
		if free == 0 || mat.Norm(&g, 2) < gradientTolerance {
			return finish(Converged)
		}

		doglegStep(step, jac, &g, delta)
		copy(trial, x)
		floats.Add(trial, step)
		project(trial, lower, upper)
		floats.SubTo(step, trial, x)
		stepNorm := floats.Norm(step, 2)
		if stepNorm == 0 {
			return finish(Converged)
		}

		ft := math.NaN()
		if finite(stepNorm) {
			p.residuals(rt, trial)
			ft = floats.Dot(rt, rt)
		}
		if !finite(ft) {
			// A non-finite step norm must not leak into delta.
			if finite(stepNorm) {
				delta = 0.25 * math.Min(delta, stepNorm)
			} else {
				delta *= 0.25
			}
			monitoring.Tracef("[KernelFit] iter=%d rejected non-finite trial, radius=%.3g", iter, delta)
			if delta < minTrustRadius {
				return finish(Converged)
			}
			continue
		}

		// Predicted reduction of the linear model for the projected step.
		var jp mat.VecDense
		jp.MulVec(jac, mat.NewVecDense(n, step))
		pred := f
		for k := 0; k < m; k++ {
			v := r[k] + jp.AtVec(k)
			pred -= v * v
		}
		rho := -1.0
		if pred > 0 {
			rho = (f - ft) / pred
		}
		switch {
		case rho < 0.25:
			delta = 0.25 * stepNorm
		case rho > 0.75 && stepNorm >= 0.99*delta:
			delta = math.Min(2*delta, maxTrustRadius)
		}

		if ft < f {
			improvement := f - ft
			copy(x, trial)
			copy(r, rt)
			f = ft
			res.history = append(res.history, f)
			monitoring.Tracef("[KernelFit] iter=%d cost=%.6g radius=%.3g", iter, f, delta)
			if improvement <= functionTolerance*(f+improvement) {
				res.iterations = iter + 1
				return finish(Converged)
			}
		}
		if delta < minTrustRadius {
			res.iterations = iter + 1
			return finish(Converged)
		}
	}
}

// doglegStep writes into dst the dogleg step for the linearized problem
// min ‖J·p + r‖ with gradient g = Jᵀr inside a ball of radius delta.
func doglegStep(dst []float64, jac *mat.Dense, g *mat.VecDense, delta float64) {
	n := g.Len()
	gNorm := mat.Norm(g, 2)

	// Steepest-descent minimizer along -g.
	var jg mat.VecDense
	jg.MulVec(jac, g)
	jgNorm2 := mat.Dot(&jg, &jg)
	sd := mat.NewVecDense(n, nil)
	if jgNorm2 > 0 {
		sd.ScaleVec(-gNorm*gNorm/jgNorm2, g)
	} else {
		sd.ScaleVec(-delta/gNorm, g)
	}

	// Gauss-Newton step from lightly damped normal equations.
	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())
	diagMax := 0.0
	for i := 0; i < n; i++ {
		diagMax = math.Max(diagMax, jtj.At(i, i))
	}
	mu := 1e-10*diagMax + 1e-14
	for i := 0; i < n; i++ {
		jtj.SetSym(i, i, jtj.At(i, i)+mu)
	}
	var chol mat.Cholesky
	gn := mat.NewVecDense(n, nil)
	ok := chol.Factorize(&jtj)
	if ok {
		if err := chol.SolveVecTo(gn, g); err != nil {
			ok = false
		}
		gn.ScaleVec(-1, gn)
	}

	out := mat.NewVecDense(n, dst)
	switch {
	case ok && mat.Norm(gn, 2) <= delta:
		out.CopyVec(gn)
	case !ok || mat.Norm(sd, 2) >= delta:
		out.ScaleVec(-delta/gNorm, g)
	default:
		// Walk from the Cauchy point towards the Gauss-Newton point until
		// the trust-region boundary.
		d := mat.NewVecDense(n, nil)
		d.SubVec(gn, sd)
		a := mat.Dot(d, d)
		b := 2 * mat.Dot(sd, d)
		c := mat.Dot(sd, sd) - delta*delta
		tau := (-b + math.Sqrt(b*b-4*a*c)) / (2 * a)
		out.AddScaledVec(sd, tau, d)
	}
}
