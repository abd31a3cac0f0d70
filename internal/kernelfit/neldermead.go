package kernelfit

import (
	"context"
	"errors"
	"math"
	"slices"

	"gonum.org/v1/gonum/optimize"
)

var errStop = errors.New("kernelfit: stop requested")

// nelderMead minimizes the cost with x clamped to the box before every
// evaluation. The iteration budget maps to major iterations and the
// wall-clock budget and context are checked by a recorder.
func nelderMead(ctx context.Context, p *problem, x0, lower, upper []float64, s Settings) (solverResult, error) {
	x := slices.Clone(x0)
	project(x, lower, upper)
	initial := p.cost(x)
	res := solverResult{initialCost: initial, history: []float64{initial}}

	clamped := make([]float64, len(x))
	prob := optimize.Problem{
		Func: func(v []float64) float64 {
			copy(clamped, v)
			project(clamped, lower, upper)
			c := p.cost(clamped)
			if !finite(c) {
				return math.Inf(1)
			}
			return c
		},
	}

	clock := s.clock()
	start := clock.Now()
	rec := &budgetRecorder{ctx: ctx, check: func() Termination {
		if s.MaxDuration > 0 && clock.Now().Sub(start) >= s.MaxDuration {
			return TimeLimit
		}
		return Converged
	}}
	settings := &optimize.Settings{
		MajorIterations: s.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   functionTolerance,
			Relative:   functionTolerance,
			Iterations: 50,
		},
		Recorder: rec,
	}

	out, err := optimize.Minimize(prob, x, settings, &optimize.NelderMead{})
	if out == nil {
		return res, err
	}
	best := slices.Clone(out.X)
	project(best, lower, upper)
	res.x = best
	res.cost = out.F
	res.iterations = out.Stats.MajorIterations
	res.history = append(res.history, out.F)

	switch {
	case rec.stopped == Cancelled:
		res.termination = Cancelled
		return res, ctx.Err()
	case rec.stopped == TimeLimit:
		res.termination = TimeLimit
	case out.Status == optimize.IterationLimit:
		res.termination = IterationLimit
	default:
		res.termination = Converged
	}
	if err != nil && !errors.Is(err, errStop) && rec.stopped == Converged {
		return res, err
	}
	return res, nil
}

// budgetRecorder aborts the simplex search when the context is done or the
// wall-clock budget runs out.
type budgetRecorder struct {
	ctx     context.Context
	check   func() Termination
	stopped Termination
}

func (r *budgetRecorder) Init() error { return nil }

func (r *budgetRecorder) Record(_ *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if op != optimize.MajorIteration {
		return nil
	}
	if r.ctx.Err() != nil {
		r.stopped = Cancelled
		return errStop
	}
	if t := r.check(); t != Converged {
		r.stopped = t
		return errStop
	}
	return nil
}
