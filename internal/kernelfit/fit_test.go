package kernelfit

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/psfsim/internal/kernel"
	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/psfbin"
	"github.com/banshee-data/psfsim/internal/timeutil"
)

func testSettings() Settings {
	s := DefaultSettings()
	s.Clock = timeutil.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return s
}

func renderTarget(t *testing.T, p kernel.Parameters, s Settings) *psf.Image {
	t.Helper()
	img, err := kernel.Generate2D(p, s.Taps(), s.Taps())
	require.NoError(t, err)
	return img
}

func TestSettingsDefaults(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, Dogleg, s.Method)
	assert.Equal(t, 1, s.Components)
	assert.Equal(t, 8, s.TapsRadius)
	assert.Equal(t, 17, s.TargetSize())
	assert.Equal(t, kernel.Component{LowerA: 1, LowerB: 0, UpperA: 1, UpperB: 0}, s.InitialComponent)
	assert.Equal(t, 1.5, s.InitialRadius)
	assert.Equal(t, [2]float64{1, 3}, s.RadiusLimits)
	assert.Equal(t, 1000, s.MaxIterations)
	assert.Equal(t, 10*time.Minute, s.MaxDuration)
	assert.Equal(t, 0.05, s.EllipseThreshold)
	assert.Equal(t, 35.0, s.TargetDefocus)

	lower, upper := s.Bounds(2)
	assert.Len(t, lower, 9)
	assert.Len(t, upper, 9)
}

func TestInitialParametersClamped(t *testing.T) {
	s := DefaultSettings()
	s.Components = 3
	p, err := s.InitialParameters()
	require.NoError(t, err)
	require.Len(t, p.Components, 3)
	for _, v := range p.Vector()[1:] {
		assert.LessOrEqual(t, math.Abs(v), 5.0)
	}
	assert.Equal(t, 5.0, p.Components[2].UpperB)
}

func TestFitTargetConvergesOnGaussian(t *testing.T) {
	s := testSettings()
	target := renderTarget(t, kernel.Gaussian(1), s)

	res, err := FitTarget(context.Background(), target, s)
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Termination)
	assert.Less(t, res.Cost, 1e-6)
	assert.Less(t, res.Cost, res.InitialCost)
	require.NotNil(t, res.Kernel)
	assert.InDelta(t, 1.0, res.Kernel.Sum(), 1e-9)
	assert.Less(t, res.Diff.Max(), 1e-4)
	assert.Less(t, res.Metrics.RMSE, 1e-4)
	assert.Greater(t, res.Metrics.PSNR, 40.0)
}

func TestFitTargetConvergesOnComplexLobe(t *testing.T) {
	s := testSettings()
	s.InitialComponent = kernel.Component{LowerA: 1, LowerB: 0.1, UpperA: 1, UpperB: 0.1}
	want := kernel.Parameters{Radius: 2, Components: []kernel.Component{{LowerA: 0.6, LowerB: 0.5, UpperA: 1, UpperB: 0.3}}}
	target := renderTarget(t, want, s)

	res, err := FitTarget(context.Background(), target, s)
	require.NoError(t, err)
	assert.Less(t, res.Cost, 1e-6)

	got, err := Cost(res.Params, target)
	require.NoError(t, err)
	assert.InDelta(t, res.Cost, got, 1e-9)
}

func TestFitTargetTimeBudget(t *testing.T) {
	s := testSettings()
	s.Clock.(*timeutil.MockClock).SetStep(time.Minute)
	s.MaxDuration = 3 * time.Minute
	target := renderTarget(t, kernel.Gaussian(1), s)

	res, err := FitTarget(context.Background(), target, s)
	require.NoError(t, err)
	assert.Equal(t, TimeLimit, res.Termination)
	assert.LessOrEqual(t, res.Cost, res.InitialCost)
	assert.Equal(t, 2, res.Iterations)
}

func TestFitTargetIterationBudget(t *testing.T) {
	s := testSettings()
	s.MaxIterations = 1
	target := renderTarget(t, kernel.Gaussian(1), s)

	res, err := FitTarget(context.Background(), target, s)
	require.NoError(t, err)
	assert.Equal(t, IterationLimit, res.Termination)
	assert.LessOrEqual(t, res.Cost, res.InitialCost)
}

func TestJacobianFiniteNextToDegenerateKernel(t *testing.T) {
	s := testSettings()
	target := renderTarget(t, kernel.Gaussian(1), s)
	p, err := newProblem(target, s.Taps())
	require.NoError(t, err)

	x := kernel.Parameters{Radius: 1.5, Components: []kernel.Component{{LowerA: 1, LowerB: 0, UpperA: 1e-7, UpperB: 0}}}.Vector()
	jac := mat.NewDense(len(target.Pix), len(x), nil)
	p.jacobian(jac, x, s.DiffStepSize)
	rows, cols := jac.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			require.Truef(t, finite(jac.At(i, j)), "jacobian(%d,%d) = %v", i, j, jac.At(i, j))
		}
	}
}

func TestFitTargetStartingNextToDegenerateKernel(t *testing.T) {
	s := testSettings()
	s.MaxIterations = 200
	s.InitialComponent = kernel.Component{LowerA: 1, LowerB: 0, UpperA: 1e-7, UpperB: 0}
	target := renderTarget(t, kernel.Gaussian(1), s)

	res, err := FitTarget(context.Background(), target, s)
	require.NoError(t, err)
	assert.Less(t, res.Cost, res.InitialCost)
	assert.NotEqual(t, s.InitialComponent, res.Params.Components[0])
	assert.False(t, math.IsNaN(res.Cost))
}

func TestFitTargetCancelled(t *testing.T) {
	s := testSettings()
	target := renderTarget(t, kernel.Gaussian(1), s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := FitTarget(ctx, target, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, res)
	assert.Equal(t, Cancelled, res.Termination)
}

func TestFitTargetNelderMead(t *testing.T) {
	s := testSettings()
	s.Method = NelderMead
	target := renderTarget(t, kernel.Gaussian(1), s)

	res, err := FitTarget(context.Background(), target, s)
	require.NoError(t, err)
	assert.Less(t, res.Cost, res.InitialCost/10)
	for i, v := range res.Params.Vector() {
		lower, upper := s.Bounds(1)
		assert.GreaterOrEqual(t, v, lower[i])
		assert.LessOrEqual(t, v, upper[i])
	}
}

func TestFitTargetWrongSize(t *testing.T) {
	_, err := FitTarget(context.Background(), psf.New(5, 5), testSettings())
	assert.Error(t, err)
}

func TestCostDegenerate(t *testing.T) {
	target := psf.New(5, 5)
	p := kernel.Parameters{Radius: 1, Components: []kernel.Component{{LowerA: 1}}}
	_, err := Cost(p, target)
	assert.ErrorIs(t, err, kernel.ErrDegenerateKernel)
}

func TestPrepareTargetDisk(t *testing.T) {
	n := 41
	img := psf.New(n, n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if math.Hypot(float64(r-20), float64(c-20)) <= 12 {
				img.Set(r, c, 1)
			}
		}
	}
	s := testSettings()
	target, err := PrepareTarget(psfbin.Entry{PSF: img, Radius: 12}, s)
	require.NoError(t, err)
	assert.Equal(t, s.TargetSize(), target.Image.Rows)
	assert.InDelta(t, 1.0, target.Image.Sum(), 1e-9)
	assert.InDelta(t, target.Ellipse.Width, target.Ellipse.Height, 1.0)
	assert.Equal(t, int(math.Ceil(target.Ellipse.Width))|1, target.Cropped.Rows)

	res, err := Fit(context.Background(), psfbin.Entry{PSF: img, Radius: 12}, s)
	require.NoError(t, err)
	assert.Same(t, res.Target.Source, img)
	assert.LessOrEqual(t, res.Cost, res.InitialCost)
}

func TestSelectTarget(t *testing.T) {
	entries := []psfbin.Entry{{Defocus: 10}, {Defocus: 30}, {Defocus: 50}}
	e, i, err := SelectTarget(entries, 35)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Equal(t, 30.0, e.Defocus)

	_, _, err = SelectTarget(nil, 1)
	assert.Error(t, err)
}

func TestParseMethod(t *testing.T) {
	for _, d := range methods {
		m, err := ParseMethod(d.Name)
		require.NoError(t, err)
		assert.Equal(t, d.Value, m)
		assert.Equal(t, d.Name, m.String())
	}
	_, err := ParseMethod("lbfgs")
	assert.Error(t, err)
}
