// Package kernelfit fits the parametric blur kernel to a target PSF by
// bounded nonlinear least squares after an ellipse-based alignment.
package kernelfit

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/psfsim/internal/config"
	"github.com/banshee-data/psfsim/internal/kernel"
	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/timeutil"
)

// Method selects the solver.
type Method int

const (
	// Dogleg is the bounded trust-region dogleg solver.
	Dogleg Method = iota
	// NelderMead minimizes the box-clamped cost with a simplex search.
	NelderMead
)

var methods = []struct {
	Name  string
	Value Method
}{
	{"dogleg", Dogleg},
	{"nelder-mead", NelderMead},
}

// ParseMethod looks up a solver by name.
func ParseMethod(name string) (Method, error) {
	for _, d := range methods {
		if d.Name == name {
			return d.Value, nil
		}
	}
	return 0, fmt.Errorf("kernelfit: unknown method %q", name)
}

func (m Method) String() string {
	for _, d := range methods {
		if d.Value == m {
			return d.Name
		}
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Settings controls target preparation and the solver.
type Settings struct {
	Method     Method
	Components int
	TapsRadius int
	FitScale   int

	InitialComponent kernel.Component
	InitialRadius    float64

	RadiusLimits [2]float64
	ALimits      [2]float64
	BLimits      [2]float64
	UpperALimits [2]float64
	UpperBLimits [2]float64

	DiffStepSize  float64
	MaxIterations int
	MaxDuration   time.Duration

	EllipseThreshold float64
	TargetDefocus    float64
	ProjectPsf       bool
	Interpolation    psf.Interpolation

	// Clock drives the wall-clock budget. Nil means the real clock.
	Clock timeutil.Clock
}

// DefaultSettings returns the settings of an empty configuration.
func DefaultSettings() Settings {
	s, err := SettingsFromConfig(config.EmptySimulationConfig())
	if err != nil {
		panic(err)
	}
	return s
}

// SettingsFromConfig reads the kernel, fit and convolution sections.
func SettingsFromConfig(cfg *config.SimulationConfig) (Settings, error) {
	method, err := ParseMethod(cfg.Fit.GetMethod())
	if err != nil {
		return Settings{}, err
	}
	interp, err := psf.ParseInterpolation(cfg.Convolution.GetInterpolation())
	if err != nil {
		return Settings{}, err
	}
	ic := cfg.Fit.GetInitialComponents()
	return Settings{
		Method:           method,
		Components:       cfg.Kernel.GetComponents(),
		TapsRadius:       cfg.Kernel.GetTapsRadius(),
		FitScale:         cfg.Fit.GetFitScale(),
		InitialComponent: kernel.Component{LowerA: ic[0], LowerB: ic[1], UpperA: ic[2], UpperB: ic[3]},
		InitialRadius:    cfg.Fit.GetInitialRadius(),
		RadiusLimits:     cfg.Fit.GetRadiusLimits(),
		ALimits:          cfg.Fit.GetALimits(),
		BLimits:          cfg.Fit.GetBLimits(),
		UpperALimits:     cfg.Fit.GetUpperALimits(),
		UpperBLimits:     cfg.Fit.GetUpperBLimits(),
		DiffStepSize:     cfg.Fit.GetDiffStepSize(),
		MaxIterations:    cfg.Fit.GetMaxIterations(),
		MaxDuration:      cfg.Fit.GetMaxDuration(),
		EllipseThreshold: cfg.Fit.GetEllipseThreshold(),
		TargetDefocus:    cfg.Fit.GetTargetDefocus(),
		ProjectPsf:       cfg.Fit.GetProjectPsf(),
		Interpolation:    interp,
	}, nil
}

// Taps is the kernel half-size the fit evaluates.
func (s Settings) Taps() int { return s.TapsRadius * max(s.FitScale, 1) }

// TargetSize is the side length of the prepared target image.
func (s Settings) TargetSize() int { return 2*s.Taps() + 1 }

func (s Settings) clock() timeutil.Clock {
	if s.Clock == nil {
		return timeutil.RealClock{}
	}
	return s.Clock
}

// Bounds returns the box constraints of the parameter vector
// [radius, (a, b, A, B)...].
func (s Settings) Bounds(components int) (lower, upper []float64) {
	lower = []float64{s.RadiusLimits[0]}
	upper = []float64{s.RadiusLimits[1]}
	for i := 0; i < components; i++ {
		lower = append(lower, s.ALimits[0], s.BLimits[0], s.UpperALimits[0], s.UpperBLimits[0])
		upper = append(upper, s.ALimits[1], s.BLimits[1], s.UpperALimits[1], s.UpperBLimits[1])
	}
	return lower, upper
}

// InitialParameters returns the starting point. Single-lobe fits start from
// the configured component; larger fits start from the preset of the same
// size. The result is clamped to the bounds.
func (s Settings) InitialParameters() (kernel.Parameters, error) {
	var p kernel.Parameters
	if s.Components <= 1 {
		p = kernel.Parameters{Radius: s.InitialRadius, Components: []kernel.Component{s.InitialComponent}}
	} else {
		var err error
		if p, err = kernel.Garcia(s.Components); err != nil {
			return kernel.Parameters{}, err
		}
		p.Radius = s.InitialRadius
	}
	lower, upper := s.Bounds(len(p.Components))
	x := p.Vector()
	project(x, lower, upper)
	return kernel.FromVector(x)
}

// project clamps x into [lower, upper] in place.
func project(x, lower, upper []float64) {
	for i := range x {
		x[i] = math.Min(math.Max(x[i], lower[i]), upper[i])
	}
}
