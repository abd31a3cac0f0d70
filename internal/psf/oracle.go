package psf

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/psfsim/internal/config"
	"github.com/banshee-data/psfsim/internal/units"
)

// Sample is one PSF produced by an oracle for a single channel.
type Sample struct {
	// Defocus is the Zernike defocus coefficient in micrometres.
	Defocus float64
	// PSF is sampled on a regular angular grid and need not be normalized.
	PSF *Image
	// BlurRadiusDegrees is the angular support radius of PSF.
	BlurRadiusDegrees float64
}

// StackAxes lists the sample positions an oracle advertises for stack
// enumeration. Angles are in degrees, dioptres in 1/m.
type StackAxes struct {
	Horizontal []float64
	Vertical   []float64
	Dioptres   []float64
}

// Oracle produces PSFs for a channel, an incident angle and an object
// dioptre. Implementations are called from a single goroutine.
type Oracle interface {
	ComputePsf(ctx context.Context, channel int, angleH, angleV, dioptre float64) (Sample, error)
	Axes() StackAxes
}

// ThinLensOracle models a defocused thin lens: the PSF is a uniform disk
// whose angular diameter is aperture × |dioptre − focus dioptre|. An optional
// astigmatism term stretches the disk along the radial direction with
// eccentricity.
type ThinLensOracle struct {
	FocusDistance     float64 // metres
	ApertureMM        float64
	SampleDegrees     float64
	AstigmatismPerDeg float64
	ChannelScale      []float64
	MaxSamplesRadius  int
	StackAxes         StackAxes
}

// NewThinLensOracle builds the oracle from the camera and oracle sections.
func NewThinLensOracle(cfg *config.SimulationConfig) *ThinLensOracle {
	cam, oc := cfg.Camera, cfg.Oracle
	return &ThinLensOracle{
		FocusDistance:     cam.GetFocusDistance(),
		ApertureMM:        cam.GetApertureMM(),
		SampleDegrees:     oc.GetSampleDegrees(),
		AstigmatismPerDeg: oc.GetAstigmatismPerDegree(),
		ChannelScale:      oc.GetChannelScale(),
		MaxSamplesRadius:  oc.GetMaxPsfSamplesRadius(),
		StackAxes: StackAxes{
			Horizontal: oc.GetHorizontalAngles().Values(),
			Vertical:   oc.GetVerticalAngles().Values(),
			Dioptres:   oc.GetObjectDioptres().Values(),
		},
	}
}

// Axes implements Oracle.
func (o *ThinLensOracle) Axes() StackAxes { return o.StackAxes }

func (o *ThinLensOracle) channelScale(ch int) float64 {
	if ch >= 0 && ch < len(o.ChannelScale) {
		return o.ChannelScale[ch]
	}
	return 1
}

// DefocusMicrons returns the defocus coefficient for a dioptre error over the
// configured pupil.
func (o *ThinLensOracle) DefocusMicrons(dioptre float64) float64 {
	dd := math.Abs(dioptre - units.Dioptres(o.FocusDistance))
	r := o.ApertureMM / 2
	return dd * r * r / (4 * math.Sqrt(3))
}

// ComputePsf implements Oracle.
func (o *ThinLensOracle) ComputePsf(ctx context.Context, channel int, angleH, angleV, dioptre float64) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	if o.SampleDegrees <= 0 {
		return Sample{}, fmt.Errorf("psf: thin lens sample size must be positive, got %g", o.SampleDegrees)
	}
	if math.IsNaN(dioptre) || math.IsInf(dioptre, 0) {
		return Sample{}, fmt.Errorf("psf: invalid dioptre %g", dioptre)
	}

	dd := math.Abs(dioptre - units.Dioptres(o.FocusDistance))
	radiusDeg := units.Degrees(o.ApertureMM/1000*dd) / 2 * o.channelScale(channel)
	defocus := o.DefocusMicrons(dioptre) * o.channelScale(channel)

	ecc := math.Hypot(angleH, angleV)
	stretch := 1 + o.AstigmatismPerDeg*ecc
	if stretch < 1 {
		stretch = 1
	}

	step := o.SampleDegrees
	rs := radiusDeg / step
	if o.MaxSamplesRadius > 0 && rs*stretch > float64(o.MaxSamplesRadius) {
		step = radiusDeg * stretch / float64(o.MaxSamplesRadius)
		rs = radiusDeg / step
	}
	if rs < 0.5 {
		return Sample{Defocus: defocus, PSF: Delta()}, nil
	}

	half := int(math.Ceil(rs*stretch + 0.5))
	ux, uy := 1.0, 0.0
	if ecc > 0 {
		ux, uy = angleH/ecc, angleV/ecc
	}
	size := 2*half + 1
	img := New(size, size)
	for r := 0; r < size; r++ {
		dy := float64(half - r) // up is positive
		for c := 0; c < size; c++ {
			dx := float64(c - half)
			along := (dx*ux + dy*uy) / stretch
			across := -dx*uy + dy*ux
			dist := math.Hypot(along, across)
			img.Set(r, c, math.Min(math.Max(rs+0.5-dist, 0), 1))
		}
	}
	return Sample{
		Defocus:           defocus,
		PSF:               img,
		BlurRadiusDegrees: float64(half) * step,
	}, nil
}
