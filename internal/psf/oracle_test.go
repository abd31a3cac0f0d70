package psf

import (
	"context"
	"math"
	"testing"
)

func testOracle() *ThinLensOracle {
	return &ThinLensOracle{
		FocusDistance:    10,
		ApertureMM:       5,
		SampleDegrees:    0.02,
		ChannelScale:     []float64{1.05, 1, 0.95},
		MaxSamplesRadius: 64,
	}
}

func TestThinLensInFocusIsDelta(t *testing.T) {
	o := testOracle()
	s, err := o.ComputePsf(context.Background(), 1, 0, 0, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if s.PSF.Rows != 1 || s.PSF.At(0, 0) != 1 {
		t.Errorf("PSF = %+v, want delta", s.PSF)
	}
	if s.BlurRadiusDegrees != 0 || s.Defocus != 0 {
		t.Errorf("radius %v defocus %v, want 0", s.BlurRadiusDegrees, s.Defocus)
	}
}

func TestThinLensDisk(t *testing.T) {
	o := testOracle()
	s, err := o.ComputePsf(context.Background(), 1, 0, 0, 2.1)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PSF.Validate(); err != nil {
		t.Fatal(err)
	}
	// 5 mm × 2 D = 10 mrad diameter.
	wantDeg := 0.01 * 180 / math.Pi / 2
	if s.BlurRadiusDegrees < wantDeg || s.BlurRadiusDegrees > wantDeg+2*o.SampleDegrees {
		t.Errorf("blur radius %v, want about %v", s.BlurRadiusDegrees, wantDeg)
	}
	n := s.PSF.Rows
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if s.PSF.At(r, c) != s.PSF.At(n-1-r, n-1-c) || s.PSF.At(r, c) != s.PSF.At(c, r) {
				t.Fatalf("PSF not symmetric at (%d,%d)", r, c)
			}
		}
	}
	if s.Defocus <= 0 {
		t.Errorf("defocus = %v, want > 0", s.Defocus)
	}
}

func TestThinLensChannelScale(t *testing.T) {
	o := testOracle()
	red, _ := o.ComputePsf(context.Background(), 0, 0, 0, 1)
	blue, _ := o.ComputePsf(context.Background(), 2, 0, 0, 1)
	if red.Defocus <= blue.Defocus {
		t.Errorf("red defocus %v should exceed blue %v", red.Defocus, blue.Defocus)
	}
}

func TestThinLensAstigmatismStretchesRadially(t *testing.T) {
	o := testOracle()
	o.AstigmatismPerDeg = 0.05
	s, err := o.ComputePsf(context.Background(), 1, 10, 0, 1.1)
	if err != nil {
		t.Fatal(err)
	}
	half := s.PSF.Radius()
	var wide, tall int
	for i := 0; i < s.PSF.Rows; i++ {
		if s.PSF.At(half, i) > 0 {
			wide++
		}
		if s.PSF.At(i, half) > 0 {
			tall++
		}
	}
	if wide <= tall {
		t.Errorf("horizontal extent %d should exceed vertical %d", wide, tall)
	}
}

func TestThinLensCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := testOracle().ComputePsf(ctx, 0, 0, 0, 1); err == nil {
		t.Error("expected context error")
	}
}
