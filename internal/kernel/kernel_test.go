package kernel

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/psfsim/internal/config"
)

func presets(t *testing.T) map[string]Parameters {
	t.Helper()
	out := map[string]Parameters{
		"gaussian-1":   Gaussian(1),
		"gaussian-0.5": Gaussian(0.5),
	}
	for n := 1; n <= MaxComponents; n++ {
		p, err := Garcia(n)
		if err != nil {
			t.Fatalf("Garcia(%d): %v", n, err)
		}
		out["garcia-"+string(rune('0'+n))] = p
	}
	return out
}

func TestGenerate2DSumsToOne(t *testing.T) {
	for name, p := range presets(t) {
		for _, taps := range [][2]int{{8, 8}, {4, 6}, {1, 1}} {
			img, err := Generate2D(p, taps[0], taps[1])
			if err != nil {
				t.Fatalf("%s %v: %v", name, taps, err)
			}
			if img.Rows != 2*taps[1]+1 || img.Cols != 2*taps[0]+1 {
				t.Errorf("%s %v: shape %dx%d", name, taps, img.Rows, img.Cols)
			}
			if s := img.Sum(); math.Abs(s-1) > 1e-9 {
				t.Errorf("%s %v: sum = %v, want 1", name, taps, s)
			}
		}
	}
}

func TestSingleLobeApproximatesGaussian(t *testing.T) {
	const taps = 8
	p := Gaussian(1)
	img, err := Generate2D(p, taps, taps)
	if err != nil {
		t.Fatal(err)
	}

	a := p.Components[0].LowerA
	want := make([]float64, len(img.Pix))
	total := 0.0
	for r := -taps; r <= taps; r++ {
		for c := -taps; c <= taps; c++ {
			x := p.Radius * float64(c) / taps
			y := p.Radius * float64(r) / taps
			v := math.Exp(-a * (x*x + y*y))
			want[(r+taps)*img.Cols+c+taps] = v
			total += v
		}
	}
	for i := range want {
		want[i] /= total
	}
	if diff := cmp.Diff(want, img.Pix, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("Gaussian lobe mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeBracketing(t *testing.T) {
	p, _ := Garcia(3)
	k, err := Compute(p, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	for i := range p.Components {
		for _, prof := range [][]Tap{k.BracketedHorizontal[i], k.BracketedVertical[i]} {
			for _, tap := range prof {
				if tap.Re < 0 || tap.Re > 1 || tap.Im < 0 || tap.Im > 1 {
					t.Fatalf("component %d: bracketed tap %+v outside [0,1]", i, tap)
				}
			}
		}
		// Reconstructing from the bracketed values recovers the raw taps.
		off, sc := k.Offsets[i], k.Scales[i]
		for j, tap := range k.BracketedHorizontal[i] {
			got := tap.Re*sc[0] + off[0]
			if math.Abs(got-k.Horizontal[i][j].Re) > 1e-12 {
				t.Fatalf("component %d tap %d: %v != %v", i, j, got, k.Horizontal[i][j].Re)
			}
		}
	}
}

func TestComputeDegenerate(t *testing.T) {
	p := Parameters{Radius: 1, Components: []Component{{LowerA: 1, LowerB: 0, UpperA: 0, UpperB: 0}}}
	if _, err := Compute(p, 4, 4); !errors.Is(err, ErrDegenerateKernel) {
		t.Errorf("zero weights: err = %v, want ErrDegenerateKernel", err)
	}
	p.Components[0].UpperA = -1
	if _, err := Compute(p, 4, 4); !errors.Is(err, ErrDegenerateKernel) {
		t.Errorf("negative energy: err = %v, want ErrDegenerateKernel", err)
	}
	p.Components[0] = Component{LowerA: -1e6, UpperA: 1}
	if _, err := Compute(p, 4, 4); !errors.Is(err, ErrDegenerateKernel) {
		t.Errorf("overflow: err = %v, want ErrDegenerateKernel", err)
	}
}

func TestValidate(t *testing.T) {
	g, _ := Garcia(2)
	tests := []struct {
		name    string
		p       Parameters
		wantErr bool
	}{
		{"garcia", g, false},
		{"no components", Parameters{Radius: 1}, true},
		{"too many", Parameters{Radius: 1, Components: make([]Component, 4)}, true},
		{"zero radius", Parameters{Components: make([]Component, 1)}, true},
		{"nan", Parameters{Radius: 1, Components: []Component{{LowerA: math.NaN()}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVectorRoundTrip(t *testing.T) {
	p, _ := Garcia(2)
	v := p.Vector()
	if len(v) != 9 || v[0] != 1.25 {
		t.Fatalf("Vector() = %v", v)
	}
	back, err := FromVector(v)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(p, back); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
	if _, err := FromVector(v[:4]); err == nil {
		t.Error("expected error for short vector")
	}
}

func TestFromConfig(t *testing.T) {
	p, err := FromConfig(nil)
	if err != nil || len(p.Components) != 1 || p.Radius != 1.25 {
		t.Errorf("default preset = %+v, %v", p, err)
	}
	preset, sigma := "gaussian", 2.0
	p, err = FromConfig(&config.KernelConfig{Preset: &preset, GaussianSig: &sigma})
	if err != nil || p.Components[0].LowerA != 1.0/8 {
		t.Errorf("gaussian preset = %+v, %v", p, err)
	}
	if _, err := Garcia(4); err == nil {
		t.Error("expected error for 4 components")
	}
}
