package psfbin

import (
	"math"
	"math/rand"
	"testing"

	"github.com/banshee-data/psfsim/internal/psf"
)

func TestRoundIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	precisions := []float64{1e-3, 1e-2, 0.05, 0.1, 0.25, 1, 2.5}
	for _, p := range precisions {
		for _, center := range []bool{false, true} {
			for i := 0; i < 500; i++ {
				x := (rng.Float64() - 0.5) * 200
				once := Round(x, p, center)
				twice := Round(once, p, center)
				if once != twice {
					t.Fatalf("Round(Round(%v,%v,%v)) = %v, want %v", x, p, center, twice, once)
				}
				if math.Abs(once-x) > p/2+1e-9 {
					t.Fatalf("Round(%v,%v,%v) = %v is more than half a bin away", x, p, center, once)
				}
			}
		}
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		value, precision float64
		center           bool
		want             float64
	}{
		{0.123, 0.1, false, 0.1},
		{0.16, 0.1, false, 0.2},
		{0.123, 0.1, true, 0.15},
		{0.04, 0.1, true, 0.05},
		{-0.04, 0.1, true, -0.05},
		{3.7, 0, false, 3.7},
	}
	for _, tt := range tests {
		got := Round(tt.value, tt.precision, tt.center)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Round(%v, %v, %v) = %v, want %v", tt.value, tt.precision, tt.center, got, tt.want)
		}
	}
}

func TestBinnerKey(t *testing.T) {
	b := Binner{DioptresPrecision: 0.1, AnglesPrecision: 1}
	k := b.Key([2]float64{3.4, -2.6}, 3.125)
	if k.Angle != [2]float64{0, 0} {
		t.Errorf("on-axis key has angle %v", k.Angle)
	}
	if math.Abs(k.Dioptre-0.3) > 1e-12 {
		t.Errorf("dioptre = %v, want 0.3", k.Dioptre)
	}

	b.SimulateOffAxis = true
	k = b.Key([2]float64{3.4, -2.6}, 3.125)
	if k.Angle != [2]float64{3, -3} {
		t.Errorf("off-axis angle = %v, want [3 -3]", k.Angle)
	}
	if again := b.Key(k.Angle, 1/k.Dioptre); again != k {
		t.Errorf("re-binning %v gave %v", k, again)
	}
}

func TestEnumeratePixelsSortsAndDedups(t *testing.T) {
	keys := EnumeratePixels([]Key{
		{Angle: [2]float64{1, 0}, Dioptre: 0.2},
		{Angle: [2]float64{0, 1}, Dioptre: 0.1},
		{Angle: [2]float64{0, 0}, Dioptre: 0.3},
		{Angle: [2]float64{1, 0}, Dioptre: 0.2},
		{Angle: [2]float64{0, 0}, Dioptre: 0.1},
	})
	want := []Key{
		{Angle: [2]float64{0, 0}, Dioptre: 0.1},
		{Angle: [2]float64{0, 0}, Dioptre: 0.3},
		{Angle: [2]float64{0, 1}, Dioptre: 0.1},
		{Angle: [2]float64{1, 0}, Dioptre: 0.2},
	}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d: %v", len(keys), len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %v, want %v", i, keys[i], want[i])
		}
	}
}

func TestEnumerateStack(t *testing.T) {
	axes := psf.StackAxes{
		Horizontal: []float64{-10, 0, 10},
		Vertical:   []float64{0, 5},
		Dioptres:   []float64{0.5, 0, 1},
	}
	if got := EnumerateStack(axes, true); len(got) != 18 {
		t.Errorf("off-axis stack has %d keys, want 18", len(got))
	}
	onAxis := EnumerateStack(axes, false)
	if len(onAxis) != 3 {
		t.Fatalf("on-axis stack has %d keys, want 3", len(onAxis))
	}
	for i, d := range []float64{0, 0.5, 1} {
		if onAxis[i].Dioptre != d || onAxis[i].Angle != [2]float64{} {
			t.Errorf("onAxis[%d] = %v", i, onAxis[i])
		}
	}
}

func TestModeString(t *testing.T) {
	if PerPixel.String() != "PerPixel" || Stack.String() != "Stack" {
		t.Errorf("unexpected names %q %q", PerPixel, Stack)
	}
}
