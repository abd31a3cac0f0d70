// Package psfbin discretizes (incident angle, object dioptre) pairs into bins
// and caches one PSF per bin and colour channel.
package psfbin

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/units"
)

// Key identifies one PSF bin. Angle is (horizontal, vertical) in degrees and
// Dioptre is the object vergence in 1/m.
type Key struct {
	Angle   [2]float64
	Dioptre float64
}

func (k Key) String() string {
	return fmt.Sprintf("h=%g v=%g d=%g", k.Angle[0], k.Angle[1], k.Dioptre)
}

// Round snaps value to the nearest point of the grid {k·precision + offset},
// where offset is precision/2 when center is set and 0 otherwise. Round is
// idempotent. A non-positive precision leaves value unchanged.
func Round(value, precision float64, center bool) float64 {
	if precision <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	off := 0.0
	if center {
		off = precision / 2
	}
	return math.Round((value-off)/precision)*precision + off
}

// Binner maps raw pixel observations to bin keys.
type Binner struct {
	DioptresPrecision    float64
	AnglesPrecision      float64
	CenterDioptres       bool
	CenterIncidentAngles bool
	SimulateOffAxis      bool
}

// Key bins an incident angle (degrees) and a camera-space depth (metres).
// Depth is binned in dioptres. The angle collapses to (0, 0) when off-axis
// simulation is disabled.
func (b Binner) Key(angle [2]float64, depth float64) Key {
	k := Key{Dioptre: Round(units.Dioptres(depth), b.DioptresPrecision, b.CenterDioptres)}
	if b.SimulateOffAxis {
		k.Angle[0] = Round(angle[0], b.AnglesPrecision, b.CenterIncidentAngles)
		k.Angle[1] = Round(angle[1], b.AnglesPrecision, b.CenterIncidentAngles)
	}
	return k
}

// Mode selects how the set of needed keys is enumerated.
type Mode int

const (
	// PerPixel collects one key per observed pixel.
	PerPixel Mode = iota
	// Stack uses the regular axes advertised by the oracle.
	Stack
)

var modes = []struct {
	Name  string
	Value Mode
}{
	{"PerPixel", PerPixel},
	{"Stack", Stack},
}

func (m Mode) String() string {
	for _, d := range modes {
		if d.Value == m {
			return d.Name
		}
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Compare orders keys by horizontal angle, vertical angle, then dioptre.
func Compare(a, b Key) int {
	if c := cmp.Compare(a.Angle[0], b.Angle[0]); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Angle[1], b.Angle[1]); c != 0 {
		return c
	}
	return cmp.Compare(a.Dioptre, b.Dioptre)
}

// SortKeys sorts keys in place and removes duplicates.
func SortKeys(keys []Key) []Key {
	slices.SortFunc(keys, Compare)
	return slices.Compact(keys)
}

// EnumeratePixels returns the sorted distinct keys of the observed pixels.
func EnumeratePixels(observed []Key) []Key {
	keys := slices.Clone(observed)
	return SortKeys(keys)
}

// EnumerateStack returns the sorted cartesian product of the oracle axes.
// Without off-axis simulation only the dioptre axis is used.
func EnumerateStack(axes psf.StackAxes, offAxis bool) []Key {
	hs, vs := []float64{0}, []float64{0}
	if offAxis {
		hs, vs = axes.Horizontal, axes.Vertical
	}
	keys := make([]Key, 0, len(hs)*len(vs)*len(axes.Dioptres))
	for _, h := range hs {
		for _, v := range vs {
			for _, d := range axes.Dioptres {
				keys = append(keys, Key{Angle: [2]float64{h, v}, Dioptre: d})
			}
		}
	}
	return SortKeys(keys)
}
