// Package gather implements the per-pixel gather convolution: every source
// pixel in a window spreads onto the output pixel through its own PSF, and
// the resulting weighted samples are composited by a blend mode.
package gather

import (
	"cmp"
	"fmt"
	"slices"
)

// Sample is one weighted contribution to an output pixel.
type Sample struct {
	Color  float64
	Depth  float64
	Weight float64
}

// BlendMode is the compositing rule applied to the samples of a pixel.
type BlendMode int

const (
	// Sum accumulates every sample without ordering or saturation.
	Sum BlendMode = iota
	// FrontToBack composites nearest first and stops once saturated.
	FrontToBack
	// BackToFront composites farthest first and stops once saturated.
	BackToFront
)

// BlendModes is the descriptor table for BlendMode.
var BlendModes = []struct {
	Name  string
	Value BlendMode
}{
	{"Sum", Sum},
	{"FrontToBack", FrontToBack},
	{"BackToFront", BackToFront},
}

// ParseBlendMode looks up a blend mode by name.
func ParseBlendMode(name string) (BlendMode, error) {
	for _, d := range BlendModes {
		if d.Name == name {
			return d.Value, nil
		}
	}
	return 0, fmt.Errorf("gather: unknown blend mode %q", name)
}

func (m BlendMode) String() string {
	for _, d := range BlendModes {
		if d.Value == m {
			return d.Name
		}
	}
	return fmt.Sprintf("BlendMode(%d)", int(m))
}

// Result is the composited value of one pixel and channel.
type Result struct {
	Color      float64 // result / weight, 0 when weight is 0
	Raw        float64 // accumulated result before normalization
	Weight     float64
	NumSamples int
}

// Accumulator composites samples one at a time. Samples must already be in
// the order the mode expects; Blend takes care of that.
type Accumulator struct {
	Mode       BlendMode
	Result     float64
	Weight     float64
	NumSamples int
}

// Saturated reports whether an ordered mode has reached full coverage.
func (a *Accumulator) Saturated() bool {
	return a.Mode != Sum && a.Weight >= 1
}

// Add folds s into the accumulator. It returns false, without changing
// state, once an ordered mode is saturated.
func (a *Accumulator) Add(s Sample) bool {
	if a.Saturated() {
		return false
	}
	w := s.Weight
	switch a.Mode {
	case FrontToBack:
		a.Result += (1 - a.Weight) * w * s.Color
		a.Weight = w + (1-w)*a.Weight
	case BackToFront:
		a.Result = w*s.Color + (1-w)*a.Result
		a.Weight = w + (1-w)*a.Weight
	default:
		a.Result += w * s.Color
		a.Weight += w
	}
	a.NumSamples++
	return true
}

// Finish normalizes the accumulated result by the accumulated weight.
func (a *Accumulator) Finish() Result {
	r := Result{Raw: a.Result, Weight: a.Weight, NumSamples: a.NumSamples}
	if a.Weight != 0 {
		r.Color = a.Result / a.Weight
	}
	return r
}

// mergeTies folds samples of equal depth into one sample whose weight is
// the coverage 1-Π(1-wᵢ) and whose colour is the weighted mean, so the
// result does not depend on the order the ties were gathered in.
func mergeTies(ties []Sample) Sample {
	if len(ties) == 1 {
		return ties[0]
	}
	var sumW, sumWC float64
	transmit := 1.0
	for _, s := range ties {
		sumW += s.Weight
		sumWC += s.Weight * s.Color
		transmit *= 1 - s.Weight
	}
	m := Sample{Depth: ties[0].Depth, Weight: 1 - transmit}
	if sumW != 0 {
		m.Color = sumWC / sumW
	}
	return m
}

// Blend composites samples under mode. Ordered modes sort samples in place,
// ascending depth for FrontToBack and descending for BackToFront, and merge
// each run of equal depth into a single sample before compositing.
// NumSamples still counts every composited input sample.
func Blend(samples []Sample, mode BlendMode) Result {
	acc := Accumulator{Mode: mode}
	switch mode {
	case FrontToBack:
		slices.SortFunc(samples, func(a, b Sample) int { return cmp.Compare(a.Depth, b.Depth) })
	case BackToFront:
		slices.SortFunc(samples, func(a, b Sample) int { return cmp.Compare(b.Depth, a.Depth) })
	default:
		for _, s := range samples {
			acc.Add(s)
		}
		return acc.Finish()
	}
	for i := 0; i < len(samples); {
		j := i + 1
		for j < len(samples) && samples[j].Depth == samples[i].Depth {
			j++
		}
		if !acc.Add(mergeTies(samples[i:j])) {
			break
		}
		acc.NumSamples += j - i - 1
		i = j
	}
	return acc.Finish()
}
