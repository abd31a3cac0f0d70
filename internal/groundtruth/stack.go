package groundtruth

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/psfsim/internal/psfbin"
)

// StackInput is handed to a StackSolver after the PSF stack is populated.
type StackInput struct {
	Algorithm Algorithm
	Width     int
	Height    int
	Channels  int
	Pixels    []InputPixel
	Cache     *psfbin.Cache
	Keys      []psfbin.Key
}

// StackSolver turns a populated PSF stack and the input pixels into output
// pixels. Implementations own their parallelism.
type StackSolver interface {
	Solve(ctx context.Context, in StackInput) ([]OutputPixel, error)
}

// LayerSolver is a reference stack solver. Every pixel is assigned to the
// stack key nearest its incident angle and dioptre. PerPixelStack scatters
// each pixel through its layer PSF and normalizes by the accumulated weight;
// DepthLayers scatters each layer separately and composites the layers
// back to front, using the scattered coverage as alpha.
type LayerSolver struct{}

// Solve implements StackSolver.
func (LayerSolver) Solve(ctx context.Context, in StackInput) ([]OutputPixel, error) {
	if len(in.Keys) == 0 {
		return nil, fmt.Errorf("layer solver: empty stack")
	}
	layerOf, layers := assignLayers(in)
	out := make([]OutputPixel, len(in.Pixels))

	switch in.Algorithm {
	case DepthLayers:
		acc := make([]OutputPixel, len(in.Pixels))
		raw := make([][MaxChannels]float64, len(in.Pixels))
		for _, layer := range layers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for i := range acc {
				acc[i] = OutputPixel{}
			}
			if err := scatter(in, layerOf, layer, acc); err != nil {
				return nil, err
			}
			for i := range out {
				for ch := 0; ch < in.Channels; ch++ {
					alpha := math.Min(acc[i].Weight[ch], 1)
					raw[i][ch] = acc[i].Result[ch] + (1-alpha)*raw[i][ch]
					out[i].Weight[ch] = alpha + (1-alpha)*out[i].Weight[ch]
					out[i].NumSamples[ch] += acc[i].NumSamples[ch]
				}
			}
		}
		for i := range out {
			for ch := 0; ch < in.Channels; ch++ {
				if out[i].Weight[ch] > 0 {
					out[i].Result[ch] = raw[i][ch] / out[i].Weight[ch]
				}
			}
		}
	default:
		for _, layer := range layers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := scatter(in, layerOf, layer, out); err != nil {
				return nil, err
			}
		}
		for i := range out {
			for ch := 0; ch < in.Channels; ch++ {
				if out[i].Weight[ch] > 0 {
					out[i].Result[ch] /= out[i].Weight[ch]
				}
			}
		}
	}
	return out, nil
}

// assignLayers maps every pixel to the index of its nearest stack key and
// returns the key indices ordered far to near.
func assignLayers(in StackInput) ([]int, []int) {
	layerOf := make([]int, len(in.Pixels))
	for i, p := range in.Pixels {
		best, bestDist := 0, math.Inf(1)
		for k, key := range in.Keys {
			da := math.Hypot(key.Angle[0]-p.Key.Angle[0], key.Angle[1]-p.Key.Angle[1])
			dd := math.Abs(key.Dioptre - p.Key.Dioptre)
			// Angle dominates: a pixel only changes dioptre layers within its
			// nearest angle.
			if d := da*1e6 + dd; d < bestDist {
				best, bestDist = k, d
			}
		}
		layerOf[i] = best
	}
	layers := make([]int, len(in.Keys))
	for i := range layers {
		layers[i] = i
	}
	slices.SortStableFunc(layers, func(a, b int) int {
		return cmp.Compare(in.Keys[a].Dioptre, in.Keys[b].Dioptre)
	})
	return layerOf, layers
}

// scatter spreads the pixels of one layer through the layer PSF into acc.
// acc.Result holds the weighted colour sum.
func scatter(in StackInput, layerOf []int, layer int, acc []OutputPixel) error {
	entries, err := in.Cache.Entries(in.Keys[layer])
	if err != nil {
		return err
	}
	for i, p := range in.Pixels {
		if layerOf[i] != layer {
			continue
		}
		row, col := i/in.Width, i%in.Width
		for ch := 0; ch < in.Channels; ch++ {
			k := entries[ch].PSF
			rad := k.Radius()
			for dr := -rad; dr <= rad; dr++ {
				r := row + dr
				if r < 0 || r >= in.Height {
					continue
				}
				for dc := -rad; dc <= rad; dc++ {
					c := col + dc
					if c < 0 || c >= in.Width {
						continue
					}
					w := k.At(rad+dr, rad+dc)
					o := &acc[r*in.Width+c]
					o.Result[ch] += w * p.Color[ch]
					o.Weight[ch] += w
					o.NumSamples[ch]++
				}
			}
		}
	}
	return nil
}
