package gather

import (
	"fmt"

	"github.com/banshee-data/psfsim/internal/psfbin"
)

// Source exposes the binned input pixels to the gatherer.
type Source interface {
	Width() int
	Height() int
	Channels() int
	Color(row, col, channel int) float64
	Depth(row, col int) float64
	Key(row, col int) psfbin.Key
}

// Gatherer computes output pixels from a populated cache. A Gatherer owns
// per-channel scratch buffers and must not be shared between goroutines.
type Gatherer struct {
	cache   *psfbin.Cache
	mode    BlendMode
	radius  int
	scratch [][]Sample
}

// New returns a gatherer whose window half-size is the cache's maximum blur
// radius.
func New(cache *psfbin.Cache, mode BlendMode) *Gatherer {
	return &Gatherer{cache: cache, mode: mode, radius: cache.MaxBlurRadius()}
}

// Radius returns the gather window half-size in pixels.
func (g *Gatherer) Radius() int { return g.radius }

// Pixel gathers output pixel (row, col) for every channel into out, which
// must hold src.Channels() results.
func (g *Gatherer) Pixel(src Source, row, col int, out []Result) error {
	channels := src.Channels()
	if len(out) < channels {
		return fmt.Errorf("gather: result slice holds %d channels, need %d", len(out), channels)
	}
	if len(g.scratch) < channels {
		g.scratch = make([][]Sample, channels)
	}
	for ch := 0; ch < channels; ch++ {
		g.scratch[ch] = g.scratch[ch][:0]
	}

	r0, r1 := max(row-g.radius, 0), min(row+g.radius, src.Height()-1)
	c0, c1 := max(col-g.radius, 0), min(col+g.radius, src.Width()-1)
	for sr := r0; sr <= r1; sr++ {
		dr := row - sr
		for sc := c0; sc <= c1; sc++ {
			dc := col - sc
			entries, err := g.cache.Entries(src.Key(sr, sc))
			if err != nil {
				return fmt.Errorf("source pixel (%d,%d): %w", sr, sc, err)
			}
			if len(entries) < channels {
				return fmt.Errorf("source pixel (%d,%d): bin has %d channels, need %d", sr, sc, len(entries), channels)
			}
			depth := src.Depth(sr, sc)
			for ch := 0; ch < channels; ch++ {
				p := entries[ch].PSF
				rad := p.Radius()
				if dr > rad || dr < -rad || dc > rad || dc < -rad {
					continue
				}
				g.scratch[ch] = append(g.scratch[ch], Sample{
					Color:  src.Color(sr, sc, ch),
					Depth:  depth,
					Weight: p.At(rad+dr, rad+dc),
				})
			}
		}
	}

	for ch := 0; ch < channels; ch++ {
		out[ch] = Blend(g.scratch[ch], g.mode)
	}
	return nil
}
