package gather

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/psfbin"
)

type gridSource struct {
	w, h   int
	colors [][]float64 // [pixel][channel]
	depths []float64
	keys   []psfbin.Key
}

func (g *gridSource) Width() int { return g.w }
func (g *gridSource) Height() int { return g.h }
func (g *gridSource) Channels() int { return len(g.colors[0]) }
func (g *gridSource) Color(r, c, ch int) float64 { return g.colors[r*g.w+c][ch] }
func (g *gridSource) Depth(r, c int) float64 { return g.depths[r*g.w+c] }
func (g *gridSource) Key(r, c int) psfbin.Key { return g.keys[r*g.w+c] }

var (
	nearKey = psfbin.Key{Dioptre: 0.2}
	farKey  = psfbin.Key{Dioptre: 0.1}
)

func twoBinCache(t *testing.T) *psfbin.Cache {
	t.Helper()
	box := psf.New(3, 3)
	for i := range box.Pix {
		box.Pix[i] = 1.0 / 9
	}
	peaked := psf.New(3, 3)
	for i := range peaked.Pix {
		peaked.Pix[i] = 0.0625
	}
	peaked.Set(1, 1, 0.5)

	c := psfbin.NewCache()
	err := c.Populate(context.Background(), []psfbin.Key{farKey, nearKey}, 1,
		func(_ context.Context, k psfbin.Key, _ int) (psfbin.Entry, error) {
			if k == farKey {
				return psfbin.Entry{Radius: 1, PSF: box}, nil
			}
			return psfbin.Entry{Radius: 1, PSF: peaked}, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestPixelTwoBinBoundary(t *testing.T) {
	src := &gridSource{
		w: 2, h: 1,
		colors: [][]float64{{1}, {0.2}},
		depths: []float64{10, 5},
		keys:   []psfbin.Key{farKey, nearKey},
	}
	cache := twoBinCache(t)

	// Output pixel 0 sees its own box centre (1/9, colour 1, depth 10) and the
	// left tap of its neighbour's peaked PSF (0.0625, colour 0.2, depth 5).
	wFar, cFar := 1.0/9, 1.0
	wNear, cNear := 0.0625, 0.2

	sumW := wFar + wNear
	ftbRes := wNear*cNear + (1-wNear)*wFar*cFar
	ftbW := wFar + (1-wFar)*wNear
	btbRes := wNear*cNear + (1-wNear)*wFar*cFar
	btbW := wNear + (1-wNear)*wFar

	tests := []struct {
		mode  BlendMode
		color float64
		w     float64
	}{
		{Sum, (wFar*cFar + wNear*cNear) / sumW, sumW},
		{FrontToBack, ftbRes / ftbW, ftbW},
		{BackToFront, btbRes / btbW, btbW},
	}
	for _, tt := range tests {
		g := New(cache, tt.mode)
		out := make([]Result, 1)
		if err := g.Pixel(src, 0, 0, out); err != nil {
			t.Fatalf("%v: %v", tt.mode, err)
		}
		if math.Abs(out[0].Color-tt.color) > 1e-12 || math.Abs(out[0].Weight-tt.w) > 1e-12 {
			t.Errorf("%v: got colour %v weight %v, want %v %v", tt.mode, out[0].Color, out[0].Weight, tt.color, tt.w)
		}
		if out[0].NumSamples != 2 {
			t.Errorf("%v: NumSamples = %d, want 2", tt.mode, out[0].NumSamples)
		}
	}
}

func TestPixelUsesSourcePsf(t *testing.T) {
	// A delta source next to a box source: the box spreads onto the delta's
	// pixel, but the delta does not spread onto the box's.
	delta := psfbin.Key{Dioptre: 1}
	c := psfbin.NewCache()
	box := psf.New(3, 3)
	for i := range box.Pix {
		box.Pix[i] = 1.0 / 9
	}
	err := c.Populate(context.Background(), []psfbin.Key{delta, farKey}, 1,
		func(_ context.Context, k psfbin.Key, _ int) (psfbin.Entry, error) {
			if k == delta {
				return psfbin.Entry{PSF: psf.Delta()}, nil
			}
			return psfbin.Entry{Radius: 1, PSF: box}, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	src := &gridSource{
		w: 2, h: 1,
		colors: [][]float64{{1}, {0}},
		depths: []float64{1, 10},
		keys:   []psfbin.Key{delta, farKey},
	}
	g := New(c, Sum)
	out := make([]Result, 1)
	if err := g.Pixel(src, 0, 0, out); err != nil {
		t.Fatal(err)
	}
	if out[0].NumSamples != 2 {
		t.Errorf("delta pixel gathered %d samples, want 2", out[0].NumSamples)
	}
	if err := g.Pixel(src, 0, 1, out); err != nil {
		t.Fatal(err)
	}
	if out[0].NumSamples != 1 || out[0].Color != 0 {
		t.Errorf("box pixel = %+v, want only its own sample", out[0])
	}
}

func TestPixelMissingBin(t *testing.T) {
	src := &gridSource{
		w: 1, h: 1,
		colors: [][]float64{{1}},
		depths: []float64{1},
		keys:   []psfbin.Key{{Dioptre: 3}},
	}
	g := New(twoBinCache(t), Sum)
	err := g.Pixel(src, 0, 0, make([]Result, 1))
	if !errors.Is(err, psfbin.ErrMissingBin) {
		t.Errorf("err = %v, want ErrMissingBin", err)
	}
}
