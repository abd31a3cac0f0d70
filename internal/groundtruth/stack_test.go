package groundtruth

import (
	"context"
	"math"
	"testing"

	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/psfbin"
)

func stackCache(t *testing.T, keys []psfbin.Key, p *psf.Image) *psfbin.Cache {
	t.Helper()
	c := psfbin.NewCache()
	err := c.Populate(context.Background(), keys, 1, func(context.Context, psfbin.Key, int) (psfbin.Entry, error) {
		return psfbin.Entry{Radius: float64(p.Radius()), PSF: p.Clone()}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestLayerSolverUniformImage(t *testing.T) {
	box := psf.New(3, 3)
	for i := range box.Pix {
		box.Pix[i] = 1.0 / 9
	}
	key := psfbin.Key{Dioptre: 0.5}
	pixels := make([]InputPixel, 9)
	for i := range pixels {
		pixels[i] = InputPixel{Color: [MaxChannels]float64{0.3}, Key: key}
	}
	in := StackInput{
		Algorithm: PerPixelStack,
		Width:     3,
		Height:    3,
		Channels:  1,
		Pixels:    pixels,
		Cache:     stackCache(t, []psfbin.Key{key}, box),
		Keys:      []psfbin.Key{key},
	}
	out, err := LayerSolver{}.Solve(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	for i, o := range out {
		if math.Abs(o.Result[0]-0.3) > 1e-12 {
			t.Errorf("pixel %d = %v, want 0.3", i, o.Result[0])
		}
	}
	// The centre pixel receives a tap from every pixel.
	if out[4].NumSamples[0] != 9 || math.Abs(out[4].Weight[0]-1) > 1e-12 {
		t.Errorf("centre = %+v, want 9 samples of total weight 1", out[4])
	}
}

func TestLayerSolverDepthLayersOcclusion(t *testing.T) {
	far, near := psfbin.Key{Dioptre: 0.1}, psfbin.Key{Dioptre: 0.5}
	pixels := []InputPixel{
		{Color: [MaxChannels]float64{1}, Key: far},
		{Color: [MaxChannels]float64{0.25}, Key: near},
	}
	in := StackInput{
		Algorithm: DepthLayers,
		Width:     2,
		Height:    1,
		Channels:  1,
		Pixels:    pixels,
		Cache:     stackCache(t, []psfbin.Key{far, near}, psf.Delta()),
		Keys:      []psfbin.Key{far, near},
	}
	out, err := LayerSolver{}.Solve(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Result[0] != 1 || out[1].Result[0] != 0.25 {
		t.Errorf("results = %v, %v, want 1, 0.25", out[0].Result[0], out[1].Result[0])
	}
	if out[0].Weight[0] != 1 || out[1].Weight[0] != 1 {
		t.Errorf("weights = %v, %v, want 1, 1", out[0].Weight[0], out[1].Weight[0])
	}
}

func TestAssignLayersNearest(t *testing.T) {
	keys := []psfbin.Key{{Dioptre: 0.5}, {Dioptre: 0.25}, {Angle: [2]float64{10, 0}, Dioptre: 0.25}}
	in := StackInput{
		Keys: keys,
		Pixels: []InputPixel{
			{Key: psfbin.Key{Dioptre: 0.3}},
			{Key: psfbin.Key{Dioptre: 0.45}},
			{Key: psfbin.Key{Angle: [2]float64{9, 0}, Dioptre: 0.5}},
		},
	}
	layerOf, order := assignLayers(in)
	if want := []int{1, 0, 2}; layerOf[0] != want[0] || layerOf[1] != want[1] || layerOf[2] != want[2] {
		t.Errorf("layerOf = %v, want %v", layerOf, want)
	}
	if in.Keys[order[0]].Dioptre != 0.25 || in.Keys[order[len(order)-1]].Dioptre != 0.5 {
		t.Errorf("layers not ordered far to near: %v", order)
	}
}

func TestLayerSolverEmptyStack(t *testing.T) {
	if _, err := (LayerSolver{}).Solve(context.Background(), StackInput{}); err == nil {
		t.Error("expected an error for an empty stack")
	}
}
