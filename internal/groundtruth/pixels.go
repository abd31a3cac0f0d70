package groundtruth

import "github.com/banshee-data/psfsim/internal/psfbin"

// MaxChannels is the number of colour channels a frame carries.
const MaxChannels = 3

// InputPixel is one binned source pixel. BlurRadius and Defocus are copied
// from its bin by the property pass.
type InputPixel struct {
	Color      [MaxChannels]float64
	Depth      float64
	Angle      [2]float64 // degrees
	Key        psfbin.Key
	BlurRadius [MaxChannels]float64
	Defocus    [MaxChannels]float64
}

// OutputPixel is the gathered result of one pixel. Result is already
// normalized by Weight.
type OutputPixel struct {
	Result     [MaxChannels]float64
	Weight     [MaxChannels]float64
	NumSamples [MaxChannels]int
}

// pixelSource adapts the input buffer to the gatherer.
type pixelSource struct {
	width, height, channels int
	pixels                  []InputPixel
}

func (s *pixelSource) Width() int    { return s.width }
func (s *pixelSource) Height() int   { return s.height }
func (s *pixelSource) Channels() int { return s.channels }

func (s *pixelSource) Color(row, col, channel int) float64 {
	return s.pixels[row*s.width+col].Color[channel]
}

func (s *pixelSource) Depth(row, col int) float64 { return s.pixels[row*s.width+col].Depth }

func (s *pixelSource) Key(row, col int) psfbin.Key { return s.pixels[row*s.width+col].Key }
