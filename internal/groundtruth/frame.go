package groundtruth

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"github.com/banshee-data/psfsim/internal/fsutil"
)

// Frame is a rendered colour buffer with its camera-space depth. Row 0 is
// the top of the image. Depth is in metres.
type Frame struct {
	Width, Height int
	Color         *image.RGBA
	Depth         []float32
}

// NewFrame allocates a black frame at depth 1 m.
func NewFrame(width, height int) *Frame {
	f := &Frame{
		Width:  width,
		Height: height,
		Color:  image.NewRGBA(image.Rect(0, 0, width, height)),
		Depth:  make([]float32, width*height),
	}
	for i := range f.Depth {
		f.Depth[i] = 1
	}
	return f
}

// Set stores the colour and depth of pixel (x, y).
func (f *Frame) Set(x, y int, c color.RGBA, depth float32) {
	f.Color.SetRGBA(x, y, c)
	f.Depth[y*f.Width+x] = depth
}

// DepthAt returns the depth of pixel (x, y).
func (f *Frame) DepthAt(x, y int) float64 { return float64(f.Depth[y*f.Width+x]) }

// Validate checks buffer sizes and depth values.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("frame: invalid size %dx%d", f.Width, f.Height)
	}
	if f.Color == nil || f.Color.Bounds().Dx() != f.Width || f.Color.Bounds().Dy() != f.Height {
		return fmt.Errorf("frame: colour buffer does not match %dx%d", f.Width, f.Height)
	}
	if len(f.Depth) != f.Width*f.Height {
		return fmt.Errorf("frame: depth buffer has %d values, want %d", len(f.Depth), f.Width*f.Height)
	}
	for i, d := range f.Depth {
		if math.IsNaN(float64(d)) || d <= 0 {
			return fmt.Errorf("frame: invalid depth %g at pixel %d", d, i)
		}
	}
	return nil
}

// LoadFrame reads a PNG colour image and a raw little-endian float32 depth
// buffer of the same resolution. An empty depthPath gives every pixel
// uniformDepth.
func LoadFrame(fs fsutil.FileSystem, colorPath, depthPath string, uniformDepth float64) (*Frame, error) {
	data, err := fs.ReadFile(colorPath)
	if err != nil {
		return nil, fmt.Errorf("frame: read colour: %w", err)
	}
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("frame: decode %s: %w", colorPath, err)
	}
	b := src.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	draw.Draw(f.Color, f.Color.Bounds(), src, b.Min, draw.Src)

	if depthPath == "" {
		for i := range f.Depth {
			f.Depth[i] = float32(uniformDepth)
		}
		return f, f.Validate()
	}
	raw, err := fs.ReadFile(depthPath)
	if err != nil {
		return nil, fmt.Errorf("frame: read depth: %w", err)
	}
	if len(raw) != 4*len(f.Depth) {
		return nil, fmt.Errorf("frame: depth file has %d bytes, want %d", len(raw), 4*len(f.Depth))
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, f.Depth); err != nil {
		return nil, fmt.Errorf("frame: decode depth: %w", err)
	}
	return f, f.Validate()
}

// EncodeDepth serializes the depth buffer in the LoadFrame format.
func (f *Frame) EncodeDepth() []byte {
	var buf bytes.Buffer
	buf.Grow(4 * len(f.Depth))
	_ = binary.Write(&buf, binary.LittleEndian, f.Depth)
	return buf.Bytes()
}

// Checkerboard synthesizes a test scene: a checkerboard of cell pixels whose
// depth steps linearly from near (left) to far (right) across columns of
// cells.
func Checkerboard(width, height, cell int, near, far float64) *Frame {
	f := NewFrame(width, height)
	cell = max(cell, 1)
	cols := (width + cell - 1) / cell
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			cx, cy := x/cell, y/cell
			c := color.RGBA{R: 40, G: 40, B: 40, A: 255}
			if (cx+cy)%2 == 0 {
				c = color.RGBA{R: 230, G: 200, B: 160, A: 255}
			}
			t := 0.0
			if cols > 1 {
				t = float64(cx) / float64(cols-1)
			}
			f.Set(x, y, c, float32(near+t*(far-near)))
		}
	}
	return f
}
