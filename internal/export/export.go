// Package export writes run artefacts: result images, PSF dumps, kernel
// images and attributes files.
package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"path"

	"github.com/nfnt/resize"

	"github.com/banshee-data/psfsim/internal/fsutil"
	"github.com/banshee-data/psfsim/internal/psf"
)

// Sink receives named artefacts. Names are slash-separated paths relative to
// the sink root.
type Sink interface {
	WriteImage(name string, img image.Image) error
	WriteFile(name string, data []byte) error
}

// DirSink writes artefacts below Root on a FileSystem. When ThumbnailSize
// is positive every image also gets a preview no larger than that many
// pixels per side under thumbs/.
type DirSink struct {
	FS            fsutil.FileSystem
	Root          string
	ThumbnailSize uint
}

// NewDirSink returns a sink rooted at root.
func NewDirSink(fs fsutil.FileSystem, root string) *DirSink {
	return &DirSink{FS: fs, Root: root}
}

func (s *DirSink) path(name string) string {
	return path.Join(s.Root, name)
}

// WriteFile implements Sink.
func (s *DirSink) WriteFile(name string, data []byte) error {
	p := s.path(name)
	if err := s.FS.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("export: mkdir for %s: %w", name, err)
	}
	if err := s.FS.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", name, err)
	}
	return nil
}

// WriteImage implements Sink by encoding img as PNG.
func (s *DirSink) WriteImage(name string, img image.Image) error {
	data, err := EncodePNG(img)
	if err != nil {
		return fmt.Errorf("export: encode %s: %w", name, err)
	}
	if err := s.WriteFile(name, data); err != nil {
		return err
	}
	if s.ThumbnailSize == 0 {
		return nil
	}
	thumb := resize.Thumbnail(s.ThumbnailSize, s.ThumbnailSize, img, resize.Bilinear)
	if data, err = EncodePNG(thumb); err != nil {
		return fmt.Errorf("export: encode thumbnail %s: %w", name, err)
	}
	return s.WriteFile(path.Join("thumbs", name), data)
}

// EncodePNG encodes img with default compression.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PsfImage renders a PSF as a 16-bit grey image normalized to its maximum.
func PsfImage(p *psf.Image) *image.Gray16 {
	g := image.NewGray16(image.Rect(0, 0, p.Cols, p.Rows))
	mx := p.Max()
	if mx <= 0 {
		return g
	}
	for r := 0; r < p.Rows; r++ {
		for c := 0; c < p.Cols; c++ {
			v := math.Min(math.Max(p.At(r, c)/mx, 0), 1)
			g.SetGray16(c, r, color.Gray16{Y: uint16(math.Round(v * 0xffff))})
		}
	}
	return g
}

// DiffImage renders |a-b| normalized by the larger of the two peaks.
func DiffImage(a, b *psf.Image) (*image.Gray16, error) {
	d, err := psf.Diff(a, b)
	if err != nil {
		return nil, err
	}
	peak := math.Max(a.Max(), b.Max())
	if peak > 0 {
		d.Scale(1 / peak)
	}
	g := image.NewGray16(image.Rect(0, 0, d.Cols, d.Rows))
	for r := 0; r < d.Rows; r++ {
		for c := 0; c < d.Cols; c++ {
			g.SetGray16(c, r, color.Gray16{Y: uint16(math.Round(math.Min(d.At(r, c), 1) * 0xffff))})
		}
	}
	return g, nil
}

// PsfFileName names a per-bin PSF dump, e.g.
// psf_original_c0_h0_v0_m10.png. Depth is in metres.
func PsfFileName(kind string, channel int, angleH, angleV, depth float64) string {
	return fmt.Sprintf("psf_%s_c%d_h%g_v%g_m%g.png", kind, channel, angleH, angleV, depth)
}

// WritePsf writes p under name as a max-normalized grey PNG.
func WritePsf(s Sink, name string, p *psf.Image) error {
	return s.WriteImage(name, PsfImage(p))
}
