package export

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/psfsim/internal/fsutil"
	"github.com/banshee-data/psfsim/internal/psf"
)

func TestDirSinkWritesPNG(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	sink := NewDirSink(fs, "out")

	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.SetRGBA(1, 1, color.RGBA{R: 255, A: 255})
	if err := sink.WriteImage("run/Original.png", img); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	data, err := fs.ReadFile("out/run/Original.png")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r, _, _, _ := decoded.At(1, 1).RGBA(); r != 0xffff {
		t.Errorf("pixel red = %x, want ffff", r)
	}
	if fs.Exists("out/thumbs/run/Original.png") {
		t.Error("thumbnail written with thumbnails disabled")
	}
}

func TestDirSinkThumbnails(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	sink := &DirSink{FS: fs, Root: "out", ThumbnailSize: 8}
	if err := sink.WriteImage("big.png", image.NewGray(image.Rect(0, 0, 64, 32))); err != nil {
		t.Fatal(err)
	}
	data, err := fs.ReadFile("out/thumbs/big.png")
	if err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 8 || cfg.Height != 4 {
		t.Errorf("thumbnail is %dx%d, want 8x4", cfg.Width, cfg.Height)
	}
}

func TestWriteFile(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	sink := NewDirSink(fs, "root")
	if err := sink.WriteFile("a/b/attributes.ini", []byte("[Resolution]\n")); err != nil {
		t.Fatal(err)
	}
	entries, err := fs.ReadDir("root/a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b/"}, entries); diff != "" {
		t.Errorf("ReadDir mismatch (-want +got):\n%s", diff)
	}
}

func TestPsfImage(t *testing.T) {
	p := psf.FromRows([][]float64{{0, 0.25, 0}, {0.25, 0.5, 0.25}, {0, 0.25, 0}})
	g := PsfImage(p)
	if g.Gray16At(1, 1).Y != 0xffff {
		t.Errorf("peak = %x, want ffff", g.Gray16At(1, 1).Y)
	}
	if got := g.Gray16At(1, 0).Y; got != 0x8000 {
		t.Errorf("half = %x, want 8000", got)
	}
	if g := PsfImage(psf.New(3, 3)); g.Gray16At(0, 0).Y != 0 {
		t.Error("zero psf should render black")
	}
}

func TestDiffImage(t *testing.T) {
	a := psf.FromRows([][]float64{{1, 0}})
	b := psf.FromRows([][]float64{{0.5, 0}})
	g, err := DiffImage(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Gray16At(0, 0).Y; got != 0x8000 {
		t.Errorf("diff = %x, want 8000", got)
	}
	if _, err := DiffImage(a, psf.New(2, 2)); err == nil {
		t.Error("expected shape error")
	}
}

func TestPsfFileName(t *testing.T) {
	if got := PsfFileName("original", 2, 0, -5, 10); got != "psf_original_c2_h0_v-5_m10.png" {
		t.Errorf("PsfFileName = %q", got)
	}
}
