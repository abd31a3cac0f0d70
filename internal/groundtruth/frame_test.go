package groundtruth

import (
	"image/color"
	"testing"

	"github.com/banshee-data/psfsim/internal/export"
	"github.com/banshee-data/psfsim/internal/fsutil"
)

func TestLoadFrame(t *testing.T) {
	src := Checkerboard(8, 6, 2, 1, 4)
	fs := fsutil.NewMemoryFileSystem()
	png, err := export.EncodePNG(src.Color)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("scene/color.png", png, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("scene/depth.bin", src.EncodeDepth(), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := LoadFrame(fs, "scene/color.png", "scene/depth.bin", 0)
	if err != nil {
		t.Fatalf("LoadFrame: %v", err)
	}
	if f.Width != 8 || f.Height != 6 {
		t.Fatalf("size = %dx%d, want 8x6", f.Width, f.Height)
	}
	for i := range src.Depth {
		if f.Depth[i] != src.Depth[i] {
			t.Fatalf("depth[%d] = %v, want %v", i, f.Depth[i], src.Depth[i])
		}
	}
	if f.Color.RGBAAt(3, 1) != src.Color.RGBAAt(3, 1) {
		t.Errorf("colour changed on reload")
	}

	uniform, err := LoadFrame(fs, "scene/color.png", "", 3)
	if err != nil {
		t.Fatal(err)
	}
	if uniform.DepthAt(5, 5) != 3 {
		t.Errorf("uniform depth = %v, want 3", uniform.DepthAt(5, 5))
	}

	if err := fs.WriteFile("scene/short.bin", []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrame(fs, "scene/color.png", "scene/short.bin", 0); err == nil {
		t.Error("short depth file accepted")
	}
}

func TestCheckerboard(t *testing.T) {
	f := Checkerboard(4, 2, 2, 1, 3)
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	if f.DepthAt(0, 0) != 1 || f.DepthAt(3, 0) != 3 {
		t.Errorf("depth ramp = %v..%v, want 1..3", f.DepthAt(0, 0), f.DepthAt(3, 0))
	}
	if f.Color.RGBAAt(0, 0) == f.Color.RGBAAt(2, 0) {
		t.Error("adjacent cells share a colour")
	}
	bad := NewFrame(1, 1)
	bad.Set(0, 0, color.RGBA{}, 0)
	if err := bad.Validate(); err == nil {
		t.Error("zero depth accepted")
	}
}
