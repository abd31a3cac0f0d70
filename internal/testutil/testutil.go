// Package testutil provides shared test fixtures: synthetic PSFs and
// frames, and the assertions used by the HTTP handler tests.
package testutil

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/banshee-data/psfsim/internal/psf"
)

// FilledEllipse draws a centred ellipse with semi-axes a (along angleDeg)
// and b into an n×n image. Pixels are sampled at their centres.
func FilledEllipse(n int, a, b, angleDeg float64) *psf.Image {
	img := psf.New(n, n)
	th := angleDeg * math.Pi / 180
	cos, sin := math.Cos(th), math.Sin(th)
	c := float64(n) / 2
	for r := 0; r < n; r++ {
		for col := 0; col < n; col++ {
			dx := float64(col) + 0.5 - c
			dy := float64(r) + 0.5 - c
			u := (dx*cos + dy*sin) / a
			v := (-dx*sin + dy*cos) / b
			if u*u+v*v <= 1 {
				img.Set(r, col, 1)
			}
		}
	}
	return img
}

// SolidRGBA returns a w×h image filled with c.
func SolidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertImagesClose fails the test when got and want differ in shape or
// any pixel differs by more than tol.
func AssertImagesClose(t *testing.T, got, want *psf.Image, tol float64) {
	t.Helper()
	if got.Rows != want.Rows || got.Cols != want.Cols {
		t.Fatalf("size = %dx%d, want %dx%d", got.Rows, got.Cols, want.Rows, want.Cols)
	}
	for i := range want.Pix {
		if d := math.Abs(got.Pix[i] - want.Pix[i]); d > tol {
			t.Errorf("pixel (%d,%d) = %g, want %g", i/want.Cols, i%want.Cols, got.Pix[i], want.Pix[i])
			return
		}
	}
}
