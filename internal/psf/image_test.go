package psf

import (
	"errors"
	"math"
	"testing"
)

func TestNormalized(t *testing.T) {
	img := FromRows([][]float64{{1, 2, 1}, {2, 4, 2}, {1, 2, 1}})
	n, err := img.Normalized()
	if err != nil {
		t.Fatalf("Normalized: %v", err)
	}
	if got := n.Sum(); math.Abs(got-1) > 1e-12 {
		t.Errorf("sum = %v, want 1", got)
	}
	if img.Sum() != 16 {
		t.Errorf("source modified: sum = %v", img.Sum())
	}

	if _, err := New(3, 3).Normalized(); !errors.Is(err, ErrEmpty) {
		t.Errorf("zero image: err = %v, want ErrEmpty", err)
	}
}

func TestNormalizedMax(t *testing.T) {
	img := FromRows([][]float64{{0, 2, 0}, {2, 8, 2}, {0, 2, 0}})
	n, err := img.NormalizedMax()
	if err != nil {
		t.Fatalf("NormalizedMax: %v", err)
	}
	if n.Max() != 1 || n.At(0, 1) != 0.25 {
		t.Errorf("unexpected values %v", n.Pix)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		img     *Image
		wantErr bool
	}{
		{"delta", Delta(), false},
		{"3x3", FromRows([][]float64{{0, 1, 0}, {1, 1, 1}, {0, 1, 0}}), false},
		{"even", New(2, 2), true},
		{"rect", New(3, 5), true},
		{"negative", FromRows([][]float64{{-1}}), true},
		{"nan", FromRows([][]float64{{math.NaN()}}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.img.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPadAndCrop(t *testing.T) {
	img := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	p := Pad(img, 5, 5)
	if p.Rows != 5 || p.At(1, 1) != 1 || p.At(3, 3) != 9 || p.At(0, 0) != 0 {
		t.Errorf("Pad produced %v", p.Pix)
	}
	c := CropCentered(p, 3)
	for i := range img.Pix {
		if c.Pix[i] != img.Pix[i] {
			t.Fatalf("CropCentered = %v, want %v", c.Pix, img.Pix)
		}
	}
	clipped := Crop(img, 2, 2, 5, 5)
	if clipped.Rows != 1 || clipped.Cols != 1 || clipped.At(0, 0) != 9 {
		t.Errorf("Crop clipped = %+v", clipped)
	}
}

func TestDiff(t *testing.T) {
	a := FromRows([][]float64{{1, 2}})
	b := FromRows([][]float64{{3, 1}})
	d, err := Diff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if d.At(0, 0) != 2 || d.At(0, 1) != 1 {
		t.Errorf("Diff = %v", d.Pix)
	}
	if _, err := Diff(a, New(2, 1)); err == nil {
		t.Error("expected shape mismatch error")
	}
}
