// Package ellipse fits the minimum-area ellipse enclosing the support of a
// PSF and derives the affine alignment that maps it onto a circle.
package ellipse

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/units"
)

// ErrNoSupport is returned when no pixel passes the threshold.
var ErrNoSupport = errors.New("ellipse: no pixel above threshold")

const (
	mveeTolerance     = 1e-7
	mveeMaxIterations = 10000
)

// Ellipse describes the fitted support in image coordinates (pixel centres
// at +0.5, y down). Width and Height are full axis lengths; Width is the axis
// closest to horizontal and AngleDegrees, in (-45, 45], is its direction.
type Ellipse struct {
	Width        float64
	Height       float64
	AngleDegrees float64
	CenterX      float64
	CenterY      float64
}

// Fit thresholds img at threshold times its maximum and fits the
// minimum-area ellipse enclosing the convex hull of the surviving pixel
// centres. With fewer than three non-collinear points the ellipse is the
// axis-aligned extent plus one pixel.
func Fit(img *psf.Image, threshold float64) (Ellipse, error) {
	norm, err := img.NormalizedMax()
	if err != nil {
		return Ellipse{}, fmt.Errorf("ellipse: %w", err)
	}
	var pts []r2.Vec
	for r := 0; r < norm.Rows; r++ {
		for c := 0; c < norm.Cols; c++ {
			if norm.At(r, c) >= threshold {
				pts = append(pts, r2.Vec{X: float64(c) + 0.5, Y: float64(r) + 0.5})
			}
		}
	}
	if len(pts) == 0 {
		return Ellipse{}, ErrNoSupport
	}

	hull := convexHull(pts)
	if len(hull) < 3 {
		return extentEllipse(pts), nil
	}
	center, shape, err := mvee(hull)
	if err != nil {
		return extentEllipse(pts), nil
	}
	return fromShape(center, shape)
}

func extentEllipse(pts []r2.Vec) Ellipse {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	minX, maxX := floats.Min(xs), floats.Max(xs)
	minY, maxY := floats.Min(ys), floats.Max(ys)
	return Ellipse{
		Width:   maxX - minX + 1,
		Height:  maxY - minY + 1,
		CenterX: (minX + maxX) / 2,
		CenterY: (minY + maxY) / 2,
	}
}

// mvee runs Khachiyan's algorithm and returns the centre c and the shape
// matrix A of the ellipse (x-c)ᵀA(x-c) ≤ 1.
func mvee(pts []r2.Vec) (r2.Vec, *mat.SymDense, error) {
	const d = 2
	n := len(pts)
	q := mat.NewDense(d+1, n, nil)
	for i, p := range pts {
		q.Set(0, i, p.X)
		q.Set(1, i, p.Y)
		q.Set(2, i, 1)
	}

	u := make([]float64, n)
	for i := range u {
		u[i] = 1 / float64(n)
	}
	var x, xInv mat.Dense
	var qu mat.Dense
	col := mat.NewVecDense(d+1, nil)
	tmp := mat.NewVecDense(d+1, nil)
	for iter := 0; iter < mveeMaxIterations; iter++ {
		qu.Apply(func(_, j int, v float64) float64 { return v * u[j] }, q)
		x.Mul(&qu, q.T())
		if err := xInv.Inverse(&x); err != nil {
			return r2.Vec{}, nil, err
		}
		best, bestM := 0, math.Inf(-1)
		for i := 0; i < n; i++ {
			mat.Col(col.RawVector().Data, i, q)
			tmp.MulVec(&xInv, col)
			if m := mat.Dot(col, tmp); m > bestM {
				best, bestM = i, m
			}
		}
		step := (bestM - d - 1) / ((d + 1) * (bestM - 1))
		change := 0.0
		for i := range u {
			next := (1 - step) * u[i]
			if i == best {
				next += step
			}
			change += (next - u[i]) * (next - u[i])
			u[i] = next
		}
		if math.Sqrt(change) < mveeTolerance {
			break
		}
	}

	var c r2.Vec
	for i, p := range pts {
		c = r2.Add(c, r2.Scale(u[i], p))
	}
	// A = (P diag(u) Pᵀ - c cᵀ)⁻¹ / d
	var sxx, sxy, syy float64
	for i, p := range pts {
		sxx += u[i] * p.X * p.X
		sxy += u[i] * p.X * p.Y
		syy += u[i] * p.Y * p.Y
	}
	cov := mat.NewDense(d, d, []float64{
		sxx - c.X*c.X, sxy - c.X*c.Y,
		sxy - c.X*c.Y, syy - c.Y*c.Y,
	})
	var inv mat.Dense
	if err := inv.Inverse(cov); err != nil {
		return r2.Vec{}, nil, err
	}
	inv.Scale(1.0/d, &inv)
	shape := mat.NewSymDense(d, []float64{
		inv.At(0, 0), (inv.At(0, 1) + inv.At(1, 0)) / 2,
		(inv.At(0, 1) + inv.At(1, 0)) / 2, inv.At(1, 1),
	})
	return c, shape, nil
}

func fromShape(c r2.Vec, shape *mat.SymDense) (Ellipse, error) {
	var eig mat.EigenSym
	if !eig.Factorize(shape, true) {
		return Ellipse{}, errors.New("ellipse: eigen decomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	if vals[0] <= 0 || vals[1] <= 0 {
		return Ellipse{}, fmt.Errorf("ellipse: shape matrix not positive definite: %v", vals)
	}

	type axis struct {
		length float64
		angle  float64 // degrees in (-90, 90]
	}
	axes := make([]axis, 2)
	for i := range axes {
		ang := units.Degrees(math.Atan2(vecs.At(1, i), vecs.At(0, i)))
		for ang <= -90 {
			ang += 180
		}
		for ang > 90 {
			ang -= 180
		}
		axes[i] = axis{length: 2 / math.Sqrt(vals[i]), angle: ang}
	}
	w, h := axes[0], axes[1]
	if math.Abs(h.angle) < math.Abs(w.angle) || (math.Abs(h.angle) == math.Abs(w.angle) && h.angle > w.angle) {
		w, h = h, w
	}
	if w.angle == -45 {
		w.angle = 45
	}
	return Ellipse{
		Width:        w.length,
		Height:       h.length,
		AngleDegrees: w.angle,
		CenterX:      c.X,
		CenterY:      c.Y,
	}, nil
}
