package kernelfit

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/psfsim/internal/ellipse"
	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/psfbin"
)

// Target is a PSF prepared for fitting together with the intermediate
// images kept for export.
type Target struct {
	Source    *psf.Image
	Ellipse   ellipse.Ellipse
	Alignment ellipse.Alignment
	Unwarped  *psf.Image
	Cropped   *psf.Image
	// Image is the isotropic, normalized target of side TargetSize.
	Image *psf.Image
}

// PrepareTarget aligns the entry's PSF: ellipse fit, unwarp, centre crop of
// the ellipse width, resize to the fit resolution and normalization.
func PrepareTarget(entry psfbin.Entry, s Settings) (*Target, error) {
	if entry.PSF == nil {
		return nil, errors.New("kernelfit: entry has no psf")
	}
	src := entry.PSF
	if s.ProjectPsf && entry.Radius > 0 {
		var err error
		if src, err = psf.ResizeToRadius(src, entry.Radius, s.Interpolation); err != nil {
			return nil, fmt.Errorf("kernelfit: project psf: %w", err)
		}
	}

	e, err := ellipse.Fit(src, s.EllipseThreshold)
	if err != nil {
		return nil, fmt.Errorf("kernelfit: %w", err)
	}
	unwarped := ellipse.Unwarp(src, e)
	cropped := psf.CropCentered(unwarped, int(math.Ceil(e.Width)))
	size := s.TargetSize()
	img, err := psf.Resize(cropped, size, size, s.Interpolation).Normalized()
	if err != nil {
		return nil, fmt.Errorf("kernelfit: target: %w", err)
	}
	return &Target{
		Source:    src,
		Ellipse:   e,
		Alignment: ellipse.Align(e, float64(src.Cols)),
		Unwarped:  unwarped,
		Cropped:   cropped,
		Image:     img,
	}, nil
}

// SelectTarget returns the entry whose defocus is closest to targetDefocus
// and its index.
func SelectTarget(entries []psfbin.Entry, targetDefocus float64) (psfbin.Entry, int, error) {
	if len(entries) == 0 {
		return psfbin.Entry{}, -1, errors.New("kernelfit: no candidate entries")
	}
	best := 0
	for i, e := range entries {
		if math.Abs(e.Defocus-targetDefocus) < math.Abs(entries[best].Defocus-targetDefocus) {
			best = i
		}
	}
	return entries[best], best, nil
}
