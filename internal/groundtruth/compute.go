package groundtruth

import (
	"context"
	"fmt"

	"github.com/banshee-data/psfsim/internal/export"
	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/psfbin"
	"github.com/banshee-data/psfsim/internal/units"
)

// computeEntry asks the oracle for one bin and channel and resamples the PSF
// to its blur radius in screen pixels.
func (e *Engine) computeEntry(ctx context.Context, key psfbin.Key, channel int) (psfbin.Entry, error) {
	sample, err := e.oracle.ComputePsf(ctx, channel, key.Angle[0], key.Angle[1], key.Dioptre)
	if err != nil {
		return psfbin.Entry{}, fmt.Errorf("oracle: %w", err)
	}
	if sample.PSF == nil {
		return psfbin.Entry{}, fmt.Errorf("oracle returned no psf")
	}

	radius := units.BlurRadiusPixels(sample.BlurRadiusDegrees, e.settings.FovyDegrees, e.height)
	downscaled, err := psf.ResizeToRadius(sample.PSF, radius, e.settings.Interpolation)
	if err != nil {
		return psfbin.Entry{}, fmt.Errorf("resize to radius %.3f: %w", radius, err)
	}

	if e.settings.ExportPsfs && e.sink != nil {
		depth := units.Meters(key.Dioptre)
		orig := export.PsfFileName("original", channel, key.Angle[0], key.Angle[1], depth)
		if err := export.WritePsf(e.sink, orig, sample.PSF); err != nil {
			return psfbin.Entry{}, err
		}
		down := export.PsfFileName("downscaled", channel, key.Angle[0], key.Angle[1], depth)
		if err := export.WritePsf(e.sink, down, downscaled); err != nil {
			return psfbin.Entry{}, err
		}
	}

	return psfbin.Entry{Radius: radius, Defocus: sample.Defocus, PSF: downscaled}, nil
}
