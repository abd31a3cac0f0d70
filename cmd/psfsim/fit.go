package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/psfsim/internal/config"
	"github.com/banshee-data/psfsim/internal/db"
	"github.com/banshee-data/psfsim/internal/ellipse"
	"github.com/banshee-data/psfsim/internal/export"
	"github.com/banshee-data/psfsim/internal/groundtruth"
	"github.com/banshee-data/psfsim/internal/kernelfit"
	"github.com/banshee-data/psfsim/internal/monitoring"
	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/psfbin"
	"github.com/banshee-data/psfsim/internal/report"
)

// stackEntry populates the oracle's stack and returns the channel's entry
// whose defocus is closest to targetDefocus.
func stackEntry(ctx context.Context, cfg *config.SimulationConfig, channel int, targetDefocus float64) (psfbin.Entry, psfbin.Key, error) {
	settings, err := groundtruth.SettingsFromConfig(cfg, "stack")
	if err != nil {
		return psfbin.Entry{}, psfbin.Key{}, err
	}
	if channel < 0 || channel >= settings.Channels {
		return psfbin.Entry{}, psfbin.Key{}, fmt.Errorf("channel %d out of range [0, %d)", channel, settings.Channels)
	}
	cache, err := groundtruth.New(settings, psf.NewThinLensOracle(cfg)).PopulateStack(ctx, cfg.Camera.GetHeight())
	if err != nil {
		return psfbin.Entry{}, psfbin.Key{}, err
	}
	keys := cache.Keys()
	entries := make([]psfbin.Entry, len(keys))
	for i, k := range keys {
		if entries[i], err = cache.Entry(k, channel); err != nil {
			return psfbin.Entry{}, psfbin.Key{}, err
		}
	}
	entry, idx, err := kernelfit.SelectTarget(entries, targetDefocus)
	if err != nil {
		return psfbin.Entry{}, psfbin.Key{}, err
	}
	monitoring.Diagf("[CLI] selected bin %v: defocus %.3f, radius %.2f px", keys[idx], entry.Defocus, entry.Radius)
	return entry, keys[idx], nil
}

func runAlign(ctx context.Context, args []string, out io.Writer) error {
	var common commonFlags
	fs := newFlagSet("align", out, &common)
	channel := fs.Int("channel", 0, "Colour channel of the PSF")
	outDir := fs.String("out", "", "Write the source and unwarped PSF images here (align.export_psf writes them to output.directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	entry, key, err := stackEntry(ctx, cfg, *channel, cfg.Align.GetTargetDefocus())
	if err != nil {
		return err
	}
	e, err := ellipse.Fit(entry.PSF, cfg.Align.GetEllipseThreshold())
	if err != nil {
		return err
	}
	a := ellipse.Align(e, float64(entry.PSF.Cols))
	fmt.Fprintf(out, "bin %v defocus %.3f radius %.2f px\n", key, entry.Defocus, entry.Radius)
	fmt.Fprintf(out, "ellipse %.3f x %.3f at %.2f deg, centre (%.2f, %.2f)\n", e.Width, e.Height, e.AngleDegrees, e.CenterX, e.CenterY)
	fmt.Fprintf(out, "rotation %.6f rad, ratio %.6f, contraction %.6f\n", a.Rotation, a.Ratio, a.Contraction)

	dir := *outDir
	if dir == "" && cfg.Align.GetExportPsf() {
		dir = path.Join(cfg.Output.GetDirectory(), "align")
	}
	if dir == "" {
		return nil
	}
	sink := export.NewDirSink(filesystem, dir)
	if err := export.WritePsf(sink, "psf_source.png", entry.PSF); err != nil {
		return err
	}
	return export.WritePsf(sink, "psf_unwarped.png", ellipse.Unwarp(entry.PSF, e))
}

func runFit(ctx context.Context, args []string, out io.Writer) error {
	var common commonFlags
	fs := newFlagSet("fit", out, &common)
	channel := fs.Int("channel", 0, "Colour channel of the PSF")
	outDir := fs.String("out", "", "Output directory for kernel images and plots (defaults to output.directory/fits)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	settings, err := kernelfit.SettingsFromConfig(cfg)
	if err != nil {
		return err
	}

	entry, key, err := stackEntry(ctx, cfg, *channel, settings.TargetDefocus)
	if err != nil {
		return err
	}
	started := time.Now()
	res, fitErr := kernelfit.Fit(ctx, entry, settings)
	if res == nil {
		return fitErr
	}
	if fitErr != nil && !errors.Is(fitErr, context.Canceled) && !errors.Is(fitErr, context.DeadlineExceeded) {
		return fitErr
	}

	id := uuid.New().String()
	fmt.Fprintf(out, "fit %s on bin %v: %v after %d iterations, cost %.6g -> %.6g\n",
		id, key, res.Termination, res.Iterations, res.InitialCost, res.Cost)
	fmt.Fprintf(out, "  radius %.6f\n", res.Params.Radius)
	for i, c := range res.Params.Components {
		fmt.Fprintf(out, "  component %d: a=%.6f b=%.6f A=%.6f B=%.6f\n", i, c.LowerA, c.LowerB, c.UpperA, c.UpperB)
	}
	fmt.Fprintf(out, "  MAV %.6g MSE %.6g RMSE %.6g PSNR %.3f dB\n", res.Metrics.MAV, res.Metrics.MSE, res.Metrics.RMSE, res.Metrics.PSNR)

	dir := *outDir
	if dir == "" {
		dir = path.Join(cfg.Output.GetDirectory(), "fits", id)
	}
	if err := writeFitArtefacts(export.NewDirSink(filesystem, dir), res, cfg.Fit.GetExportPsf()); err != nil {
		return err
	}
	fmt.Fprintf(out, "  written to %s\n", dir)

	store, err := common.openDB(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		if err := store.RecordFit(db.FitFromResult(id, started, settings, res)); err != nil {
			return err
		}
	}
	return fitErr
}

func writeFitArtefacts(sink *export.DirSink, res *kernelfit.Result, withPsf bool) error {
	if res.Kernel != nil {
		if err := export.WritePsf(sink, "Kernel.png", res.Kernel); err != nil {
			return err
		}
		var buf bytes.Buffer
		var target *psf.Image
		if res.Target != nil {
			target = res.Target.Image
		}
		if err := report.KernelProfile(&buf, res.Kernel, target); err != nil {
			return err
		}
		if err := sink.WriteFile("kernel_profile.png", buf.Bytes()); err != nil {
			return err
		}
		if target != nil {
			diff, err := export.DiffImage(res.Kernel, target)
			if err != nil {
				return err
			}
			if err := sink.WriteImage("KernelDiff.png", diff); err != nil {
				return err
			}
		}
	}
	if len(res.CostHistory) > 0 {
		var buf bytes.Buffer
		if err := report.CostHistory(&buf, res.CostHistory); err != nil {
			return err
		}
		if err := sink.WriteFile("cost_history.png", buf.Bytes()); err != nil {
			return err
		}
	}
	if withPsf && res.Target != nil {
		for name, img := range map[string]*psf.Image{
			"psf_source.png":   res.Target.Source,
			"psf_unwarped.png": res.Target.Unwarped,
			"psf_target.png":   res.Target.Image,
		} {
			if err := export.WritePsf(sink, name, img); err != nil {
				return err
			}
		}
	}
	return nil
}
