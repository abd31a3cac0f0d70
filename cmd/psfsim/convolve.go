package main

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/banshee-data/psfsim/internal/db"
	"github.com/banshee-data/psfsim/internal/export"
	"github.com/banshee-data/psfsim/internal/fsutil"
	"github.com/banshee-data/psfsim/internal/groundtruth"
	"github.com/banshee-data/psfsim/internal/psf"
)

// filesystem backs every command's file IO. Tests swap in memory.
var filesystem fsutil.FileSystem = fsutil.OSFileSystem{}

var metricImages = []groundtruth.ResultAttribute{
	groundtruth.AttrReference,
	groundtruth.AttrDifference,
	groundtruth.AttrSsim,
	groundtruth.AttrSsimJet,
	groundtruth.AttrHdrVdp3,
	groundtruth.AttrHdrVdp3Jet,
}

func runConvolve(ctx context.Context, args []string, out io.Writer) error {
	var common commonFlags
	fs := newFlagSet("convolve", out, &common)
	colorPath := fs.String("color", "", "Colour PNG; a synthetic checkerboard is used when empty")
	depthPath := fs.String("depth", "", "Raw little-endian float32 depth buffer in metres (uniform depth when empty)")
	uniformDepth := fs.Float64("uniform-depth", 0, "Depth in metres for every pixel when --depth is empty (0 means the focus distance)")
	scene := fs.String("scene", "", "Scene name recorded with the run")
	cell := fs.Int("checker-cell", 16, "Checkerboard cell size in pixels")
	near := fs.Float64("near", 0.5, "Checkerboard depth of the leftmost cells (metres)")
	far := fs.Float64("far", 20, "Checkerboard depth of the rightmost cells (metres)")
	reference := fs.String("reference", "", "Reference PNG or previous run directory to compare against")
	outDir := fs.String("out", "", "Output directory (overrides output.directory)")
	thumbs := fs.Uint("thumbs", 0, "Also write thumbnails no larger than this many pixels per side")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	dir := *outDir
	if dir == "" {
		dir = cfg.Output.GetDirectory()
	}

	var frame *groundtruth.Frame
	if *colorPath == "" {
		if *scene == "" {
			*scene = "checkerboard"
		}
		frame = groundtruth.Checkerboard(cfg.Camera.GetWidth(), cfg.Camera.GetHeight(), *cell, *near, *far)
	} else {
		if *scene == "" {
			*scene = path.Base(*colorPath)
		}
		depth := *uniformDepth
		if depth <= 0 {
			depth = cfg.Camera.GetFocusDistance()
		}
		if frame, err = groundtruth.LoadFrame(filesystem, *colorPath, *depthPath, depth); err != nil {
			return err
		}
	}

	settings, err := groundtruth.SettingsFromConfig(cfg, *scene)
	if err != nil {
		return err
	}
	sink := export.NewDirSink(filesystem, dir)
	sink.ThumbnailSize = *thumbs
	engine := groundtruth.New(settings, psf.NewThinLensOracle(cfg),
		groundtruth.WithStackSolver(groundtruth.LayerSolver{}),
		groundtruth.WithPsfSink(export.NewDirSink(filesystem, path.Join(dir, "psfs"))),
	)
	res, err := engine.Run(ctx, frame)
	if err != nil {
		return err
	}

	if *reference != "" {
		ref, err := loadReference(filesystem, *reference)
		if err != nil {
			return err
		}
		ms, err := groundtruth.MetricSettingsFromConfig(cfg)
		if err != nil {
			return err
		}
		if err := groundtruth.ComputeMetrics(ctx, res, ref, groundtruth.NativeEvaluator{}, ms); err != nil {
			return err
		}
		if !cfg.Metrics.GetExportMetrics() {
			for _, attr := range metricImages {
				delete(res.Images, attr)
			}
		}
	}

	if err := res.Export(sink); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	resultDir := path.Join(dir, res.Name)
	fmt.Fprintf(out, "%s: %d bins, %d zero-weight pixels, total %v\n", res.Name, res.NumBins, res.ZeroWeightPixels, res.TotalTime)
	if m := res.Metrics; m != nil {
		fmt.Fprintf(out, "  mean MSE %.6g, RMSE %.6g", m.MeanMSE, m.MeanRMSE)
		if len(m.PSNR) > 0 {
			fmt.Fprintf(out, ", PSNR %.3f dB", m.MeanPSNR)
		}
		if len(m.SSIM) > 0 {
			fmt.Fprintf(out, ", SSIM %.4f", m.MeanSSIM)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "  written to %s\n", resultDir)

	store, err := common.openDB(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	defer store.Close()
	return store.RecordRun(db.RunFromResults(res, resultDir))
}
