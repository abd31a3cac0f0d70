package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/banshee-data/psfsim/internal/config"
	"github.com/banshee-data/psfsim/internal/export"
	"github.com/banshee-data/psfsim/internal/kernel"
	"github.com/banshee-data/psfsim/internal/kernelfit"
	"github.com/banshee-data/psfsim/internal/report"
)

func runKernel(ctx context.Context, args []string, out io.Writer) error {
	var common commonFlags
	fs := newFlagSet("kernel", out, &common)
	preset := fs.String("preset", "", "Preset name: garcia or gaussian (overrides kernel.preset)")
	components := fs.Int("components", 0, "Number of garcia components (overrides kernel.components)")
	sigma := fs.Float64("sigma", 0, "Gaussian standard deviation (overrides kernel.gaussian_sigma)")
	compare := fs.Bool("compare", false, "Compare against the aligned stack PSF at fit.target_defocus")
	outDir := fs.String("out", "", "Output directory (defaults to output.directory/kernel)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if cfg.Kernel == nil {
		cfg.Kernel = &config.KernelConfig{}
	}
	if *preset != "" {
		cfg.Kernel.Preset = preset
	}
	if *components > 0 {
		cfg.Kernel.Components = components
	}
	if *sigma > 0 {
		cfg.Kernel.GaussianSig = sigma
	}
	params, err := kernel.FromConfig(cfg.Kernel)
	if err != nil {
		return err
	}
	settings, err := kernelfit.SettingsFromConfig(cfg)
	if err != nil {
		return err
	}
	taps := settings.Taps()
	k, err := kernel.Compute(params, taps, taps)
	if err != nil {
		return err
	}
	img, err := k.Image().Normalized()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s kernel, %d component(s), radius %.4f, %d taps per side\n", cfg.Kernel.GetPreset(), len(params.Components), params.Radius, taps)
	for i := range params.Components {
		fmt.Fprintf(out, "  component %d: offsets %.6f scales %.6f\n", i, k.Offsets[i], k.Scales[i])
	}

	dir := *outDir
	if dir == "" {
		dir = path.Join(cfg.Output.GetDirectory(), "kernel")
	}
	sink := export.NewDirSink(filesystem, dir)
	if err := export.WritePsf(sink, "Kernel.png", img); err != nil {
		return err
	}

	var buf bytes.Buffer
	if !*compare {
		if err := report.KernelProfile(&buf, img, nil); err != nil {
			return err
		}
		return sink.WriteFile("kernel_profile.png", buf.Bytes())
	}

	entry, key, err := stackEntry(ctx, cfg, 0, settings.TargetDefocus)
	if err != nil {
		return err
	}
	target, err := kernelfit.PrepareTarget(entry, settings)
	if err != nil {
		return err
	}
	m := kernelfit.Compare(img, target.Image)
	cost, err := kernelfit.Cost(params, target.Image)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "against bin %v: cost %.6g, MAV %.6g MSE %.6g RMSE %.6g PSNR %.3f dB\n", key, cost, m.MAV, m.MSE, m.RMSE, m.PSNR)

	diff, err := export.DiffImage(img, target.Image)
	if err != nil {
		return err
	}
	if err := sink.WriteImage("KernelDiff.png", diff); err != nil {
		return err
	}
	if err := report.KernelProfile(&buf, img, target.Image); err != nil {
		return err
	}
	return sink.WriteFile("kernel_profile.png", buf.Bytes())
}
