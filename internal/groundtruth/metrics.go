package groundtruth

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/psfsim/internal/config"
	"github.com/banshee-data/psfsim/internal/monitoring"
)

// MetricSettings selects the metrics to compute and describes the display
// model used by HDR-VDP.
type MetricSettings struct {
	Channels      int
	DynamicRange  DynamicRange
	ComputeSsim   bool
	ComputePsnr   bool
	ComputeHdrvdp bool

	PeakLuminance         float64
	ContrastRatio         float64
	Gamma                 float64
	AmbientLight          float64
	DisplaySize           float64
	DisplayResolution     [2]int
	ViewDistance          float64
	Surround              float64
	SensitivityCorrection float64
}

// MetricSettingsFromConfig resolves the metrics section.
func MetricSettingsFromConfig(cfg *config.SimulationConfig) (MetricSettings, error) {
	dr, err := ParseDynamicRange(cfg.Convolution.GetDynamicRange())
	if err != nil {
		return MetricSettings{}, err
	}
	m := cfg.Metrics
	return MetricSettings{
		Channels:              min(max(cfg.Convolution.GetChannels(), 1), MaxChannels),
		DynamicRange:          dr,
		ComputeSsim:           m.GetComputeSsim(),
		ComputePsnr:           m.GetComputePsnr(),
		ComputeHdrvdp:         m.GetComputeHdrvdp(),
		PeakLuminance:         m.GetPeakLuminance(),
		ContrastRatio:         m.GetContrastRatio(),
		Gamma:                 m.GetGamma(),
		AmbientLight:          m.GetAmbientLight(),
		DisplaySize:           m.GetDisplaySize(),
		DisplayResolution:     m.GetDisplayResolution(),
		ViewDistance:          m.GetViewDistance(),
		Surround:              m.GetSurround(),
		SensitivityCorrection: m.GetSensitivityCorrection(),
	}, nil
}

// MetricsReport holds per-channel metrics and their means over channels.
// Slices are empty when a metric was not computed.
type MetricsReport struct {
	MSE      []float64
	RMSE     []float64
	MeanMSE  float64
	MeanRMSE float64

	PSNR     []float64
	SNR      []float64
	MeanPSNR float64
	MeanSNR  float64

	SSIM     []float64
	MeanSSIM float64

	HDRVDP3    float64
	HasHDRVDP3 bool

	Images map[ResultAttribute]*image.RGBA
}

// MetricsEvaluator compares a candidate image against a reference.
type MetricsEvaluator interface {
	Evaluate(ctx context.Context, reference, candidate *image.RGBA, settings MetricSettings) (MetricsReport, error)
}

// MeanSquaredError compares two 8-bit images channel by channel on a [0, 1]
// scale and returns the per-channel MSE and the absolute difference image.
func MeanSquaredError(reference, candidate *image.RGBA, channels int) ([]float64, *image.RGBA, error) {
	rb, cb := reference.Bounds(), candidate.Bounds()
	if rb.Dx() != cb.Dx() || rb.Dy() != cb.Dy() {
		return nil, nil, fmt.Errorf("metrics: reference is %dx%d, candidate is %dx%d", rb.Dx(), rb.Dy(), cb.Dx(), cb.Dy())
	}
	w, h := rb.Dx(), rb.Dy()
	diff := image.NewRGBA(image.Rect(0, 0, w, h))
	mse := make([]float64, channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := reference.RGBAAt(rb.Min.X+x, rb.Min.Y+y)
			c := candidate.RGBAAt(cb.Min.X+x, cb.Min.Y+y)
			rv := [MaxChannels]uint8{r.R, r.G, r.B}
			cv := [MaxChannels]uint8{c.R, c.G, c.B}
			var d [MaxChannels]float64
			for ch := 0; ch < MaxChannels; ch++ {
				d[ch] = math.Abs(float64(cv[ch])-float64(rv[ch])) / 255
				if ch < channels {
					mse[ch] += d[ch] * d[ch]
				}
			}
			diff.SetRGBA(x, y, color.RGBA{R: ftoui(d[0]), G: ftoui(d[1]), B: ftoui(d[2]), A: 255})
		}
	}
	for ch := range mse {
		mse[ch] /= float64(w * h)
	}
	return mse, diff, nil
}

// ComputeMetrics compares the run's convolution against reference, adds
// the evaluator's metrics when one is given and attaches the report to res.
func ComputeMetrics(ctx context.Context, res *Results, reference *image.RGBA, eval MetricsEvaluator, settings MetricSettings) error {
	report, err := computeMetrics(ctx, res, reference, eval, settings)
	if err != nil {
		return stageErr(StageMetrics, err)
	}
	return stageErr(StageMetrics, res.SetMetrics(report))
}

func computeMetrics(ctx context.Context, res *Results, reference *image.RGBA, eval MetricsEvaluator, settings MetricSettings) (MetricsReport, error) {
	candidate := res.Images[AttrConvolution]
	if candidate == nil {
		return MetricsReport{}, fmt.Errorf("results have no %s image", AttrConvolution)
	}
	if reference == nil {
		return MetricsReport{}, fmt.Errorf("no reference image")
	}
	channels := settings.Channels
	if channels <= 0 {
		channels = res.Channels
	}
	mse, diff, err := MeanSquaredError(reference, candidate, channels)
	if err != nil {
		return MetricsReport{}, err
	}

	var report MetricsReport
	if eval != nil {
		if report, err = eval.Evaluate(ctx, reference, candidate, settings); err != nil {
			return MetricsReport{}, fmt.Errorf("evaluator: %w", err)
		}
	}
	report.MSE = mse
	report.RMSE = make([]float64, len(mse))
	for i, v := range mse {
		report.RMSE[i] = math.Sqrt(v)
	}
	report.MeanMSE = stat.Mean(report.MSE, nil)
	report.MeanRMSE = stat.Mean(report.RMSE, nil)

	if report.Images == nil {
		report.Images = make(map[ResultAttribute]*image.RGBA)
	}
	ref := image.NewRGBA(image.Rect(0, 0, reference.Bounds().Dx(), reference.Bounds().Dy()))
	for y := 0; y < ref.Rect.Dy(); y++ {
		for x := 0; x < ref.Rect.Dx(); x++ {
			ref.SetRGBA(x, y, reference.RGBAAt(reference.Bounds().Min.X+x, reference.Bounds().Min.Y+y))
		}
	}
	report.Images[AttrReference] = ref
	report.Images[AttrDifference] = diff

	monitoring.Diagf("[GroundTruth] metrics for %s: mse=%v rmse=%v", res.Name, report.MSE, report.RMSE)
	return report, nil
}

// NativeEvaluator computes PSNR, SNR and windowed SSIM in-process. It does
// not implement HDR-VDP.
type NativeEvaluator struct {
	// SsimRadius is the half-width of the SSIM window; 3 when zero.
	SsimRadius int
}

const (
	ssimC1 = 0.01 * 0.01
	ssimC2 = 0.03 * 0.03
)

// Evaluate implements MetricsEvaluator.
func (n NativeEvaluator) Evaluate(ctx context.Context, reference, candidate *image.RGBA, s MetricSettings) (MetricsReport, error) {
	var report MetricsReport
	rb, cb := reference.Bounds(), candidate.Bounds()
	if rb.Dx() != cb.Dx() || rb.Dy() != cb.Dy() {
		return report, fmt.Errorf("reference is %dx%d, candidate is %dx%d", rb.Dx(), rb.Dy(), cb.Dx(), cb.Dy())
	}
	channels := min(max(s.Channels, 1), MaxChannels)
	ref, cand := planes(reference, channels), planes(candidate, channels)
	w, h := rb.Dx(), rb.Dy()

	if s.ComputePsnr {
		report.PSNR = make([]float64, channels)
		report.SNR = make([]float64, channels)
		for ch := 0; ch < channels; ch++ {
			var mse, signal float64
			for i := range ref[ch] {
				d := cand[ch][i] - ref[ch][i]
				mse += d * d
				signal += ref[ch][i] * ref[ch][i]
			}
			mse /= float64(len(ref[ch]))
			signal /= float64(len(ref[ch]))
			report.PSNR[ch] = 10 * math.Log10(1/mse)
			report.SNR[ch] = 10 * math.Log10(signal/mse)
		}
		report.MeanPSNR = stat.Mean(report.PSNR, nil)
		report.MeanSNR = stat.Mean(report.SNR, nil)
	}

	if s.ComputeSsim {
		radius := n.SsimRadius
		if radius <= 0 {
			radius = 3
		}
		report.SSIM = make([]float64, channels)
		maps := make([][]float64, channels)
		for ch := 0; ch < channels; ch++ {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			maps[ch] = ssimMap(ref[ch], cand[ch], w, h, radius)
			report.SSIM[ch] = stat.Mean(maps[ch], nil)
		}
		report.MeanSSIM = stat.Mean(report.SSIM, nil)

		ssim := image.NewRGBA(image.Rect(0, 0, w, h))
		jet := image.NewRGBA(image.Rect(0, 0, w, h))
		var vals [MaxChannels]float64
		for i := 0; i < w*h; i++ {
			x, y := i%w, i/w
			mean := 0.0
			for ch := 0; ch < channels; ch++ {
				vals[ch] = maps[ch][i]
				mean += maps[ch][i]
			}
			setPixel(ssim, x, y, vals, channels)
			jet.SetRGBA(x, y, jetColor(1-mean/float64(channels)))
		}
		report.Images = map[ResultAttribute]*image.RGBA{AttrSsim: ssim, AttrSsimJet: jet}
	}

	if s.ComputeHdrvdp {
		monitoring.Opsf("[GroundTruth] warning: HDR-VDP is not available in the native evaluator")
	}
	return report, nil
}

func planes(img *image.RGBA, channels int) [][]float64 {
	b := img.Bounds()
	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = make([]float64, 0, b.Dx()*b.Dy())
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			v := [MaxChannels]uint8{c.R, c.G, c.B}
			for ch := 0; ch < channels; ch++ {
				out[ch] = append(out[ch], float64(v[ch])/255)
			}
		}
	}
	return out
}

// ssimMap computes SSIM over a (2r+1)² box window clipped to the image,
// using summed-area tables.
func ssimMap(a, b []float64, w, h, r int) []float64 {
	stride := w + 1
	sa := make([]float64, stride*(h+1))
	sb := make([]float64, len(sa))
	saa := make([]float64, len(sa))
	sbb := make([]float64, len(sa))
	sab := make([]float64, len(sa))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y+1)*stride + x + 1
			up, left, diag := i-stride, i-1, i-stride-1
			va, vb := a[y*w+x], b[y*w+x]
			sa[i] = va + sa[up] + sa[left] - sa[diag]
			sb[i] = vb + sb[up] + sb[left] - sb[diag]
			saa[i] = va*va + saa[up] + saa[left] - saa[diag]
			sbb[i] = vb*vb + sbb[up] + sbb[left] - sbb[diag]
			sab[i] = va*vb + sab[up] + sab[left] - sab[diag]
		}
	}
	box := func(t []float64, x0, y0, x1, y1 int) float64 {
		return t[y1*stride+x1] - t[y0*stride+x1] - t[y1*stride+x0] + t[y0*stride+x0]
	}

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		y0, y1 := max(y-r, 0), min(y+r+1, h)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-r, 0), min(x+r+1, w)
			n := float64((x1 - x0) * (y1 - y0))
			ma, mb := box(sa, x0, y0, x1, y1)/n, box(sb, x0, y0, x1, y1)/n
			va := box(saa, x0, y0, x1, y1)/n - ma*ma
			vb := box(sbb, x0, y0, x1, y1)/n - mb*mb
			cov := box(sab, x0, y0, x1, y1)/n - ma*mb
			out[y*w+x] = ((2*ma*mb + ssimC1) * (2*cov + ssimC2)) /
				((ma*ma + mb*mb + ssimC1) * (va + vb + ssimC2))
		}
	}
	return out
}

// jetColor maps t in [0, 1] to the jet colour map.
func jetColor(t float64) color.RGBA {
	f := func(c float64) uint8 { return ftoui(1.5 - math.Abs(4*t-c)) }
	return color.RGBA{R: f(3), G: f(2), B: f(1), A: 255}
}
