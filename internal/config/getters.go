package config

import (
	"time"
)

// GetChannels returns the number of simulated colour channels.
func (c *ConvolutionConfig) GetChannels() int {
	if c == nil || c.Channels == nil {
		return 3
	}
	return *c.Channels
}

// GetDioptresPrecision returns the dioptre bin width.
func (c *ConvolutionConfig) GetDioptresPrecision() float64 {
	if c == nil || c.DioptresPrecision == nil {
		return 1e-2
	}
	return *c.DioptresPrecision
}

// GetIncidentAnglesPrecision returns the incident angle bin width in degrees.
func (c *ConvolutionConfig) GetIncidentAnglesPrecision() float64 {
	if c == nil || c.IncidentAnglesPrecision == nil {
		return 0.1
	}
	return *c.IncidentAnglesPrecision
}

// GetCenterDioptres reports whether dioptre bins are offset by half a bin.
func (c *ConvolutionConfig) GetCenterDioptres() bool {
	if c == nil || c.CenterDioptres == nil {
		return false
	}
	return *c.CenterDioptres
}

// GetCenterIncidentAngles reports whether angle bins are offset by half a bin.
func (c *ConvolutionConfig) GetCenterIncidentAngles() bool {
	if c == nil || c.CenterIncidentAngles == nil {
		return false
	}
	return *c.CenterIncidentAngles
}

// GetAlgorithm returns the convolution algorithm name.
func (c *ConvolutionConfig) GetAlgorithm() string {
	if c == nil || c.Algorithm == nil {
		return "PerPixel"
	}
	return *c.Algorithm
}

// GetBlendMode returns the sample blend mode name.
func (c *ConvolutionConfig) GetBlendMode() string {
	if c == nil || c.BlendMode == nil {
		return "Sum"
	}
	return *c.BlendMode
}

// GetSimulateOffAxis reports whether incident angles take part in binning.
func (c *ConvolutionConfig) GetSimulateOffAxis() bool {
	if c == nil || c.SimulateOffAxis == nil {
		return false
	}
	return *c.SimulateOffAxis
}

// GetDynamicRange returns "LDR" or "HDR".
func (c *ConvolutionConfig) GetDynamicRange() string {
	if c == nil || c.DynamicRange == nil {
		return "LDR"
	}
	return *c.DynamicRange
}

// GetPrintDetail returns the log detail level name.
func (c *ConvolutionConfig) GetPrintDetail() string {
	if c == nil || c.PrintDetail == nil {
		return "Progress"
	}
	return *c.PrintDetail
}

// GetExportPsfs reports whether per-bin PSF images are exported.
func (c *ConvolutionConfig) GetExportPsfs() bool {
	if c == nil || c.ExportPsfs == nil {
		return false
	}
	return *c.ExportPsfs
}

// GetInterpolation returns the PSF resampling filter name.
func (c *ConvolutionConfig) GetInterpolation() string {
	if c == nil || c.Interpolation == nil {
		return "bilinear"
	}
	return *c.Interpolation
}

// GetWorkers returns the worker count; 0 means one per CPU.
func (c *ConvolutionConfig) GetWorkers() int {
	if c == nil || c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetName returns the camera name recorded in results.
func (c *CameraConfig) GetName() string {
	if c == nil || c.Name == nil {
		return "MainCamera"
	}
	return *c.Name
}

// GetFovyDegrees returns the vertical field of view.
func (c *CameraConfig) GetFovyDegrees() float64 {
	if c == nil || c.FovyDegrees == nil {
		return 60
	}
	return *c.FovyDegrees
}

// GetFocusDistance returns the focus distance in metres.
func (c *CameraConfig) GetFocusDistance() float64 {
	if c == nil || c.FocusDistance == nil {
		return 10
	}
	return *c.FocusDistance
}

// GetApertureMM returns the pupil diameter in millimetres.
func (c *CameraConfig) GetApertureMM() float64 {
	if c == nil || c.ApertureMM == nil {
		return 5
	}
	return *c.ApertureMM
}

// GetWidth returns the render width used for synthesized frames.
func (c *CameraConfig) GetWidth() int {
	if c == nil || c.Width == nil {
		return 256
	}
	return *c.Width
}

// GetHeight returns the render height used for synthesized frames.
func (c *CameraConfig) GetHeight() int {
	if c == nil || c.Height == nil {
		return 256
	}
	return *c.Height
}

// GetAberration returns the aberration preset name recorded in results.
func (c *OracleConfig) GetAberration() string {
	if c == nil || c.Aberration == nil {
		return "ThinLens"
	}
	return *c.Aberration
}

// GetSampleDegrees returns the angular size of one oracle PSF sample.
func (c *OracleConfig) GetSampleDegrees() float64 {
	if c == nil || c.SampleDegrees == nil {
		return 0.02
	}
	return *c.SampleDegrees
}

// GetAstigmatismPerDegree returns the radial stretch applied per degree of
// eccentricity.
func (c *OracleConfig) GetAstigmatismPerDegree() float64 {
	if c == nil || c.AstigmatismPerDeg == nil {
		return 0
	}
	return *c.AstigmatismPerDeg
}

// GetChannelScale returns the per-channel blur multiplier (longitudinal
// chromatic aberration).
func (c *OracleConfig) GetChannelScale() []float64 {
	if c == nil || len(c.ChannelScale) == 0 {
		return []float64{1.05, 1.0, 0.95}
	}
	return c.ChannelScale
}

// GetMaxPsfSamplesRadius caps the oracle PSF size.
func (c *OracleConfig) GetMaxPsfSamplesRadius() int {
	if c == nil || c.MaxPsfSamplesRadius == nil {
		return 64
	}
	return *c.MaxPsfSamplesRadius
}

// GetHorizontalAngles returns the stack-mode horizontal angle axis.
func (c *OracleConfig) GetHorizontalAngles() AxisConfig {
	if c == nil || c.HorizontalAngles == nil {
		return AxisConfig{Min: 0, Max: 0, Steps: 1}
	}
	return *c.HorizontalAngles
}

// GetVerticalAngles returns the stack-mode vertical angle axis.
func (c *OracleConfig) GetVerticalAngles() AxisConfig {
	if c == nil || c.VerticalAngles == nil {
		return AxisConfig{Min: 0, Max: 0, Steps: 1}
	}
	return *c.VerticalAngles
}

// GetObjectDioptres returns the stack-mode dioptre axis.
func (c *OracleConfig) GetObjectDioptres() AxisConfig {
	if c == nil || c.ObjectDioptres == nil {
		return AxisConfig{Min: 0, Max: 2, Steps: 21}
	}
	return *c.ObjectDioptres
}

// Values returns the evenly spaced samples of the axis.
func (a AxisConfig) Values() []float64 {
	if a.Steps <= 1 {
		return []float64{a.Min}
	}
	out := make([]float64, a.Steps)
	step := (a.Max - a.Min) / float64(a.Steps-1)
	for i := range out {
		out[i] = a.Min + float64(i)*step
	}
	return out
}

// GetComputeSsim reports whether SSIM is requested.
func (c *MetricsConfig) GetComputeSsim() bool {
	if c == nil || c.ComputeSsim == nil {
		return true
	}
	return *c.ComputeSsim
}

// GetComputePsnr reports whether PSNR/SNR are requested.
func (c *MetricsConfig) GetComputePsnr() bool {
	if c == nil || c.ComputePsnr == nil {
		return true
	}
	return *c.ComputePsnr
}

// GetComputeHdrvdp reports whether HDR-VDP is requested.
func (c *MetricsConfig) GetComputeHdrvdp() bool {
	if c == nil || c.ComputeHdrvdp == nil {
		return false
	}
	return *c.ComputeHdrvdp
}

// GetExportMetrics reports whether metric images are exported.
func (c *MetricsConfig) GetExportMetrics() bool {
	if c == nil || c.ExportMetrics == nil {
		return true
	}
	return *c.ExportMetrics
}

// GetPeakLuminance returns the display peak luminance in cd/m².
func (c *MetricsConfig) GetPeakLuminance() float64 {
	if c == nil || c.PeakLuminance == nil {
		return 400
	}
	return *c.PeakLuminance
}

// GetContrastRatio returns the display contrast ratio.
func (c *MetricsConfig) GetContrastRatio() float64 {
	if c == nil || c.ContrastRatio == nil {
		return 1000
	}
	return *c.ContrastRatio
}

// GetGamma returns the display gamma.
func (c *MetricsConfig) GetGamma() float64 {
	if c == nil || c.Gamma == nil {
		return 2.2
	}
	return *c.Gamma
}

// GetAmbientLight returns the ambient illumination in lux.
func (c *MetricsConfig) GetAmbientLight() float64 {
	if c == nil || c.AmbientLight == nil {
		return 100
	}
	return *c.AmbientLight
}

// GetDisplaySize returns the display diagonal in inches.
func (c *MetricsConfig) GetDisplaySize() float64 {
	if c == nil || c.DisplaySize == nil {
		return 28
	}
	return *c.DisplaySize
}

// GetDisplayResolution returns the display resolution in pixels.
func (c *MetricsConfig) GetDisplayResolution() [2]int {
	if c == nil || len(c.DisplayResolution) != 2 {
		return [2]int{3840, 2160}
	}
	return [2]int{c.DisplayResolution[0], c.DisplayResolution[1]}
}

// GetViewDistance returns the viewing distance in metres.
func (c *MetricsConfig) GetViewDistance() float64 {
	if c == nil || c.ViewDistance == nil {
		return 1
	}
	return *c.ViewDistance
}

// GetSurround returns the surround luminance.
func (c *MetricsConfig) GetSurround() float64 {
	if c == nil || c.Surround == nil {
		return 13
	}
	return *c.Surround
}

// GetSensitivityCorrection returns the HDR-VDP sensitivity correction in dB.
func (c *MetricsConfig) GetSensitivityCorrection() float64 {
	if c == nil || c.SensitivityCorrection == nil {
		return -0.3
	}
	return *c.SensitivityCorrection
}

// GetComponents returns the number of kernel components.
func (c *KernelConfig) GetComponents() int {
	if c == nil || c.Components == nil {
		return 1
	}
	return *c.Components
}

// GetTapsRadius returns the kernel taps radius.
func (c *KernelConfig) GetTapsRadius() int {
	if c == nil || c.TapsRadius == nil {
		return 8
	}
	return *c.TapsRadius
}

// GetPreset returns the kernel preset name.
func (c *KernelConfig) GetPreset() string {
	if c == nil || c.Preset == nil {
		return "garcia"
	}
	return *c.Preset
}

// GetGaussianSigma returns sigma for the gaussian preset.
func (c *KernelConfig) GetGaussianSigma() float64 {
	if c == nil || c.GaussianSig == nil {
		return 1
	}
	return *c.GaussianSig
}

// GetEllipseThreshold returns the relative support threshold for alignment.
func (c *AlignConfig) GetEllipseThreshold() float64 {
	if c == nil || c.EllipseThreshold == nil {
		return 0.05
	}
	return *c.EllipseThreshold
}

// GetTargetDefocus returns the defocus of the PSF used for alignment.
func (c *AlignConfig) GetTargetDefocus() float64 {
	if c == nil || c.TargetDefocus == nil {
		return 35
	}
	return *c.TargetDefocus
}

// GetExportPsf reports whether alignment debug images are exported.
func (c *AlignConfig) GetExportPsf() bool {
	if c == nil || c.ExportPsf == nil {
		return false
	}
	return *c.ExportPsf
}

// GetMethod returns the fitter solver name.
func (c *FitConfig) GetMethod() string {
	if c == nil || c.Method == nil {
		return "dogleg"
	}
	return *c.Method
}

// GetFitScale returns the target resolution multiplier.
func (c *FitConfig) GetFitScale() int {
	if c == nil || c.FitScale == nil {
		return 1
	}
	return *c.FitScale
}

// GetInitialComponents returns the starting (a, b, A, B).
func (c *FitConfig) GetInitialComponents() [4]float64 {
	if c == nil || len(c.InitialComponents) != 4 {
		return [4]float64{1, 0, 1, 0}
	}
	return [4]float64{c.InitialComponents[0], c.InitialComponents[1], c.InitialComponents[2], c.InitialComponents[3]}
}

// GetInitialRadius returns the starting kernel radius.
func (c *FitConfig) GetInitialRadius() float64 {
	if c == nil || c.InitialRadius == nil {
		return 1.5
	}
	return *c.InitialRadius
}

func limitsOr(v []float64, lo, hi float64) [2]float64 {
	if len(v) != 2 {
		return [2]float64{lo, hi}
	}
	return [2]float64{v[0], v[1]}
}

// GetRadiusLimits returns the kernel radius bounds.
func (c *FitConfig) GetRadiusLimits() [2]float64 {
	if c == nil {
		return [2]float64{1, 3}
	}
	return limitsOr(c.RadiusLimits, 1, 3)
}

// GetALimits returns the bounds of the lobe decay a.
func (c *FitConfig) GetALimits() [2]float64 {
	if c == nil {
		return [2]float64{-5, 5}
	}
	return limitsOr(c.ALimits, -5, 5)
}

// GetBLimits returns the bounds of the lobe oscillation b.
func (c *FitConfig) GetBLimits() [2]float64 {
	if c == nil {
		return [2]float64{-5, 5}
	}
	return limitsOr(c.BLimits, -5, 5)
}

// GetUpperALimits returns the bounds of the real weight A.
func (c *FitConfig) GetUpperALimits() [2]float64 {
	if c == nil {
		return [2]float64{-5, 5}
	}
	return limitsOr(c.UpperALimits, -5, 5)
}

// GetUpperBLimits returns the bounds of the imaginary weight B.
func (c *FitConfig) GetUpperBLimits() [2]float64 {
	if c == nil {
		return [2]float64{-5, 5}
	}
	return limitsOr(c.UpperBLimits, -5, 5)
}

// GetDiffStepSize returns the relative finite-difference step.
func (c *FitConfig) GetDiffStepSize() float64 {
	if c == nil || c.DiffStepSize == nil {
		return 1e-6
	}
	return *c.DiffStepSize
}

// GetMaxIterations returns the solver iteration budget.
func (c *FitConfig) GetMaxIterations() int {
	if c == nil || c.MaxIterations == nil {
		return 1000
	}
	return *c.MaxIterations
}

// GetMaxDuration parses and returns the solver wall-clock budget.
func (c *FitConfig) GetMaxDuration() time.Duration {
	if c == nil || c.MaxDuration == nil || *c.MaxDuration == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(*c.MaxDuration)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GetEllipseThreshold returns the threshold used to prepare the fit target.
func (c *FitConfig) GetEllipseThreshold() float64 {
	if c == nil || c.EllipseThreshold == nil {
		return 0.05
	}
	return *c.EllipseThreshold
}

// GetTargetDefocus returns the defocus of the PSF to fit.
func (c *FitConfig) GetTargetDefocus() float64 {
	if c == nil || c.TargetDefocus == nil {
		return 35
	}
	return *c.TargetDefocus
}

// GetProjectPsf reports whether the target PSF is first projected to screen
// pixels.
func (c *FitConfig) GetProjectPsf() bool {
	if c == nil || c.ProjectPsf == nil {
		return false
	}
	return *c.ProjectPsf
}

// GetExportPsf reports whether fit debug images are exported.
func (c *FitConfig) GetExportPsf() bool {
	if c == nil || c.ExportPsf == nil {
		return false
	}
	return *c.ExportPsf
}

// GetDirectory returns the results output directory.
func (c *OutputConfig) GetDirectory() string {
	if c == nil || c.Directory == nil {
		return "generated/GroundTruthAberration"
	}
	return *c.Directory
}

// GetDatabase returns the run history database path.
func (c *OutputConfig) GetDatabase() string {
	if c == nil || c.Database == nil {
		return "psfsim.db"
	}
	return *c.Database
}
