package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// DefaultConfigPath is the path to the canonical simulation defaults file.
const DefaultConfigPath = "config/simulation.defaults.json"

// Names accepted by the enum-valued settings. The owning packages keep the
// matching descriptor tables.
var (
	ValidAlgorithms    = []string{"PerPixel", "PerPixelStack", "DepthLayers"}
	ValidBlendModes    = []string{"Sum", "FrontToBack", "BackToFront"}
	ValidDynamicRanges = []string{"LDR", "HDR"}
	ValidPrintDetails  = []string{"None", "Progress", "Detailed"}
	ValidFitMethods    = []string{"dogleg", "nelder-mead"}
	ValidInterpolation = []string{"nearest", "bilinear", "catmullrom"}
)

// SimulationConfig is the root configuration for a simulation session.
// Every field is optional; the Get* accessors supply defaults for anything
// omitted, and they are safe to call on nil sections.
type SimulationConfig struct {
	Convolution *ConvolutionConfig `json:"convolution,omitempty"`
	Camera      *CameraConfig      `json:"camera,omitempty"`
	Oracle      *OracleConfig      `json:"oracle,omitempty"`
	Metrics     *MetricsConfig     `json:"metrics,omitempty"`
	Kernel      *KernelConfig      `json:"kernel,omitempty"`
	Align       *AlignConfig       `json:"align,omitempty"`
	Fit         *FitConfig         `json:"fit,omitempty"`
	Output      *OutputConfig      `json:"output,omitempty"`
}

// ConvolutionConfig holds the ground-truth convolution settings.
type ConvolutionConfig struct {
	Channels                *int     `json:"channels,omitempty"`
	DioptresPrecision       *float64 `json:"dioptres_precision,omitempty"`
	IncidentAnglesPrecision *float64 `json:"incident_angles_precision,omitempty"`
	CenterDioptres          *bool    `json:"center_dioptres,omitempty"`
	CenterIncidentAngles    *bool    `json:"center_incident_angles,omitempty"`
	Algorithm               *string  `json:"algorithm,omitempty"`
	BlendMode               *string  `json:"blend_mode,omitempty"`
	SimulateOffAxis         *bool    `json:"simulate_off_axis,omitempty"`
	DynamicRange            *string  `json:"dynamic_range,omitempty"`
	PrintDetail             *string  `json:"print_detail,omitempty"`
	ExportPsfs              *bool    `json:"export_psfs,omitempty"`
	Interpolation           *string  `json:"interpolation,omitempty"`
	Workers                 *int     `json:"workers,omitempty"`
}

// CameraConfig describes the pinhole camera the frame was rendered with.
type CameraConfig struct {
	Name          *string  `json:"name,omitempty"`
	FovyDegrees   *float64 `json:"fovy_degrees,omitempty"`
	FocusDistance *float64 `json:"focus_distance,omitempty"` // metres
	ApertureMM    *float64 `json:"aperture_mm,omitempty"`
	Width         *int     `json:"width,omitempty"`
	Height        *int     `json:"height,omitempty"`
}

// AxisConfig is a regular sampling axis used in stack mode.
type AxisConfig struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Steps int     `json:"steps"`
}

// OracleConfig configures the reference thin-lens PSF oracle and the axes it
// advertises for stack enumeration.
type OracleConfig struct {
	Aberration          *string     `json:"aberration,omitempty"`
	SampleDegrees       *float64    `json:"sample_degrees,omitempty"`
	AstigmatismPerDeg   *float64    `json:"astigmatism_per_degree,omitempty"`
	ChannelScale        []float64   `json:"channel_scale,omitempty"`
	HorizontalAngles    *AxisConfig `json:"horizontal_angles,omitempty"`
	VerticalAngles      *AxisConfig `json:"vertical_angles,omitempty"`
	ObjectDioptres      *AxisConfig `json:"object_dioptres,omitempty"`
	MaxPsfSamplesRadius *int        `json:"max_psf_samples_radius,omitempty"`
}

// MetricsConfig selects the similarity metrics and the HDR-VDP display model.
type MetricsConfig struct {
	ComputeSsim           *bool    `json:"compute_ssim,omitempty"`
	ComputePsnr           *bool    `json:"compute_psnr,omitempty"`
	ComputeHdrvdp         *bool    `json:"compute_hdrvdp,omitempty"`
	ExportMetrics         *bool    `json:"export_metrics,omitempty"`
	PeakLuminance         *float64 `json:"hdrvdp_peak_luminance,omitempty"`
	ContrastRatio         *float64 `json:"hdrvdp_contrast_ratio,omitempty"`
	Gamma                 *float64 `json:"hdrvdp_gamma,omitempty"`
	AmbientLight          *float64 `json:"hdrvdp_ambient_light,omitempty"`
	DisplaySize           *float64 `json:"hdrvdp_display_size,omitempty"`
	DisplayResolution     []int    `json:"hdrvdp_display_resolution,omitempty"`
	ViewDistance          *float64 `json:"hdrvdp_view_distance,omitempty"`
	Surround              *float64 `json:"hdrvdp_surround,omitempty"`
	SensitivityCorrection *float64 `json:"hdrvdp_sensitivity_correction,omitempty"`
}

// KernelConfig selects the parametric kernel shape.
type KernelConfig struct {
	Components  *int     `json:"components,omitempty"`
	TapsRadius  *int     `json:"taps_radius,omitempty"`
	Preset      *string  `json:"preset,omitempty"` // "garcia" or "gaussian"
	GaussianSig *float64 `json:"gaussian_sigma,omitempty"`
}

// AlignConfig configures ellipse alignment.
type AlignConfig struct {
	EllipseThreshold *float64 `json:"ellipse_threshold,omitempty"`
	TargetDefocus    *float64 `json:"target_defocus,omitempty"`
	ExportPsf        *bool    `json:"export_psf,omitempty"`
}

// FitConfig configures the kernel fitter.
type FitConfig struct {
	Method            *string   `json:"method,omitempty"`
	FitScale          *int      `json:"fit_scale,omitempty"`
	InitialComponents []float64 `json:"initial_components,omitempty"`
	InitialRadius     *float64  `json:"initial_radius,omitempty"`
	RadiusLimits      []float64 `json:"radius_limits,omitempty"`
	ALimits           []float64 `json:"a_limits,omitempty"`
	BLimits           []float64 `json:"b_limits,omitempty"`
	UpperALimits      []float64 `json:"upper_a_limits,omitempty"`
	UpperBLimits      []float64 `json:"upper_b_limits,omitempty"`
	DiffStepSize      *float64  `json:"diff_step_size,omitempty"`
	MaxIterations     *int      `json:"max_iterations,omitempty"`
	MaxDuration       *string   `json:"max_duration,omitempty"` // duration string like "10m"
	EllipseThreshold  *float64  `json:"ellipse_threshold,omitempty"`
	TargetDefocus     *float64  `json:"target_defocus,omitempty"`
	ProjectPsf        *bool     `json:"project_psf,omitempty"`
	ExportPsf         *bool     `json:"export_psf,omitempty"`
}

// OutputConfig controls where results go.
type OutputConfig struct {
	Directory *string `json:"directory,omitempty"`
	Database  *string `json:"database,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySimulationConfig returns a config with every section unset.
func EmptySimulationConfig() *SimulationConfig {
	return &SimulationConfig{}
}

// LoadSimulationConfig loads a SimulationConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Unknown fields are
// rejected so that typos do not silently fall back to defaults.
func LoadSimulationConfig(path string) (*SimulationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseSimulationConfig(data)
}

// ParseSimulationConfig decodes and validates a JSON document.
func ParseSimulationConfig(data []byte) (*SimulationConfig, error) {
	cfg := EmptySimulationConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *SimulationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/psfsim/
	}
	for _, path := range candidates {
		if cfg, err := LoadSimulationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. All problems are
// reported together.
func (c *SimulationConfig) Validate() error {
	var errs []error
	check := func(cond bool, format string, args ...interface{}) {
		if !cond {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	oneOf := func(field string, v *string, valid []string) {
		if v != nil {
			check(slices.Contains(valid, *v), "%s must be one of %v, got %q", field, valid, *v)
		}
	}
	limits := func(field string, v []float64) {
		if v != nil {
			check(len(v) == 2 && v[0] <= v[1], "%s must be [min, max], got %v", field, v)
		}
	}

	if cv := c.Convolution; cv != nil {
		if cv.Channels != nil {
			check(*cv.Channels >= 1 && *cv.Channels <= 3, "channels must be between 1 and 3, got %d", *cv.Channels)
		}
		if cv.DioptresPrecision != nil {
			check(*cv.DioptresPrecision > 0, "dioptres_precision must be positive, got %f", *cv.DioptresPrecision)
		}
		if cv.IncidentAnglesPrecision != nil {
			check(*cv.IncidentAnglesPrecision > 0, "incident_angles_precision must be positive, got %f", *cv.IncidentAnglesPrecision)
		}
		oneOf("algorithm", cv.Algorithm, ValidAlgorithms)
		oneOf("blend_mode", cv.BlendMode, ValidBlendModes)
		oneOf("dynamic_range", cv.DynamicRange, ValidDynamicRanges)
		oneOf("print_detail", cv.PrintDetail, ValidPrintDetails)
		oneOf("interpolation", cv.Interpolation, ValidInterpolation)
		if cv.Workers != nil {
			check(*cv.Workers >= 0, "workers must be non-negative, got %d", *cv.Workers)
		}
	}

	if cam := c.Camera; cam != nil {
		if cam.FovyDegrees != nil {
			check(*cam.FovyDegrees > 0 && *cam.FovyDegrees < 180, "fovy_degrees must be in (0, 180), got %f", *cam.FovyDegrees)
		}
		if cam.FocusDistance != nil {
			check(*cam.FocusDistance > 0, "focus_distance must be positive, got %f", *cam.FocusDistance)
		}
		if cam.ApertureMM != nil {
			check(*cam.ApertureMM >= 0, "aperture_mm must be non-negative, got %f", *cam.ApertureMM)
		}
		if cam.Width != nil {
			check(*cam.Width > 0, "width must be positive, got %d", *cam.Width)
		}
		if cam.Height != nil {
			check(*cam.Height > 0, "height must be positive, got %d", *cam.Height)
		}
	}

	if o := c.Oracle; o != nil {
		if o.SampleDegrees != nil {
			check(*o.SampleDegrees > 0, "sample_degrees must be positive, got %f", *o.SampleDegrees)
		}
		for name, axis := range map[string]*AxisConfig{
			"horizontal_angles": o.HorizontalAngles,
			"vertical_angles":   o.VerticalAngles,
			"object_dioptres":   o.ObjectDioptres,
		} {
			if axis != nil {
				check(axis.Steps >= 1 && axis.Min <= axis.Max, "%s must have steps >= 1 and min <= max", name)
			}
		}
	}

	if k := c.Kernel; k != nil {
		if k.Components != nil {
			check(*k.Components >= 1 && *k.Components <= 3, "components must be between 1 and 3, got %d", *k.Components)
		}
		if k.TapsRadius != nil {
			check(*k.TapsRadius >= 1, "taps_radius must be at least 1, got %d", *k.TapsRadius)
		}
		if k.Preset != nil {
			check(*k.Preset == "garcia" || *k.Preset == "gaussian", "preset must be garcia or gaussian, got %q", *k.Preset)
		}
	}

	if a := c.Align; a != nil && a.EllipseThreshold != nil {
		check(*a.EllipseThreshold > 0 && *a.EllipseThreshold < 1, "align ellipse_threshold must be in (0, 1), got %f", *a.EllipseThreshold)
	}

	if f := c.Fit; f != nil {
		oneOf("fit method", f.Method, ValidFitMethods)
		if f.FitScale != nil {
			check(*f.FitScale >= 1, "fit_scale must be at least 1, got %d", *f.FitScale)
		}
		if f.InitialComponents != nil {
			check(len(f.InitialComponents) == 4, "initial_components must have 4 values, got %d", len(f.InitialComponents))
		}
		limits("radius_limits", f.RadiusLimits)
		limits("a_limits", f.ALimits)
		limits("b_limits", f.BLimits)
		limits("upper_a_limits", f.UpperALimits)
		limits("upper_b_limits", f.UpperBLimits)
		if f.DiffStepSize != nil {
			check(*f.DiffStepSize > 0, "diff_step_size must be positive, got %g", *f.DiffStepSize)
		}
		if f.MaxIterations != nil {
			check(*f.MaxIterations >= 1, "max_iterations must be at least 1, got %d", *f.MaxIterations)
		}
		if f.MaxDuration != nil && *f.MaxDuration != "" {
			if _, err := time.ParseDuration(*f.MaxDuration); err != nil {
				errs = append(errs, fmt.Errorf("invalid max_duration '%s': %w", *f.MaxDuration, err))
			}
		}
		if f.EllipseThreshold != nil {
			check(*f.EllipseThreshold > 0 && *f.EllipseThreshold < 1, "fit ellipse_threshold must be in (0, 1), got %f", *f.EllipseThreshold)
		}
	}

	return errors.Join(errs...)
}

// DefaultSimulationConfig returns a config with every scalar field set to its
// default value. It mirrors config/simulation.defaults.json.
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		Convolution: &ConvolutionConfig{
			Channels:                ptrInt(3),
			DioptresPrecision:       ptrFloat64(1e-2),
			IncidentAnglesPrecision: ptrFloat64(0.1),
			CenterDioptres:          ptrBool(false),
			CenterIncidentAngles:    ptrBool(false),
			Algorithm:               ptrString("PerPixel"),
			BlendMode:               ptrString("Sum"),
			SimulateOffAxis:         ptrBool(false),
			DynamicRange:            ptrString("LDR"),
			PrintDetail:             ptrString("Progress"),
			ExportPsfs:              ptrBool(false),
			Interpolation:           ptrString("bilinear"),
			Workers:                 ptrInt(0),
		},
		Camera: &CameraConfig{
			Name:          ptrString("MainCamera"),
			FovyDegrees:   ptrFloat64(60),
			FocusDistance: ptrFloat64(10),
			ApertureMM:    ptrFloat64(5),
			Width:         ptrInt(256),
			Height:        ptrInt(256),
		},
		Kernel: &KernelConfig{
			Components: ptrInt(1),
			TapsRadius: ptrInt(8),
			Preset:     ptrString("garcia"),
		},
		Fit: &FitConfig{
			Method:        ptrString("dogleg"),
			MaxIterations: ptrInt(1000),
			MaxDuration:   ptrString("10m"),
		},
	}
}
