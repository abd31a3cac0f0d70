package groundtruth

import (
	"runtime"

	"github.com/banshee-data/psfsim/internal/config"
	"github.com/banshee-data/psfsim/internal/gather"
	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/psfbin"
)

// Settings is everything a run needs besides its collaborators.
type Settings struct {
	Scene        string
	CameraName   string
	Aberration   string
	Algorithm    Algorithm
	BlendMode    gather.BlendMode
	Channels     int
	DynamicRange DynamicRange
	PrintDetail  PrintDetail
	Binner       psfbin.Binner

	FovyDegrees   float64
	FocusDistance float64 // metres
	ApertureMM    float64

	Interpolation psf.Interpolation
	ExportPsfs    bool
	Workers       int
}

// SettingsFromConfig resolves the convolution and camera sections.
func SettingsFromConfig(cfg *config.SimulationConfig, scene string) (Settings, error) {
	cv, cam := cfg.Convolution, cfg.Camera
	alg, err := ParseAlgorithm(cv.GetAlgorithm())
	if err != nil {
		return Settings{}, err
	}
	mode, err := gather.ParseBlendMode(cv.GetBlendMode())
	if err != nil {
		return Settings{}, err
	}
	dr, err := ParseDynamicRange(cv.GetDynamicRange())
	if err != nil {
		return Settings{}, err
	}
	pd, err := ParsePrintDetail(cv.GetPrintDetail())
	if err != nil {
		return Settings{}, err
	}
	interp, err := psf.ParseInterpolation(cv.GetInterpolation())
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Scene:        scene,
		CameraName:   cam.GetName(),
		Aberration:   cfg.Oracle.GetAberration(),
		Algorithm:    alg,
		BlendMode:    mode,
		Channels:     cv.GetChannels(),
		DynamicRange: dr,
		PrintDetail:  pd,
		Binner: psfbin.Binner{
			DioptresPrecision:    cv.GetDioptresPrecision(),
			AnglesPrecision:      cv.GetIncidentAnglesPrecision(),
			CenterDioptres:       cv.GetCenterDioptres(),
			CenterIncidentAngles: cv.GetCenterIncidentAngles(),
			SimulateOffAxis:      cv.GetSimulateOffAxis(),
		},
		FovyDegrees:   cam.GetFovyDegrees(),
		FocusDistance: cam.GetFocusDistance(),
		ApertureMM:    cam.GetApertureMM(),
		Interpolation: interp,
		ExportPsfs:    cv.GetExportPsfs(),
		Workers:       cv.GetWorkers(),
	}, nil
}

func (s Settings) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (s Settings) channels() int {
	return min(max(s.Channels, 1), MaxChannels)
}
