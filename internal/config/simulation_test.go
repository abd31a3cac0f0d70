package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultSimulationConfig(t *testing.T) {
	cfg := DefaultSimulationConfig()

	if cfg.Convolution.Channels == nil || *cfg.Convolution.Channels != 3 {
		t.Errorf("Expected Channels 3, got %v", cfg.Convolution.Channels)
	}
	if cfg.Convolution.GetAlgorithm() != "PerPixel" {
		t.Errorf("GetAlgorithm() = %q, want PerPixel", cfg.Convolution.GetAlgorithm())
	}
	if cfg.Convolution.GetBlendMode() != "Sum" {
		t.Errorf("GetBlendMode() = %q, want Sum", cfg.Convolution.GetBlendMode())
	}
	if cfg.Fit.GetMaxDuration() != 10*time.Minute {
		t.Errorf("GetMaxDuration() = %v, want 10m", cfg.Fit.GetMaxDuration())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestGetters_NilSections(t *testing.T) {
	cfg := EmptySimulationConfig()

	if got := cfg.Convolution.GetDioptresPrecision(); got != 1e-2 {
		t.Errorf("GetDioptresPrecision() = %g, want 0.01", got)
	}
	if got := cfg.Convolution.GetIncidentAnglesPrecision(); got != 0.1 {
		t.Errorf("GetIncidentAnglesPrecision() = %g, want 0.1", got)
	}
	if got := cfg.Fit.GetInitialComponents(); got != [4]float64{1, 0, 1, 0} {
		t.Errorf("GetInitialComponents() = %v", got)
	}
	if got := cfg.Fit.GetRadiusLimits(); got != [2]float64{1, 3} {
		t.Errorf("GetRadiusLimits() = %v", got)
	}
	if got := cfg.Metrics.GetDisplayResolution(); got != [2]int{3840, 2160} {
		t.Errorf("GetDisplayResolution() = %v", got)
	}
	if got := cfg.Kernel.GetTapsRadius(); got != 8 {
		t.Errorf("GetTapsRadius() = %d, want 8", got)
	}
	if got := cfg.Align.GetEllipseThreshold(); got != 0.05 {
		t.Errorf("GetEllipseThreshold() = %g, want 0.05", got)
	}
}

func TestAxisConfigValues(t *testing.T) {
	tests := []struct {
		name string
		axis AxisConfig
		want []float64
	}{
		{"single step", AxisConfig{Min: 0.5, Max: 2, Steps: 1}, []float64{0.5}},
		{"three steps", AxisConfig{Min: 0, Max: 1, Steps: 3}, []float64{0, 0.5, 1}},
		{"zero steps", AxisConfig{Min: 1, Max: 1, Steps: 0}, []float64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.axis.Values()
			if len(got) != len(tt.want) {
				t.Fatalf("Values() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Values()[%d] = %g, want %g", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLoadSimulationConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sim.json")

	testJSON := `{
  "convolution": {"blend_mode": "FrontToBack", "dioptres_precision": 0.05},
  "fit": {"max_duration": "30s", "radius_limits": [0.5, 2]}
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadSimulationConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if got := cfg.Convolution.GetBlendMode(); got != "FrontToBack" {
		t.Errorf("GetBlendMode() = %q, want FrontToBack", got)
	}
	if got := cfg.Convolution.GetDioptresPrecision(); got != 0.05 {
		t.Errorf("GetDioptresPrecision() = %g, want 0.05", got)
	}
	if got := cfg.Fit.GetMaxDuration(); got != 30*time.Second {
		t.Errorf("GetMaxDuration() = %v, want 30s", got)
	}
	if got := cfg.Fit.GetRadiusLimits(); got != [2]float64{0.5, 2} {
		t.Errorf("GetRadiusLimits() = %v", got)
	}
	// untouched sections keep their defaults
	if got := cfg.Camera.GetFovyDegrees(); got != 60 {
		t.Errorf("GetFovyDegrees() = %g, want 60", got)
	}
}

func TestLoadSimulationConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	yamlPath := filepath.Join(tmpDir, "sim.yaml")
	_ = os.WriteFile(yamlPath, []byte("{}"), 0644)
	if _, err := LoadSimulationConfig(yamlPath); err == nil {
		t.Error("expected error for non-json extension")
	}

	if _, err := LoadSimulationConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	unknownPath := filepath.Join(tmpDir, "unknown.json")
	_ = os.WriteFile(unknownPath, []byte(`{"convolution": {"blend": "Sum"}}`), 0644)
	if _, err := LoadSimulationConfig(unknownPath); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"bad algorithm", `{"convolution": {"algorithm": "Splat"}}`, "algorithm"},
		{"bad blend mode", `{"convolution": {"blend_mode": "Over"}}`, "blend_mode"},
		{"zero precision", `{"convolution": {"dioptres_precision": 0}}`, "dioptres_precision"},
		{"too many components", `{"kernel": {"components": 4}}`, "components"},
		{"inverted limits", `{"fit": {"a_limits": [2, 1]}}`, "a_limits"},
		{"bad duration", `{"fit": {"max_duration": "soon"}}`, "max_duration"},
		{"bad fovy", `{"camera": {"fovy_degrees": 200}}`, "fovy_degrees"},
		{"bad method", `{"fit": {"method": "lbfgs"}}`, "fit method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSimulationConfig([]byte(tt.json))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if got := cfg.Oracle.GetObjectDioptres(); got.Steps != 21 {
		t.Errorf("object_dioptres steps = %d, want 21", got.Steps)
	}
	if got := cfg.Metrics.GetSensitivityCorrection(); got != -0.3 {
		t.Errorf("GetSensitivityCorrection() = %g, want -0.3", got)
	}
}
