package report

import (
	"bytes"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/psfsim/internal/db"
	"github.com/banshee-data/psfsim/internal/kernel"
)

func ptr(v float64) *float64 { return &v }

func sampleRuns() []db.Run {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []db.Run{
		{RunID: "b", Name: "cam_PerPixel_thinlens_second", Started: t0.Add(time.Hour), NumBins: 40, PsfBinsSeconds: 1.5, ConvolutionSecs: 3, TotalSeconds: 5},
		{RunID: "a", Name: "cam_PerPixel_thinlens_first", Started: t0, NumBins: 12, PsfBinsSeconds: 0.5, ConvolutionSecs: 1, TotalSeconds: 2,
			MeanMSE: ptr(0.01), MeanRMSE: ptr(0.1), MeanPSNR: ptr(20), MeanSSIM: ptr(0.9)},
	}
}

func TestRenderHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderHistory(&buf, sampleRuns()); err != nil {
		t.Fatalf("RenderHistory: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"PSF simulation history", "Running times", "Reference metrics", "Cost of PSF bins"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	first := strings.Index(out, "cam_PerPixel_thinlens_first")
	second := strings.Index(out, "cam_PerPixel_thinlens_second")
	if first < 0 || second < 0 {
		t.Fatalf("run names missing from output")
	}
	if first > second {
		t.Errorf("runs not charted oldest first")
	}
}

func TestRenderHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderHistory(&buf, nil); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("err = %v, want ErrNoRuns", err)
	}
}

func TestChronologicalKeepsInput(t *testing.T) {
	runs := sampleRuns()
	out := chronological(runs)
	if out[0].RunID != "a" || runs[0].RunID != "b" {
		t.Errorf("chronological = %s, input = %s", out[0].RunID, runs[0].RunID)
	}
}

func TestOptional(t *testing.T) {
	if got := optional(nil); got != missing {
		t.Errorf("optional(nil) = %v", got)
	}
	if got := optional(ptr(2)); got != 2.0 {
		t.Errorf("optional(2) = %v", got)
	}
}

func TestHistoryHandler(t *testing.T) {
	store, err := db.NewDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer store.Close()

	h := HistoryHandler(store, 10)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty store status = %d, want 404", rec.Code)
	}

	for _, r := range sampleRuns() {
		if err := store.RecordRun(r); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "cam_PerPixel_thinlens_second") || strings.Contains(body, "cam_PerPixel_thinlens_first") {
		t.Errorf("limit=1 should chart only the newest run")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/report", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rec.Code)
	}
}

func TestKernelProfilePNG(t *testing.T) {
	k, err := kernel.Generate2D(kernel.Gaussian(1), 4, 4)
	if err != nil {
		t.Fatalf("Generate2D: %v", err)
	}
	var buf bytes.Buffer
	if err := KernelProfile(&buf, k, k.Clone()); err != nil {
		t.Fatalf("KernelProfile: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		t.Errorf("empty plot %v", b)
	}

	if err := KernelProfile(&buf, nil, nil); err == nil {
		t.Error("expected error for nil kernel")
	}
}

func TestCostHistoryPNG(t *testing.T) {
	for _, history := range [][]float64{{4, 2, 1, 0.5}, {3, 1, 0}} {
		var buf bytes.Buffer
		if err := CostHistory(&buf, history); err != nil {
			t.Fatalf("CostHistory(%v): %v", history, err)
		}
		if _, err := png.Decode(&buf); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	if err := CostHistory(&bytes.Buffer{}, nil); err == nil {
		t.Error("expected error for empty history")
	}
}
