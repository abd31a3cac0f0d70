package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/psfsim/internal/groundtruth"
	"github.com/banshee-data/psfsim/internal/kernel"
	"github.com/banshee-data/psfsim/internal/kernelfit"
)

// ErrNotFound is returned when a run or fit id is unknown.
var ErrNotFound = errors.New("db: not found")

// Run is one row of the run history. Metric fields are nil when the run
// was not compared against a reference.
type Run struct {
	RunID            string
	Name             string
	Started          time.Time
	Scene            string
	Camera           string
	Aberration       string
	Algorithm        string
	BlendMode        string
	Channels         int
	Width            int
	Height           int
	OffAxis          bool
	HDR              bool
	FocusM           float64
	ApertureMM       float64
	NumBins          int
	ZeroWeightPixels int
	PsfBinsSeconds   float64
	ConvolutionSecs  float64
	TotalSeconds     float64
	ResultDir        string

	MeanMSE  *float64
	MeanRMSE *float64
	MeanPSNR *float64
	MeanSSIM *float64
}

// finite returns nil for values SQLite cannot round-trip as REAL.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// RunFromResults flattens a run for storage. resultDir is where its images
// were exported, if anywhere.
func RunFromResults(res *groundtruth.Results, resultDir string) Run {
	r := Run{
		RunID:            res.RunID.String(),
		Name:             res.Name,
		Started:          res.Timestamp,
		Scene:            res.Scene,
		Camera:           res.Camera,
		Aberration:       res.Aberration,
		Algorithm:        res.Algorithm.String(),
		BlendMode:        res.BlendMode.String(),
		Channels:         res.Channels,
		Width:            res.Width,
		Height:           res.Height,
		OffAxis:          res.OffAxis,
		HDR:              res.DynamicRange == groundtruth.HDR,
		FocusM:           res.FocusDistance,
		ApertureMM:       res.ApertureMM,
		NumBins:          res.NumBins,
		ZeroWeightPixels: res.ZeroWeightPixels,
		PsfBinsSeconds:   res.PsfBinsTime.Seconds(),
		ConvolutionSecs:  res.ConvolutionTime.Seconds(),
		TotalSeconds:     res.TotalTime.Seconds(),
		ResultDir:        resultDir,
	}
	if m := res.Metrics; m != nil {
		r.MeanMSE = finite(m.MeanMSE)
		r.MeanRMSE = finite(m.MeanRMSE)
		if len(m.PSNR) > 0 {
			r.MeanPSNR = finite(m.MeanPSNR)
		}
		if len(m.SSIM) > 0 {
			r.MeanSSIM = finite(m.MeanSSIM)
		}
	}
	return r
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// RecordRun inserts or replaces a run.
func (db *DB) RecordRun(r Run) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO runs (
			run_id, name, started_unix, scene, camera, aberration, algorithm,
			blend_mode, channels, width, height, off_axis, hdr, focus_m,
			aperture_mm, num_bins, zero_weight_pixels, psf_bins_s,
			convolution_s, total_s, result_dir,
			mean_mse, mean_rmse, mean_psnr, mean_ssim
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Name, unixSeconds(r.Started), r.Scene, r.Camera, r.Aberration, r.Algorithm,
		r.BlendMode, r.Channels, r.Width, r.Height, r.OffAxis, r.HDR, r.FocusM,
		r.ApertureMM, r.NumBins, r.ZeroWeightPixels, r.PsfBinsSeconds,
		r.ConvolutionSecs, r.TotalSeconds, r.ResultDir,
		r.MeanMSE, r.MeanRMSE, r.MeanPSNR, r.MeanSSIM,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	return nil
}

const runColumns = `run_id, name, started_unix, scene, camera, aberration, algorithm,
	blend_mode, channels, width, height, off_axis, hdr, focus_m, aperture_mm,
	num_bins, zero_weight_pixels, psf_bins_s, convolution_s, total_s, result_dir,
	mean_mse, mean_rmse, mean_psnr, mean_ssim`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (Run, error) {
	var (
		r                     Run
		started               float64
		mse, rmse, psnr, ssim sql.NullFloat64
	)
	err := s.Scan(&r.RunID, &r.Name, &started, &r.Scene, &r.Camera, &r.Aberration, &r.Algorithm,
		&r.BlendMode, &r.Channels, &r.Width, &r.Height, &r.OffAxis, &r.HDR, &r.FocusM, &r.ApertureMM,
		&r.NumBins, &r.ZeroWeightPixels, &r.PsfBinsSeconds, &r.ConvolutionSecs, &r.TotalSeconds, &r.ResultDir,
		&mse, &rmse, &psnr, &ssim)
	if err != nil {
		return Run{}, err
	}
	r.Started = fromUnixSeconds(started)
	for _, p := range []struct {
		src sql.NullFloat64
		dst **float64
	}{{mse, &r.MeanMSE}, {rmse, &r.MeanRMSE}, {psnr, &r.MeanPSNR}, {ssim, &r.MeanSSIM}} {
		if p.src.Valid {
			v := p.src.Float64
			*p.dst = &v
		}
	}
	return r, nil
}

// Runs returns the most recent runs, newest first. limit <= 0 means 100.
func (db *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run looks up a run by id.
func (db *DB) Run(id string) (Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

// Fit is one row of the kernel fit history.
type Fit struct {
	FitID         string
	Started       time.Time
	Method        string
	Components    int
	TapsRadius    int
	TargetDefocus float64
	InitialCost   float64
	Cost          float64
	Iterations    int
	Evaluations   int
	Termination   string
	ElapsedSecs   float64
	Params        kernel.Parameters
}

// FitFromResult flattens a fit for storage.
func FitFromResult(id string, started time.Time, s kernelfit.Settings, res *kernelfit.Result) Fit {
	return Fit{
		FitID:         id,
		Started:       started,
		Method:        s.Method.String(),
		Components:    len(res.Params.Components),
		TapsRadius:    s.TapsRadius,
		TargetDefocus: s.TargetDefocus,
		InitialCost:   res.InitialCost,
		Cost:          res.Cost,
		Iterations:    res.Iterations,
		Evaluations:   res.Evaluations,
		Termination:   res.Termination.String(),
		ElapsedSecs:   res.Elapsed.Seconds(),
		Params:        res.Params,
	}
}

// RecordFit inserts or replaces a fit.
func (db *DB) RecordFit(f Fit) error {
	params, err := json.Marshal(f.Params)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	_, err = db.Exec(`INSERT OR REPLACE INTO kernel_fits (
			fit_id, started_unix, method, components, taps_radius, target_defocus,
			initial_cost, cost, iterations, evaluations, termination, elapsed_s, params_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FitID, unixSeconds(f.Started), f.Method, f.Components, f.TapsRadius, f.TargetDefocus,
		f.InitialCost, f.Cost, f.Iterations, f.Evaluations, f.Termination, f.ElapsedSecs, string(params),
	)
	if err != nil {
		return fmt.Errorf("failed to record fit %s: %w", f.FitID, err)
	}
	return nil
}

// Fits returns the most recent fits, newest first. limit <= 0 means 100.
func (db *DB) Fits(limit int) ([]Fit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT fit_id, started_unix, method, components, taps_radius,
			target_defocus, initial_cost, cost, iterations, evaluations, termination,
			elapsed_s, params_json
		FROM kernel_fits ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fits []Fit
	for rows.Next() {
		var (
			f       Fit
			started float64
			params  string
		)
		if err := rows.Scan(&f.FitID, &started, &f.Method, &f.Components, &f.TapsRadius,
			&f.TargetDefocus, &f.InitialCost, &f.Cost, &f.Iterations, &f.Evaluations,
			&f.Termination, &f.ElapsedSecs, &params); err != nil {
			return nil, err
		}
		f.Started = fromUnixSeconds(started)
		if err := json.Unmarshal([]byte(params), &f.Params); err != nil {
			return nil, fmt.Errorf("fit %s: failed to decode parameters: %w", f.FitID, err)
		}
		fits = append(fits, f)
	}
	return fits, rows.Err()
}
