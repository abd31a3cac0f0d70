// Package report renders the run history as an HTML page of echarts charts
// and kernel fits as PNG plots.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/psfsim/internal/db"
	"github.com/banshee-data/psfsim/internal/monitoring"
)

// ErrNoRuns is returned when there is nothing to chart.
var ErrNoRuns = errors.New("report: no runs recorded")

const missing = "-"

// optional returns v or the echarts gap marker.
func optional(v *float64) interface{} {
	if v == nil {
		return missing
	}
	return *v
}

// chronological returns runs oldest first; the store hands them back newest first.
func chronological(runs []db.Run) []db.Run {
	out := slices.Clone(runs)
	slices.SortStableFunc(out, func(a, b db.Run) int { return a.Started.Compare(b.Started) })
	return out
}

func timingsChart(runs []db.Run, labels []string) *charts.Bar {
	bins := make([]opts.BarData, len(runs))
	conv := make([]opts.BarData, len(runs))
	total := make([]opts.BarData, len(runs))
	for i, r := range runs {
		bins[i] = opts.BarData{Value: r.PsfBinsSeconds, Name: r.Name}
		conv[i] = opts.BarData{Value: r.ConvolutionSecs, Name: r.Name}
		total[i] = opts.BarData{Value: r.TotalSeconds, Name: r.Name}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Running times", Subtitle: fmt.Sprintf("runs=%d", len(runs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	bar.SetXAxis(labels).
		AddSeries("PSF bins", bins).
		AddSeries("Convolution", conv).
		AddSeries("Total", total)
	return bar
}

func metricsChart(runs []db.Run, labels []string) *charts.Line {
	mse := make([]opts.LineData, len(runs))
	psnr := make([]opts.LineData, len(runs))
	ssim := make([]opts.LineData, len(runs))
	for i, r := range runs {
		mse[i] = opts.LineData{Value: optional(r.MeanMSE), Name: r.Name}
		psnr[i] = opts.LineData{Value: optional(r.MeanPSNR), Name: r.Name}
		ssim[i] = opts.LineData{Value: optional(r.MeanSSIM), Name: r.Name}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Reference metrics"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mean"}),
	)
	gaps := charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true), ConnectNulls: opts.Bool(false)})
	line.SetXAxis(labels).
		AddSeries("MSE", mse, gaps).
		AddSeries("PSNR (dB)", psnr, gaps).
		AddSeries("SSIM", ssim, gaps)
	return line
}

func binsChart(runs []db.Run, labels []string) *charts.Scatter {
	data := make([]opts.ScatterData, len(runs))
	for i, r := range runs {
		data[i] = opts.ScatterData{Value: []interface{}{r.NumBins, r.TotalSeconds}, Name: labels[i]}
	}
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Cost of PSF bins"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "bins", Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "total seconds"}),
	)
	scatter.AddSeries("runs", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	return scatter
}

// RenderHistory writes an HTML page charting runs. Runs without reference
// metrics leave gaps in the metrics chart.
func RenderHistory(w io.Writer, runs []db.Run) error {
	if len(runs) == 0 {
		return ErrNoRuns
	}
	runs = chronological(runs)
	labels := make([]string, len(runs))
	for i, r := range runs {
		labels[i] = r.Name
		if labels[i] == "" {
			labels[i] = strconv.Itoa(i)
		}
	}

	page := components.NewPage()
	page.SetPageTitle("PSF simulation history")
	page.AddCharts(
		timingsChart(runs, labels),
		metricsChart(runs, labels),
		binsChart(runs, labels),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("report: render history: %w", err)
	}
	return nil
}

// HistoryHandler serves the rendered history of the most recent limit runs.
func HistoryHandler(store *db.DB, limit int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		n := limit
		if q := r.URL.Query().Get("limit"); q != "" {
			if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= 10000 {
				n = v
			}
		}
		runs, err := store.Runs(n)
		if err != nil {
			monitoring.Opsf("[Report] failed to list runs: %v", err)
			http.Error(w, "failed to list runs", http.StatusInternalServerError)
			return
		}

		var buf bytes.Buffer
		if err := RenderHistory(&buf, runs); err != nil {
			if errors.Is(err, ErrNoRuns) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}
