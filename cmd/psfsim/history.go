package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/psfsim/internal/db"
	"github.com/banshee-data/psfsim/internal/monitoring"
	"github.com/banshee-data/psfsim/internal/report"
)

var errNoDatabase = errors.New("no run history database configured")

// requireDB opens the history database for commands that cannot run without it.
func requireDB(c *commonFlags) (*db.DB, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	store, err := c.openDB(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errNoDatabase
	}
	return store, nil
}

func metric(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', 6, 64)
}

func runHistory(args []string, out io.Writer) error {
	var common commonFlags
	fs := newFlagSet("history", out, &common)
	limit := fs.Int("limit", 20, "Number of runs and fits to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := requireDB(&common)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(*limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tNAME\tBINS\tTOTAL\tMSE\tPSNR\tSSIM")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.3fs\t%s\t%s\t%s\n",
			r.Started.Format(time.DateTime), r.Name, r.NumBins, r.TotalSeconds,
			metric(r.MeanMSE), metric(r.MeanPSNR), metric(r.MeanSSIM))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fits, err := store.Fits(*limit)
	if err != nil {
		return err
	}
	if len(fits) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tFIT\tMETHOD\tCOMPONENTS\tCOST\tTERMINATION")
	for _, f := range fits {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.6g\t%s\n",
			f.Started.Format(time.DateTime), f.FitID, f.Method, f.Components, f.Cost, f.Termination)
	}
	return tw.Flush()
}

func runReport(args []string, out io.Writer) error {
	var common commonFlags
	fs := newFlagSet("report", out, &common)
	limit := fs.Int("limit", 100, "Number of recent runs to chart")
	outFile := fs.String("out", "", "Write the HTML page here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := requireDB(&common)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(*limit)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := report.RenderHistory(&buf, runs); err != nil {
		return err
	}
	if *outFile == "" {
		_, err = out.Write(buf.Bytes())
		return err
	}
	if err := filesystem.WriteFile(*outFile, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d runs to %s\n", len(runs), *outFile)
	return nil
}

// newServeMux mounts the history report, the JSON API and the admin routes.
func newServeMux(store *db.DB, limit int, resultsRoot string) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	mux.Handle("/report", report.HistoryHandler(store, limit))
	api := &report.API{Store: store, ResultsRoot: resultsRoot}
	api.AttachRoutes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux, nil
}

func runServe(ctx context.Context, args []string, out io.Writer) error {
	var common commonFlags
	fs := newFlagSet("serve", out, &common)
	listen := fs.String("listen", ":8080", "Listen address")
	limit := fs.Int("limit", 100, "Default number of runs in the report")
	results := fs.String("results", "", "Directory run images are served from (default: output.directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return errors.New("listen address is required")
	}
	store, err := requireDB(&common)
	if err != nil {
		return err
	}
	defer store.Close()

	if *results == "" {
		cfg, err := common.load()
		if err != nil {
			return err
		}
		*results = cfg.Output.GetDirectory()
	}
	mux, err := newServeMux(store, *limit, *results)
	if err != nil {
		return err
	}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		monitoring.Diagf("[Serve] got request %q", r.URL.Path)
		mux.ServeHTTP(w, r)
	})
	server := &http.Server{
		Addr:              *listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	monitoring.Opsf("[Serve] listening on %s", *listen)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	monitoring.Opsf("[Serve] shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}

func runMigrate(args []string, out io.Writer) error {
	var common commonFlags
	fs := newFlagSet("migrate", out, &common)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	path := common.dbPath(cfg)
	if path == "" || path == "-" {
		return errNoDatabase
	}
	return db.RunMigrateCommand(fs.Args(), path, out)
}
