package report

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/psfsim/internal/db"
	"github.com/banshee-data/psfsim/internal/groundtruth"
	"github.com/banshee-data/psfsim/internal/httputil"
	"github.com/banshee-data/psfsim/internal/security"
)

// API serves the run history as JSON and the exported images of each run.
// Image files are only served from below ResultsRoot.
type API struct {
	Store       *db.DB
	ResultsRoot string
}

// AttachRoutes mounts the API under /api/ on mux.
func (a *API) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/runs", a.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", a.getRun)
	mux.HandleFunc("GET /api/runs/{id}/images/{attr}", a.getImage)
	mux.HandleFunc("GET /api/fits", a.listFits)
}

func limitParam(r *http.Request) (int, error) {
	q := r.URL.Query().Get("limit")
	if q == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(q)
	if err != nil || n < 1 || n > 10000 {
		return 0, errors.New("limit must be between 1 and 10000")
	}
	return n, nil
}

func (a *API) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	runs, err := a.Store.Runs(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (a *API) lookup(w http.ResponseWriter, r *http.Request) (db.Run, bool) {
	run, err := a.Store.Run(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, "no such run")
		return db.Run{}, false
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to load run", err)
		return db.Run{}, false
	}
	return run, true
}

func (a *API) getRun(w http.ResponseWriter, r *http.Request) {
	if run, ok := a.lookup(w, r); ok {
		httputil.WriteJSONOK(w, run)
	}
}

func (a *API) getImage(w http.ResponseWriter, r *http.Request) {
	attr, err := groundtruth.ParseResultAttribute(r.PathValue("attr"))
	if err != nil {
		httputil.NotFound(w, "unknown image")
		return
	}
	run, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if run.ResultDir == "" || a.ResultsRoot == "" {
		httputil.NotFound(w, "run has no exported images")
		return
	}
	// Recorded result dirs are relative to the directory psfsim ran in.
	name, err := filepath.Abs(filepath.Join(run.ResultDir, attr.String()+".png"))
	if err != nil {
		httputil.InternalServerError(w, "failed to resolve image", err)
		return
	}
	p, err := security.ResolveWithin(a.ResultsRoot, name)
	if err != nil {
		httputil.NotFound(w, "run images are outside the results directory")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, p)
}

func (a *API) listFits(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	fits, err := a.Store.Fits(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list fits", err)
		return
	}
	if fits == nil {
		fits = []db.Fit{}
	}
	httputil.WriteJSONOK(w, fits)
}
