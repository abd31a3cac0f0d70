package report

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/psfsim/internal/db"
	"github.com/banshee-data/psfsim/internal/testutil"
)

func newTestAPI(t *testing.T) (*http.ServeMux, string) {
	t.Helper()
	tmp := t.TempDir()
	store, err := db.NewDB(filepath.Join(tmp, "history.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	root := filepath.Join(tmp, "results")
	inside := filepath.Join(root, "cam_run")
	if err := os.MkdirAll(inside, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inside, "Convolution.png"), []byte("\x89PNG fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(tmp, "elsewhere")

	runs := sampleRuns()
	runs[0].ResultDir = inside
	runs[1].ResultDir = outside
	for _, r := range runs {
		if err := store.RecordRun(r); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	mux := http.NewServeMux()
	(&API{Store: store, ResultsRoot: root}).AttachRoutes(mux)
	return mux, root
}

func get(mux http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestAPIListRuns(t *testing.T) {
	mux, _ := newTestAPI(t)

	rec := get(mux, "/api/runs?limit=1")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var runs []db.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "b" {
		t.Errorf("runs = %+v, want only the newest", runs)
	}

	for _, bad := range []string{"0", "x", "10001"} {
		testutil.AssertStatusCode(t, get(mux, "/api/runs?limit="+bad).Code, http.StatusBadRequest)
	}
}

func TestAPIGetRun(t *testing.T) {
	mux, _ := newTestAPI(t)

	rec := get(mux, "/api/runs/a")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var run db.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.MeanSSIM == nil || *run.MeanSSIM != 0.9 {
		t.Errorf("MeanSSIM = %v", run.MeanSSIM)
	}

	testutil.AssertStatusCode(t, get(mux, "/api/runs/nope").Code, http.StatusNotFound)
}

func TestAPIImages(t *testing.T) {
	mux, _ := newTestAPI(t)

	rec := get(mux, "/api/runs/b/images/Convolution")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != "\x89PNG fake" {
		t.Errorf("body = %q", rec.Body)
	}

	cases := map[string]string{
		"unknown attribute": "/api/runs/b/images/Passwords",
		"not exported":      "/api/runs/b/images/Depth",
		"outside root":      "/api/runs/a/images/Convolution",
		"unknown run":       "/api/runs/zz/images/Convolution",
	}
	for name, target := range cases {
		if rec := get(mux, target); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d", name, rec.Code)
		}
	}
}

func TestAPIFitsEmpty(t *testing.T) {
	mux, _ := newTestAPI(t)

	rec := get(mux, "/api/fits")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var fits []db.Fit
	if err := json.Unmarshal(rec.Body.Bytes(), &fits); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fits == nil || len(fits) != 0 {
		t.Errorf("fits = %#v, want empty list", fits)
	}
	testutil.AssertStatusCode(t, get(mux, "/api/runs").Code, http.StatusOK)
}
