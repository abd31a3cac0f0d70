package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/banshee-data/psfsim/internal/config"
	"github.com/banshee-data/psfsim/internal/db"
	"github.com/banshee-data/psfsim/internal/fsutil"
	"github.com/banshee-data/psfsim/internal/groundtruth"
	"github.com/banshee-data/psfsim/internal/monitoring"
)

// logOutput is where the monitoring streams go. Tests redirect it.
var logOutput io.Writer = os.Stderr

// commonFlags are shared by every command that reads the config or history.
type commonFlags struct {
	config string
	db     string
}

func newFlagSet(name string, out io.Writer, c *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	if c != nil {
		fs.StringVar(&c.config, "config", "", "Simulation config (JSON); built-in defaults when empty")
		fs.StringVar(&c.db, "db", "", "Run history database (overrides output.database; \"-\" disables recording)")
	}
	return fs
}

// load reads the config file or falls back to the built-in defaults, and
// points the log streams at logOutput according to print_detail.
func (c *commonFlags) load() (*config.SimulationConfig, error) {
	cfg := config.DefaultSimulationConfig()
	if c.config != "" {
		var err error
		if cfg, err = config.LoadSimulationConfig(c.config); err != nil {
			return nil, err
		}
	}
	detail, err := groundtruth.ParsePrintDetail(cfg.Convolution.GetPrintDetail())
	if err != nil {
		return nil, err
	}
	configureLogging(detail)
	return cfg, nil
}

func configureLogging(detail groundtruth.PrintDetail) {
	w := monitoring.LogWriters{Ops: logOutput}
	if detail >= groundtruth.PrintProgress {
		w.Diag = logOutput
	}
	if detail >= groundtruth.PrintDetailed {
		w.Trace = logOutput
	}
	monitoring.SetLogWriters(w)
}

func (c *commonFlags) dbPath(cfg *config.SimulationConfig) string {
	if c.db != "" {
		return c.db
	}
	return cfg.Output.GetDatabase()
}

// openDB opens the history database, or returns nil when recording is
// disabled with "-".
func (c *commonFlags) openDB(cfg *config.SimulationConfig) (*db.DB, error) {
	path := c.dbPath(cfg)
	if path == "" || path == "-" {
		return nil, nil
	}
	store, err := db.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return store, nil
}

func decodeRGBA(data []byte) (*image.RGBA, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst, nil
}

// loadReference reads a reference image: a PNG file, or the Convolution
// image of a previous run directory.
func loadReference(fs fsutil.FileSystem, path string) (*image.RGBA, error) {
	if strings.HasSuffix(strings.ToLower(path), ".png") {
		data, err := fs.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reference: %w", err)
		}
		img, err := decodeRGBA(data)
		if err != nil {
			return nil, fmt.Errorf("reference: decode %s: %w", path, err)
		}
		return img, nil
	}
	prev, err := groundtruth.LoadResults(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	img, ok := prev.Images[groundtruth.AttrConvolution]
	if !ok {
		return nil, fmt.Errorf("reference: %s has no %s image", path, groundtruth.AttrConvolution)
	}
	return img, nil
}
