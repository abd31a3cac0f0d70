// Package groundtruth is the brute-force reference convolution: it bins the
// frame's pixels, fetches one PSF per bin from the optics oracle and gathers
// every output pixel from its neighbours' PSFs.
package groundtruth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/psfsim/internal/export"
	"github.com/banshee-data/psfsim/internal/gather"
	"github.com/banshee-data/psfsim/internal/monitoring"
	"github.com/banshee-data/psfsim/internal/psf"
	"github.com/banshee-data/psfsim/internal/psfbin"
	"github.com/banshee-data/psfsim/internal/timeutil"
	"github.com/banshee-data/psfsim/internal/units"
)

// Engine runs one ground-truth convolution. An Engine is not reusable across
// frames of different sizes; create one per run.
type Engine struct {
	settings Settings
	oracle   psf.Oracle
	solver   StackSolver
	sink     export.Sink
	clock    timeutil.Clock

	cache  *psfbin.Cache
	stage  Stage
	width  int
	height int
	input  []InputPixel
	output []OutputPixel
}

// Option configures an Engine.
type Option func(*Engine)

// WithStackSolver sets the solver used by PerPixelStack and DepthLayers.
func WithStackSolver(s StackSolver) Option {
	return func(e *Engine) { e.solver = s }
}

// WithPsfSink sets where per-bin PSFs are written when ExportPsfs is on.
func WithPsfSink(s export.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithClock replaces the wall clock used for timings.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New returns an engine drawing PSFs from oracle.
func New(settings Settings, oracle psf.Oracle, opts ...Option) *Engine {
	e := &Engine{
		settings: settings,
		oracle:   oracle,
		clock:    timeutil.RealClock{},
		cache:    psfbin.NewCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache returns the bin cache. It is complete once Run has passed the
// psf-compute stage.
func (e *Engine) Cache() *psfbin.Cache { return e.cache }

// Stage returns the last stage the engine entered.
func (e *Engine) Stage() Stage { return e.stage }

// Input returns the prepared input pixels in row-major order.
func (e *Engine) Input() []InputPixel { return e.input }

// Output returns the convolved pixels in row-major order.
func (e *Engine) Output() []OutputPixel { return e.output }

func (e *Engine) enter(s Stage) {
	e.stage = s
	if e.settings.PrintDetail >= PrintProgress {
		monitoring.Diagf("[GroundTruth] stage %s", s)
	}
}

// Run convolves frame and returns the assembled results. Any failure is
// returned as a *StageError naming the stage.
func (e *Engine) Run(ctx context.Context, frame *Frame) (*Results, error) {
	if e.oracle == nil {
		return nil, stageErr(StagePrepare, fmt.Errorf("no psf oracle configured"))
	}
	total := timeutil.NewPhaseTimer(e.clock)
	total.Start()
	started := e.clock.Now()

	e.enter(StagePrepare)
	if err := e.prepare(ctx, frame); err != nil {
		return nil, stageErr(StagePrepare, err)
	}

	e.enter(StageBinEnumeration)
	keys := e.enumerate()
	monitoring.Diagf("[GroundTruth] %d bins for %dx%d pixels (%s)", len(keys), e.width, e.height, e.settings.Algorithm)

	e.enter(StagePsfCompute)
	bins := timeutil.NewPhaseTimer(e.clock)
	bins.Start()
	if err := e.cache.Populate(ctx, keys, e.settings.channels(), e.computeEntry); err != nil {
		return nil, stageErr(StagePsfCompute, err)
	}
	binsTime := bins.Stop()

	if e.settings.Algorithm == PerPixel {
		e.enter(StagePixelPropertyPass)
		if err := e.propertyPass(ctx); err != nil {
			return nil, stageErr(StagePixelPropertyPass, err)
		}
	}

	e.enter(StageConvolve)
	conv := timeutil.NewPhaseTimer(e.clock)
	conv.Start()
	if err := e.convolve(ctx); err != nil {
		return nil, stageErr(StageConvolve, err)
	}
	convTime := conv.Stop()

	e.enter(StageAggregate)
	if err := ctx.Err(); err != nil {
		return nil, stageErr(StageAggregate, err)
	}
	res := e.aggregate(frame)
	res.RunID = uuid.New()
	res.Timestamp = started
	res.Name = RunName(res.Camera, res.Algorithm, res.Aberration, started)
	res.PsfBinsTime = binsTime
	res.ConvolutionTime = convTime
	res.TotalTime = total.Stop()

	e.enter(StageDone)
	monitoring.Opsf("[GroundTruth] %s: %d bins, psf %v, convolution %v, total %v",
		res.Name, res.NumBins, res.PsfBinsTime, res.ConvolutionTime, res.TotalTime)
	return res, nil
}

// PopulateStack fills the cache with every bin of the oracle's stack axes
// without convolving a frame. height is the screen height in pixels that
// blur radii are measured against. Alignment and fitting start from here.
func (e *Engine) PopulateStack(ctx context.Context, height int) (*psfbin.Cache, error) {
	if e.oracle == nil {
		return nil, stageErr(StagePrepare, fmt.Errorf("no psf oracle configured"))
	}
	if height <= 0 {
		return nil, stageErr(StagePrepare, fmt.Errorf("invalid screen height %d", height))
	}
	e.height = height

	e.enter(StageBinEnumeration)
	keys := psfbin.EnumerateStack(e.oracle.Axes(), e.settings.Binner.SimulateOffAxis)
	if len(keys) == 0 {
		return nil, stageErr(StageBinEnumeration, fmt.Errorf("oracle advertises an empty stack"))
	}

	e.enter(StagePsfCompute)
	if err := e.cache.Populate(ctx, keys, e.settings.channels(), e.computeEntry); err != nil {
		return nil, stageErr(StagePsfCompute, err)
	}
	e.enter(StageDone)
	monitoring.Diagf("[GroundTruth] populated %d stack bins", e.cache.NumBins())
	return e.cache, nil
}

// forRows splits the rows into one contiguous range per worker and runs fn
// on each range concurrently. fn should check ctx between rows.
func (e *Engine) forRows(ctx context.Context, fn func(ctx context.Context, r0, r1 int) error) error {
	workers := e.settings.workers()
	chunk := (e.height + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for r0 := 0; r0 < e.height; r0 += chunk {
		r1 := min(r0+chunk, e.height)
		g.Go(func() error { return fn(gctx, r0, r1) })
	}
	return g.Wait()
}

func (e *Engine) prepare(ctx context.Context, frame *Frame) error {
	if frame == nil {
		return fmt.Errorf("no frame")
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	e.width, e.height = frame.Width, frame.Height
	e.input = make([]InputPixel, e.width*e.height)
	e.output = make([]OutputPixel, e.width*e.height)
	channels := e.settings.channels()

	return e.forRows(ctx, func(ctx context.Context, r0, r1 int) error {
		for y := r0; y < r1; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := 0; x < e.width; x++ {
				c := frame.Color.RGBAAt(x, y)
				rgb := [MaxChannels]uint8{c.R, c.G, c.B}
				p := &e.input[y*e.width+x]
				for ch := 0; ch < channels; ch++ {
					p.Color[ch] = float64(rgb[ch]) / 255
				}
				p.Depth = frame.DepthAt(x, y)
				h, v := units.PixelAngles(x, y, e.width, e.height, e.settings.FovyDegrees)
				p.Angle = [2]float64{h, v}
				p.Key = e.settings.Binner.Key(p.Angle, p.Depth)
			}
		}
		return nil
	})
}

func (e *Engine) enumerate() []psfbin.Key {
	if e.settings.Algorithm == PerPixel {
		observed := make([]psfbin.Key, len(e.input))
		for i := range e.input {
			observed[i] = e.input[i].Key
		}
		return psfbin.EnumeratePixels(observed)
	}
	return psfbin.EnumerateStack(e.oracle.Axes(), e.settings.Binner.SimulateOffAxis)
}

func (e *Engine) propertyPass(ctx context.Context) error {
	channels := e.settings.channels()
	return e.forRows(ctx, func(ctx context.Context, r0, r1 int) error {
		for y := r0; y < r1; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := 0; x < e.width; x++ {
				p := &e.input[y*e.width+x]
				entries, err := e.cache.Entries(p.Key)
				if err != nil {
					return err
				}
				for ch := 0; ch < channels; ch++ {
					p.BlurRadius[ch] = entries[ch].Radius
					p.Defocus[ch] = entries[ch].Defocus
				}
			}
		}
		return nil
	})
}

func (e *Engine) convolve(ctx context.Context) error {
	channels := e.settings.channels()
	if e.settings.Algorithm != PerPixel {
		if e.solver == nil {
			return ErrMissingSolver
		}
		out, err := e.solver.Solve(ctx, StackInput{
			Algorithm: e.settings.Algorithm,
			Width:     e.width,
			Height:    e.height,
			Channels:  channels,
			Pixels:    e.input,
			Cache:     e.cache,
			Keys:      e.cache.Keys(),
		})
		if err != nil {
			return fmt.Errorf("stack solver: %w", err)
		}
		if len(out) != len(e.output) {
			return fmt.Errorf("stack solver returned %d pixels, want %d", len(out), len(e.output))
		}
		copy(e.output, out)
		return nil
	}

	src := &pixelSource{width: e.width, height: e.height, channels: channels, pixels: e.input}
	return e.forRows(ctx, func(ctx context.Context, r0, r1 int) error {
		g := gather.New(e.cache, e.settings.BlendMode)
		res := make([]gather.Result, channels)
		for y := r0; y < r1; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := 0; x < e.width; x++ {
				if err := g.Pixel(src, y, x, res); err != nil {
					return err
				}
				o := &e.output[y*e.width+x]
				for ch := 0; ch < channels; ch++ {
					o.Result[ch] = res[ch].Color
					o.Weight[ch] = res[ch].Weight
					o.NumSamples[ch] = res[ch].NumSamples
				}
			}
			if e.settings.PrintDetail >= PrintDetailed {
				monitoring.Tracef("[GroundTruth] row %d/%d", y+1, e.height)
			}
		}
		return nil
	})
}
