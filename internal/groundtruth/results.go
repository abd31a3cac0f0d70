package groundtruth

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/banshee-data/psfsim/internal/export"
	"github.com/banshee-data/psfsim/internal/gather"
	"github.com/banshee-data/psfsim/internal/monitoring"
	"github.com/banshee-data/psfsim/internal/psfbin"
	"github.com/banshee-data/psfsim/internal/security"
	"github.com/banshee-data/psfsim/internal/units"
)

// Timestamp layouts used in result names and attributes files.
const (
	TimestampDisplay = "2006-01-02 15:04:05"
	TimestampFile    = "20060102_150405"
)

// AttributesFile is the name of the INI file written next to the images.
const AttributesFile = "attributes.ini"

// Limits holds per-channel minima and maxima. Index MaxChannels holds the
// value over all channels.
type Limits struct {
	Min [MaxChannels + 1]float64
	Max [MaxChannels + 1]float64
}

func newLimits() Limits {
	var l Limits
	for i := range l.Min {
		l.Min[i] = math.Inf(1)
		l.Max[i] = math.Inf(-1)
	}
	return l
}

func (l *Limits) add(ch int, v float64) {
	l.Min[ch] = math.Min(l.Min[ch], v)
	l.Max[ch] = math.Max(l.Max[ch], v)
	l.Min[MaxChannels] = math.Min(l.Min[MaxChannels], v)
	l.Max[MaxChannels] = math.Max(l.Max[MaxChannels], v)
}

// finish zeroes the slots no value reached.
func (l *Limits) finish() {
	for i := range l.Min {
		if math.IsInf(l.Min[i], 1) {
			l.Min[i] = 0
		}
		if math.IsInf(l.Max[i], -1) {
			l.Max[i] = 0
		}
	}
}

// Overall returns the limits over all channels.
func (l Limits) Overall() (float64, float64) { return l.Min[MaxChannels], l.Max[MaxChannels] }

// Results is everything a run produced.
type Results struct {
	RunID     uuid.UUID
	Name      string
	Timestamp time.Time

	Width, Height int

	Scene         string
	Camera        string
	Aberration    string
	Algorithm     Algorithm
	BlendMode     gather.BlendMode
	Channels      int
	OffAxis       bool
	DynamicRange  DynamicRange
	FocusDistance float64 // metres
	ApertureMM    float64
	Binner        psfbin.Binner
	NumBins       int

	Depth      Limits
	Defocus    Limits
	BlurRadius Limits
	NumSamples Limits
	Weight     Limits

	ZeroWeightPixels int

	PsfBinsTime     time.Duration
	ConvolutionTime time.Duration
	TotalTime       time.Duration

	Images  map[ResultAttribute]*image.RGBA
	Metrics *MetricsReport
}

// RunName builds {camera}_{algorithm}_{aberration}_{timestamp}.
func RunName(camera string, alg Algorithm, aberration string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s", security.SanitizeFilename(camera), alg,
		security.SanitizeFilename(aberration), t.Format(TimestampFile))
}

// TimestampDisplay formats the run start for humans.
func (r *Results) TimestampDisplay() string { return r.Timestamp.Format(TimestampDisplay) }

// TimestampFile formats the run start for file names.
func (r *Results) TimestampFile() string { return r.Timestamp.Format(TimestampFile) }

// SetMetrics attaches the metrics report and its images. It can be called
// once per Results.
func (r *Results) SetMetrics(m MetricsReport) error {
	if r.Metrics != nil {
		return ErrMetricsAlreadySet
	}
	r.Metrics = &m
	if r.Images == nil {
		r.Images = make(map[ResultAttribute]*image.RGBA)
	}
	for attr, img := range m.Images {
		r.Images[attr] = img
	}
	return nil
}

// Export writes every image as {Name}/{Attribute}.png followed by
// {Name}/attributes.ini.
func (r *Results) Export(sink export.Sink) error {
	for _, d := range ResultAttributes {
		img, ok := r.Images[d.Value]
		if !ok || img == nil {
			continue
		}
		if err := sink.WriteImage(r.Name+"/"+d.Name+".png", img); err != nil {
			return err
		}
	}
	data, err := r.EncodeAttributes()
	if err != nil {
		return err
	}
	return sink.WriteFile(r.Name+"/"+AttributesFile, data)
}

// ftoui maps [0, 1] to a byte, clamping out-of-range values.
func ftoui(x float64) uint8 {
	if !(x > 0) {
		return 0
	}
	if x >= 1 {
		return 255
	}
	return uint8(x * 255)
}

func scaled(v, maxv float64) float64 {
	if maxv <= 0 {
		return 0
	}
	return v / maxv
}

// setPixel writes vals as an opaque pixel. Channels beyond the simulated
// ones repeat the last simulated channel.
func setPixel(img *image.RGBA, x, y int, vals [MaxChannels]float64, channels int) {
	for ch := channels; ch < MaxChannels; ch++ {
		vals[ch] = vals[channels-1]
	}
	img.SetRGBA(x, y, color.RGBA{R: ftoui(vals[0]), G: ftoui(vals[1]), B: ftoui(vals[2]), A: 255})
}

func (e *Engine) aggregate(frame *Frame) *Results {
	s := e.settings
	channels := s.channels()
	res := &Results{
		Width:         e.width,
		Height:        e.height,
		Scene:         s.Scene,
		Camera:        s.CameraName,
		Aberration:    s.Aberration,
		Algorithm:     s.Algorithm,
		BlendMode:     s.BlendMode,
		Channels:      channels,
		OffAxis:       s.Binner.SimulateOffAxis,
		DynamicRange:  s.DynamicRange,
		FocusDistance: s.FocusDistance,
		ApertureMM:    s.ApertureMM,
		Binner:        s.Binner,
		NumBins:       e.cache.NumBins(),
	}

	res.Depth, res.Defocus, res.BlurRadius = newLimits(), newLimits(), newLimits()
	res.NumSamples, res.Weight = newLimits(), newLimits()
	maxBinDioptre := 0.0
	for i := range e.input {
		in, out := &e.input[i], &e.output[i]
		zero := false
		for ch := 0; ch < channels; ch++ {
			res.Depth.add(ch, in.Depth)
			res.Defocus.add(ch, in.Defocus[ch])
			res.BlurRadius.add(ch, in.BlurRadius[ch])
			res.NumSamples.add(ch, float64(out.NumSamples[ch]))
			res.Weight.add(ch, out.Weight[ch])
			if out.Weight[ch] == 0 {
				zero = true
			}
		}
		if zero {
			res.ZeroWeightPixels++
		}
		maxBinDioptre = math.Max(maxBinDioptre, in.Key.Dioptre)
	}
	for _, l := range []*Limits{&res.Depth, &res.Defocus, &res.BlurRadius, &res.NumSamples, &res.Weight} {
		l.finish()
	}
	if res.ZeroWeightPixels > 0 {
		monitoring.Opsf("[GroundTruth] warning: %d pixels received no samples", res.ZeroWeightPixels)
	}

	res.Images = e.render(frame, res, maxBinDioptre)
	return res
}

func (e *Engine) render(frame *Frame, res *Results, maxBinDioptre float64) map[ResultAttribute]*image.RGBA {
	channels := res.Channels
	rect := image.Rect(0, 0, e.width, e.height)
	images := make(map[ResultAttribute]*image.RGBA)
	for _, attr := range []ResultAttribute{
		AttrConvolution, AttrDepth, AttrBlurRadius, AttrNormalization, AttrNumberOfSamples,
		AttrIncidentAngles, AttrDefocus, AttrBinIncidentAngles, AttrBinDefocus,
	} {
		images[attr] = image.NewRGBA(rect)
	}
	original := image.NewRGBA(rect)
	draw.Draw(original, rect, frame.Color, frame.Color.Bounds().Min, draw.Src)
	images[AttrOriginal] = original

	halfX := units.HorizontalFov(e.settings.FovyDegrees, e.width, e.height) / 2
	halfY := e.settings.FovyDegrees / 2
	_, maxDepth := res.Depth.Overall()
	_, maxBlur := res.BlurRadius.Overall()
	_, maxWeight := res.Weight.Overall()
	_, maxSamples := res.NumSamples.Overall()
	minDefocus, maxDefocus := res.Defocus.Overall()
	defocusScale := math.Max(math.Abs(minDefocus), math.Abs(maxDefocus))

	for y := 0; y < e.height; y++ {
		for x := 0; x < e.width; x++ {
			in, out := &e.input[y*e.width+x], &e.output[y*e.width+x]
			var conv, blur, norm, samples, defocus [MaxChannels]float64
			for ch := 0; ch < channels; ch++ {
				conv[ch] = out.Result[ch]
				blur[ch] = scaled(in.BlurRadius[ch], maxBlur)
				norm[ch] = scaled(out.Weight[ch], maxWeight)
				samples[ch] = scaled(float64(out.NumSamples[ch]), maxSamples)
				defocus[ch] = scaled(math.Abs(in.Defocus[ch]), defocusScale)
			}
			d := scaled(in.Depth, maxDepth)
			angles := [MaxChannels]float64{math.Abs(scaled(in.Angle[0], halfX)), math.Abs(scaled(in.Angle[1], halfY)), 0}
			binAngles := [MaxChannels]float64{math.Abs(scaled(in.Key.Angle[0], halfX)), math.Abs(scaled(in.Key.Angle[1], halfY)), 0}
			binDefocus := scaled(in.Key.Dioptre, maxBinDioptre)

			setPixel(images[AttrConvolution], x, y, conv, channels)
			setPixel(images[AttrDepth], x, y, [MaxChannels]float64{d, d, d}, MaxChannels)
			setPixel(images[AttrBlurRadius], x, y, blur, channels)
			setPixel(images[AttrNormalization], x, y, norm, channels)
			setPixel(images[AttrNumberOfSamples], x, y, samples, channels)
			setPixel(images[AttrIncidentAngles], x, y, angles, MaxChannels)
			setPixel(images[AttrDefocus], x, y, defocus, channels)
			setPixel(images[AttrBinIncidentAngles], x, y, binAngles, MaxChannels)
			setPixel(images[AttrBinDefocus], x, y, [MaxChannels]float64{binDefocus, binDefocus, binDefocus}, MaxChannels)
		}
	}
	return images
}
