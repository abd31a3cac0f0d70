package groundtruth

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/png"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/banshee-data/psfsim/internal/fsutil"
	"github.com/banshee-data/psfsim/internal/gather"
)

// iniFile is an ordered [Section] / Key = Value document.
type iniFile struct {
	sections []string
	keys     map[string][]string
	values   map[string]map[string]string
}

func newINI() *iniFile {
	return &iniFile{keys: make(map[string][]string), values: make(map[string]map[string]string)}
}

func (f *iniFile) set(section, key, value string) {
	if _, ok := f.values[section]; !ok {
		f.sections = append(f.sections, section)
		f.values[section] = make(map[string]string)
	}
	if _, ok := f.values[section][key]; !ok {
		f.keys[section] = append(f.keys[section], key)
	}
	f.values[section][key] = value
}

func (f *iniFile) get(section, key string) (string, bool) {
	v, ok := f.values[section][key]
	return v, ok
}

func (f *iniFile) bytes() []byte {
	var buf bytes.Buffer
	for i, s := range f.sections {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "[%s]\n", s)
		for _, k := range f.keys[s] {
			fmt.Fprintf(&buf, "%s = %s\n", k, f.values[s][k])
		}
	}
	return buf.Bytes()
}

func parseINI(data []byte) (*iniFile, error) {
	f := newINI()
	section := ""
	sc := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#"):
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			section = strings.TrimSpace(line[1 : len(line)-1])
		default:
			k, v, ok := strings.Cut(line, "=")
			if !ok {
				return nil, fmt.Errorf("attributes: line %d: expected key = value", n)
			}
			if section == "" {
				return nil, fmt.Errorf("attributes: line %d: key outside a section", n)
			}
			f.set(section, strings.TrimSpace(k), strings.TrimSpace(v))
		}
	}
	return f, sc.Err()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func formatList(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ", ")
}

func parseList(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type limitField struct {
	name string
	l    *Limits
}

func (r *Results) limitFields() []limitField {
	return []limitField{
		{"Depth", &r.Depth},
		{"Defocus", &r.Defocus},
		{"BlurRadius", &r.BlurRadius},
		{"NumSamples", &r.NumSamples},
		{"Weight", &r.Weight},
	}
}

// EncodeAttributes renders the attributes file.
func (r *Results) EncodeAttributes() ([]byte, error) {
	f := newINI()
	f.set("Resolution", "Width", strconv.Itoa(r.Width))
	f.set("Resolution", "Height", strconv.Itoa(r.Height))

	f.set("Settings", "RunID", r.RunID.String())
	f.set("Settings", "TimestampDisplay", r.TimestampDisplay())
	f.set("Settings", "TimestampFile", r.TimestampFile())
	f.set("Settings", "Scene", r.Scene)
	f.set("Settings", "Camera", r.Camera)
	f.set("Settings", "Aberration", r.Aberration)
	f.set("Settings", "Channels", strconv.Itoa(r.Channels))
	f.set("Settings", "Off-Axis", strconv.FormatBool(r.OffAxis))
	f.set("Settings", "HDR", strconv.FormatBool(r.DynamicRange == HDR))
	f.set("Settings", "Focus", formatFloat(r.FocusDistance))
	f.set("Settings", "Aperture", formatFloat(r.ApertureMM))
	f.set("Settings", "BlendMode", r.BlendMode.String())
	f.set("Settings", "Algorithm", r.Algorithm.String())

	f.set("Bins", "NumBins", strconv.Itoa(r.NumBins))
	f.set("Bins", "DioptresPrecision", formatFloat(r.Binner.DioptresPrecision))
	f.set("Bins", "IncidentAnglesPrecision", formatFloat(r.Binner.AnglesPrecision))
	f.set("Bins", "CenterDioptres", strconv.FormatBool(r.Binner.CenterDioptres))
	f.set("Bins", "CenterIncidentAngles", strconv.FormatBool(r.Binner.CenterIncidentAngles))

	for _, lf := range r.limitFields() {
		f.set("Limits", "Min"+lf.name, formatList(lf.l.Min[:]))
		f.set("Limits", "Max"+lf.name, formatList(lf.l.Max[:]))
	}
	f.set("Limits", "ZeroWeightPixels", strconv.Itoa(r.ZeroWeightPixels))

	if m := r.Metrics; m != nil {
		if len(m.SSIM) > 0 {
			f.set("Metrics", "MSSIM", formatList(m.SSIM))
			f.set("Metrics", "MMSSIM", formatFloat(m.MeanSSIM))
		}
		if m.HasHDRVDP3 {
			f.set("Metrics", "HDRVDP3", formatFloat(m.HDRVDP3))
		}
		if len(m.PSNR) > 0 {
			f.set("Metrics", "PSNR", formatList(m.PSNR))
			f.set("Metrics", "SNR", formatList(m.SNR))
		}
		f.set("Metrics", "RMSE", formatList(m.RMSE))
		f.set("Metrics", "MSE", formatList(m.MSE))
		if len(m.PSNR) > 0 {
			f.set("Metrics", "MPSNR", formatFloat(m.MeanPSNR))
			f.set("Metrics", "MSNR", formatFloat(m.MeanSNR))
		}
		f.set("Metrics", "MRMSE", formatFloat(m.MeanRMSE))
		f.set("Metrics", "MMSE", formatFloat(m.MeanMSE))
	}

	f.set("RunningTimes", "PsfBins", formatFloat(r.PsfBinsTime.Seconds()))
	f.set("RunningTimes", "Convolution", formatFloat(r.ConvolutionTime.Seconds()))
	f.set("RunningTimes", "TotalProcessing", formatFloat(r.TotalTime.Seconds()))
	return f.bytes(), nil
}

// attrReader collects the first parse error so decoding reads linearly.
type attrReader struct {
	f   *iniFile
	err error
}

func (a *attrReader) getString(section, key string) string {
	v, ok := a.f.get(section, key)
	if !ok && a.err == nil {
		a.err = fmt.Errorf("attributes: missing %s.%s", section, key)
	}
	return v
}

func (a *attrReader) optional(section, key string) (string, bool) {
	return a.f.get(section, key)
}

func (a *attrReader) fail(section, key string, err error) {
	if err != nil && a.err == nil {
		a.err = fmt.Errorf("attributes: %s.%s: %w", section, key, err)
	}
}

func (a *attrReader) getInt(section, key string) int {
	v, err := strconv.Atoi(a.getString(section, key))
	a.fail(section, key, err)
	return v
}

func (a *attrReader) getFloat(section, key string) float64 {
	v, err := strconv.ParseFloat(a.getString(section, key), 64)
	a.fail(section, key, err)
	return v
}

func (a *attrReader) getBool(section, key string) bool {
	v, err := strconv.ParseBool(a.getString(section, key))
	a.fail(section, key, err)
	return v
}

func (a *attrReader) getList(section, key string) []float64 {
	v, err := parseList(a.getString(section, key))
	a.fail(section, key, err)
	return v
}

func (a *attrReader) getSeconds(section, key string) time.Duration {
	return time.Duration(a.getFloat(section, key) * float64(time.Second))
}

// ParseAttributes rebuilds the metadata, limits, metrics and timings of a
// previous run. Images are not part of the file; see LoadResults.
func ParseAttributes(data []byte) (*Results, error) {
	f, err := parseINI(data)
	if err != nil {
		return nil, err
	}
	a := &attrReader{f: f}
	r := &Results{Images: make(map[ResultAttribute]*image.RGBA)}

	r.Width = a.getInt("Resolution", "Width")
	r.Height = a.getInt("Resolution", "Height")

	if id, ok := a.optional("Settings", "RunID"); ok {
		r.RunID, err = uuid.Parse(id)
		a.fail("Settings", "RunID", err)
	}
	r.Timestamp, err = time.Parse(TimestampDisplay, a.getString("Settings", "TimestampDisplay"))
	a.fail("Settings", "TimestampDisplay", err)
	r.Scene = a.getString("Settings", "Scene")
	r.Camera = a.getString("Settings", "Camera")
	r.Aberration = a.getString("Settings", "Aberration")
	r.Channels = a.getInt("Settings", "Channels")
	r.OffAxis = a.getBool("Settings", "Off-Axis")
	if a.getBool("Settings", "HDR") {
		r.DynamicRange = HDR
	}
	r.FocusDistance = a.getFloat("Settings", "Focus")
	r.ApertureMM = a.getFloat("Settings", "Aperture")
	r.BlendMode, err = gather.ParseBlendMode(a.getString("Settings", "BlendMode"))
	a.fail("Settings", "BlendMode", err)
	r.Algorithm, err = ParseAlgorithm(a.getString("Settings", "Algorithm"))
	a.fail("Settings", "Algorithm", err)

	r.NumBins = a.getInt("Bins", "NumBins")
	r.Binner.DioptresPrecision = a.getFloat("Bins", "DioptresPrecision")
	r.Binner.AnglesPrecision = a.getFloat("Bins", "IncidentAnglesPrecision")
	r.Binner.CenterDioptres = a.getBool("Bins", "CenterDioptres")
	r.Binner.CenterIncidentAngles = a.getBool("Bins", "CenterIncidentAngles")
	r.Binner.SimulateOffAxis = r.OffAxis

	for _, lf := range r.limitFields() {
		copy(lf.l.Min[:], a.getList("Limits", "Min"+lf.name))
		copy(lf.l.Max[:], a.getList("Limits", "Max"+lf.name))
	}
	if _, ok := a.optional("Limits", "ZeroWeightPixels"); ok {
		r.ZeroWeightPixels = a.getInt("Limits", "ZeroWeightPixels")
	}

	if _, ok := a.optional("Metrics", "MSE"); ok {
		m := &MetricsReport{}
		m.MSE = a.getList("Metrics", "MSE")
		m.RMSE = a.getList("Metrics", "RMSE")
		m.MeanMSE = a.getFloat("Metrics", "MMSE")
		m.MeanRMSE = a.getFloat("Metrics", "MRMSE")
		if _, ok := a.optional("Metrics", "PSNR"); ok {
			m.PSNR = a.getList("Metrics", "PSNR")
			m.SNR = a.getList("Metrics", "SNR")
			m.MeanPSNR = a.getFloat("Metrics", "MPSNR")
			m.MeanSNR = a.getFloat("Metrics", "MSNR")
		}
		if _, ok := a.optional("Metrics", "MSSIM"); ok {
			m.SSIM = a.getList("Metrics", "MSSIM")
			m.MeanSSIM = a.getFloat("Metrics", "MMSSIM")
		}
		if _, ok := a.optional("Metrics", "HDRVDP3"); ok {
			m.HDRVDP3 = a.getFloat("Metrics", "HDRVDP3")
			m.HasHDRVDP3 = true
		}
		r.Metrics = m
	}

	r.PsfBinsTime = a.getSeconds("RunningTimes", "PsfBins")
	r.ConvolutionTime = a.getSeconds("RunningTimes", "Convolution")
	r.TotalTime = a.getSeconds("RunningTimes", "TotalProcessing")

	if a.err != nil {
		return nil, a.err
	}
	r.Name = RunName(r.Camera, r.Algorithm, r.Aberration, r.Timestamp)
	return r, nil
}

// LoadResults reloads a run exported under dir: its attributes file and
// whichever attribute images exist.
func LoadResults(fs fsutil.FileSystem, dir string) (*Results, error) {
	data, err := fs.ReadFile(path.Join(dir, AttributesFile))
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	r, err := ParseAttributes(data)
	if err != nil {
		return nil, err
	}
	r.Name = path.Base(dir)
	for _, d := range ResultAttributes {
		name := path.Join(dir, d.Name+".png")
		if !fs.Exists(name) {
			continue
		}
		raw, err := fs.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("load results: %w", err)
		}
		img, err := png.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("load results: decode %s: %w", name, err)
		}
		b := img.Bounds()
		rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
		r.Images[d.Value] = rgba
	}
	return r, nil
}
