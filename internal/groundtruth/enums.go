package groundtruth

import "fmt"

// Algorithm selects how the convolution is computed.
type Algorithm int

const (
	// PerPixel gathers every output pixel from its neighbours' PSFs.
	PerPixel Algorithm = iota
	// PerPixelStack hands a regular PSF stack to the stack solver.
	PerPixelStack
	// DepthLayers hands a regular PSF stack to the stack solver, which
	// composites depth layers.
	DepthLayers
)

// Algorithms is the descriptor table for Algorithm.
var Algorithms = []struct {
	Name  string
	Value Algorithm
}{
	{"PerPixel", PerPixel},
	{"PerPixelStack", PerPixelStack},
	{"DepthLayers", DepthLayers},
}

// ParseAlgorithm looks up an algorithm by name.
func ParseAlgorithm(name string) (Algorithm, error) {
	for _, d := range Algorithms {
		if d.Name == name {
			return d.Value, nil
		}
	}
	return 0, fmt.Errorf("groundtruth: unknown algorithm %q", name)
}

func (a Algorithm) String() string {
	for _, d := range Algorithms {
		if d.Value == a {
			return d.Name
		}
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// DynamicRange records whether the input frame is LDR or HDR.
type DynamicRange int

const (
	LDR DynamicRange = iota
	HDR
)

// DynamicRanges is the descriptor table for DynamicRange.
var DynamicRanges = []struct {
	Name  string
	Value DynamicRange
}{
	{"LDR", LDR},
	{"HDR", HDR},
}

// ParseDynamicRange looks up a dynamic range by name.
func ParseDynamicRange(name string) (DynamicRange, error) {
	for _, d := range DynamicRanges {
		if d.Name == name {
			return d.Value, nil
		}
	}
	return 0, fmt.Errorf("groundtruth: unknown dynamic range %q", name)
}

func (d DynamicRange) String() string {
	for _, e := range DynamicRanges {
		if e.Value == d {
			return e.Name
		}
	}
	return fmt.Sprintf("DynamicRange(%d)", int(d))
}

// PrintDetail selects how much the engine logs.
type PrintDetail int

const (
	PrintNone PrintDetail = iota
	PrintProgress
	PrintDetailed
)

// PrintDetails is the descriptor table for PrintDetail.
var PrintDetails = []struct {
	Name  string
	Value PrintDetail
}{
	{"None", PrintNone},
	{"Progress", PrintProgress},
	{"Detailed", PrintDetailed},
}

// ParsePrintDetail looks up a print detail level by name.
func ParsePrintDetail(name string) (PrintDetail, error) {
	for _, d := range PrintDetails {
		if d.Name == name {
			return d.Value, nil
		}
	}
	return 0, fmt.Errorf("groundtruth: unknown print detail %q", name)
}

func (p PrintDetail) String() string {
	for _, d := range PrintDetails {
		if d.Value == p {
			return d.Name
		}
	}
	return fmt.Sprintf("PrintDetail(%d)", int(p))
}

// Stage names one phase of a run. Every stage is a full barrier.
type Stage int

const (
	StagePrepare Stage = iota
	StageBinEnumeration
	StagePsfCompute
	StagePixelPropertyPass
	StageConvolve
	StageAggregate
	StageMetrics
	StageDone
)

// Stages is the descriptor table for Stage.
var Stages = []struct {
	Name  string
	Value Stage
}{
	{"prepare", StagePrepare},
	{"bin-enumeration", StageBinEnumeration},
	{"psf-compute", StagePsfCompute},
	{"pixel-property-pass", StagePixelPropertyPass},
	{"convolve", StageConvolve},
	{"aggregate", StageAggregate},
	{"metrics", StageMetrics},
	{"done", StageDone},
}

func (s Stage) String() string {
	for _, d := range Stages {
		if d.Value == s {
			return d.Name
		}
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ResultAttribute names one 8-bit image of a run.
type ResultAttribute int

const (
	AttrOriginal ResultAttribute = iota
	AttrConvolution
	AttrDepth
	AttrBlurRadius
	AttrNormalization
	AttrNumberOfSamples
	AttrIncidentAngles
	AttrDefocus
	AttrBinIncidentAngles
	AttrBinDefocus
	AttrReference
	AttrDifference
	AttrSsim
	AttrSsimJet
	AttrHdrVdp3
	AttrHdrVdp3Jet
)

// ResultAttributes is the descriptor table for ResultAttribute.
var ResultAttributes = []struct {
	Name  string
	Value ResultAttribute
}{
	{"Original", AttrOriginal},
	{"Convolution", AttrConvolution},
	{"Depth", AttrDepth},
	{"BlurRadius", AttrBlurRadius},
	{"Normalization", AttrNormalization},
	{"NumberOfSamples", AttrNumberOfSamples},
	{"IncidentAngles", AttrIncidentAngles},
	{"Defocus", AttrDefocus},
	{"BinIncidentAngles", AttrBinIncidentAngles},
	{"BinDefocus", AttrBinDefocus},
	{"Reference", AttrReference},
	{"Difference", AttrDifference},
	{"Ssim", AttrSsim},
	{"SsimJet", AttrSsimJet},
	{"HdrVdp3", AttrHdrVdp3},
	{"HdrVdp3Jet", AttrHdrVdp3Jet},
}

// ParseResultAttribute looks up an attribute by name.
func ParseResultAttribute(name string) (ResultAttribute, error) {
	for _, d := range ResultAttributes {
		if d.Name == name {
			return d.Value, nil
		}
	}
	return 0, fmt.Errorf("groundtruth: unknown result attribute %q", name)
}

func (a ResultAttribute) String() string {
	for _, d := range ResultAttributes {
		if d.Value == a {
			return d.Name
		}
	}
	return fmt.Sprintf("ResultAttribute(%d)", int(a))
}
