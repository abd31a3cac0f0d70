package kernel

import (
	"fmt"
	"math"

	"github.com/banshee-data/psfsim/internal/config"
)

// Gaussian returns a single nearly-real lobe approximating a Gaussian of
// standard deviation sigma.
func Gaussian(sigma float64) Parameters {
	return Parameters{
		Radius: 2.5,
		Components: []Component{{
			LowerA: 1 / (2 * sigma * sigma),
			LowerB: 1e-5,
			UpperA: math.Sqrt(2 * math.Pi * sigma * sigma),
			UpperB: 0,
		}},
	}
}

var garciaTables = [MaxComponents][]Component{
	{
		{0.862325, 1.624835, 0.767583, 1.862321},
	},
	{
		{0.886528, 5.268909, 0.411259, -0.548794},
		{1.960518, 1.558213, 0.513282, 4.561110},
	},
	{
		{2.176490, 5.043495, 1.621035, -2.105439},
		{1.019306, 9.027613, -0.280860, -0.162882},
		{2.815110, 1.597273, -0.366471, 10.300301},
	},
}

// Garcia returns the published disk-approximating lobe set with n
// components.
func Garcia(n int) (Parameters, error) {
	if n < 1 || n > MaxComponents {
		return Parameters{}, fmt.Errorf("kernel: no preset with %d components", n)
	}
	return Parameters{
		Radius:     1.25,
		Components: append([]Component(nil), garciaTables[n-1]...),
	}, nil
}

// FromConfig builds the preset named by the kernel section.
func FromConfig(c *config.KernelConfig) (Parameters, error) {
	switch c.GetPreset() {
	case "gaussian":
		return Gaussian(c.GetGaussianSigma()), nil
	case "garcia":
		return Garcia(c.GetComponents())
	default:
		return Parameters{}, fmt.Errorf("kernel: unknown preset %q", c.GetPreset())
	}
}
