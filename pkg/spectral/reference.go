package spectral

import "math"

// referenceWavelengths are the 10 nm nodes of the tabulated spectra below.
var referenceWavelengths = []float64{
	400, 410, 420, 430, 440, 450, 460, 470, 480, 490,
	500, 510, 520, 530, 540, 550, 560, 570, 580, 590,
	600, 610, 620, 630, 640, 650, 660, 670, 680, 690,
	700, 710,
}

// pureWaterAbsorption in 1/m (Pope and Fry 1997, extended past 700 nm).
var pureWaterAbsorption = []float64{
	0.00663, 0.00473, 0.00454, 0.00495, 0.00635, 0.00922, 0.00979, 0.0106, 0.0127, 0.0150,
	0.0204, 0.0325, 0.0409, 0.0434, 0.0474, 0.0565, 0.0619, 0.0695, 0.0896, 0.1351,
	0.2224, 0.2644, 0.2755, 0.2916, 0.3108, 0.3400, 0.4100, 0.4390, 0.4650, 0.5160,
	0.6240, 0.8270,
}

// phytoplanktonAbsorption is the chlorophyll specific absorption in
// m2/mg for a chlorophyll concentration of 1 mg/m3.
var phytoplanktonAbsorption = []float64{
	0.0300, 0.0340, 0.0370, 0.0400, 0.0420, 0.0390, 0.0360, 0.0330, 0.0300, 0.0265,
	0.0225, 0.0180, 0.0150, 0.0125, 0.0105, 0.0090, 0.0078, 0.0070, 0.0068, 0.0070,
	0.0075, 0.0080, 0.0085, 0.0090, 0.0095, 0.0105, 0.0140, 0.0190, 0.0185, 0.0110,
	0.0045, 0.0020,
}

// WaterAbsorption returns pure water absorption on g.
func WaterAbsorption(g Grid) []float64 {
	out, _ := Interpolate(referenceWavelengths, pureWaterAbsorption, g)
	return out
}

// WaterBackscatter returns pure water backscatter on g, half the Morel (1974)
// scattering coefficient.
func WaterBackscatter(g Grid) []float64 {
	return g.Map(func(wl float64) float64 {
		return 0.5 * 0.00288 * math.Pow(wl/500, -4.32)
	})
}

// PhytoplanktonAbsorption returns the chlorophyll specific absorption base
// spectrum on g.
func PhytoplanktonAbsorption(g Grid) []float64 {
	out, _ := Interpolate(referenceWavelengths, phytoplanktonAbsorption, g)
	return out
}
