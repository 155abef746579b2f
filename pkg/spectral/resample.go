package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// Method selects how values are carried from one band set to another.
type Method int

const (
	// Linear interpolates between neighbouring bands and holds the edge
	// values outside the source range.
	Linear Method = iota
	// Nearest copies the value of the closest source band.
	Nearest
)

// ParseMethod maps a configuration string to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "linear":
		return Linear, nil
	case "nearest":
		return Nearest, nil
	default:
		return Linear, fmt.Errorf("spectral: unknown resampling method %q", s)
	}
}

func (m Method) String() string {
	switch m {
	case Linear:
		return "linear"
	case Nearest:
		return "nearest"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// Interpolate linearly interpolates the table (xs, ys) at every wavelength of
// g. xs must be strictly increasing and hold at least two nodes.
func Interpolate(xs, ys []float64, g Grid) ([]float64, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%d nodes, %d values: %w", len(xs), len(ys), ErrLengthMismatch)
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("spectral: fitting interpolant: %w", err)
	}
	return g.Map(pl.Predict), nil
}

// Resample carries values sampled on from onto to.
func Resample(values []float64, from, to Grid, method Method) ([]float64, error) {
	if err := from.Check(values); err != nil {
		return nil, err
	}
	if from.Len() == 1 {
		out := make([]float64, to.Len())
		for i := range out {
			out[i] = values[0]
		}
		return out, nil
	}
	switch method {
	case Linear:
		return Interpolate(from.wl, values, to)
	case Nearest:
		out := make([]float64, to.Len())
		for i, wl := range to.wl {
			out[i] = values[nearest(from.wl, wl)]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("spectral: unsupported method %v", method)
	}
}

// nearest returns the index of the element of xs closest to x, preferring the
// lower band on ties.
func nearest(xs []float64, x float64) int {
	best, dist := 0, math.Inf(1)
	for i, v := range xs {
		if d := math.Abs(v - x); d < dist {
			best, dist = i, d
		}
	}
	return best
}
