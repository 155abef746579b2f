package models

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Names of the per-pixel fit statistic maps.
const (
	StatChiSqr     = "chisqr"
	StatRedChi     = "redchi"
	StatAIC        = "aic"
	StatBIC        = "bic"
	StatIterations = "iterations"
)

// StatNames lists the statistic maps in output order.
var StatNames = []string{StatChiSqr, StatRedChi, StatAIC, StatBIC, StatIterations}

// Maps holds the per-pixel inversion output. Pixels that were not inverted
// are NaN in every map.
type Maps struct {
	Rows, Cols int

	// Names are the parameter names in output order.
	Names []string

	Values map[string]*mat.Dense
	StdErr map[string]*mat.Dense
	Stats  map[string]*mat.Dense

	// Pixel counters
	Inverted    int
	Unconverged int
	Skipped     int
	Failed      int
}

// NewMaps allocates NaN filled maps for the given parameters.
func NewMaps(rows, cols int, names []string) *Maps {
	m := &Maps{
		Rows:   rows,
		Cols:   cols,
		Names:  append([]string(nil), names...),
		Values: make(map[string]*mat.Dense, len(names)),
		StdErr: make(map[string]*mat.Dense, len(names)),
		Stats:  make(map[string]*mat.Dense, len(StatNames)),
	}
	for _, n := range names {
		m.Values[n] = nanDense(rows, cols)
		m.StdErr[n] = nanDense(rows, cols)
	}
	for _, n := range StatNames {
		m.Stats[n] = nanDense(rows, cols)
	}
	return m
}

// Total returns the number of pixels accounted for.
func (m *Maps) Total() int { return m.Inverted + m.Skipped + m.Failed }

func nanDense(rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = math.NaN()
	}
	return mat.NewDense(rows, cols, data)
}
