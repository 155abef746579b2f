// Package spectral provides the waveband grid shared by every spectrum in the
// model, tabulated reference spectra and resampling between band sets.
package spectral

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyGrid indicates a grid without wavelengths.
	ErrEmptyGrid = errors.New("spectral: grid must contain at least one wavelength")
	// ErrNotIncreasing indicates wavelengths that are not strictly increasing.
	ErrNotIncreasing = errors.New("spectral: wavelengths must be strictly increasing")
	// ErrNonFinite indicates a NaN or infinite wavelength.
	ErrNonFinite = errors.New("spectral: wavelengths must be finite")
	// ErrLengthMismatch indicates a spectrum whose length differs from its grid.
	ErrLengthMismatch = errors.New("spectral: spectrum length does not match grid")
	// ErrBadStep indicates a non-positive step for Range.
	ErrBadStep = errors.New("spectral: step must be positive")
)

// Grid is an ordered set of wavelengths in nanometers. A Grid is never
// modified after construction; Wavelengths returns a copy.
type Grid struct {
	wl []float64
}

// NewGrid validates wavelengths and returns a Grid owning a copy of them.
func NewGrid(wavelengths []float64) (Grid, error) {
	if len(wavelengths) == 0 {
		return Grid{}, ErrEmptyGrid
	}
	wl := make([]float64, len(wavelengths))
	for i, v := range wavelengths {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Grid{}, fmt.Errorf("wavelength %d: %w", i, ErrNonFinite)
		}
		if i > 0 && v <= wavelengths[i-1] {
			return Grid{}, fmt.Errorf("wavelength %d (%g nm): %w", i, v, ErrNotIncreasing)
		}
		wl[i] = v
	}
	return Grid{wl: wl}, nil
}

// Range returns the grid start, start+step, ... up to and including stop.
// Range(400, 710, 5) gives the 63 model wavebands.
func Range(start, stop, step float64) (Grid, error) {
	if step <= 0 {
		return Grid{}, ErrBadStep
	}
	n := int(math.Floor((stop-start)/step+1e-9)) + 1
	if n <= 0 {
		return Grid{}, ErrEmptyGrid
	}
	wl := make([]float64, n)
	for i := range wl {
		wl[i] = start + float64(i)*step
	}
	return NewGrid(wl)
}

// MustGrid is like NewGrid but panics on invalid input. It is meant for
// package level literals and tests.
func MustGrid(wavelengths ...float64) Grid {
	g, err := NewGrid(wavelengths)
	if err != nil {
		panic(err)
	}
	return g
}

// Len returns the number of wavebands.
func (g Grid) Len() int { return len(g.wl) }

// At returns the i-th wavelength.
func (g Grid) At(i int) float64 { return g.wl[i] }

// Wavelengths returns a copy of the wavelengths.
func (g Grid) Wavelengths() []float64 {
	out := make([]float64, len(g.wl))
	copy(out, g.wl)
	return out
}

// Equal reports whether both grids hold the same wavelengths in the same order.
func (g Grid) Equal(o Grid) bool {
	if len(g.wl) != len(o.wl) {
		return false
	}
	for i := range g.wl {
		if g.wl[i] != o.wl[i] {
			return false
		}
	}
	return true
}

// Map returns f evaluated at every wavelength of the grid.
func (g Grid) Map(f func(wl float64) float64) []float64 {
	out := make([]float64, len(g.wl))
	for i, v := range g.wl {
		out[i] = f(v)
	}
	return out
}

// Check returns ErrLengthMismatch when s does not have one value per band.
func (g Grid) Check(s []float64) error {
	if len(s) != len(g.wl) {
		return fmt.Errorf("got %d values for %d bands: %w", len(s), len(g.wl), ErrLengthMismatch)
	}
	return nil
}
