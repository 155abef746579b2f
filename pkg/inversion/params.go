package inversion

import (
	"fmt"
	"math"
)

// DefaultLowerBound keeps concentrations strictly positive so that log-space
// reflectance models stay defined.
const DefaultLowerBound = 1e-9

// Parameter is one named concentration with its bounds. Fixed parameters are
// passed to the forward model but not fitted.
type Parameter struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
	Fixed bool
}

// Parameters is an ordered parameter set. The order is kept in results.
type Parameters []Parameter

// Add appends a parameter bounded below by min and unbounded above.
func (ps Parameters) Add(name string, value, min float64) Parameters {
	return append(ps, Parameter{Name: name, Value: value, Min: min, Max: math.Inf(1)})
}

// AddBounded appends a parameter bounded by [min, max].
func (ps Parameters) AddBounded(name string, value, min, max float64) Parameters {
	return append(ps, Parameter{Name: name, Value: value, Min: min, Max: max})
}

// AddFixed appends a parameter held at value.
func (ps Parameters) AddFixed(name string, value float64) Parameters {
	return append(ps, Parameter{Name: name, Value: value, Min: math.Inf(-1), Max: math.Inf(1), Fixed: true})
}

// Clone returns a copy of ps.
func (ps Parameters) Clone() Parameters {
	out := make(Parameters, len(ps))
	copy(out, ps)
	return out
}

// Get returns the parameter with the given name.
func (ps Parameters) Get(name string) (Parameter, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Names returns parameter names in order.
func (ps Parameters) Names() []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

// Map returns name -> value for every parameter.
func (ps Parameters) Map() map[string]float64 {
	out := make(map[string]float64, len(ps))
	for _, p := range ps {
		out[p.Name] = p.Value
	}
	return out
}

// Validate checks names and bounds.
func (ps Parameters) Validate() error {
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		if p.Name == "" {
			return ErrEmptyParameterName
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateParameter, p.Name)
		}
		seen[p.Name] = true
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return fmt.Errorf("%w: %q has value %g", ErrBadBounds, p.Name, p.Value)
		}
		if math.IsNaN(p.Min) || math.IsNaN(p.Max) || p.Max < p.Min {
			return fmt.Errorf("%w: %q has min %g, max %g", ErrBadBounds, p.Name, p.Min, p.Max)
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
