// Package iop holds the inherent optical property (IOP) components of water
// constituents and the bio-optical model that combines them.
//
// A component maps one concentration to an absorption and a backscatter
// spectrum on a fixed waveband grid. The grid is passed to every constructor
// and never read from package state.
package iop

import (
	"math"

	"hydroinvert/pkg/spectral"
)

// IOP is an absorption and backscatter spectrum pair, one value per band.
type IOP struct {
	Absorption  []float64
	Backscatter []float64
}

// NewIOP allocates a zero IOP for n bands.
func NewIOP(n int) IOP {
	return IOP{Absorption: make([]float64, n), Backscatter: make([]float64, n)}
}

// Len returns the number of bands, or -1 when the two spectra disagree.
func (p IOP) Len() int {
	if len(p.Absorption) != len(p.Backscatter) {
		return -1
	}
	return len(p.Absorption)
}

// Scale returns a copy of p multiplied by s.
func (p IOP) Scale(s float64) IOP {
	out := NewIOP(len(p.Absorption))
	for i := range p.Absorption {
		out.Absorption[i] = s * p.Absorption[i]
		out.Backscatter[i] = s * p.Backscatter[i]
	}
	return out
}

// Clone returns a deep copy of p.
func (p IOP) Clone() IOP { return p.Scale(1) }

// Component computes the IOP of one water constituent. Implementations are
// pure functions of the concentration and must be safe for concurrent use.
type Component interface {
	// Free reports whether the component takes a concentration.
	Free() bool
	// Evaluate returns the IOP at concentration c. Fixed components ignore c.
	Evaluate(c float64) IOP
	// Derivative returns d(IOP)/dc at c.
	Derivative(c float64) IOP
}

// Fixed is a component without free parameter, such as pure water.
type Fixed struct {
	iop IOP
}

// NewFixed returns a component that always yields iop.
func NewFixed(iop IOP) *Fixed { return &Fixed{iop: iop.Clone()} }

// NewWater returns pure sea water IOPs on g.
func NewWater(g spectral.Grid) *Fixed {
	return &Fixed{iop: IOP{
		Absorption:  spectral.WaterAbsorption(g),
		Backscatter: spectral.WaterBackscatter(g),
	}}
}

func (f *Fixed) Free() bool { return false }

func (f *Fixed) Evaluate(float64) IOP { return f.iop.Clone() }

func (f *Fixed) Derivative(float64) IOP { return NewIOP(len(f.iop.Absorption)) }

// Linear scales a base IOP with the concentration.
type Linear struct {
	base IOP
}

// NewLinear returns a component yielding c*base.
func NewLinear(base IOP) *Linear { return &Linear{base: base.Clone()} }

// NewPhytoplankton returns chlorophyll scaled phytoplankton IOPs on g with a
// constant specific backscatter bb. Use DefaultPhytoplanktonBackscatter
// unless a regional value is known.
func NewPhytoplankton(g spectral.Grid, bb float64) *Linear {
	a := spectral.PhytoplanktonAbsorption(g)
	return &Linear{base: IOP{Absorption: a, Backscatter: g.Map(func(float64) float64 { return bb })}}
}

// DefaultPhytoplanktonBackscatter is 0.014 scattering times a 0.18
// backscatter ratio.
const DefaultPhytoplanktonBackscatter = 0.014 * 0.18

// NewCDOM returns coloured dissolved organic matter absorption
// a(wl) = c*exp(-slope*(wl-ref)); CDOM does not backscatter.
func NewCDOM(g spectral.Grid, ref, slope float64) *Linear {
	return &Linear{base: IOP{
		Absorption:  g.Map(func(wl float64) float64 { return math.Exp(-slope * (wl - ref)) }),
		Backscatter: make([]float64, g.Len()),
	}}
}

// NewNAP returns non-algal particle IOPs per unit concentration with an
// exponential absorption anchored at 443 nm and a power law backscatter
// anchored at 555 nm.
func NewNAP(g spectral.Grid, a443, slope, bb555, eta float64) *Linear {
	return &Linear{base: IOP{
		Absorption:  g.Map(func(wl float64) float64 { return a443 * math.Exp(-slope*(wl-443)) }),
		Backscatter: g.Map(func(wl float64) float64 { return bb555 * math.Pow(wl/555, -eta) }),
	}}
}

func (l *Linear) Free() bool { return true }

func (l *Linear) Evaluate(c float64) IOP { return l.base.Scale(c) }

func (l *Linear) Derivative(float64) IOP { return l.base.Clone() }

// PowerLaw yields c^Exponent * base. With Exponent 1 it is Linear.
type PowerLaw struct {
	base     IOP
	exponent float64
}

// NewPowerLaw returns a component yielding c^exponent * base.
func NewPowerLaw(base IOP, exponent float64) *PowerLaw {
	return &PowerLaw{base: base.Clone(), exponent: exponent}
}

func (p *PowerLaw) Free() bool { return true }

func (p *PowerLaw) Evaluate(c float64) IOP { return p.base.Scale(math.Pow(c, p.exponent)) }

func (p *PowerLaw) Derivative(c float64) IOP {
	if p.exponent == 0 {
		return NewIOP(len(p.base.Absorption))
	}
	return p.base.Scale(p.exponent * math.Pow(c, p.exponent-1))
}

// Func adapts plain functions to Component. When Deriv is nil the derivative
// is taken by central differences.
type Func struct {
	Eval  func(c float64) IOP
	Deriv func(c float64) IOP
	Fixed bool
}

func (f Func) Free() bool { return !f.Fixed }

func (f Func) Evaluate(c float64) IOP { return f.Eval(c) }

func (f Func) Derivative(c float64) IOP {
	if f.Deriv != nil {
		return f.Deriv(c)
	}
	if f.Fixed {
		return NewIOP(f.Eval(c).Len())
	}
	h := 1e-6 * math.Max(1, math.Abs(c))
	hi, lo := f.Eval(c+h), f.Eval(c-h)
	out := NewIOP(len(hi.Absorption))
	for i := range out.Absorption {
		out.Absorption[i] = (hi.Absorption[i] - lo.Absorption[i]) / (2 * h)
		out.Backscatter[i] = (hi.Backscatter[i] - lo.Backscatter[i]) / (2 * h)
	}
	return out
}
