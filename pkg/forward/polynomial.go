// Package forward maps component concentrations to a predicted remote sensing
// reflectance spectrum and provides the analytic Jacobian of that mapping.
package forward

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimensionMismatch indicates evaluation points that do not match the
	// coefficient rows of a polynomial, or a malformed coefficient table.
	ErrDimensionMismatch = errors.New("forward: matrix dimensions do not match")
	// ErrGridMismatch indicates a reflectance model sized for a different
	// number of bands than the bio-optical model.
	ErrGridMismatch = errors.New("forward: band count mismatch")
	// ErrNonPositiveIOP indicates absorption or backscatter <= 0 where the
	// reflectance model takes logarithms.
	ErrNonPositiveIOP = errors.New("forward: absorption and backscatter must be positive")
)

// Polynomial is a two variable polynomial with per band coefficients:
//
//	P_i(x1, x2) = sum_k C[i,k] * x1^E[k][0] * x2^E[k][1]
//
// C has one row per band and one column per term.
type Polynomial struct {
	coef   *mat.Dense
	powers [][2]float64
}

// NewPolynomial copies coef (bands x terms) and powers (terms).
func NewPolynomial(coef mat.Matrix, powers [][2]float64) (*Polynomial, error) {
	r, c := coef.Dims()
	if c != len(powers) {
		return nil, fmt.Errorf("%w: %d coefficient columns for %d terms", ErrDimensionMismatch, c, len(powers))
	}
	if r == 0 {
		return nil, fmt.Errorf("%w: no coefficient rows", ErrDimensionMismatch)
	}
	p := make([][2]float64, len(powers))
	copy(p, powers)
	return &Polynomial{coef: mat.DenseCopyOf(coef), powers: p}, nil
}

// Powers returns the exponent table of a full polynomial of the given
// degree in two variables, ordered by total degree:
// (0,0), (1,0), (0,1), (2,0), (1,1), (0,2), ...
func Powers(degree int) [][2]float64 {
	var out [][2]float64
	for d := 0; d <= degree; d++ {
		for j := 0; j <= d; j++ {
			out = append(out, [2]float64{float64(d - j), float64(j)})
		}
	}
	return out
}

// Bands returns the number of coefficient rows.
func (p *Polynomial) Bands() int {
	r, _ := p.coef.Dims()
	return r
}

// Terms returns the number of polynomial terms.
func (p *Polynomial) Terms() int { return len(p.powers) }

func (p *Polynomial) checkPoints(x1, x2 []float64) error {
	n := p.Bands()
	if len(x1) != n || len(x2) != n {
		return fmt.Errorf("%w: %d/%d evaluation points for %d coefficient rows", ErrDimensionMismatch, len(x1), len(x2), n)
	}
	return nil
}

// Eval evaluates band i of the polynomial at (x1[i], x2[i]).
func (p *Polynomial) Eval(x1, x2 []float64) ([]float64, error) {
	if err := p.checkPoints(x1, x2); err != nil {
		return nil, err
	}
	out := make([]float64, len(x1))
	for i := range out {
		row := p.coef.RawRowView(i)
		var s float64
		for k, e := range p.powers {
			s += row[k] * pow(x1[i], e[0]) * pow(x2[i], e[1])
		}
		out[i] = s
	}
	return out, nil
}

// Derivative returns the partial derivatives dP/dx1 and dP/dx2 per band.
// Exponents are reduced by one and clamped at zero so constant terms never
// produce negative powers.
func (p *Polynomial) Derivative(x1, x2 []float64) (d1, d2 []float64, err error) {
	if err := p.checkPoints(x1, x2); err != nil {
		return nil, nil, err
	}
	d1 = make([]float64, len(x1))
	d2 = make([]float64, len(x1))
	for i := range d1 {
		row := p.coef.RawRowView(i)
		for k, e := range p.powers {
			d1[i] += row[k] * e[0] * pow(x1[i], math.Max(0, e[0]-1)) * pow(x2[i], e[1])
			d2[i] += row[k] * e[1] * pow(x2[i], math.Max(0, e[1]-1)) * pow(x1[i], e[0])
		}
	}
	return d1, d2, nil
}

// pow special cases the small integer exponents that dominate polynomial
// evaluation.
func pow(x, e float64) float64 {
	switch e {
	case 0:
		return 1
	case 1:
		return x
	case 2:
		return x * x
	}
	return math.Pow(x, e)
}
