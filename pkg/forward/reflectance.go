package forward

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Reflectance maps total absorption and backscatter spectra to remote sensing
// reflectance. Implementations are read-only and safe for concurrent use.
type Reflectance interface {
	// Bands returns the number of wavebands the model is sized for.
	Bands() int
	// Reflectance returns Rrs per band.
	Reflectance(a, bb []float64) ([]float64, error)
	// Gradient returns dRrs/da and dRrs/dbb per band.
	Gradient(a, bb []float64) (dA, dBB []float64, err error)
}

// Quasi single scattering constants. G0 and G1 are from Gordon et al. (1988);
// the above surface conversion is from Lee et al. (2002).
const (
	G0 = 0.0949
	G1 = 0.0794

	surfaceNumerator   = 0.52
	surfaceDenominator = 1.7
)

// QuasiSingleRrs is the closed form reflectance that QuasiSingle evaluates and
// DefaultLogPolynomial approximates.
func QuasiSingleRrs(a, bb float64) float64 {
	u := bb / (a + bb)
	return aboveSurface(G0*u + G1*u*u)
}

func aboveSurface(rrs float64) float64 {
	return surfaceNumerator * rrs / (1 - surfaceDenominator*rrs)
}

func aboveSurfaceDerivative(rrs float64) float64 {
	d := 1 - surfaceDenominator*rrs
	return surfaceNumerator / (d * d)
}

// QuasiSingle evaluates the subsurface reflectance as a polynomial of
// u = bb/(a+bb) (second variable kappa = a+bb) and converts it to above
// surface Rrs.
type QuasiSingle struct {
	poly *Polynomial
}

// NewQuasiSingle returns the Gordon et al. polynomial for n bands.
func NewQuasiSingle(n int) (*QuasiSingle, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d bands", ErrDimensionMismatch, n)
	}
	coef := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		coef.SetRow(i, []float64{G0, G1})
	}
	poly, err := NewPolynomial(coef, [][2]float64{{1, 0}, {2, 0}})
	if err != nil {
		return nil, err
	}
	return &QuasiSingle{poly: poly}, nil
}

func (q *QuasiSingle) Bands() int { return q.poly.Bands() }

func (q *QuasiSingle) inputs(a, bb []float64) (u, kappa []float64, err error) {
	if len(a) != len(bb) {
		return nil, nil, fmt.Errorf("%w: %d absorption, %d backscatter values", ErrDimensionMismatch, len(a), len(bb))
	}
	u = make([]float64, len(a))
	kappa = make([]float64, len(a))
	for i := range a {
		kappa[i] = a[i] + bb[i]
		if kappa[i] <= 0 {
			return nil, nil, fmt.Errorf("%w: a+bb = %g at band %d", ErrNonPositiveIOP, kappa[i], i)
		}
		u[i] = bb[i] / kappa[i]
	}
	return u, kappa, nil
}

func (q *QuasiSingle) Reflectance(a, bb []float64) ([]float64, error) {
	u, kappa, err := q.inputs(a, bb)
	if err != nil {
		return nil, err
	}
	rrs, err := q.poly.Eval(u, kappa)
	if err != nil {
		return nil, err
	}
	for i, v := range rrs {
		rrs[i] = aboveSurface(v)
	}
	return rrs, nil
}

func (q *QuasiSingle) Gradient(a, bb []float64) (dA, dBB []float64, err error) {
	u, kappa, err := q.inputs(a, bb)
	if err != nil {
		return nil, nil, err
	}
	rrs, err := q.poly.Eval(u, kappa)
	if err != nil {
		return nil, nil, err
	}
	dU, dKappa, err := q.poly.Derivative(u, kappa)
	if err != nil {
		return nil, nil, err
	}
	dA = make([]float64, len(a))
	dBB = make([]float64, len(a))
	for i := range a {
		k2 := kappa[i] * kappa[i]
		s := aboveSurfaceDerivative(rrs[i])
		// du/da = -bb/kappa^2, du/dbb = a/kappa^2, dkappa/da = dkappa/dbb = 1
		dA[i] = s * (dU[i]*(-bb[i]/k2) + dKappa[i])
		dBB[i] = s * (dU[i]*(a[i]/k2) + dKappa[i])
	}
	return dA, dBB, nil
}

// LogPolynomial approximates Rrs = exp(P(ln a, ln bb)) with per band
// coefficients, the form used for polynomial fits to radiative transfer
// simulations.
type LogPolynomial struct {
	poly *Polynomial
}

// NewLogPolynomial wraps a polynomial in log-IOP space.
func NewLogPolynomial(poly *Polynomial) *LogPolynomial { return &LogPolynomial{poly: poly} }

// Polynomial returns the wrapped polynomial.
func (l *LogPolynomial) Polynomial() *Polynomial { return l.poly }

func (l *LogPolynomial) Bands() int { return l.poly.Bands() }

func logInputs(a, bb []float64) (la, lbb []float64, err error) {
	if len(a) != len(bb) {
		return nil, nil, fmt.Errorf("%w: %d absorption, %d backscatter values", ErrDimensionMismatch, len(a), len(bb))
	}
	la = make([]float64, len(a))
	lbb = make([]float64, len(a))
	for i := range a {
		if a[i] <= 0 || bb[i] <= 0 {
			return nil, nil, fmt.Errorf("%w: a = %g, bb = %g at band %d", ErrNonPositiveIOP, a[i], bb[i], i)
		}
		la[i] = math.Log(a[i])
		lbb[i] = math.Log(bb[i])
	}
	return la, lbb, nil
}

func (l *LogPolynomial) Reflectance(a, bb []float64) ([]float64, error) {
	la, lbb, err := logInputs(a, bb)
	if err != nil {
		return nil, err
	}
	p, err := l.poly.Eval(la, lbb)
	if err != nil {
		return nil, err
	}
	for i, v := range p {
		p[i] = math.Exp(v)
	}
	return p, nil
}

func (l *LogPolynomial) Gradient(a, bb []float64) (dA, dBB []float64, err error) {
	la, lbb, err := logInputs(a, bb)
	if err != nil {
		return nil, nil, err
	}
	p, err := l.poly.Eval(la, lbb)
	if err != nil {
		return nil, nil, err
	}
	d1, d2, err := l.poly.Derivative(la, lbb)
	if err != nil {
		return nil, nil, err
	}
	dA = make([]float64, len(a))
	dBB = make([]float64, len(a))
	for i := range a {
		r := math.Exp(p[i])
		dA[i] = r * d1[i] / a[i]
		dBB[i] = r * d2[i] / bb[i]
	}
	return dA, dBB, nil
}

// Settings of the built-in log polynomial fit.
const (
	DefaultDegree = 5

	fitSamples = 25
	fitMinA    = 0.005
	fitMaxA    = 5.0
	fitMinBB   = 0.0002
	fitMaxBB   = 0.2
)

var (
	defaultOnce sync.Once
	defaultRow  []float64
	defaultErr  error
)

// defaultCoefficients fits QuasiSingleRrs once per process.
func defaultCoefficients() ([]float64, error) {
	defaultOnce.Do(func() {
		n := fitSamples * fitSamples
		x1 := make([]float64, 0, n)
		x2 := make([]float64, 0, n)
		z := make([]float64, 0, n)
		la0, la1 := math.Log(fitMinA), math.Log(fitMaxA)
		lb0, lb1 := math.Log(fitMinBB), math.Log(fitMaxBB)
		for i := 0; i < fitSamples; i++ {
			la := la0 + (la1-la0)*float64(i)/float64(fitSamples-1)
			for j := 0; j < fitSamples; j++ {
				lb := lb0 + (lb1-lb0)*float64(j)/float64(fitSamples-1)
				x1 = append(x1, la)
				x2 = append(x2, lb)
				z = append(z, math.Log(QuasiSingleRrs(math.Exp(la), math.Exp(lb))))
			}
		}
		defaultRow, defaultErr = FitPolynomial(x1, x2, z, Powers(DefaultDegree))
	})
	return defaultRow, defaultErr
}

// DefaultLogPolynomial returns a degree 5 log polynomial for n bands whose
// coefficients are a least squares fit to QuasiSingleRrs over
// 0.005 <= a <= 5 and 0.0002 <= bb <= 0.2 (1/m).
func DefaultLogPolynomial(n int) (*LogPolynomial, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d bands", ErrDimensionMismatch, n)
	}
	row, err := defaultCoefficients()
	if err != nil {
		return nil, err
	}
	coef := mat.NewDense(n, len(row), nil)
	for i := 0; i < n; i++ {
		coef.SetRow(i, row)
	}
	poly, err := NewPolynomial(coef, Powers(DefaultDegree))
	if err != nil {
		return nil, err
	}
	return NewLogPolynomial(poly), nil
}
