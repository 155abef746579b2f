package forward

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FitPolynomial finds the least squares coefficients c such that
// sum_k c[k] x1^E[k][0] x2^E[k][1] approximates z at the sample points.
// The design matrix is solved by QR decomposition.
func FitPolynomial(x1, x2, z []float64, powers [][2]float64) ([]float64, error) {
	m, n := len(z), len(powers)
	if len(x1) != m || len(x2) != m {
		return nil, fmt.Errorf("%w: %d/%d/%d samples", ErrDimensionMismatch, len(x1), len(x2), m)
	}
	if m < n {
		return nil, fmt.Errorf("%w: %d samples for %d terms", ErrDimensionMismatch, m, n)
	}
	a := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		for k, e := range powers {
			a.Set(i, k, pow(x1[i], e[0])*pow(x2[i], e[1]))
		}
	}
	b := mat.NewVecDense(m, z)
	c := mat.NewVecDense(n, nil)

	var qr mat.QR
	qr.Factorize(a)
	if err := qr.SolveVecTo(c, false, b); err != nil {
		return nil, fmt.Errorf("forward: could not solve QR: %w", err)
	}
	return mat.Col(nil, 0, c), nil
}
