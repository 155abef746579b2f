package inversion

import "gonum.org/v1/gonum/mat"

// Objective is a bounded nonlinear least-squares problem: minimize the sum of
// squares of M residuals over N variables.
type Objective struct {
	// M is the number of residuals.
	M int
	// Residuals writes the residual vector at x into dst.
	Residuals func(dst, x []float64) error
	// Jacobian writes the M x N derivative of the residuals at x into dst.
	Jacobian func(dst *mat.Dense, x []float64) error
}

// Solution is what a Minimizer returns. Cost is the sum of squared residuals
// at X.
type Solution struct {
	X           []float64
	Cost        float64
	Iterations  int
	Evaluations int
	Converged   bool
	Message     string
}

// Minimizer searches for the bounded minimum of an Objective. An error is
// returned only when the objective itself fails; running out of iterations
// is reported through Solution.Converged.
type Minimizer interface {
	Minimize(obj Objective, x0, lower, upper []float64) (Solution, error)
}

func sumSquares(r []float64) float64 {
	var s float64
	for _, v := range r {
		s += v * v
	}
	return s
}
