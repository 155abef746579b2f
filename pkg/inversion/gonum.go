package inversion

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// GonumMinimizer minimizes the sum of squares with a general purpose method
// from gonum/optimize. Bounds are enforced by a change of variables, so the
// unconstrained method never sees them.
type GonumMinimizer struct {
	// NewMethod is called once per Minimize. Nil means LBFGS.
	NewMethod     func() optimize.Method
	MaxIterations int
	// GradientThreshold applies to the normalized objective.
	GradientThreshold float64
}

// ParseMethod returns a GonumMinimizer for a method name: lbfgs, bfgs, cg,
// gradient-descent or nelder-mead.
func ParseMethod(name string) (GonumMinimizer, error) {
	var m func() optimize.Method
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lbfgs":
		m = func() optimize.Method { return &optimize.LBFGS{} }
	case "bfgs":
		m = func() optimize.Method { return &optimize.BFGS{} }
	case "cg":
		m = func() optimize.Method { return &optimize.CG{} }
	case "gradient-descent", "gd":
		m = func() optimize.Method { return &optimize.GradientDescent{} }
	case "nelder-mead", "neldermead":
		m = func() optimize.Method { return &optimize.NelderMead{} }
	default:
		return GonumMinimizer{}, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	return GonumMinimizer{NewMethod: m}, nil
}

// Minimize implements Minimizer.
func (g GonumMinimizer) Minimize(obj Objective, x0, lower, upper []float64) (Solution, error) {
	n := len(x0)
	bt := make([]bound, n)
	z0 := make([]float64, n)
	for i := range x0 {
		bt[i] = bound{lo: lower[i], hi: upper[i]}
		z0[i] = bt[i].inside(bt[i].toInternal(clamp(x0[i], lower[i], upper[i])))
	}

	var (
		objErr error
		x      = make([]float64, n)
		r      = make([]float64, obj.M)
		jac    = mat.NewDense(obj.M, n, nil)
		evals  int
	)
	toExternal := func(z []float64) {
		for i := range z {
			x[i] = bt[i].toExternal(z[i])
		}
	}

	toExternal(z0)
	if err := obj.Residuals(r, x); err != nil {
		return Solution{}, err
	}
	evals++
	scale := sumSquares(r)
	if scale == 0 {
		return Solution{X: append([]float64(nil), x...), Evaluations: evals, Converged: true, Message: "exact fit"}, nil
	}

	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			if objErr != nil {
				return math.Inf(1)
			}
			toExternal(z)
			if err := obj.Residuals(r, x); err != nil {
				objErr = err
				return math.Inf(1)
			}
			evals++
			return sumSquares(r) / scale
		},
		Grad: func(grad, z []float64) {
			if objErr != nil {
				for i := range grad {
					grad[i] = 0
				}
				return
			}
			toExternal(z)
			if err := obj.Residuals(r, x); err != nil {
				objErr = err
				return
			}
			if err := obj.Jacobian(jac, x); err != nil {
				objErr = err
				return
			}
			for j := 0; j < n; j++ {
				var s float64
				for i := 0; i < obj.M; i++ {
					s += jac.At(i, j) * r[i]
				}
				grad[j] = 2 * s / scale * bt[j].derivative(z[j])
			}
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   g.MaxIterations,
		GradientThreshold: g.GradientThreshold,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-12,
			Iterations: 50,
		},
	}
	if settings.MajorIterations <= 0 {
		settings.MajorIterations = 10 * DefaultMaxIterations
	}
	if settings.GradientThreshold <= 0 {
		settings.GradientThreshold = 1e-10
	}
	var method optimize.Method = &optimize.LBFGS{}
	if g.NewMethod != nil {
		method = g.NewMethod()
	}

	res, err := optimize.Minimize(problem, z0, settings, method)
	if objErr != nil {
		return Solution{}, objErr
	}
	if res == nil {
		return Solution{}, fmt.Errorf("inversion: gonum minimizer: %w", err)
	}

	toExternal(res.X)
	if err := obj.Residuals(r, x); err != nil {
		return Solution{}, err
	}
	evals++
	sol := Solution{
		X:           append([]float64(nil), x...),
		Cost:        sumSquares(r),
		Iterations:  res.Stats.MajorIterations,
		Evaluations: evals,
		Message:     res.Status.String(),
	}
	switch res.Status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.MethodConverge:
		sol.Converged = true
	}
	return sol, nil
}

// bound maps between a bounded external value and an unbounded internal one,
// following the MINUIT transforms.
type bound struct {
	lo, hi float64
}

func (b bound) toInternal(x float64) float64 {
	lo, hi := !math.IsInf(b.lo, -1), !math.IsInf(b.hi, 1)
	switch {
	case lo && hi:
		if b.hi == b.lo {
			return 0
		}
		return math.Asin(2*(x-b.lo)/(b.hi-b.lo) - 1)
	case lo:
		return math.Sqrt(math.Max((x-b.lo+1)*(x-b.lo+1)-1, 0))
	case hi:
		return math.Sqrt(math.Max((b.hi-x+1)*(b.hi-x+1)-1, 0))
	default:
		return x
	}
}

func (b bound) toExternal(z float64) float64 {
	lo, hi := !math.IsInf(b.lo, -1), !math.IsInf(b.hi, 1)
	switch {
	case lo && hi:
		return b.lo + (math.Sin(z)+1)*(b.hi-b.lo)/2
	case lo:
		return b.lo - 1 + math.Sqrt(z*z+1)
	case hi:
		return b.hi + 1 - math.Sqrt(z*z+1)
	default:
		return z
	}
}

// boundNudge is the internal distance a start on a bound is moved inwards.
const boundNudge = 0.1

// inside moves z off a finite bound, where the transform is stationary and
// gradient methods would see a zero gradient.
func (b bound) inside(z float64) float64 {
	if b.lo == b.hi {
		return z
	}
	switch x := b.toExternal(z); {
	case x <= b.lo:
		if math.IsInf(b.hi, 1) {
			return boundNudge
		}
		return z + boundNudge
	case x >= b.hi:
		if math.IsInf(b.lo, -1) {
			return boundNudge
		}
		return z - boundNudge
	}
	return z
}

// derivative returns d toExternal / dz.
func (b bound) derivative(z float64) float64 {
	lo, hi := !math.IsInf(b.lo, -1), !math.IsInf(b.hi, 1)
	switch {
	case lo && hi:
		return math.Cos(z) * (b.hi - b.lo) / 2
	case lo:
		return z / math.Sqrt(z*z+1)
	case hi:
		return -z / math.Sqrt(z*z+1)
	default:
		return 1
	}
}
