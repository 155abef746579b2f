package inversion

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Default Levenberg-Marquardt settings.
const (
	DefaultMaxIterations = 200
	DefaultFTol          = 1e-10
	DefaultXTol          = 1e-10
	DefaultGTol          = 1e-12
)

const (
	lambdaInit  = 1e-3
	lambdaMin   = 1e-15
	lambdaMax   = 1e16
	maxAttempts = 40
)

// LevenbergMarquardt is a projected Levenberg-Marquardt solver with
// Marquardt diagonal scaling. Trial points are clamped to the bounds before
// they are evaluated, so no iterate ever leaves the box.
type LevenbergMarquardt struct {
	MaxIterations int
	FTol          float64 // relative cost reduction
	XTol          float64 // relative step size
	GTol          float64 // max |J^T r|
}

func (lm LevenbergMarquardt) withDefaults() LevenbergMarquardt {
	if lm.MaxIterations <= 0 {
		lm.MaxIterations = DefaultMaxIterations
	}
	if lm.FTol <= 0 {
		lm.FTol = DefaultFTol
	}
	if lm.XTol <= 0 {
		lm.XTol = DefaultXTol
	}
	if lm.GTol <= 0 {
		lm.GTol = DefaultGTol
	}
	return lm
}

// Minimize implements Minimizer.
func (lm LevenbergMarquardt) Minimize(obj Objective, x0, lower, upper []float64) (Solution, error) {
	lm = lm.withDefaults()
	n := len(x0)

	x := make([]float64, n)
	for i := range x0 {
		x[i] = clamp(x0[i], lower[i], upper[i])
	}
	r := make([]float64, obj.M)
	if err := obj.Residuals(r, x); err != nil {
		return Solution{}, err
	}
	sol := Solution{Evaluations: 1}
	cost := sumSquares(r)
	if cost == 0 {
		sol.X, sol.Converged, sol.Message = x, true, "exact fit"
		return sol, nil
	}

	jac := mat.NewDense(obj.M, n, nil)
	if err := obj.Jacobian(jac, x); err != nil {
		return Solution{}, err
	}

	var (
		jtj    = mat.NewSymDense(n, nil)
		grad   = make([]float64, n)
		gv     = mat.NewVecDense(n, grad)
		step   = mat.NewVecDense(n, nil)
		trial  = make([]float64, n)
		rTrial = make([]float64, obj.M)
		a      = mat.NewSymDense(n, nil)
		chol   mat.Cholesky
		lambda = lambdaInit
		nu     = 2.0
	)

	for sol.Iterations < lm.MaxIterations {
		sol.Iterations++

		jtj.SymOuterK(1, jac.T())
		gv.MulVec(jac.T(), mat.NewVecDense(obj.M, r))
		if floats.Norm(grad, math.Inf(1)) <= lm.GTol {
			sol.Converged, sol.Message = true, "gradient below tolerance"
			break
		}

		accepted := false
		stalled := false
		var reduction, stepNorm float64
		for attempt := 0; attempt < maxAttempts; attempt++ {
			a.CopySym(jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				if d <= 0 {
					d = 1
				}
				a.SetSym(i, i, jtj.At(i, i)+lambda*d)
			}
			if ok := chol.Factorize(a); !ok {
				lambda *= nu
				nu *= 2
				continue
			}
			if err := chol.SolveVecTo(step, gv); err != nil {
				lambda *= nu
				nu *= 2
				continue
			}
			for i := range trial {
				trial[i] = clamp(x[i]-step.AtVec(i), lower[i], upper[i])
			}
			if floats.Equal(trial, x) {
				stalled = true
				break
			}
			if err := obj.Residuals(rTrial, trial); err != nil {
				return Solution{}, err
			}
			sol.Evaluations++
			trialCost := sumSquares(rTrial)
			if trialCost < cost {
				reduction = (cost - trialCost) / cost
				stepNorm = floats.Distance(trial, x, 2)
				copy(x, trial)
				copy(r, rTrial)
				cost = trialCost
				lambda = math.Max(lambda/3, lambdaMin)
				nu = 2
				accepted = true
				break
			}
			lambda *= nu
			nu *= 2
			if lambda > lambdaMax {
				break
			}
		}

		if !accepted {
			sol.Converged = true
			if stalled {
				sol.Message = "step confined by bounds"
			} else {
				sol.Message = "no further reduction possible"
			}
			break
		}
		if cost == 0 {
			sol.Converged, sol.Message = true, "exact fit"
			break
		}
		if reduction <= lm.FTol {
			sol.Converged, sol.Message = true, "relative reduction below tolerance"
			break
		}
		if stepNorm <= lm.XTol*(floats.Norm(x, 2)+lm.XTol) {
			sol.Converged, sol.Message = true, "step below tolerance"
			break
		}
		if err := obj.Jacobian(jac, x); err != nil {
			return Solution{}, err
		}
	}
	if !sol.Converged {
		sol.Message = "maximum iterations reached"
	}
	sol.X = x
	sol.Cost = cost
	return sol, nil
}
