package inversion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"hydroinvert/pkg/iop"
)

// Forwarder maps named concentrations to a modeled reflectance spectrum.
type Forwarder interface {
	Bands() int
	Forward(params map[string]float64) ([]float64, error)
}

// Jacobianer is implemented by forward models with analytic derivatives.
// The matrix is bands x len(names).
type Jacobianer interface {
	Jacobian(params map[string]float64, names []string) (*mat.Dense, error)
}

// IOPer is implemented by forward models that expose their per-component
// optical properties.
type IOPer interface {
	IOPs(params map[string]float64) ([]iop.IOP, error)
}

// Option configures an Inverter.
type Option func(*Inverter)

// WithMinimizer replaces the default Levenberg-Marquardt solver.
func WithMinimizer(m Minimizer) Option {
	return func(inv *Inverter) {
		if m != nil {
			inv.minimizer = m
		}
	}
}

// WithNumericJacobian forces forward-difference derivatives even when the
// model provides analytic ones.
func WithNumericJacobian() Option {
	return func(inv *Inverter) { inv.numeric = true }
}

// Inverter fits forward model parameters to measured spectra. It holds no
// per-call state and is safe for concurrent use when the Forwarder is.
type Inverter struct {
	fwd       Forwarder
	minimizer Minimizer
	numeric   bool
}

// New returns an Inverter for fwd.
func New(fwd Forwarder, opts ...Option) *Inverter {
	inv := &Inverter{fwd: fwd, minimizer: LevenbergMarquardt{}}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Bands returns the number of bands the forward model produces.
func (inv *Inverter) Bands() int { return inv.fwd.Bands() }

// Invert is a shorthand for New(fwd, opts...).Invert(y, x0, w).
func Invert(fwd Forwarder, y []float64, x0 Parameters, w []float64, opts ...Option) (*Result, error) {
	return New(fwd, opts...).Invert(y, x0, w)
}

// Result is the outcome of one inversion. StdErr is aligned with Params and
// holds NaN for fixed parameters or when the covariance is not available.
type Result struct {
	Params     Parameters
	StdErr     []float64
	Covariance *mat.SymDense

	Rrs      []float64
	IOPs     []iop.IOP
	Residual []float64
	Weights  []float64

	ChiSqr float64
	RedChi float64
	AIC    float64
	BIC    float64
	NData  int
	NVarys int
	NFree  int

	Iterations  int
	Evaluations int
	Converged   bool
	Message     string
}

// Value returns the fitted value of a named parameter.
func (r *Result) Value(name string) (float64, bool) {
	p, ok := r.Params.Get(name)
	return p.Value, ok
}

// Values returns all fitted values by name.
func (r *Result) Values() map[string]float64 { return r.Params.Map() }

// Invert fits the free parameters of x0 to the measured spectrum y. Weights
// default to one per band. Residuals are w*(forward - y).
func (inv *Inverter) Invert(y []float64, x0 Parameters, w []float64) (*Result, error) {
	m := inv.fwd.Bands()
	if len(y) != m {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrSpectrumLength, len(y), m)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: band %d", ErrNonFiniteSpectrum, i)
		}
	}
	if w == nil {
		w = make([]float64, m)
		for i := range w {
			w[i] = 1
		}
	} else if len(w) != m {
		return nil, fmt.Errorf("%w: got %d weights, want %d", ErrWeightsLength, len(w), m)
	}
	if err := x0.Validate(); err != nil {
		return nil, err
	}

	params := x0.Clone()
	var free []int
	for i, p := range params {
		if !p.Fixed {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return nil, ErrNoFreeParameters
	}
	names := make([]string, len(free))
	start := make([]float64, len(free))
	lower := make([]float64, len(free))
	upper := make([]float64, len(free))
	for k, i := range free {
		names[k] = params[i].Name
		start[k] = params[i].Value
		lower[k] = params[i].Min
		upper[k] = params[i].Max
	}

	values := params.Map()
	setFree := func(x []float64) {
		for k, name := range names {
			values[name] = x[k]
		}
	}
	residuals := func(dst, x []float64) error {
		setFree(x)
		f, err := inv.fwd.Forward(values)
		if err != nil {
			return err
		}
		for i := range dst {
			dst[i] = w[i] * (f[i] - y[i])
		}
		return nil
	}

	obj := Objective{M: m, Residuals: residuals}
	jac, analytic := inv.fwd.(Jacobianer)
	if analytic && !inv.numeric {
		obj.Jacobian = func(dst *mat.Dense, x []float64) error {
			setFree(x)
			j, err := jac.Jacobian(values, names)
			if err != nil {
				return err
			}
			for i := 0; i < m; i++ {
				for k := range names {
					dst.Set(i, k, w[i]*j.At(i, k))
				}
			}
			return nil
		}
	} else {
		obj.Jacobian = func(dst *mat.Dense, x []float64) error {
			var ferr error
			fd.Jacobian(dst, func(r, x []float64) {
				if err := residuals(r, x); err != nil && ferr == nil {
					ferr = err
				}
			}, x, &fd.JacobianSettings{Formula: fd.Forward})
			return ferr
		}
	}

	sol, err := inv.minimizer.Minimize(obj, start, lower, upper)
	if err != nil {
		return nil, fmt.Errorf("inversion: minimize: %w", err)
	}
	for k, i := range free {
		params[i].Value = sol.X[k]
	}

	res := &Result{
		Params:      params,
		Weights:     w,
		Residual:    make([]float64, m),
		NData:       m,
		NVarys:      len(free),
		Iterations:  sol.Iterations,
		Evaluations: sol.Evaluations,
		Converged:   sol.Converged,
		Message:     sol.Message,
	}
	if err := residuals(res.Residual, sol.X); err != nil {
		return nil, err
	}
	if res.Rrs, err = inv.fwd.Forward(values); err != nil {
		return nil, err
	}
	if ioper, ok := inv.fwd.(IOPer); ok {
		if res.IOPs, err = ioper.IOPs(values); err != nil {
			return nil, err
		}
	}
	res.fitStatistics()

	j := mat.NewDense(m, len(free), nil)
	if err := obj.Jacobian(j, sol.X); err != nil {
		return nil, err
	}
	res.StdErr = make([]float64, len(params))
	for i := range res.StdErr {
		res.StdErr[i] = math.NaN()
	}
	if cov := covariance(j, res.RedChi); cov != nil {
		res.Covariance = cov
		for k, i := range free {
			res.StdErr[i] = math.Sqrt(cov.At(k, k))
		}
	}
	return res, nil
}

func (r *Result) fitStatistics() {
	r.ChiSqr = sumSquares(r.Residual)
	r.NFree = r.NData - r.NVarys
	dof := r.NFree
	if dof < 1 {
		dof = 1
	}
	r.RedChi = r.ChiSqr / float64(dof)

	n := float64(r.NData)
	like := n * math.Log(math.Max(r.ChiSqr, 1e-250)/n)
	r.AIC = like + 2*float64(r.NVarys)
	r.BIC = like + math.Log(n)*float64(r.NVarys)
}

// maxCond is the largest condition number of J^T J for which a covariance
// is reported.
const maxCond = 1e15

// covariance returns redchi * (J^T J)^-1, or nil when J^T J is singular or
// too badly conditioned.
func covariance(j *mat.Dense, redchi float64) *mat.SymDense {
	_, n := j.Dims()
	jtj := mat.NewSymDense(n, nil)
	jtj.SymOuterK(1, j.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(jtj); !ok {
		return nil
	}
	if c := chol.Cond(); math.IsNaN(c) || c > maxCond {
		return nil
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil
	}
	cov.ScaleSym(redchi, &cov)
	for i := 0; i < n; i++ {
		if d := cov.At(i, i); d < 0 || math.IsNaN(d) {
			return nil
		}
	}
	return &cov
}
