package inversion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"hydroinvert/pkg/forward"
	"hydroinvert/pkg/iop"
	"hydroinvert/pkg/spectral"
)

func testModel(t *testing.T, extra ...iop.Entry) *forward.Model {
	t.Helper()
	g, err := spectral.Range(400, 710, 5)
	require.NoError(t, err)
	entries := []iop.Entry{
		iop.Named("water", iop.NewWater(g)),
		iop.Named("phyto", iop.NewPhytoplankton(g, iop.DefaultPhytoplanktonBackscatter)),
		iop.Named("cdom", iop.NewCDOM(g, 440, 0.017)),
	}
	bio, err := iop.NewModel(g, append(entries, extra...)...)
	require.NoError(t, err)
	refl, err := forward.NewQuasiSingle(g.Len())
	require.NoError(t, err)
	m, err := forward.New(bio, refl)
	require.NoError(t, err)
	return m
}

func synth(t *testing.T, m Forwarder, truth map[string]float64) []float64 {
	t.Helper()
	y, err := m.Forward(truth)
	require.NoError(t, err)
	return y
}

func defaultStart() Parameters {
	return Parameters{}.Add("phyto", 0.5, DefaultLowerBound).Add("cdom", 0.01, DefaultLowerBound)
}

func TestInvertRecoversSyntheticTruth(t *testing.T) {
	m := testModel(t)
	y := synth(t, m, map[string]float64{"phyto": 1.0, "cdom": 0.1})

	res, err := Invert(m, y, defaultStart(), nil)
	require.NoError(t, err)
	assert.True(t, res.Converged, res.Message)

	phyto, ok := res.Value("phyto")
	require.True(t, ok)
	cdom, _ := res.Value("cdom")
	assert.InEpsilon(t, 1.0, phyto, 1e-4)
	assert.InEpsilon(t, 0.1, cdom, 1e-4)
	assert.Less(t, res.ChiSqr, 1e-16)
	assert.Less(t, res.RedChi, 1e-16)
	assert.Equal(t, m.Bands(), res.NData)
	assert.Equal(t, 2, res.NVarys)
	assert.Len(t, res.Rrs, m.Bands())
	assert.Len(t, res.IOPs, 3)
	assert.Len(t, res.StdErr, 2)
	for i := range y {
		assert.InDelta(t, y[i], res.Rrs[i], 1e-10)
	}
}

func TestInvertWaterAndPhytoplankton(t *testing.T) {
	g, err := spectral.Range(400, 710, 5)
	require.NoError(t, err)
	bio, err := iop.NewModel(g,
		iop.Named("water", iop.NewWater(g)),
		iop.Named("phyto", iop.NewPhytoplankton(g, iop.DefaultPhytoplanktonBackscatter)),
	)
	require.NoError(t, err)
	refl, err := forward.NewQuasiSingle(g.Len())
	require.NoError(t, err)
	m, err := forward.New(bio, refl)
	require.NoError(t, err)

	y := synth(t, m, map[string]float64{"phyto": 1.0})
	res, err := Invert(m, y, Parameters{}.Add("phyto", 0.5, DefaultLowerBound), nil)
	require.NoError(t, err)
	phyto, _ := res.Value("phyto")
	assert.InEpsilon(t, 1.0, phyto, 0.01)
	assert.InDelta(t, 0, res.RedChi, 1e-16)
}

func TestInvertLogPolynomial(t *testing.T) {
	g, err := spectral.Range(400, 710, 5)
	require.NoError(t, err)
	bio, err := iop.NewModel(g,
		iop.Named("water", iop.NewWater(g)),
		iop.Named("phyto", iop.NewPhytoplankton(g, iop.DefaultPhytoplanktonBackscatter)),
		iop.Named("cdom", iop.NewCDOM(g, 440, 0.017)),
	)
	require.NoError(t, err)
	refl, err := forward.DefaultLogPolynomial(g.Len())
	require.NoError(t, err)
	m, err := forward.New(bio, refl)
	require.NoError(t, err)

	y := synth(t, m, map[string]float64{"phyto": 2.0, "cdom": 0.05})
	res, err := Invert(m, y, defaultStart(), nil)
	require.NoError(t, err)
	phyto, _ := res.Value("phyto")
	cdom, _ := res.Value("cdom")
	assert.InEpsilon(t, 2.0, phyto, 1e-3)
	assert.InEpsilon(t, 0.05, cdom, 1e-3)
}

func TestInvertNumericJacobian(t *testing.T) {
	m := testModel(t)
	y := synth(t, m, map[string]float64{"phyto": 1.0, "cdom": 0.1})

	res, err := Invert(m, y, defaultStart(), nil, WithNumericJacobian())
	require.NoError(t, err)
	phyto, _ := res.Value("phyto")
	cdom, _ := res.Value("cdom")
	assert.InEpsilon(t, 1.0, phyto, 1e-4)
	assert.InEpsilon(t, 0.1, cdom, 1e-4)
}

// forwardOnly hides the analytic Jacobian of the wrapped model.
type forwardOnly struct{ m *forward.Model }

func (f forwardOnly) Bands() int { return f.m.Bands() }
func (f forwardOnly) Forward(p map[string]float64) ([]float64, error) {
	return f.m.Forward(p)
}

func TestInvertWithoutAnalyticJacobian(t *testing.T) {
	m := testModel(t)
	y := synth(t, m, map[string]float64{"phyto": 1.0, "cdom": 0.1})

	res, err := Invert(forwardOnly{m}, y, defaultStart(), nil)
	require.NoError(t, err)
	phyto, _ := res.Value("phyto")
	assert.InEpsilon(t, 1.0, phyto, 1e-4)
	assert.Nil(t, res.IOPs)
}

// boundsRecorder fails the test when the forward model sees a value outside
// [lo, hi].
type boundsRecorder struct {
	t      *testing.T
	m      *forward.Model
	lo, hi float64
	calls  int
}

func (b *boundsRecorder) Bands() int { return b.m.Bands() }
func (b *boundsRecorder) Forward(p map[string]float64) ([]float64, error) {
	b.calls++
	for name, v := range p {
		if v < b.lo || v > b.hi {
			b.t.Errorf("%s evaluated at %g outside [%g, %g]", name, v, b.lo, b.hi)
		}
	}
	return b.m.Forward(p)
}
func (b *boundsRecorder) Jacobian(p map[string]float64, names []string) (*mat.Dense, error) {
	return b.m.Jacobian(p, names)
}

func TestInvertNeverLeavesBounds(t *testing.T) {
	m := testModel(t)
	// No phytoplankton at all: the fit is pushed onto the lower bound.
	y := synth(t, m, map[string]float64{"phyto": 0, "cdom": 0.1})
	rec := &boundsRecorder{t: t, m: m, lo: DefaultLowerBound, hi: math.Inf(1)}

	res, err := Invert(rec, y, defaultStart(), nil)
	require.NoError(t, err)
	assert.Positive(t, rec.calls)
	phyto, _ := res.Value("phyto")
	assert.GreaterOrEqual(t, phyto, DefaultLowerBound)
	assert.Less(t, phyto, 1e-3)
}

func TestInvertUpperBound(t *testing.T) {
	m := testModel(t)
	y := synth(t, m, map[string]float64{"phyto": 1.0, "cdom": 0.1})
	start := Parameters{}.AddBounded("phyto", 0.5, DefaultLowerBound, 0.8).Add("cdom", 0.01, DefaultLowerBound)

	res, err := Invert(m, y, start, nil)
	require.NoError(t, err)
	phyto, _ := res.Value("phyto")
	assert.LessOrEqual(t, phyto, 0.8)
	assert.Greater(t, phyto, 0.79)
}

func TestInvertFixedParameter(t *testing.T) {
	m := testModel(t)
	y := synth(t, m, map[string]float64{"phyto": 1.0, "cdom": 0.1})
	start := Parameters{}.Add("phyto", 0.5, DefaultLowerBound).AddFixed("cdom", 0.1)

	res, err := Invert(m, y, start, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NVarys)
	cdom, _ := res.Value("cdom")
	assert.Equal(t, 0.1, cdom)
	phyto, _ := res.Value("phyto")
	assert.InEpsilon(t, 1.0, phyto, 1e-4)
	assert.True(t, math.IsNaN(res.StdErr[1]))
	assert.False(t, math.IsNaN(res.StdErr[0]))
}

func TestInvertIgnoresZeroWeightBands(t *testing.T) {
	m := testModel(t)
	y := synth(t, m, map[string]float64{"phyto": 1.0, "cdom": 0.1})
	w := make([]float64, len(y))
	for i := range w {
		w[i] = 1
	}
	y[0] += 0.5
	w[0] = 0

	res, err := Invert(m, y, defaultStart(), w)
	require.NoError(t, err)
	phyto, _ := res.Value("phyto")
	assert.InEpsilon(t, 1.0, phyto, 1e-4)
	assert.Equal(t, w, res.Weights)
	assert.Zero(t, res.Residual[0])
}

func TestInvertNoisySpectrumHasStandardErrors(t *testing.T) {
	m := testModel(t)
	y := synth(t, m, map[string]float64{"phyto": 1.0, "cdom": 0.1})
	for i := range y {
		y[i] *= 1 + 0.01*math.Sin(float64(7*i))
	}

	res, err := Invert(m, y, defaultStart(), nil)
	require.NoError(t, err)
	require.NotNil(t, res.Covariance)
	for i, se := range res.StdErr {
		assert.False(t, math.IsNaN(se), "stderr %d", i)
		assert.Positive(t, se)
	}
	assert.InDelta(t, res.Covariance.At(0, 1), res.Covariance.At(1, 0), 1e-20)
	phyto, _ := res.Value("phyto")
	assert.InEpsilon(t, 1.0, phyto, 0.1)
}

func TestInvertSingularCovariance(t *testing.T) {
	g, err := spectral.Range(400, 710, 5)
	require.NoError(t, err)
	bio, err := iop.NewModel(g,
		iop.Named("water", iop.NewWater(g)),
		iop.Named("a", iop.NewPhytoplankton(g, iop.DefaultPhytoplanktonBackscatter)),
		iop.Named("b", iop.NewPhytoplankton(g, iop.DefaultPhytoplanktonBackscatter)),
	)
	require.NoError(t, err)
	refl, err := forward.NewQuasiSingle(g.Len())
	require.NoError(t, err)
	m, err := forward.New(bio, refl)
	require.NoError(t, err)
	y := synth(t, m, map[string]float64{"a": 0.5, "b": 0.5})

	start := Parameters{}.Add("a", 0.2, DefaultLowerBound).Add("b", 0.3, DefaultLowerBound)
	res, err := Invert(m, y, start, nil)
	require.NoError(t, err)
	a, _ := res.Value("a")
	b, _ := res.Value("b")
	assert.InEpsilon(t, 1.0, a+b, 1e-4)
	assert.Nil(t, res.Covariance)
	assert.True(t, math.IsNaN(res.StdErr[0]))
	assert.True(t, math.IsNaN(res.StdErr[1]))
}

func TestInvertIterationLimitReturnsBestIterate(t *testing.T) {
	m := testModel(t)
	y := synth(t, m, map[string]float64{"phyto": 1.0, "cdom": 0.1})
	start := defaultStart()

	res, err := Invert(m, y, start, nil, WithMinimizer(LevenbergMarquardt{MaxIterations: 1}))
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "maximum iterations reached", res.Message)

	before := synth(t, m, start.Map())
	var chi0 float64
	for i := range y {
		chi0 += (before[i] - y[i]) * (before[i] - y[i])
	}
	assert.Less(t, res.ChiSqr, chi0)
}

func TestInvertInputErrors(t *testing.T) {
	m := testModel(t)
	y := synth(t, m, map[string]float64{"phyto": 1.0, "cdom": 0.1})

	_, err := Invert(m, y[:10], defaultStart(), nil)
	assert.ErrorIs(t, err, ErrSpectrumLength)

	_, err = Invert(m, y, defaultStart(), []float64{1, 2})
	assert.ErrorIs(t, err, ErrWeightsLength)

	bad := append([]float64(nil), y...)
	bad[3] = math.NaN()
	_, err = Invert(m, bad, defaultStart(), nil)
	assert.ErrorIs(t, err, ErrNonFiniteSpectrum)

	_, err = Invert(m, y, Parameters{}.AddFixed("phyto", 1).AddFixed("cdom", 0.1), nil)
	assert.ErrorIs(t, err, ErrNoFreeParameters)

	_, err = Invert(m, y, Parameters{}.AddBounded("phyto", 1, 2, 1), nil)
	assert.ErrorIs(t, err, ErrBadBounds)

	_, err = Invert(m, y, Parameters{}.Add("phyto", 1, 0).Add("phyto", 1, 0), nil)
	assert.ErrorIs(t, err, ErrDuplicateParameter)

	_, err = Invert(m, y, Parameters{}.Add("", 1, 0), nil)
	assert.ErrorIs(t, err, ErrEmptyParameterName)

	// cdom is a free component but absent from the parameter set.
	_, err = Invert(m, y, Parameters{}.Add("phyto", 1, 0), nil)
	assert.ErrorIs(t, err, iop.ErrMissingParameter)

	_, err = Invert(m, y, defaultStart().Add("sediment", 1, 0), nil)
	assert.ErrorIs(t, err, iop.ErrUnknownParameter)
}

func TestGonumMinimizers(t *testing.T) {
	m := testModel(t)
	y := synth(t, m, map[string]float64{"phyto": 1.0, "cdom": 0.1})

	for _, name := range []string{"lbfgs", "bfgs"} {
		t.Run(name, func(t *testing.T) {
			gm, err := ParseMethod(name)
			require.NoError(t, err)
			res, err := Invert(m, y, defaultStart(), nil, WithMinimizer(gm))
			require.NoError(t, err)
			phyto, _ := res.Value("phyto")
			cdom, _ := res.Value("cdom")
			assert.InEpsilon(t, 1.0, phyto, 0.05)
			assert.InEpsilon(t, 0.1, cdom, 0.05)
		})
	}

	t.Run("nelder-mead", func(t *testing.T) {
		gm, err := ParseMethod("nelder-mead")
		require.NoError(t, err)
		start := Parameters{}.Add("phyto", 0.5, DefaultLowerBound).AddFixed("cdom", 0.1)
		res, err := Invert(m, y, start, nil, WithMinimizer(gm))
		require.NoError(t, err)
		phyto, _ := res.Value("phyto")
		assert.InEpsilon(t, 1.0, phyto, 0.05)
	})

	_, err := ParseMethod("simplex-annealing")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestGonumStartOnLowerBound(t *testing.T) {
	m := testModel(t)
	y := synth(t, m, map[string]float64{"phyto": 1.0, "cdom": 0.1})
	start := func() Parameters {
		return Parameters{}.Add("phyto", DefaultLowerBound, DefaultLowerBound).Add("cdom", 0.01, DefaultLowerBound)
	}

	for _, name := range []string{"lbfgs", "bfgs"} {
		t.Run(name, func(t *testing.T) {
			gm, err := ParseMethod(name)
			require.NoError(t, err)
			res, err := Invert(m, y, start(), nil, WithMinimizer(gm))
			require.NoError(t, err)
			phyto, _ := res.Value("phyto")
			cdom, _ := res.Value("cdom")
			assert.InEpsilon(t, 1.0, phyto, 0.05)
			assert.InEpsilon(t, 0.1, cdom, 0.05)
		})
	}

	// Slower methods only have to leave the bound.
	for _, name := range []string{"cg", "gradient-descent"} {
		t.Run(name, func(t *testing.T) {
			gm, err := ParseMethod(name)
			require.NoError(t, err)
			res, err := Invert(m, y, start(), nil, WithMinimizer(gm))
			require.NoError(t, err)
			phyto, _ := res.Value("phyto")
			assert.Greater(t, phyto, 0.1)
		})
	}
}

func TestBoundInside(t *testing.T) {
	inf := math.Inf(1)
	cases := []struct {
		name string
		b    bound
		x    float64
	}{
		{"lower", bound{lo: 1e-9, hi: inf}, 1e-9},
		{"upper", bound{lo: -inf, hi: 5}, 5},
		{"both at lower", bound{lo: 0, hi: 2}, 0},
		{"both at upper", bound{lo: 0, hi: 2}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			z := tc.b.inside(tc.b.toInternal(tc.x))
			assert.NotZero(t, tc.b.derivative(z))
			x := tc.b.toExternal(z)
			assert.Greater(t, x, tc.b.lo)
			assert.Less(t, x, tc.b.hi)
			assert.InDelta(t, tc.x, x, 0.05)
		})
	}

	interior := bound{lo: 0, hi: 2}
	z := interior.toInternal(0.7)
	assert.Equal(t, z, interior.inside(z))
	fixed := bound{lo: 1, hi: 1}
	assert.Equal(t, 0.0, fixed.inside(0))
}

func TestParseMethodDefault(t *testing.T) {
	gm, err := ParseMethod("")
	require.NoError(t, err)
	_, ok := gm.NewMethod().(*optimize.LBFGS)
	assert.True(t, ok)
}

func TestBoundTransforms(t *testing.T) {
	inf := math.Inf(1)
	cases := []struct {
		name string
		b    bound
		x    float64
	}{
		{"both", bound{lo: 0, hi: 2}, 0.7},
		{"lower", bound{lo: 1e-9, hi: inf}, 3.2},
		{"upper", bound{lo: -inf, hi: 5}, -1.5},
		{"none", bound{lo: -inf, hi: inf}, -4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			z := tc.b.toInternal(tc.x)
			assert.InDelta(t, tc.x, tc.b.toExternal(z), 1e-12)

			const h = 1e-6
			num := (tc.b.toExternal(z+h) - tc.b.toExternal(z-h)) / (2 * h)
			assert.InDelta(t, num, tc.b.derivative(z), 1e-6)
		})
	}
}

func TestFitStatistics(t *testing.T) {
	r := &Result{Residual: []float64{1, 2, 2}, NData: 3, NVarys: 1}
	r.fitStatistics()
	assert.Equal(t, 9.0, r.ChiSqr)
	assert.Equal(t, 4.5, r.RedChi)
	assert.InDelta(t, 3*math.Log(3)+2, r.AIC, 1e-12)
	assert.InDelta(t, 3*math.Log(3)+math.Log(3), r.BIC, 1e-12)

	// More variables than data: degrees of freedom floor at one.
	r = &Result{Residual: []float64{0, 0}, NData: 2, NVarys: 3}
	r.fitStatistics()
	assert.Zero(t, r.RedChi)
	assert.False(t, math.IsInf(r.AIC, 0))
}

func TestParametersHelpers(t *testing.T) {
	ps := Parameters{}.Add("phyto", 0.5, DefaultLowerBound).AddFixed("cdom", 0.1)
	assert.Equal(t, []string{"phyto", "cdom"}, ps.Names())
	assert.Equal(t, map[string]float64{"phyto": 0.5, "cdom": 0.1}, ps.Map())

	c := ps.Clone()
	c[0].Value = 9
	assert.Equal(t, 0.5, ps[0].Value)

	_, ok := ps.Get("nap")
	assert.False(t, ok)
	assert.NoError(t, ps.Validate())
}
