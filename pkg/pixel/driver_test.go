package pixel

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydroinvert/internal/models"
	"hydroinvert/pkg/forward"
	"hydroinvert/pkg/inversion"
	"hydroinvert/pkg/iop"
	"hydroinvert/pkg/spectral"
)

var errBadPixel = errors.New("bad pixel")

// stubInverter returns the first reflectance value as "c" and fails on
// spectra whose first value is negative.
type stubInverter struct {
	mu     sync.Mutex
	starts []float64
}

func (s *stubInverter) Bands() int { return 2 }

func (s *stubInverter) Invert(y []float64, x0 inversion.Parameters, w []float64) (*inversion.Result, error) {
	s.mu.Lock()
	s.starts = append(s.starts, x0[0].Value)
	s.mu.Unlock()
	if y[0] < 0 {
		return nil, errBadPixel
	}
	params := x0.Clone()
	params[0].Value = y[0]
	return &inversion.Result{
		Params:     params,
		StdErr:     []float64{0.1},
		ChiSqr:     y[1],
		Converged:  y[1] == 0,
		Iterations: 3,
	}, nil
}

func stubCube() *models.Cube {
	cube := models.NewCube(3, 2, []float64{443, 560})
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			cube.SetPixel(i, j, []float64{float64(10*i + j), 0})
		}
	}
	return cube
}

func quietLogger(buf *bytes.Buffer) *log.Logger { return log.New(buf, "", 0) }

func TestRunFillsMaps(t *testing.T) {
	x0 := inversion.Parameters{}.Add("c", 1, 0)
	var progress []int
	maps, err := Run(context.Background(), &stubInverter{}, stubCube(), x0, Options{
		Workers:  2,
		Progress: func(done, total int) { progress = append(progress, done); assert.Equal(t, 6, total) },
	})
	require.NoError(t, err)

	assert.Equal(t, 6, maps.Inverted)
	assert.Zero(t, maps.Skipped)
	assert.Zero(t, maps.Failed)
	assert.Equal(t, 21.0, maps.Values["c"].At(2, 1))
	assert.Equal(t, 0.1, maps.StdErr["c"].At(0, 0))
	assert.Equal(t, 3.0, maps.Stats[models.StatIterations].At(1, 1))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progress)
}

func TestRunSkipsMaskedAndNaNPixels(t *testing.T) {
	cube := stubCube()
	cube.SetPixel(0, 1, []float64{math.NaN(), 0})
	mask := models.FullMask(3, 2)
	mask.Set(2, 0, false)

	x0 := inversion.Parameters{}.Add("c", 1, 0)
	maps, err := Run(context.Background(), &stubInverter{}, cube, x0, Options{Mask: mask})
	require.NoError(t, err)
	assert.Equal(t, 2, maps.Skipped)
	assert.Equal(t, 4, maps.Inverted)
	assert.True(t, math.IsNaN(maps.Values["c"].At(0, 1)))
	assert.True(t, math.IsNaN(maps.Values["c"].At(2, 0)))
	assert.True(t, math.IsNaN(maps.Stats[models.StatChiSqr].At(2, 0)))
	assert.Equal(t, 6, maps.Total())
}

func TestRunContinuesAfterFailedPixel(t *testing.T) {
	cube := stubCube()
	cube.SetPixel(1, 0, []float64{-1, 0})
	var buf bytes.Buffer

	x0 := inversion.Parameters{}.Add("c", 1, 0)
	maps, err := Run(context.Background(), &stubInverter{}, cube, x0, Options{Logger: quietLogger(&buf)})
	require.NoError(t, err)
	assert.Equal(t, 1, maps.Failed)
	assert.Equal(t, 5, maps.Inverted)
	assert.True(t, math.IsNaN(maps.Values["c"].At(1, 0)))
	assert.Contains(t, buf.String(), "pixel (1, 0): bad pixel")
}

func TestRunCountsUnconverged(t *testing.T) {
	cube := stubCube()
	cube.SetPixel(2, 1, []float64{21, 1})
	x0 := inversion.Parameters{}.Add("c", 1, 0)
	maps, err := Run(context.Background(), &stubInverter{}, cube, x0, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, maps.Unconverged)
	assert.Equal(t, 21.0, maps.Values["c"].At(2, 1))
}

func TestRunWarmStart(t *testing.T) {
	cube := models.NewCube(1, 3, []float64{443, 560})
	for j := 0; j < 3; j++ {
		cube.SetPixel(0, j, []float64{float64(j + 5), 0})
	}
	stub := &stubInverter{}
	x0 := inversion.Parameters{}.Add("c", 1, 0)
	_, err := Run(context.Background(), stub, cube, x0, Options{WarmStart: true, Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 5, 6}, stub.starts)
}

func TestRunValidation(t *testing.T) {
	x0 := inversion.Parameters{}.Add("c", 1, 0)
	stub := &stubInverter{}

	_, err := Run(context.Background(), stub, models.NewCube(2, 2, []float64{443}), x0, Options{})
	assert.ErrorIs(t, err, ErrBandMismatch)

	_, err = Run(context.Background(), stub, stubCube(), x0, Options{Mask: models.FullMask(2, 2)})
	assert.ErrorIs(t, err, ErrMaskShape)

	_, err = Run(context.Background(), stub, stubCube(), x0, Options{Weights: []float64{1}})
	assert.ErrorIs(t, err, ErrWeightsLength)

	_, err = Run(context.Background(), stub, models.NewCube(0, 2, []float64{443, 560}), x0, Options{})
	assert.ErrorIs(t, err, ErrEmptyCube)

	_, err = Run(context.Background(), stub, stubCube(), inversion.Parameters{}.Add("", 1, 0), Options{})
	assert.ErrorIs(t, err, inversion.ErrEmptyParameterName)
	assert.Empty(t, stub.starts)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x0 := inversion.Parameters{}.Add("c", 1, 0)
	_, err := Run(ctx, &stubInverter{}, stubCube(), x0, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRecoversConcentrationMap(t *testing.T) {
	g := spectral.MustGrid(400, 412, 443, 490, 510, 560, 620, 665, 674, 682, 709)
	bio, err := iop.NewModel(g,
		iop.Named("water", iop.NewWater(g)),
		iop.Named("phyto", iop.NewPhytoplankton(g, iop.DefaultPhytoplanktonBackscatter)),
		iop.Named("cdom", iop.NewCDOM(g, 440, 0.017)),
	)
	require.NoError(t, err)
	refl, err := forward.NewQuasiSingle(g.Len())
	require.NoError(t, err)
	model, err := forward.New(bio, refl)
	require.NoError(t, err)

	cube := models.NewCube(2, 3, g.Wavelengths())
	truth := func(i, j int) (float64, float64) { return 0.5 + float64(i+j), 0.05 * float64(j+1) }
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			phyto, cdom := truth(i, j)
			y, err := model.Forward(map[string]float64{"phyto": phyto, "cdom": cdom})
			require.NoError(t, err)
			cube.SetPixel(i, j, y)
		}
	}

	x0 := inversion.Parameters{}.
		Add("phyto", 0.5, inversion.DefaultLowerBound).
		Add("cdom", 0.01, inversion.DefaultLowerBound)
	maps, err := Run(context.Background(), inversion.New(model), cube, x0, Options{WarmStart: true})
	require.NoError(t, err)
	assert.Equal(t, 6, maps.Inverted)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			phyto, cdom := truth(i, j)
			assert.InEpsilon(t, phyto, maps.Values["phyto"].At(i, j), 1e-4)
			assert.InEpsilon(t, cdom, maps.Values["cdom"].At(i, j), 1e-4)
		}
	}
}
