package ncio

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydroinvert/internal/models"
)

func testCube() *models.Cube {
	cube := models.NewCube(3, 4, []float64{443, 560, 665})
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			cube.SetPixel(i, j, []float64{
				0.01 + 0.001*float64(i),
				0.02 + 0.001*float64(j),
				0.005 * float64(i+j),
			})
		}
	}
	return cube
}

func TestVariableName(t *testing.T) {
	assert.Equal(t, "rhos_443", VariableName("", 443))
	assert.Equal(t, "Rrs_412.5", VariableName("Rrs_", 412.5))
}

func TestCubeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.nc")
	cube := testCube()
	require.NoError(t, WriteCube(path, DefaultPrefix, cube))

	got, err := ReadCube(path, DefaultPrefix, []float64{443, 560, 665})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Rows())
	assert.Equal(t, 4, got.Cols())
	assert.Equal(t, []float64{443, 560, 665}, got.Wavelengths)

	var want, have []float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			want = cube.Pixel(i, j, want)
			have = got.Pixel(i, j, have)
			for b := range want {
				// float32 storage
				assert.InDelta(t, want[b], have[b], 1e-8)
			}
		}
	}
}

func TestReadBandsSubset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.nc")
	require.NoError(t, WriteCube(path, DefaultPrefix, testCube()))

	bands, err := ReadBands(path, DefaultPrefix, []float64{665})
	require.NoError(t, err)
	require.Len(t, bands, 1)
	assert.InDelta(t, 0.005*5, bands[0].At(2, 3), 1e-8)
}

func TestReadCubeErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.nc")
	require.NoError(t, WriteCube(path, DefaultPrefix, testCube()))

	_, err := ReadCube(path, DefaultPrefix, []float64{443, 490})
	assert.ErrorIs(t, err, ErrMissingVariable)

	_, err = ReadCube(path, DefaultPrefix, nil)
	assert.ErrorIs(t, err, ErrNoBands)

	_, err = ReadCube(filepath.Join(t.TempDir(), "absent.nc"), DefaultPrefix, []float64{443})
	assert.Error(t, err)
}

func TestReadBandsRejectsEmptyVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.nc")
	// A zero length dimension is the record dimension; with no records
	// written the variable is 0x4.
	h := cdf.NewHeader([]string{"y", "x"}, []int{0, 4})
	h.AddVariable("rhos_443", []string{"y", "x"}, []float32{0})
	h.Define()
	require.NoError(t, create(path, h, func(*cdf.File) error { return nil }))

	_, err := ReadBands(path, DefaultPrefix, []float64{443})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestMapsRoundTrip(t *testing.T) {
	maps := models.NewMaps(2, 3, []string{"phyto", "cdom"})
	maps.Values["phyto"].Set(0, 0, 1.25)
	maps.StdErr["phyto"].Set(0, 0, 0.01)
	maps.Values["cdom"].Set(1, 2, 0.5)
	maps.Stats[models.StatChiSqr].Set(1, 2, 1e-6)
	maps.Inverted, maps.Skipped, maps.Failed, maps.Unconverged = 2, 3, 1, 1

	path := filepath.Join(t.TempDir(), "maps.nc")
	require.NoError(t, WriteMaps(path, maps, []float64{443, 560}))

	got, err := ReadMaps(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"phyto", "cdom"}, got.Names)
	assert.Equal(t, 2, got.Rows)
	assert.Equal(t, 3, got.Cols)
	assert.Equal(t, 1.25, got.Values["phyto"].At(0, 0))
	assert.InDelta(t, 0.01, got.StdErr["phyto"].At(0, 0), 1e-8)
	assert.Equal(t, 0.5, got.Values["cdom"].At(1, 2))
	assert.InDelta(t, 1e-6, got.Stats[models.StatChiSqr].At(1, 2), 1e-12)
	assert.True(t, math.IsNaN(got.Values["phyto"].At(1, 1)))
	assert.Equal(t, 2, got.Inverted)
	assert.Equal(t, 3, got.Skipped)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 1, got.Unconverged)
}
