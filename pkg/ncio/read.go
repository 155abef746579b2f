// Package ncio reads reflectance scenes from and writes inversion maps to
// netCDF classic files.
package ncio

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/mat"

	"hydroinvert/internal/models"
)

// DefaultPrefix is the band variable prefix of atmospherically corrected
// surface reflectance products.
const DefaultPrefix = "rhos_"

// VariableName returns the variable holding one band, e.g. rhos_443.
func VariableName(prefix string, band float64) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + strconv.FormatFloat(band, 'f', -1, 64)
}

// ReadCube reads one 2-D variable per band into a cube. All bands must share
// a shape.
func ReadCube(path, prefix string, bands []float64) (*models.Cube, error) {
	layers, err := ReadBands(path, prefix, bands)
	if err != nil {
		return nil, err
	}
	rows, cols := layers[0].Dims()
	cube := models.NewCube(rows, cols, bands)
	for b, layer := range layers {
		if err := cube.SetBand(b, layer); err != nil {
			return nil, err
		}
	}
	return cube, nil
}

// ReadBands reads single bands as rows x cols matrices.
func ReadBands(path, prefix string, bands []float64) ([]*mat.Dense, error) {
	if len(bands) == 0 {
		return nil, ErrNoBands
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncio: %w", err)
	}
	defer fh.Close()
	f, err := cdf.Open(fh)
	if err != nil {
		return nil, fmt.Errorf("ncio: open %s: %w", path, err)
	}

	out := make([]*mat.Dense, len(bands))
	for i, band := range bands {
		name := VariableName(prefix, band)
		data, err := readVariable(f, name)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			r0, c0 := out[0].Dims()
			if data.Shape[0] != r0 || data.Shape[1] != c0 {
				return nil, fmt.Errorf("%w: %s is %dx%d, %s is %dx%d", ErrShapeMismatch,
					name, data.Shape[0], data.Shape[1], VariableName(prefix, bands[0]), r0, c0)
			}
		}
		out[i] = mat.NewDense(data.Shape[0], data.Shape[1], data.Elements)
	}
	return out, nil
}

// readVariable reads a 2-D variable, dropping a leading length one
// dimension such as a single time step.
func readVariable(f *cdf.File, name string) (*sparse.DenseArray, error) {
	dims := f.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingVariable, name)
	}
	for len(dims) > 2 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("%w: %s has %d dimensions, want 2", ErrShapeMismatch, name, len(dims))
	}
	if dims[0] == 0 || dims[1] == 0 {
		return nil, fmt.Errorf("%w: %s is %dx%d", ErrShapeMismatch, name, dims[0], dims[1])
	}

	r := f.Reader(name, nil, nil)
	buf := r.Zero(dims[0] * dims[1])
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("ncio: read variable %s: %w", name, err)
	}
	data := sparse.ZerosDense(dims...)
	switch v := buf.(type) {
	case []float32:
		for i, val := range v {
			data.Elements[i] = float64(val)
		}
	case []float64:
		copy(data.Elements, v)
	default:
		return nil, fmt.Errorf("%w: %s is %T", ErrUnsupportedType, name, buf)
	}
	return data, nil
}
