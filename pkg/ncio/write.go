package ncio

import (
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/cdf"
	"gonum.org/v1/gonum/mat"

	"hydroinvert/internal/models"
)

// StdErrSuffix names the standard error map of a parameter.
const StdErrSuffix = "_stderr"

var mapDims = []string{"y", "x"}

// WriteCube writes every band of cube as a float32 (y, x) variable named by
// VariableName.
func WriteCube(path, prefix string, cube *models.Cube) error {
	h := cdf.NewHeader(mapDims, []int{cube.Rows(), cube.Cols()})
	h.AddAttribute("", "comment", "surface reflectance cube")
	h.AddAttribute("", "wavelengths", cube.Wavelengths)
	names := make([]string, cube.Bands())
	for b, wl := range cube.Wavelengths {
		names[b] = VariableName(prefix, wl)
		h.AddVariable(names[b], mapDims, []float32{0})
		h.AddAttribute(names[b], "units", "sr-1")
	}
	h.Define()

	return create(path, h, func(f *cdf.File) error {
		for b, name := range names {
			if err := writeLayer(f, name, cube.Band(b)); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteMaps writes parameter values, their standard errors and the fit
// statistics as float32 (y, x) variables. The pixel counters are stored as
// global attributes.
func WriteMaps(path string, maps *models.Maps, wavelengths []float64) error {
	h := cdf.NewHeader(mapDims, []int{maps.Rows, maps.Cols})
	h.AddAttribute("", "comment", "water constituent inversion maps")
	h.AddAttribute("", "parameters", strings.Join(maps.Names, " "))
	if len(wavelengths) > 0 {
		h.AddAttribute("", "wavelengths", wavelengths)
	}
	h.AddAttribute("", "inverted", []int32{int32(maps.Inverted)})
	h.AddAttribute("", "unconverged", []int32{int32(maps.Unconverged)})
	h.AddAttribute("", "skipped", []int32{int32(maps.Skipped)})
	h.AddAttribute("", "failed", []int32{int32(maps.Failed)})

	type layer struct {
		name string
		data *mat.Dense
	}
	var layers []layer
	for _, n := range maps.Names {
		layers = append(layers,
			layer{n, maps.Values[n]},
			layer{n + StdErrSuffix, maps.StdErr[n]})
	}
	for _, n := range models.StatNames {
		layers = append(layers, layer{n, maps.Stats[n]})
	}
	for _, l := range layers {
		h.AddVariable(l.name, mapDims, []float32{0})
	}
	h.Define()

	return create(path, h, func(f *cdf.File) error {
		for _, l := range layers {
			if err := writeLayer(f, l.name, l.data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadMaps reads a file written by WriteMaps.
func ReadMaps(path string) (*models.Maps, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncio: %w", err)
	}
	defer fh.Close()
	f, err := cdf.Open(fh)
	if err != nil {
		return nil, fmt.Errorf("ncio: open %s: %w", path, err)
	}

	names, _ := f.Header.GetAttribute("", "parameters").(string)
	params := strings.Fields(names)
	if len(params) == 0 {
		return nil, fmt.Errorf("%w: no parameter maps in %s", ErrMissingVariable, path)
	}
	dims := f.Header.Lengths(params[0])
	if len(dims) != 2 {
		return nil, fmt.Errorf("%w: %s", ErrMissingVariable, params[0])
	}
	rows, cols := dims[0], dims[1]
	maps := models.NewMaps(rows, cols, params)

	read := func(name string, dst *mat.Dense) error {
		data, err := readVariable(f, name)
		if err != nil {
			return err
		}
		if data.Shape[0] != rows || data.Shape[1] != cols {
			return fmt.Errorf("%w: %s", ErrShapeMismatch, name)
		}
		dst.Copy(mat.NewDense(rows, cols, data.Elements))
		return nil
	}
	for _, n := range params {
		if err := read(n, maps.Values[n]); err != nil {
			return nil, err
		}
		if err := read(n+StdErrSuffix, maps.StdErr[n]); err != nil {
			return nil, err
		}
	}
	for _, n := range models.StatNames {
		if err := read(n, maps.Stats[n]); err != nil {
			return nil, err
		}
	}
	maps.Inverted = intAttribute(f, "inverted")
	maps.Unconverged = intAttribute(f, "unconverged")
	maps.Skipped = intAttribute(f, "skipped")
	maps.Failed = intAttribute(f, "failed")
	return maps, nil
}

func intAttribute(f *cdf.File, name string) int {
	v, ok := f.Header.GetAttribute("", name).([]int32)
	if !ok || len(v) == 0 {
		return 0
	}
	return int(v[0])
}

func create(path string, h *cdf.Header, write func(*cdf.File) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ncio: %w", err)
	}
	f, err := cdf.Create(fh, h)
	if err != nil {
		fh.Close()
		return fmt.Errorf("ncio: create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		fh.Close()
		return err
	}
	if err := cdf.UpdateNumRecs(fh); err != nil {
		fh.Close()
		return fmt.Errorf("ncio: %w", err)
	}
	return fh.Close()
}

func writeLayer(f *cdf.File, name string, m mat.Matrix) error {
	rows, cols := m.Dims()
	data32 := make([]float32, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data32 = append(data32, float32(m.At(i, j)))
		}
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(data32); err != nil {
		return fmt.Errorf("ncio: write variable %s: %w", name, err)
	}
	return nil
}
