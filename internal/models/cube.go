package models

import (
	"fmt"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/mat"

	"hydroinvert/pkg/spectral"
)

// Cube is a reflectance scene of rows x cols pixels, each holding one value
// per band.
type Cube struct {
	// Data holds the reflectance with shape [rows, cols, bands], band index
	// fastest.
	Data *sparse.DenseArray

	// Wavelengths are the band centres in nm.
	Wavelengths []float64
}

// NewCube returns a zero filled cube.
func NewCube(rows, cols int, wavelengths []float64) *Cube {
	wl := make([]float64, len(wavelengths))
	copy(wl, wavelengths)
	return &Cube{
		Data:        sparse.ZerosDense(rows, cols, len(wl)),
		Wavelengths: wl,
	}
}

// Rows returns the number of image rows.
func (c *Cube) Rows() int { return c.Data.Shape[0] }

// Cols returns the number of image columns.
func (c *Cube) Cols() int { return c.Data.Shape[1] }

// Bands returns the number of spectral bands.
func (c *Cube) Bands() int { return c.Data.Shape[2] }

func (c *Cube) offset(row, col int) int {
	return (row*c.Cols() + col) * c.Bands()
}

// Pixel copies the spectrum at (row, col) into dst, allocating when dst is
// too short, and returns it.
func (c *Cube) Pixel(row, col int, dst []float64) []float64 {
	n := c.Bands()
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	off := c.offset(row, col)
	copy(dst, c.Data.Elements[off:off+n])
	return dst
}

// SetPixel stores a spectrum at (row, col).
func (c *Cube) SetPixel(row, col int, spectrum []float64) {
	off := c.offset(row, col)
	copy(c.Data.Elements[off:off+c.Bands()], spectrum)
}

// Band returns a copy of one band as a rows x cols matrix.
func (c *Cube) Band(b int) *mat.Dense {
	out := mat.NewDense(c.Rows(), c.Cols(), nil)
	for i := 0; i < c.Rows(); i++ {
		for j := 0; j < c.Cols(); j++ {
			out.Set(i, j, c.Data.Elements[c.offset(i, j)+b])
		}
	}
	return out
}

// SetBand overwrites band b from a rows x cols matrix.
func (c *Cube) SetBand(b int, m mat.Matrix) error {
	r, k := m.Dims()
	if r != c.Rows() || k != c.Cols() {
		return fmt.Errorf("models: band is %dx%d, cube is %dx%d", r, k, c.Rows(), c.Cols())
	}
	for i := 0; i < r; i++ {
		for j := 0; j < k; j++ {
			c.Data.Elements[c.offset(i, j)+b] = m.At(i, j)
		}
	}
	return nil
}

// Grid returns the band wavelengths as a spectral grid.
func (c *Cube) Grid() (spectral.Grid, error) {
	return spectral.NewGrid(c.Wavelengths)
}

// Resample returns a new cube with every pixel spectrum resampled onto to.
func (c *Cube) Resample(to spectral.Grid, method spectral.Method) (*Cube, error) {
	from, err := c.Grid()
	if err != nil {
		return nil, fmt.Errorf("models: cube wavelengths: %w", err)
	}
	out := NewCube(c.Rows(), c.Cols(), to.Wavelengths())
	px := make([]float64, c.Bands())
	for i := 0; i < c.Rows(); i++ {
		for j := 0; j < c.Cols(); j++ {
			px = c.Pixel(i, j, px)
			v, err := spectral.Resample(px, from, to, method)
			if err != nil {
				return nil, err
			}
			out.SetPixel(i, j, v)
		}
	}
	return out, nil
}
