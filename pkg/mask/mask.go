// Package mask separates water from land and cloud pixels with an Otsu
// threshold on a blurred gray image built from three reflectance bands.
package mask

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"hydroinvert/internal/models"
)

var (
	// ErrShapeMismatch indicates bands of differing shapes.
	ErrShapeMismatch = errors.New("mask: band shapes differ")
	// ErrNoData indicates an image without finite values.
	ErrNoData = errors.New("mask: image has no finite values")
	// ErrBins indicates a histogram with fewer than two bins.
	ErrBins = errors.New("mask: need at least two histogram bins")
)

// Luminance weights of the ITU-R BT.709 primaries.
const (
	RedWeight   = 0.2125
	GreenWeight = 0.7154
	BlueWeight  = 0.0721
)

// DefaultBins is the histogram size used for Otsu thresholding.
const DefaultBins = 256

// truncate is the kernel half width in standard deviations.
const truncate = 4.0

// Gray combines three bands into a luminance image.
func Gray(r, g, b mat.Matrix) (*mat.Dense, error) {
	rows, cols := r.Dims()
	if gr, gc := g.Dims(); gr != rows || gc != cols {
		return nil, fmt.Errorf("%w: red %dx%d, green %dx%d", ErrShapeMismatch, rows, cols, gr, gc)
	}
	if br, bc := b.Dims(); br != rows || bc != cols {
		return nil, fmt.Errorf("%w: red %dx%d, blue %dx%d", ErrShapeMismatch, rows, cols, br, bc)
	}
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(i, j int, _ float64) float64 {
		return RedWeight*r.At(i, j) + GreenWeight*g.At(i, j) + BlueWeight*b.At(i, j)
	}, out)
	return out, nil
}

// Gaussian blurs img with a separable kernel truncated at four standard
// deviations. Pixels beyond the edge repeat the nearest edge pixel. A
// non-positive sigma returns a copy.
func Gaussian(img mat.Matrix, sigma float64) *mat.Dense {
	out := mat.DenseCopyOf(img)
	if sigma <= 0 {
		return out
	}
	kernel := gaussianKernel(sigma)
	rows, cols := out.Dims()
	tmp := mat.NewDense(rows, cols, nil)

	line := make([]float64, 0, max(rows, cols))
	for i := 0; i < rows; i++ {
		line = mat.Row(line[:cols], i, out)
		tmp.SetRow(i, convolve(line, kernel))
	}
	for j := 0; j < cols; j++ {
		line = mat.Col(line[:rows], j, tmp)
		out.SetCol(j, convolve(line, kernel))
	}
	return out
}

func gaussianKernel(sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	for i := range k {
		x := float64(i - radius)
		k[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

func convolve(line, kernel []float64) []float64 {
	radius := len(kernel) / 2
	n := len(line)
	out := make([]float64, n)
	for i := range line {
		var s float64
		for k, w := range kernel {
			j := i + k - radius
			if j < 0 {
				j = 0
			} else if j >= n {
				j = n - 1
			}
			s += w * line[j]
		}
		out[i] = s
	}
	return out
}

// Otsu returns the threshold maximizing the between-class variance of the
// finite values of img, taken at a histogram bin centre. A constant image
// returns its value.
func Otsu(img mat.Matrix, bins int) (float64, error) {
	if bins < 2 {
		return 0, ErrBins
	}
	rows, cols := img.Dims()
	x := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := img.At(i, j); !math.IsNaN(v) && !math.IsInf(v, 0) {
				x = append(x, v)
			}
		}
	}
	if len(x) == 0 {
		return 0, ErrNoData
	}
	sort.Float64s(x)
	lo, hi := x[0], x[len(x)-1]
	if lo == hi {
		return lo, nil
	}

	edges := floats.Span(make([]float64, bins+1), lo, hi)
	centers := make([]float64, bins)
	for i := range centers {
		centers[i] = (edges[i] + edges[i+1]) / 2
	}
	dividers := append([]float64(nil), edges...)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	hist := stat.Histogram(nil, dividers, x, nil)

	// Class weights and means below (w1, m1) and above (w2, m2) each split.
	w1 := make([]float64, bins)
	m1 := make([]float64, bins)
	var cw, cm float64
	for i := 0; i < bins; i++ {
		cw += hist[i]
		cm += hist[i] * centers[i]
		w1[i] = cw
		if cw > 0 {
			m1[i] = cm / cw
		}
	}
	w2 := make([]float64, bins)
	m2 := make([]float64, bins)
	cw, cm = 0, 0
	for i := bins - 1; i >= 0; i-- {
		cw += hist[i]
		cm += hist[i] * centers[i]
		w2[i] = cw
		if cw > 0 {
			m2[i] = cm / cw
		}
	}

	best, idx := -1.0, 0
	for i := 0; i < bins-1; i++ {
		d := m1[i] - m2[i+1]
		if v := w1[i] * w2[i+1] * d * d; v > best {
			best, idx = v, i
		}
	}
	return centers[idx], nil
}

// Build returns a mask keeping pixels whose blurred gray value lies below
// the Otsu threshold. Non-finite pixels are never kept.
func Build(r, g, b mat.Matrix, sigma float64) (*models.Mask, error) {
	gray, err := Gray(r, g, b)
	if err != nil {
		return nil, err
	}
	blurred := Gaussian(gray, sigma)
	t, err := Otsu(blurred, DefaultBins)
	if err != nil {
		return nil, err
	}
	rows, cols := blurred.Dims()
	m := models.NewMask(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, blurred.At(i, j) < t)
		}
	}
	return m, nil
}
