// Package pixel runs an inversion over every pixel of a reflectance cube.
package pixel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync"

	"hydroinvert/internal/models"
	"hydroinvert/pkg/inversion"
)

var (
	// ErrBandMismatch indicates a cube whose band count differs from the model.
	ErrBandMismatch = errors.New("pixel: cube bands do not match model bands")
	// ErrMaskShape indicates a mask whose shape differs from the cube.
	ErrMaskShape = errors.New("pixel: mask shape does not match cube")
	// ErrWeightsLength indicates weights whose length differs from the bands.
	ErrWeightsLength = errors.New("pixel: weights do not match model bands")
	// ErrEmptyCube indicates a cube without pixels.
	ErrEmptyCube = errors.New("pixel: cube has no pixels")
)

// Inverter is satisfied by *inversion.Inverter.
type Inverter interface {
	Bands() int
	Invert(y []float64, x0 inversion.Parameters, w []float64) (*inversion.Result, error)
}

// Options controls a run. The zero value inverts every pixel with one
// worker per CPU.
type Options struct {
	Workers int
	Weights []float64
	Mask    *models.Mask

	// WarmStart seeds each pixel with the last converged solution of the
	// same row instead of the initial parameters.
	WarmStart bool

	// Progress is called from a single goroutine after every pixel.
	Progress func(done, total int)

	// Logger receives per-pixel failures. Defaults to log.Default().
	Logger *log.Logger
}

type pixelResult struct {
	row, col int
	res      *inversion.Result
	skipped  bool
	err      error
}

// Run inverts every selected pixel of cube starting from x0 and returns the
// parameter, standard error and statistic maps. Pixels that are masked out
// or hold non-finite reflectance are skipped; a pixel whose inversion fails
// is logged and counted, and the run continues.
func Run(ctx context.Context, inv Inverter, cube *models.Cube, x0 inversion.Parameters, opts Options) (*models.Maps, error) {
	rows, cols := cube.Rows(), cube.Cols()
	if rows == 0 || cols == 0 {
		return nil, ErrEmptyCube
	}
	if cube.Bands() != inv.Bands() {
		return nil, fmt.Errorf("%w: cube has %d, model has %d", ErrBandMismatch, cube.Bands(), inv.Bands())
	}
	if opts.Mask != nil && (opts.Mask.Rows != rows || opts.Mask.Cols != cols) {
		return nil, fmt.Errorf("%w: mask is %dx%d, cube is %dx%d", ErrMaskShape, opts.Mask.Rows, opts.Mask.Cols, rows, cols)
	}
	if opts.Weights != nil && len(opts.Weights) != inv.Bands() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWeightsLength, len(opts.Weights), inv.Bands())
	}
	if err := x0.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > rows {
		workers = rows
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowChan := make(chan int)
	resultChan := make(chan pixelResult, cols)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range rowChan {
				processRow(runCtx, inv, cube, row, x0, opts, resultChan)
			}
		}()
	}
	go func() {
		defer close(rowChan)
		for row := 0; row < rows; row++ {
			select {
			case rowChan <- row:
			case <-runCtx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	maps := models.NewMaps(rows, cols, x0.Names())
	total := rows * cols
	done := 0
	for res := range resultChan {
		done++
		switch {
		case res.skipped:
			maps.Skipped++
		case res.err != nil:
			maps.Failed++
			logger.Printf("pixel (%d, %d): %v", res.row, res.col, res.err)
		default:
			record(maps, res.row, res.col, res.res)
		}
		if opts.Progress != nil {
			opts.Progress(done, total)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return maps, nil
}

func processRow(ctx context.Context, inv Inverter, cube *models.Cube, row int, x0 inversion.Parameters, opts Options, out chan<- pixelResult) {
	start := x0
	px := make([]float64, cube.Bands())
	for col := 0; col < cube.Cols(); col++ {
		if ctx.Err() != nil {
			return
		}
		px = cube.Pixel(row, col, px)
		if (opts.Mask != nil && !opts.Mask.Keep(row, col)) || !finite(px) {
			out <- pixelResult{row: row, col: col, skipped: true}
			continue
		}
		res, err := inv.Invert(px, start, opts.Weights)
		if err == nil && opts.WarmStart && res.Converged {
			start = res.Params.Clone()
		}
		out <- pixelResult{row: row, col: col, res: res, err: err}
	}
}

func record(maps *models.Maps, row, col int, res *inversion.Result) {
	maps.Inverted++
	if !res.Converged {
		maps.Unconverged++
	}
	for i, p := range res.Params {
		if v, ok := maps.Values[p.Name]; ok {
			v.Set(row, col, p.Value)
			maps.StdErr[p.Name].Set(row, col, res.StdErr[i])
		}
	}
	maps.Stats[models.StatChiSqr].Set(row, col, res.ChiSqr)
	maps.Stats[models.StatRedChi].Set(row, col, res.RedChi)
	maps.Stats[models.StatAIC].Set(row, col, res.AIC)
	maps.Stats[models.StatBIC].Set(row, col, res.BIC)
	maps.Stats[models.StatIterations].Set(row, col, float64(res.Iterations))
}

func finite(s []float64) bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
