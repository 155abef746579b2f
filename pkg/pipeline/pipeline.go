// Package pipeline runs a full scene inversion: load the reflectance cube,
// stretch it onto the model grid, mask non-water pixels, invert every pixel
// and write the maps.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/stat"

	"hydroinvert/internal/models"
	"hydroinvert/pkg/config"
	"hydroinvert/pkg/forward"
	"hydroinvert/pkg/inversion"
	"hydroinvert/pkg/mask"
	"hydroinvert/pkg/ncio"
	"hydroinvert/pkg/pixel"
	"hydroinvert/pkg/spectral"
	"hydroinvert/pkg/visualization"
)

// Metrics summarizes a run.
type Metrics struct {
	Pixels      int
	Kept        int
	Inverted    int
	Unconverged int
	Skipped     int
	Failed      int

	// MeanRedChi is the mean reduced chi-square over inverted pixels.
	MeanRedChi float64

	// Mean and StdDev of each parameter over inverted pixels.
	Mean   map[string]float64
	StdDev map[string]float64

	Elapsed time.Duration
}

// Pipeline holds the models built from a configuration and the products of
// the last run.
type Pipeline struct {
	cfg      *config.Config
	grid     spectral.Grid
	model    *forward.Model
	inverter *inversion.Inverter
	x0       inversion.Parameters
	out      io.Writer

	cube    *models.Cube
	mask    *models.Mask
	maps    *models.Maps
	outputs []string
	metrics Metrics
}

// New validates cfg and builds the forward model and inverter.
func New(cfg *config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := BuildGrid(cfg)
	if err != nil {
		return nil, err
	}
	if w := cfg.Inversion.Weights; len(w) > 0 && len(w) != g.Len() {
		return nil, fmt.Errorf("pipeline: %d weights for %d model bands", len(w), g.Len())
	}
	model, err := BuildModel(cfg)
	if err != nil {
		return nil, err
	}
	inv, err := BuildInverter(cfg, model)
	if err != nil {
		return nil, err
	}
	out := io.Discard
	if cfg.Output.Verbose {
		out = os.Stdout
	}
	return &Pipeline{
		cfg:      cfg,
		grid:     g,
		model:    model,
		inverter: inv,
		x0:       BuildParameters(cfg),
		out:      out,
	}, nil
}

// SetOutput redirects progress messages.
func (p *Pipeline) SetOutput(w io.Writer) { p.out = w }

// Model returns the forward model.
func (p *Pipeline) Model() *forward.Model { return p.model }

// Process executes the pipeline stages in order.
func (p *Pipeline) Process(ctx context.Context) error {
	start := time.Now()

	fmt.Fprintln(p.out, "Step 1: Loading reflectance scene...")
	if err := p.loadScene(); err != nil {
		return fmt.Errorf("loading scene: %w", err)
	}

	fmt.Fprintln(p.out, "Step 2: Resampling bands onto the model grid...")
	resampled, err := p.resample()
	if err != nil {
		return fmt.Errorf("resampling: %w", err)
	}

	if p.cfg.Mask.Enabled {
		fmt.Fprintln(p.out, "Step 3: Building water mask...")
		if err := p.buildMask(); err != nil {
			return fmt.Errorf("masking: %w", err)
		}
		fmt.Fprintf(p.out, "Keeping %d of %d pixels\n", p.mask.Count(), p.cube.Rows()*p.cube.Cols())
	} else {
		fmt.Fprintln(p.out, "Step 3: Masking disabled")
		p.mask = nil
	}

	fmt.Fprintln(p.out, "Step 4: Inverting pixels...")
	maps, err := pixel.Run(ctx, p.inverter, resampled, p.x0, pixel.Options{
		Workers:   p.cfg.Processing.NumCores,
		Weights:   p.cfg.Inversion.Weights,
		Mask:      p.mask,
		WarmStart: p.cfg.Processing.WarmStart,
		Logger:    log.New(p.out, "", log.LstdFlags),
		Progress: func(done, total int) {
			if done%resampled.Cols() == 0 || done == total {
				fmt.Fprintf(p.out, "\rInverting pixels: %.1f%% complete", 100*float64(done)/float64(total))
			}
		},
	})
	fmt.Fprintln(p.out)
	if err != nil {
		return fmt.Errorf("inversion: %w", err)
	}
	p.maps = maps

	fmt.Fprintln(p.out, "Step 5: Saving maps...")
	if err := p.save(); err != nil {
		return fmt.Errorf("saving: %w", err)
	}

	p.computeMetrics(time.Since(start))
	return nil
}

func (p *Pipeline) loadScene() error {
	cube, err := ncio.ReadCube(p.cfg.Input.File, p.cfg.Input.Prefix, p.cfg.Input.Bands)
	if err != nil {
		return err
	}
	p.cube = cube
	fmt.Fprintf(p.out, "Loaded %dx%d pixels with %d bands\n", cube.Rows(), cube.Cols(), cube.Bands())
	return nil
}

func (p *Pipeline) resample() (*models.Cube, error) {
	method, err := spectral.ParseMethod(p.cfg.Processing.Resample)
	if err != nil {
		return nil, err
	}
	return p.cube.Resample(p.grid, method)
}

func (p *Pipeline) buildMask() error {
	m := p.cfg.Mask
	bands, err := ncio.ReadBands(p.cfg.Input.File, p.cfg.Input.Prefix, []float64{m.Red, m.Green, m.Blue})
	if err != nil {
		return err
	}
	mk, err := mask.Build(bands[0], bands[1], bands[2], m.Sigma)
	if err != nil {
		return err
	}
	p.mask = mk
	return nil
}

func (p *Pipeline) save() error {
	dir := p.cfg.Output.Dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	p.outputs = p.outputs[:0]
	if name := p.cfg.Output.MapsFile; name != "" {
		path := filepath.Join(dir, name)
		if err := ncio.WriteMaps(path, p.maps, p.grid.Wavelengths()); err != nil {
			return err
		}
		p.outputs = append(p.outputs, path)
	}
	if p.cfg.Output.Format != "" {
		ranges := make(map[string][2]float64, len(p.cfg.Output.Ranges))
		for name, r := range p.cfg.Output.Ranges {
			ranges[name] = [2]float64{r.Min, r.Max}
		}
		paths, err := visualization.SaveMaps(dir, p.maps, ranges, p.cfg.Output.Format, p.cfg.Output.Scale, p.mask)
		if err != nil {
			return err
		}
		p.outputs = append(p.outputs, paths...)
	}
	return nil
}

func (p *Pipeline) computeMetrics(elapsed time.Duration) {
	maps := p.maps
	m := Metrics{
		Pixels:      maps.Rows * maps.Cols,
		Kept:        maps.Rows * maps.Cols,
		Inverted:    maps.Inverted,
		Unconverged: maps.Unconverged,
		Skipped:     maps.Skipped,
		Failed:      maps.Failed,
		Mean:        make(map[string]float64, len(maps.Names)),
		StdDev:      make(map[string]float64, len(maps.Names)),
		Elapsed:     elapsed,
	}
	if p.mask != nil {
		m.Kept = p.mask.Count()
	}
	m.MeanRedChi = stat.Mean(finiteValues(maps.Stats[models.StatRedChi].RawMatrix().Data), nil)
	for _, name := range maps.Names {
		m.Mean[name], m.StdDev[name] = stat.MeanStdDev(finiteValues(maps.Values[name].RawMatrix().Data), nil)
	}
	p.metrics = m
}

func finiteValues(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// GetMetrics returns the metrics of the last run.
func (p *Pipeline) GetMetrics() Metrics { return p.metrics }

// Maps returns the maps of the last run.
func (p *Pipeline) Maps() *models.Maps { return p.maps }

// Mask returns the water mask of the last run, or nil when masking is off.
func (p *Pipeline) Mask() *models.Mask { return p.mask }

// Outputs returns the files written by the last run.
func (p *Pipeline) Outputs() []string { return append([]string(nil), p.outputs...) }
