package pipeline

import (
	"fmt"

	"hydroinvert/pkg/config"
	"hydroinvert/pkg/forward"
	"hydroinvert/pkg/inversion"
	"hydroinvert/pkg/iop"
	"hydroinvert/pkg/spectral"
)

// BuildGrid returns the model waveband grid.
func BuildGrid(cfg *config.Config) (spectral.Grid, error) {
	return spectral.Range(cfg.Model.Start, cfg.Model.Stop, cfg.Model.Step)
}

// BuildComponent returns the IOP component described by c on grid g.
func BuildComponent(g spectral.Grid, c config.Component) (iop.Component, error) {
	var lin *iop.Linear
	switch c.Type {
	case config.TypeWater:
		return iop.NewWater(g), nil
	case config.TypePhytoplankton:
		bb := c.Backscatter
		if bb == 0 {
			bb = iop.DefaultPhytoplanktonBackscatter
		}
		lin = iop.NewPhytoplankton(g, bb)
	case config.TypeCDOM:
		ref, slope := c.Reference, c.Slope
		if ref == 0 {
			ref = 440
		}
		if slope == 0 {
			slope = 0.017
		}
		lin = iop.NewCDOM(g, ref, slope)
	case config.TypeNAP:
		lin = iop.NewNAP(g, c.A443, c.Slope, c.BB555, c.Eta)
	default:
		return nil, fmt.Errorf("pipeline: unknown component type %q", c.Type)
	}
	if c.Exponent > 0 && c.Exponent != 1 {
		return iop.NewPowerLaw(lin.Evaluate(1), c.Exponent), nil
	}
	return lin, nil
}

// BuildReflectance returns the configured reflectance approximation for n
// bands.
func BuildReflectance(cfg *config.Config, g spectral.Grid) (forward.Reflectance, error) {
	switch cfg.Model.Reflectance {
	case config.ReflectanceQuasiSingle:
		return forward.NewQuasiSingle(g.Len())
	case config.ReflectanceLogPolynomial:
		if cfg.Model.CoefficientsFile == "" {
			return forward.DefaultLogPolynomial(g.Len())
		}
		cf, err := forward.LoadCoefficients(cfg.Model.CoefficientsFile)
		if err != nil {
			return nil, err
		}
		if len(cf.Wavelengths) > 0 {
			cg, err := spectral.NewGrid(cf.Wavelengths)
			if err != nil {
				return nil, fmt.Errorf("pipeline: coefficient wavelengths: %w", err)
			}
			if !cg.Equal(g) {
				return nil, fmt.Errorf("%w: coefficient file has %d bands %g..%g, model grid %d bands %g..%g",
					forward.ErrGridMismatch, cg.Len(), cg.At(0), cg.At(cg.Len()-1), g.Len(), g.At(0), g.At(g.Len()-1))
			}
		}
		poly, err := cf.Polynomial()
		if err != nil {
			return nil, err
		}
		return forward.NewLogPolynomial(poly), nil
	default:
		return nil, fmt.Errorf("pipeline: unknown reflectance model %q", cfg.Model.Reflectance)
	}
}

// BuildModel assembles the bio-optical and forward models.
func BuildModel(cfg *config.Config) (*forward.Model, error) {
	g, err := BuildGrid(cfg)
	if err != nil {
		return nil, err
	}
	entries := make([]iop.Entry, 0, len(cfg.Components))
	for _, c := range cfg.Components {
		comp, err := BuildComponent(g, c)
		if err != nil {
			return nil, err
		}
		entries = append(entries, iop.Named(c.Name, comp))
	}
	bio, err := iop.NewModel(g, entries...)
	if err != nil {
		return nil, err
	}
	refl, err := BuildReflectance(cfg, g)
	if err != nil {
		return nil, err
	}
	return forward.New(bio, refl)
}

// BuildParameters converts the configured starting point.
func BuildParameters(cfg *config.Config) inversion.Parameters {
	ps := make(inversion.Parameters, 0, len(cfg.Parameters))
	for _, p := range cfg.Parameters {
		ps = append(ps, inversion.Parameter{
			Name:  p.Name,
			Value: p.Value,
			Min:   p.Min,
			Max:   p.Upper(),
			Fixed: p.Fixed,
		})
	}
	return ps
}

// BuildMinimizer returns the configured solver.
func BuildMinimizer(cfg *config.Config) (inversion.Minimizer, error) {
	if cfg.Inversion.Method == "" || cfg.Inversion.Method == config.MethodLM {
		return inversion.LevenbergMarquardt{MaxIterations: cfg.Inversion.MaxIterations}, nil
	}
	gm, err := inversion.ParseMethod(cfg.Inversion.Method)
	if err != nil {
		return nil, err
	}
	gm.MaxIterations = cfg.Inversion.MaxIterations
	return gm, nil
}

// BuildInverter returns an inverter over model with the configured options.
func BuildInverter(cfg *config.Config, model *forward.Model) (*inversion.Inverter, error) {
	m, err := BuildMinimizer(cfg)
	if err != nil {
		return nil, err
	}
	opts := []inversion.Option{inversion.WithMinimizer(m)}
	if cfg.Inversion.NumericJacobian {
		opts = append(opts, inversion.WithNumericJacobian())
	}
	return inversion.New(model, opts...), nil
}
