package iop

import (
	"fmt"
	"sort"

	"hydroinvert/pkg/spectral"
)

// Entry names a component for registration.
type Entry struct {
	Name      string
	Component Component
}

// Named is shorthand for an Entry literal.
func Named(name string, c Component) Entry { return Entry{Name: name, Component: c} }

// Model is an ordered set of named components on one waveband grid. A Model
// is read-only after NewModel and may be shared between goroutines.
type Model struct {
	grid    spectral.Grid
	entries []Entry
	index   map[string]int
}

// probeConcentration is used to check component output lengths at
// registration time.
const probeConcentration = 1.0

// NewModel registers entries against grid. Every component is evaluated once
// so that a spectrum of the wrong length is rejected here rather than while
// inverting.
func NewModel(grid spectral.Grid, entries ...Entry) (*Model, error) {
	if len(entries) == 0 {
		return nil, ErrNoComponents
	}
	m := &Model{
		grid:    grid,
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if e.Name == "" {
			return nil, ErrEmptyName
		}
		if _, dup := m.index[e.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateComponent, e.Name)
		}
		if err := m.check(e.Name, e.Component.Evaluate(probeConcentration)); err != nil {
			return nil, err
		}
		m.index[e.Name] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return m, nil
}

func (m *Model) check(name string, p IOP) error {
	n := m.grid.Len()
	if len(p.Absorption) != n || len(p.Backscatter) != n {
		return fmt.Errorf("%w: component %q returned %d/%d values for %d bands",
			ErrGridMismatch, name, len(p.Absorption), len(p.Backscatter), n)
	}
	return nil
}

// Grid returns the waveband grid of the model.
func (m *Model) Grid() spectral.Grid { return m.grid }

// Len returns the number of registered components.
func (m *Model) Len() int { return len(m.entries) }

// Names returns component names in registration order.
func (m *Model) Names() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Name
	}
	return out
}

// FreeNames returns the names of components taking a concentration, in
// registration order.
func (m *Model) FreeNames() []string {
	var out []string
	for _, e := range m.entries {
		if e.Component.Free() {
			out = append(out, e.Name)
		}
	}
	return out
}

// validate rejects names that do not address a free component.
func (m *Model) validate(params map[string]float64) error {
	var unknown []string
	for name := range params {
		i, ok := m.index[name]
		if !ok || !m.entries[i].Component.Free() {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %v", ErrUnknownParameter, unknown)
	}
	return nil
}

func (m *Model) evaluate(e Entry, params map[string]float64) (IOP, error) {
	var c float64
	if e.Component.Free() {
		v, ok := params[e.Name]
		if !ok {
			return IOP{}, fmt.Errorf("%w: %q", ErrMissingParameter, e.Name)
		}
		c = v
	}
	p := e.Component.Evaluate(c)
	if err := m.check(e.Name, p); err != nil {
		return IOP{}, err
	}
	return p, nil
}

// GetIOP returns one IOP per component in registration order, the
// num_components x 2 x num_bands stack. params holds one concentration per
// free component.
func (m *Model) GetIOP(params map[string]float64) ([]IOP, error) {
	if err := m.validate(params); err != nil {
		return nil, err
	}
	out := make([]IOP, len(m.entries))
	for i, e := range m.entries {
		p, err := m.evaluate(e, params)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// SumIOP returns total absorption and backscatter.
func (m *Model) SumIOP(params map[string]float64) (IOP, error) {
	if err := m.validate(params); err != nil {
		return IOP{}, err
	}
	total := NewIOP(m.grid.Len())
	for _, e := range m.entries {
		p, err := m.evaluate(e, params)
		if err != nil {
			return IOP{}, err
		}
		for i := range total.Absorption {
			total.Absorption[i] += p.Absorption[i]
			total.Backscatter[i] += p.Backscatter[i]
		}
	}
	return total, nil
}

// Derivative returns d(IOP)/dc of the named free component at its value in
// params. Totals are sums, so this is also the derivative of the totals.
func (m *Model) Derivative(name string, params map[string]float64) (IOP, error) {
	i, ok := m.index[name]
	if !ok {
		return IOP{}, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	e := m.entries[i]
	if !e.Component.Free() {
		return IOP{}, fmt.Errorf("%w: %q", ErrFixedComponent, name)
	}
	c, ok := params[name]
	if !ok {
		return IOP{}, fmt.Errorf("%w: %q", ErrMissingParameter, name)
	}
	d := e.Component.Derivative(c)
	if err := m.check(name, d); err != nil {
		return IOP{}, err
	}
	return d, nil
}
