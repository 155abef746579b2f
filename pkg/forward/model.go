package forward

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"hydroinvert/pkg/iop"
)

// Model composes a bio-optical model with a reflectance model. It holds no
// mutable state and may be shared by concurrent inversions.
type Model struct {
	bio  *iop.Model
	refl Reflectance
}

// New checks that bio and refl agree on the number of bands.
func New(bio *iop.Model, refl Reflectance) (*Model, error) {
	if n := bio.Grid().Len(); n != refl.Bands() {
		return nil, fmt.Errorf("%w: bio-optical model has %d bands, reflectance model %d",
			ErrGridMismatch, n, refl.Bands())
	}
	return &Model{bio: bio, refl: refl}, nil
}

// IOPModel returns the underlying bio-optical model.
func (m *Model) IOPModel() *iop.Model { return m.bio }

// Bands returns the number of wavebands.
func (m *Model) Bands() int { return m.bio.Grid().Len() }

// FreeNames returns the names of the free parameters.
func (m *Model) FreeNames() []string { return m.bio.FreeNames() }

// Forward returns the predicted reflectance spectrum for params.
func (m *Model) Forward(params map[string]float64) ([]float64, error) {
	total, err := m.bio.SumIOP(params)
	if err != nil {
		return nil, err
	}
	return m.refl.Reflectance(total.Absorption, total.Backscatter)
}

// Jacobian returns dRrs/dc as a bands x len(names) matrix, column j holding
// the derivative with respect to names[j]:
//
//	dRrs/dc = dRrs/da * da/dc + dRrs/dbb * dbb/dc
func (m *Model) Jacobian(params map[string]float64, names []string) (*mat.Dense, error) {
	total, err := m.bio.SumIOP(params)
	if err != nil {
		return nil, err
	}
	dA, dBB, err := m.refl.Gradient(total.Absorption, total.Backscatter)
	if err != nil {
		return nil, err
	}
	n := m.Bands()
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no parameters", ErrDimensionMismatch)
	}
	jac := mat.NewDense(n, len(names), nil)
	for j, name := range names {
		d, err := m.bio.Derivative(name, params)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			jac.Set(i, j, dA[i]*d.Absorption[i]+dBB[i]*d.Backscatter[i])
		}
	}
	return jac, nil
}

// IOPs returns the per component IOPs at params, in registration order.
func (m *Model) IOPs(params map[string]float64) ([]iop.IOP, error) {
	return m.bio.GetIOP(params)
}
