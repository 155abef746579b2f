package iop

import "errors"

var (
	// ErrUnknownParameter indicates a parameter name that matches no free
	// component of the model.
	ErrUnknownParameter = errors.New("iop: unknown parameter")
	// ErrMissingParameter indicates a free component without a value.
	ErrMissingParameter = errors.New("iop: missing parameter")
	// ErrGridMismatch indicates a component spectrum whose length differs
	// from the model grid.
	ErrGridMismatch = errors.New("iop: component spectrum does not match waveband grid")
	// ErrDuplicateComponent indicates two components registered under one name.
	ErrDuplicateComponent = errors.New("iop: duplicate component name")
	// ErrEmptyName indicates a component registered without a name.
	ErrEmptyName = errors.New("iop: component name must not be empty")
	// ErrNoComponents indicates a model without components.
	ErrNoComponents = errors.New("iop: model needs at least one component")
	// ErrFixedComponent indicates a derivative requested for a fixed component.
	ErrFixedComponent = errors.New("iop: component has no free parameter")
)
