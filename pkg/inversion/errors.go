package inversion

import "errors"

var (
	// ErrSpectrumLength indicates a measured spectrum whose length differs
	// from the forward model bands.
	ErrSpectrumLength = errors.New("inversion: measured spectrum does not match model bands")
	// ErrWeightsLength indicates weights whose length differs from the spectrum.
	ErrWeightsLength = errors.New("inversion: weights do not match spectrum length")
	// ErrNonFiniteSpectrum indicates NaN or infinite measurements.
	ErrNonFiniteSpectrum = errors.New("inversion: measured spectrum contains NaN or Inf")
	// ErrNoFreeParameters indicates nothing to fit.
	ErrNoFreeParameters = errors.New("inversion: no free parameters")
	// ErrBadBounds indicates a parameter with Max < Min or a non-finite value.
	ErrBadBounds = errors.New("inversion: invalid parameter bounds")
	// ErrDuplicateParameter indicates a parameter name used twice.
	ErrDuplicateParameter = errors.New("inversion: duplicate parameter")
	// ErrEmptyParameterName indicates a parameter without a name.
	ErrEmptyParameterName = errors.New("inversion: parameter name must not be empty")
	// ErrUnknownMethod indicates an unsupported minimizer name.
	ErrUnknownMethod = errors.New("inversion: unknown minimization method")
)
