package ncio

import "errors"

var (
	// ErrMissingVariable indicates a band or map variable absent from the file.
	ErrMissingVariable = errors.New("ncio: variable not in file")
	// ErrShapeMismatch indicates variables with differing 2-D shapes.
	ErrShapeMismatch = errors.New("ncio: variable shape mismatch")
	// ErrUnsupportedType indicates a variable stored as neither float nor double.
	ErrUnsupportedType = errors.New("ncio: unsupported variable type")
	// ErrNoBands indicates an empty band list.
	ErrNoBands = errors.New("ncio: no bands requested")
)
