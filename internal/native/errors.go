package native

import "errors"

var (
	ErrUnsatisfied  = errors.New("unsatisfied dependency")
	ErrArchitecture = errors.New("unsupported architecture")
)
