package manifest

import "errors"

var (
	ErrSyntax      = errors.New("invalid requirements syntax")
	ErrUnsupported = errors.New("unsupported requirement")
	ErrInclude     = errors.New("invalid include")
)
