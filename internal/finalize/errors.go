package finalize

import "errors"

var (
	ErrSource = errors.New("invalid application source")
)
