package interp

import "errors"

var (
	ErrNoMatch     = errors.New("no staged artifact satisfies the requirement")
	ErrAmbiguous   = errors.New("more than one staged version satisfies the requirement")
	ErrConflict    = errors.New("conflicting requirements")
	ErrNetwork     = errors.New("requirement needs network access")
	ErrHashMissing = errors.New("artifact digest not in allowed hashes")
)
