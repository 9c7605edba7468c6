package wheel

import "errors"

var (
	ErrFilename    = errors.New("invalid wheel filename")
	ErrMalformed   = errors.New("malformed wheel")
	ErrRequirement = errors.New("invalid requirement")
	ErrMarker      = errors.New("invalid environment marker")
	ErrHash        = errors.New("hash mismatch")
	ErrUnrecorded  = errors.New("file missing from RECORD")
)
