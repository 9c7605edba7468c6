package deb

import "errors"

var (
	ErrMalformed        = errors.New("malformed package")
	ErrMissingMember    = errors.New("missing archive member")
	ErrUnsupportedCodec = errors.New("unsupported compression")
	ErrChecksum         = errors.New("checksum mismatch")
	ErrRelation         = errors.New("invalid relation")
	ErrVersion          = errors.New("invalid version")
)
