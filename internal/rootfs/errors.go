package rootfs

import "errors"

var (
	ErrUnsupportedEntry = errors.New("unsupported entry type")
	ErrNotDirectory     = errors.New("root is not a directory")
)
