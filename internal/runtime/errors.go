package runtime

import "errors"

var (
	ErrEmptyArchive   = errors.New("archive contains no image")
	ErrMultipleImages = errors.New("archive contains more than one image")
	ErrEmptyIndex     = errors.New("empty image index")
	ErrCommand        = errors.New("container command failed")
)
