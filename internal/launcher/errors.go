package launcher

import "errors"

var (
	ErrEntryModule = errors.New("application entry module not found")
	ErrBind        = errors.New("cannot bind service address")
	ErrStart       = errors.New("cannot start application process")
	ErrNotStarted  = errors.New("launcher not started")
)
