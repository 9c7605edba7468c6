package cli

import (
	"errors"
	"fmt"
)

var ErrUsage = errors.New("usage error")

// Exit status of a child process that the command should exit with.
type ExitStatus int

func (s ExitStatus) Error() string {
	return fmt.Sprintf("exit status %d", int(s))
}
