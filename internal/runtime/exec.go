package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"

	"github.com/cruciblehq/offstage/internal/fault"
)

var execSeq atomic.Uint64

// Returns a process identifier unique within this process.
func nextExecID() string {
	return fmt.Sprintf("offstage-exec-%d", execSeq.Add(1))
}

// Output of a command run inside a container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runs args inside the container's task with the container's own
// environment and working directory. A non-zero exit code is reported in
// the result, not as an error.
func (c *Container) Exec(ctx context.Context, args ...string) (*ExecResult, error) {
	var stdout, stderr bytes.Buffer
	code, err := c.run(ctx, nil, &stdout, &stderr, args)
	if err != nil {
		return nil, err
	}
	return &ExecResult{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// Runs args and fails with [ErrCommand] on a non-zero exit.
func (c *Container) check(ctx context.Context, stdin io.Reader, stdout io.Writer, args ...string) error {
	var stderr bytes.Buffer
	code, err := c.run(ctx, stdin, stdout, &stderr, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return fault.Wrapf(fault.ErrRuntime, "%w: %s exited with code %d: %s", ErrCommand, args[0], code, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// Starts args as an extra process of the running task and waits for it.
//
// The containerd shim holds both ends of the stdin FIFO, so EOF on stdin is
// only seen by the process once the IO is closed explicitly.
func (c *Container) run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) (int, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return 0, fault.Wrap(fault.ErrRuntime, err)
	}
	spec, err := ctr.Spec(ctx)
	if err != nil {
		return 0, fault.Wrap(fault.ErrRuntime, err)
	}
	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return 0, fault.Wrap(fault.ErrRuntime, err)
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = args

	if stdout == nil {
		stdout = io.Discard
	}
	var eof <-chan struct{}
	if stdin != nil {
		r := newEOFReader(stdin)
		stdin, eof = r, r.eof
	}

	process, err := task.Exec(ctx, nextExecID(), &pspec, cio.NewCreator(cio.WithStreams(stdin, stdout, stderr)))
	if err != nil {
		return 0, fault.Wrap(fault.ErrRuntime, err)
	}
	defer process.Delete(context.WithoutCancel(ctx))

	statusC, err := process.Wait(ctx)
	if err != nil {
		return 0, fault.Wrap(fault.ErrRuntime, err)
	}
	if err := process.Start(ctx); err != nil {
		return 0, fault.Wrap(fault.ErrRuntime, err)
	}

	if eof != nil {
		go func() {
			select {
			case <-eof:
				process.CloseIO(ctx, containerd.WithStdinCloser)
			case <-ctx.Done():
			}
		}()
	}

	code, _, err := (<-statusC).Result()
	if err != nil {
		return 0, fault.Wrap(fault.ErrRuntime, err)
	}
	return int(code), nil
}

// Reader that closes eof the first time the wrapped reader reports
// [io.EOF].
type eofReader struct {
	r    io.Reader
	once sync.Once
	eof  chan struct{}
}

func newEOFReader(r io.Reader) *eofReader {
	return &eofReader{r: r, eof: make(chan struct{})}
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		e.once.Do(func() { close(e.eof) })
	}
	return n, err
}
