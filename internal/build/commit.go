package build

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/offstage/internal/fault"
	"github.com/cruciblehq/offstage/internal/finalize"
	"github.com/cruciblehq/offstage/internal/launcher"
	"github.com/cruciblehq/offstage/internal/paths"
	"github.com/cruciblehq/offstage/internal/rootfs"
	"github.com/cruciblehq/offstage/internal/runtime"
)

// Container ID of the commit container. Runs are sequential, so a stale
// container from an interrupted run is simply replaced.
const commitContainerID = "offstage-commit"

// Controls the image commit.
type CommitOptions struct {
	Address     string // Containerd socket.
	Namespace   string // Containerd namespace.
	Snapshotter string // Snapshotter, empty for [runtime.DefaultSnapshotter].
	BaseImage   string // OCI archive of the base image.
	Output      string // Directory receiving the exported image.tar.
	Platform    string // OCI platform, empty for the host.
}

// Holds the commit container for the duration of a run.
type committer struct {
	rt     *runtime.Runtime
	ctr    *runtime.Container
	output string
}

// Starts a container from the base image and seeds the root's dpkg
// database from it, so native resolution sees the packages the base image
// already carries.
func startCommit(ctx context.Context, opts CommitOptions, root *rootfs.Root) (*committer, error) {
	if root.Dir() == "/" {
		return nil, fault.Wrapf(fault.ErrRuntime, "%w: committing needs a staging root, not /", ErrCommit)
	}

	rt, err := runtime.New(opts.Address, opts.Namespace, opts.Snapshotter)
	if err != nil {
		return nil, err
	}

	ctr, err := rt.StartContainer(ctx, opts.BaseImage, commitContainerID, opts.Platform)
	if err != nil {
		rt.Close()
		return nil, err
	}

	c := &committer{rt: rt, ctr: ctr, output: opts.Output}
	if err := c.seedStatus(ctx, root); err != nil {
		c.close(ctx)
		return nil, err
	}
	return c, nil
}

// Copies the base image's dpkg status file into root unless root already
// has one.
func (c *committer) seedStatus(ctx context.Context, root *rootfs.Root) error {
	if root.Exists(paths.DpkgStatus) {
		return nil
	}

	var buf bytes.Buffer
	if err := c.ctr.CopyFrom(ctx, &buf, paths.DpkgStatus); err != nil {
		slog.Warn("base image has no dpkg database", "error", err)
		return nil
	}

	tr := tar.NewReader(&buf)
	if _, err := tr.Next(); err != nil {
		return fault.Wrapf(fault.ErrRuntime, "%w: reading base dpkg status: %v", ErrCommit, err)
	}
	data, err := io.ReadAll(tr)
	if err != nil {
		return fault.Wrapf(fault.ErrRuntime, "%w: reading base dpkg status: %v", ErrCommit, err)
	}

	slog.Debug("seeded dpkg status from base image", "bytes", len(data))
	return root.WriteFile(paths.DpkgStatus, data, paths.DefaultFileMode)
}

// Streams root into the container, configures unpacked dpkg packages and
// exports the result. Returns the path of the exported archive.
func (c *committer) commit(ctx context.Context, root *rootfs.Root, flags finalize.Flags, appDir string) (string, error) {
	slog.Info("committing image", "root", root.Dir())

	if err := c.ctr.CopyTree(ctx, root.Dir(), "/"); err != nil {
		return "", fault.Wrapf(fault.ErrRuntime, "%w: %w", ErrCommit, err)
	}

	res, err := c.ctr.Exec(ctx, "dpkg", "--configure", "--pending")
	if err != nil {
		return "", fault.Wrapf(fault.ErrRuntime, "%w: %w", ErrCommit, err)
	}
	if res.ExitCode != 0 {
		return "", fault.Wrapf(fault.ErrRuntime, "%w: dpkg --configure --pending exited with code %d: %s", ErrCommit, res.ExitCode, res.Stderr)
	}

	if err := c.ctr.Stop(ctx); err != nil {
		return "", err
	}

	if err := os.MkdirAll(c.output, paths.DefaultDirMode); err != nil {
		return "", fault.Wrap(fault.ErrFileSystem, err)
	}
	return c.ctr.Export(ctx, c.output, imageConfig(flags, appDir))
}

// Releases the container and the containerd connection.
func (c *committer) close(ctx context.Context) {
	c.ctr.Destroy(ctx)
	if err := c.rt.Close(); err != nil {
		slog.Warn("failed to close containerd client", "error", err)
	}
}

// Returns the image config of the committed image: the launcher as
// entrypoint, the environment flags, the service port and the application
// directory.
func imageConfig(flags finalize.Flags, appDir string) ocispec.ImageConfig {
	_, port, _ := net.SplitHostPort(launcher.Address)
	return ocispec.ImageConfig{
		Entrypoint:   []string{paths.SelfBinary, "serve"},
		Env:          flags.Environ(),
		ExposedPorts: map[string]struct{}{port + "/tcp": {}},
		WorkingDir:   appDir,
	}
}
