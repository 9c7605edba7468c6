package runtime

import (
	"archive/tar"
	"context"
	"io"
	"log/slog"
	"path/filepath"
)

// Copies a tar stream into the container's filesystem.
//
// The contents of r are extracted into destDir by piping them to "tar xf - -C
// destDir" inside the container.
func (c *Container) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	return c.check(ctx, r, nil, "tar", "xf", "-", "-C", destDir)
}

// Copies a path from the container's filesystem as a tar stream.
//
// The file or directory at path is archived by running "tar cf - -C <dir>
// <base>" inside the container and streaming the output to w.
func (c *Container) CopyFrom(ctx context.Context, w io.Writer, path string) error {
	return c.check(ctx, nil, w, "tar", "cf", "-", "-C", filepath.Dir(path), filepath.Base(path))
}

// Copies the contents of a host directory into destDir inside the container.
//
// The tree is streamed through a pipe by a single producer goroutine, so
// nothing is staged on disk. Entries are owned by root in the container.
func (c *Container) CopyTree(ctx context.Context, hostDir, destDir string) error {
	slog.Debug("copy tree", "src", hostDir, "dest", destDir)

	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		writeErr := writeDirToTar(tw, hostDir)
		if closeErr := tw.Close(); writeErr == nil {
			writeErr = closeErr
		}
		pw.CloseWithError(writeErr)
	}()

	err := c.CopyTo(ctx, pr, destDir)
	pr.CloseWithError(io.ErrClosedPipe)
	return err
}
