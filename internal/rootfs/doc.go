// Package rootfs confines writes to a target root directory.
//
// A [Root] is the mutable runtime filesystem assembled by the install
// pipeline. Every path handed to a Root is interpreted relative to the root
// directory, and symlinks inside the tree are resolved without escaping it,
// so archive entries such as "../../etc/passwd" or links pointing at "/"
// can never touch the host outside the root.
//
// Example usage:
//
//	root, err := rootfs.New("/tmp/image-root")
//	if err != nil {
//	    return err
//	}
//	err = root.WriteEntry(rootfs.Entry{
//	    Path: "/usr/share/doc/foo/README",
//	    Type: rootfs.TypeFile,
//	    Mode: 0644,
//	}, strings.NewReader("hello"))
package rootfs
