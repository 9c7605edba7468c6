// Package deb reads Debian binary packages and the dpkg status database.
//
// A [Package] is opened from a .deb file: the ar container is walked, the
// control archive is parsed into a [Paragraph], dependency fields are parsed
// into [Clause] lists and the md5sums manifest is loaded. The data archive is
// streamed on demand by [Package.Verify] and [Package.Extract], which
// understand gzip, xz, zstd and uncompressed members.
//
// [Status] models /var/lib/dpkg/status: it answers which packages (and
// virtual packages provided by them) are present in a target filesystem and
// serializes back to deb822 in a deterministic order.
//
// Example usage:
//
//	pkg, err := deb.Open("/opt/offstage/debs/libfoo_1.0_amd64.deb")
//	if err != nil {
//	    return err
//	}
//	if err := pkg.Verify(); err != nil {
//	    return err
//	}
//	files, err := pkg.Extract(root)
package deb
