// Package native plans and installs Debian binary packages into a runtime
// filesystem without running dpkg or apt.
//
// Planning is a pure function of the staged packages and the target's dpkg
// status database. Every Depends and Pre-Depends clause must be satisfied by
// a staged package, a package already on the target, or a Provides of
// either; anything else fails before the filesystem is touched. Packages are
// ordered dependencies first with ties broken by name, so identical inputs
// always produce identical plans. Dependency cycles, which dpkg permits, are
// emitted together in name order.
//
// Installation unpacks each package's data archive, records the dpkg info
// files and rewrites the status database. Maintainer scripts are stored but
// never executed here; packages that carry them are left unpacked and
// configured when the image is committed.
package native
