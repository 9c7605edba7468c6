// Package wheel reads Python wheel archives.
//
// A wheel is a zip file named after its distribution, version and
// compatibility tags. Its .dist-info directory carries the METADATA (name,
// version, Requires-Dist, Requires-Python), the WHEEL descriptor and the
// RECORD manifest of sha256 digests that [Wheel.Verify] checks. The package
// also parses PEP 508 requirement strings and evaluates their environment
// markers, which the interpreter installer uses to expand transitive
// dependencies.
//
// Versions and specifiers follow PEP 440 and are compared with
// github.com/aquasecurity/go-pep440-version.
package wheel
