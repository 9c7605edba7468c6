// Package interp resolves and installs Python wheels into a runtime
// filesystem without pip.
//
// Resolution starts from the requirements manifest and follows
// Requires-Dist breadth-first, evaluating environment markers against the
// target [Environment]. Every required distribution must be matched by
// exactly one staged version; no match and several matching versions are
// both errors, so the result never depends on which wheels happened to be
// staged first. Installation follows the wheel binary format: files are
// unpacked into the install scheme, console scripts are generated and a new
// RECORD is written.
package interp
