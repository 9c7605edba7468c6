// Package manifest parses requirements files.
//
// The accepted syntax is the subset of pip's requirements format that makes
// sense offline: one PEP 508 requirement per line with optional --hash
// options, "-r" includes and "-c" constraint files resolved relative to the
// including file, comments and backslash continuations. Index and link
// options are ignored with a warning because nothing is ever fetched.
// Editable installs and direct URL references are rejected.
package manifest
