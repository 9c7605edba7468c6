// Package store reads the pre-staged artifact directories.
//
// The store is read-only: it parses every .deb and .whl file it finds and
// never fetches anything. A missing directory is an empty store, so an image
// without native packages needs no native directory at all.
package store
