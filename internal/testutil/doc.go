// Package testutil builds real package archives for tests.
//
// [WriteDeb] produces a Debian binary package and [WriteWheel] a wheel,
// both byte-for-byte deterministic for identical input so that tests can
// compare digests across runs.
package testutil
