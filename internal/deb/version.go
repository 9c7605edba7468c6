package deb

import (
	"fmt"

	debversion "github.com/knqyf263/go-deb-version"
)

// Compares two Debian versions, returning -1, 0 or 1.
func CompareVersions(a, b string) (int, error) {
	va, err := debversion.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrVersion, a, err)
	}
	vb, err := debversion.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrVersion, b, err)
	}
	return va.Compare(vb), nil
}

// Reports whether a version string is a valid Debian version.
func ValidVersion(v string) bool {
	_, err := debversion.NewVersion(v)
	return err == nil
}
