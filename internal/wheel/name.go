package wheel

import (
	"regexp"
	"strings"
)

var separatorRuns = regexp.MustCompile(`[-_.]+`)

// Returns the PEP 503 normalized form of a distribution name.
//
// Names compare equal when their normalized forms are equal, so "Foo.Bar",
// "foo_bar" and "FOO-bar" all refer to the same distribution.
func Normalize(name string) string {
	return strings.ToLower(separatorRuns.ReplaceAllString(name, "-"))
}
