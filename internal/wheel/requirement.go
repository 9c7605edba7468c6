package wheel

import (
	"fmt"
	"slices"
	"strings"

	version "github.com/aquasecurity/go-pep440-version"
)

// A parsed PEP 508 dependency specification.
type Requirement struct {
	Name      string   // Distribution name as written.
	Extras    []string // Requested extras, normalized and sorted.
	Specifier string   // Version specifier set without spaces, e.g. ">=1.0,<2". Empty allows any version.
	URL       string   // Direct reference after "@", if any.
	Marker    *Marker  // Environment marker, if any.
}

// Parses a requirement such as `requests[socks] (>=2.8.1, <3) ; python_version >= "3.8"`.
func ParseRequirement(s string) (Requirement, error) {
	var req Requirement

	body, marker, hasMarker := strings.Cut(s, ";")
	if hasMarker {
		m, err := ParseMarker(marker)
		if err != nil {
			return Requirement{}, fmt.Errorf("%w: %q: %w", ErrRequirement, s, err)
		}
		req.Marker = m
	}

	body = strings.TrimSpace(body)
	end := 0
	for end < len(body) && isNameByte(body[end]) {
		end++
	}
	if end == 0 || !isAlnum(body[0]) || !isAlnum(body[end-1]) {
		return Requirement{}, fmt.Errorf("%w: %q: invalid name", ErrRequirement, s)
	}
	req.Name = body[:end]
	rest := strings.TrimSpace(body[end:])

	if strings.HasPrefix(rest, "[") {
		rb := strings.IndexByte(rest, ']')
		if rb < 0 {
			return Requirement{}, fmt.Errorf("%w: %q: unterminated extras", ErrRequirement, s)
		}
		for _, e := range strings.Split(rest[1:rb], ",") {
			if e = strings.TrimSpace(e); e != "" {
				req.Extras = append(req.Extras, Normalize(e))
			}
		}
		slices.Sort(req.Extras)
		req.Extras = slices.Compact(req.Extras)
		rest = strings.TrimSpace(rest[rb+1:])
	}

	if url, ok := strings.CutPrefix(rest, "@"); ok {
		req.URL = strings.TrimSpace(url)
		if req.URL == "" {
			return Requirement{}, fmt.Errorf("%w: %q: empty URL", ErrRequirement, s)
		}
		return req, nil
	}

	if strings.HasPrefix(rest, "(") {
		if !strings.HasSuffix(rest, ")") {
			return Requirement{}, fmt.Errorf("%w: %q: unterminated specifier", ErrRequirement, s)
		}
		rest = rest[1 : len(rest)-1]
	}
	req.Specifier = strings.Join(strings.Fields(rest), "")
	if req.Specifier != "" {
		if _, err := version.NewSpecifiers(req.Specifier); err != nil {
			return Requirement{}, fmt.Errorf("%w: %q: %v", ErrRequirement, s, err)
		}
	}
	return req, nil
}

// Returns the normalized distribution name.
func (r Requirement) Key() string {
	return Normalize(r.Name)
}

// Reports whether v satisfies the version specifier. Pre-releases are only
// accepted when pre is set.
func (r Requirement) Allows(v version.Version, pre bool) bool {
	if r.Specifier == "" {
		return true
	}
	spec, err := version.NewSpecifiers(r.Specifier, version.WithPreRelease(pre))
	if err != nil {
		return false
	}
	return spec.Check(v)
}

// Reports whether the requirement applies in env. Requirements without a
// marker always apply.
func (r Requirement) Applies(env map[string]string) (bool, error) {
	if r.Marker == nil {
		return true, nil
	}
	return r.Marker.Evaluate(env)
}

func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	if r.URL != "" {
		b.WriteString(" @ " + r.URL)
	}
	b.WriteString(r.Specifier)
	if r.Marker != nil {
		b.WriteString("; " + r.Marker.String())
	}
	return b.String()
}

func isNameByte(c byte) bool {
	return isAlnum(c) || c == '-' || c == '_' || c == '.'
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
