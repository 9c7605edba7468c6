package deb

import (
	"fmt"
	"strings"
)

// Version relation operators.
const (
	OpLess         = "<<"
	OpLessEqual    = "<="
	OpEqual        = "="
	OpGreaterEqual = ">="
	OpGreater      = ">>"
)

// A single package relation, e.g. "libc6:any (>= 2.34)".
type Relation struct {
	Name    string // Package or virtual package name.
	Arch    string // Architecture qualifier ("any", "native"), if any.
	Op      string // Version operator, empty when unversioned.
	Version string // Version operand.
}

// Alternatives separated by "|". Satisfied when any relation is.
type Clause []Relation

func (r Relation) String() string {
	name := r.Name
	if r.Arch != "" {
		name += ":" + r.Arch
	}
	if r.Op == "" {
		return name
	}
	return fmt.Sprintf("%s (%s %s)", name, r.Op, r.Version)
}

func (c Clause) String() string {
	parts := make([]string, len(c))
	for i, r := range c {
		parts[i] = r.String()
	}
	return strings.Join(parts, " | ")
}

// Reports whether version satisfies the relation's version constraint.
// Unversioned relations are satisfied by any version.
func (r Relation) SatisfiedBy(version string) (bool, error) {
	if r.Op == "" {
		return true, nil
	}
	if version == "" {
		return false, nil
	}
	c, err := CompareVersions(version, r.Version)
	if err != nil {
		return false, err
	}
	switch r.Op {
	case OpLess:
		return c < 0, nil
	case OpLessEqual:
		return c <= 0, nil
	case OpEqual:
		return c == 0, nil
	case OpGreaterEqual:
		return c >= 0, nil
	case OpGreater:
		return c > 0, nil
	}
	return false, fmt.Errorf("%w: operator %q", ErrRelation, r.Op)
}

// Parses a comma-separated relation field such as Depends.
func ParseClauses(field string) ([]Clause, error) {
	field = strings.TrimSpace(strings.ReplaceAll(field, "\n", " "))
	if field == "" {
		return nil, nil
	}

	var out []Clause
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var clause Clause
		for _, alt := range strings.Split(part, "|") {
			rel, err := ParseRelation(alt)
			if err != nil {
				return nil, err
			}
			clause = append(clause, rel)
		}
		out = append(out, clause)
	}
	return out, nil
}

// Parses a single relation. Architecture restriction lists ("[amd64]") and
// build profiles ("<!nocheck>") are dropped.
func ParseRelation(s string) (Relation, error) {
	s = stripBracketed(strings.TrimSpace(s), '[', ']')
	if j := strings.LastIndexByte(s, ')'); j >= 0 {
		s = s[:j+1] + stripBracketed(s[j+1:], '<', '>')
	} else {
		s = stripBracketed(s, '<', '>')
	}
	s = strings.TrimSpace(s)

	var rel Relation
	name := s
	if i := strings.IndexByte(s, '('); i >= 0 {
		j := strings.IndexByte(s, ')')
		if j < i {
			return Relation{}, fmt.Errorf("%w: %q", ErrRelation, s)
		}
		op, ver, err := parseConstraint(s[i+1 : j])
		if err != nil {
			return Relation{}, fmt.Errorf("%w: %q: %v", ErrRelation, s, err)
		}
		rel.Op, rel.Version = op, ver
		name = strings.TrimSpace(s[:i])
	}

	if n, arch, ok := strings.Cut(name, ":"); ok {
		name, rel.Arch = n, arch
	}
	if name == "" || strings.ContainsAny(name, " \t") {
		return Relation{}, fmt.Errorf("%w: %q", ErrRelation, s)
	}
	rel.Name = name
	return rel, nil
}

// Splits "(>= 1.0)" contents into an operator and a version. The obsolete
// "<" and ">" forms mean "<=" and ">=".
func parseConstraint(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	for _, op := range []string{OpLess, OpLessEqual, OpGreaterEqual, OpGreater, OpEqual, "<", ">"} {
		if rest, ok := strings.CutPrefix(s, op); ok {
			ver := strings.TrimSpace(rest)
			if ver == "" {
				return "", "", fmt.Errorf("missing version")
			}
			if !ValidVersion(ver) {
				return "", "", fmt.Errorf("%w: %q", ErrVersion, ver)
			}
			switch op {
			case "<":
				op = OpLessEqual
			case ">":
				op = OpGreaterEqual
			}
			return op, ver, nil
		}
	}
	return "", "", fmt.Errorf("unknown operator in %q", s)
}

// Removes every open...close delimited section from s.
func stripBracketed(s string, open, close byte) string {
	for {
		i := strings.IndexByte(s, open)
		if i < 0 {
			return s
		}
		j := strings.IndexByte(s[i:], close)
		if j < 0 {
			return s[:i]
		}
		s = s[:i] + s[i+j+1:]
	}
}
