package wheel

import (
	"fmt"
	"strings"

	version "github.com/aquasecurity/go-pep440-version"
)

// Variables a marker may reference.
var markerVariables = map[string]bool{
	"os_name":                        true,
	"sys_platform":                   true,
	"platform_machine":               true,
	"platform_python_implementation": true,
	"platform_release":               true,
	"platform_system":                true,
	"platform_version":               true,
	"python_version":                 true,
	"python_full_version":            true,
	"implementation_name":            true,
	"implementation_version":         true,
	"extra":                          true,
}

// A parsed PEP 508 environment marker.
type Marker struct {
	raw  string
	expr markerNode
}

// Parses a marker expression such as
// `python_version >= "3.8" and extra == "socks"`.
func ParseMarker(s string) (*Marker, error) {
	toks, err := tokenizeMarker(s)
	if err != nil {
		return nil, err
	}
	p := &markerParser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMarker, s, err)
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("%w: %q: unexpected %q", ErrMarker, s, p.toks[p.pos].text)
	}
	return &Marker{raw: strings.TrimSpace(s), expr: expr}, nil
}

func (m *Marker) String() string {
	return m.raw
}

// Evaluates the marker against env, which maps marker variable names to
// their values. Variables absent from env evaluate as the empty string.
func (m *Marker) Evaluate(env map[string]string) (bool, error) {
	return m.expr.eval(env)
}

type markerNode interface {
	eval(env map[string]string) (bool, error)
}

type markerAnd struct{ left, right markerNode }

func (n markerAnd) eval(env map[string]string) (bool, error) {
	l, err := n.left.eval(env)
	if err != nil || !l {
		return false, err
	}
	return n.right.eval(env)
}

type markerOr struct{ left, right markerNode }

func (n markerOr) eval(env map[string]string) (bool, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return false, err
	}
	if l {
		return true, nil
	}
	return n.right.eval(env)
}

// A marker operand, either a variable or a quoted literal.
type markerValue struct {
	variable string
	literal  string
}

func (v markerValue) resolve(env map[string]string) string {
	if v.variable != "" {
		return env[v.variable]
	}
	return v.literal
}

type markerCompare struct {
	left, right markerValue
	op          string
}

func (n markerCompare) eval(env map[string]string) (bool, error) {
	l, r := n.left.resolve(env), n.right.resolve(env)

	if n.left.variable == "extra" || n.right.variable == "extra" {
		l, r = Normalize(l), Normalize(r)
	}

	switch n.op {
	case "in":
		return strings.Contains(r, l), nil
	case "not in":
		return !strings.Contains(r, l), nil
	}

	if lv, err := version.Parse(l); err == nil && n.op != "===" {
		spec, err := version.NewSpecifiers(n.op+r, version.WithPreRelease(true))
		if err == nil {
			return spec.Check(lv), nil
		}
	}

	switch n.op {
	case "==", "===":
		return l == r, nil
	case "!=":
		return l != r, nil
	}
	return false, fmt.Errorf("%w: cannot compare %q %s %q", ErrMarker, l, n.op, r)
}

type markerToken struct {
	kind byte // 'v' variable, 's' string, 'o' operator, '(' or ')', 'a' and, 'r' or.
	text string
}

func tokenizeMarker(s string) ([]markerToken, error) {
	var toks []markerToken
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(' || c == ')':
			toks = append(toks, markerToken{kind: c, text: string(c)})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("%w: %q: unterminated string", ErrMarker, s)
			}
			toks = append(toks, markerToken{kind: 's', text: s[i+1 : i+1+end]})
			i += end + 2
		case strings.ContainsRune("<>=!~", rune(c)):
			j := i + 1
			for j < len(s) && strings.ContainsRune("<>=!~", rune(s[j])) {
				j++
			}
			op := s[i:j]
			switch op {
			case "<", "<=", ">", ">=", "==", "!=", "~=", "===":
			default:
				return nil, fmt.Errorf("%w: %q: unknown operator %q", ErrMarker, s, op)
			}
			toks = append(toks, markerToken{kind: 'o', text: op})
			i = j
		case isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			word := s[i:j]
			i = j
			switch word {
			case "and":
				toks = append(toks, markerToken{kind: 'a', text: word})
			case "or":
				toks = append(toks, markerToken{kind: 'r', text: word})
			case "in":
				toks = append(toks, markerToken{kind: 'o', text: word})
			case "not":
				rest := strings.TrimLeft(s[i:], " \t")
				if !strings.HasPrefix(rest, "in") {
					return nil, fmt.Errorf("%w: %q: expected \"in\" after \"not\"", ErrMarker, s)
				}
				i = len(s) - len(rest) + 2
				toks = append(toks, markerToken{kind: 'o', text: "not in"})
			default:
				if !markerVariables[word] {
					return nil, fmt.Errorf("%w: %q: unknown variable %q", ErrMarker, s, word)
				}
				toks = append(toks, markerToken{kind: 'v', text: word})
			}
		default:
			return nil, fmt.Errorf("%w: %q: unexpected character %q", ErrMarker, s, c)
		}
	}
	return toks, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type markerParser struct {
	toks []markerToken
	pos  int
}

func (p *markerParser) peek() byte {
	if p.pos < len(p.toks) {
		return p.toks[p.pos].kind
	}
	return 0
}

func (p *markerParser) parseOr() (markerNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == 'r' {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = markerOr{left, right}
	}
	return left, nil
}

func (p *markerParser) parseAnd() (markerNode, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.peek() == 'a' {
		p.pos++
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = markerAnd{left, right}
	}
	return left, nil
}

func (p *markerParser) parseAtom() (markerNode, error) {
	if p.peek() == '(' {
		p.pos++
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return expr, nil
	}

	left, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if p.peek() != 'o' {
		return nil, fmt.Errorf("expected operator")
	}
	op := p.toks[p.pos].text
	p.pos++
	right, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return markerCompare{left: left, op: op, right: right}, nil
}

func (p *markerParser) parseValue() (markerValue, error) {
	switch p.peek() {
	case 'v':
		t := p.toks[p.pos]
		p.pos++
		return markerValue{variable: t.text}, nil
	case 's':
		t := p.toks[p.pos]
		p.pos++
		return markerValue{literal: t.text}, nil
	}
	return markerValue{}, fmt.Errorf("expected variable or string")
}
