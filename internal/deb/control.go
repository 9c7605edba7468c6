package deb

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// A deb822 paragraph: an ordered set of case-insensitive fields.
type Paragraph struct {
	keys   []string          // Field names in insertion order, original case.
	values map[string]string // Values keyed by lower-cased field name.
}

// Returns the value of a field, or "".
func (p Paragraph) Get(key string) string {
	return p.values[strings.ToLower(key)]
}

// Sets a field, keeping its original position when it already exists.
func (p *Paragraph) Set(key, value string) {
	lk := strings.ToLower(key)
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, ok := p.values[lk]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[lk] = value
}

// Removes a field.
func (p *Paragraph) Delete(key string) {
	lk := strings.ToLower(key)
	if _, ok := p.values[lk]; !ok {
		return
	}
	delete(p.values, lk)
	for i, k := range p.keys {
		if strings.ToLower(k) == lk {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			return
		}
	}
}

// Returns the field names in order.
func (p Paragraph) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Serializes the paragraph without a trailing blank line. Multi-line values
// are folded with a leading space, empty continuation lines become " .".
func (p Paragraph) String() string {
	var b strings.Builder
	for _, k := range p.keys {
		v := p.values[strings.ToLower(k)]
		lines := strings.Split(v, "\n")
		b.WriteString(k)
		b.WriteString(":")
		if lines[0] != "" {
			b.WriteString(" ")
			b.WriteString(lines[0])
		}
		b.WriteString("\n")
		for _, l := range lines[1:] {
			if strings.TrimSpace(l) == "" {
				l = "."
			}
			b.WriteString(" ")
			b.WriteString(l)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Parses a single paragraph. Fails if the input holds more than one.
func ParseParagraph(r io.Reader) (Paragraph, error) {
	ps, err := ParseParagraphs(r)
	if err != nil {
		return Paragraph{}, err
	}
	if len(ps) != 1 {
		return Paragraph{}, fmt.Errorf("%w: expected one paragraph, got %d", ErrMalformed, len(ps))
	}
	return ps[0], nil
}

// Parses a sequence of blank-line separated deb822 paragraphs.
func ParseParagraphs(r io.Reader) ([]Paragraph, error) {
	var (
		out  []Paragraph
		cur  Paragraph
		last string
	)

	flush := func() {
		if len(cur.keys) > 0 {
			out = append(out, cur)
		}
		cur = Paragraph{}
		last = ""
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), "\r")

		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case strings.HasPrefix(line, "#"):
		case line[0] == ' ' || line[0] == '\t':
			if last == "" {
				return nil, fmt.Errorf("%w: line %d: continuation without field", ErrMalformed, n)
			}
			cont := strings.TrimSpace(line)
			if cont == "." {
				cont = ""
			}
			cur.Set(last, cur.Get(last)+"\n"+cont)
		default:
			key, value, ok := strings.Cut(line, ":")
			if !ok || strings.TrimSpace(key) == "" {
				return nil, fmt.Errorf("%w: line %d: expected field", ErrMalformed, n)
			}
			key = strings.TrimSpace(key)
			cur.Set(key, strings.TrimSpace(value))
			last = key
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return out, nil
}
