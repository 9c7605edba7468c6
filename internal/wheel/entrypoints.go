package wheel

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// A console or GUI script declared in entry_points.txt.
type EntryPoint struct {
	Name   string // Script name.
	Module string // Importable module.
	Attr   string // Dotted attribute path within the module, may be empty.
}

// Parses the console_scripts and gui_scripts groups of an entry_points.txt
// body. Other groups are ignored.
func ParseEntryPoints(body []byte) ([]EntryPoint, error) {
	var out []EntryPoint
	section := ""

	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		if section != "console_scripts" && section != "gui_scripts" {
			continue
		}

		name, ref, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: entry point %q", ErrMalformed, line)
		}
		ref, _, _ = strings.Cut(ref, "[")
		module, attr, _ := strings.Cut(strings.TrimSpace(ref), ":")
		ep := EntryPoint{
			Name:   strings.TrimSpace(name),
			Module: strings.TrimSpace(module),
			Attr:   strings.TrimSpace(attr),
		}
		if ep.Name == "" || ep.Module == "" {
			return nil, fmt.Errorf("%w: entry point %q", ErrMalformed, line)
		}
		out = append(out, ep)
	}
	return out, sc.Err()
}
