package interp

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cruciblehq/offstage/internal/wheel"
)

// Returns the wrapper script for a console or GUI entry point.
func entryPointScript(interpreter string, ep wheel.EntryPoint) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "#!%s\n", interpreter)
	b.WriteString("# -*- coding: utf-8 -*-\n")
	b.WriteString("import re\n")
	b.WriteString("import sys\n")
	if ep.Attr == "" {
		fmt.Fprintf(&b, "import %s\n", ep.Module)
		b.WriteString("if __name__ == \"__main__\":\n")
		b.WriteString("    sys.argv[0] = re.sub(r\"(-script\\.pyw|\\.exe)?$\", \"\", sys.argv[0])\n")
		fmt.Fprintf(&b, "    sys.exit(%s)\n", ep.Module)
		return b.Bytes()
	}
	head, _, _ := strings.Cut(ep.Attr, ".")
	fmt.Fprintf(&b, "from %s import %s\n", ep.Module, head)
	b.WriteString("if __name__ == \"__main__\":\n")
	b.WriteString("    sys.argv[0] = re.sub(r\"(-script\\.pyw|\\.exe)?$\", \"\", sys.argv[0])\n")
	fmt.Fprintf(&b, "    sys.exit(%s())\n", ep.Attr)
	return b.Bytes()
}

// Replaces a "#!python" shebang with the target interpreter. Other content
// is returned unchanged.
func rewriteShebang(body []byte, interpreter string) []byte {
	line, rest, _ := bytes.Cut(body, []byte("\n"))
	if !bytes.HasPrefix(line, []byte("#!python")) {
		return body
	}
	out := append([]byte("#!"+interpreter), bytes.TrimPrefix(line, []byte("#!python"))...)
	if !bytes.Contains(body, []byte("\n")) {
		return out
	}
	return append(append(out, '\n'), rest...)
}
