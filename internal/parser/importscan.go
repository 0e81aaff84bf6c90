package parser

import (
	"bufio"
	"bytes"
	"sort"
	"strings"
)

// ScanImports extracts the import targets declared in content. The scan is
// line-based and intentionally conservative: it only reports imports whose
// syntax is unambiguous on a single line (plus Go's import blocks). Results
// are deduplicated and sorted.
func ScanImports(content []byte, lang Language) []string {
	var imports []string
	switch lang {
	case LangGo:
		imports = scanGoImports(content)
	case LangPython:
		imports = scanPythonImports(content)
	case LangJavaScript, LangTypeScript, LangTSX:
		imports = scanJSImports(content)
	case LangRust:
		imports = scanRustImports(content)
	case LangJava, LangKotlin:
		imports = scanJavaImports(content)
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(imports))
	out := imports[:0]
	for _, imp := range imports {
		if imp == "" {
			continue
		}
		if _, dup := seen[imp]; dup {
			continue
		}
		seen[imp] = struct{}{}
		out = append(out, imp)
	}
	sort.Strings(out)
	return out
}

func scanGoImports(content []byte) []string {
	var out []string
	inBlock := false
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case inBlock:
			if line == ")" {
				inBlock = false
				continue
			}
			if p := quoted(line); p != "" {
				out = append(out, p)
			}
		case line == "import (":
			inBlock = true
		case strings.HasPrefix(line, "import ("):
			inBlock = true
		case strings.HasPrefix(line, "import "):
			if p := quoted(line); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func scanPythonImports(content []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "from "):
			rest := strings.TrimPrefix(line, "from ")
			if i := strings.Index(rest, " import "); i > 0 {
				out = append(out, strings.TrimSpace(rest[:i]))
			}
		case strings.HasPrefix(line, "import "):
			rest := strings.TrimPrefix(line, "import ")
			if i := strings.Index(rest, "#"); i >= 0 {
				rest = rest[:i]
			}
			for _, part := range strings.Split(rest, ",") {
				name := strings.TrimSpace(part)
				if i := strings.Index(name, " as "); i > 0 {
					name = name[:i]
				}
				if name != "" {
					out = append(out, name)
				}
			}
		}
	}
	return out
}

func scanJSImports(content []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "import ") || strings.HasPrefix(line, "export "):
			if i := strings.Index(line, " from "); i > 0 {
				if p := quoted(line[i:]); p != "" {
					out = append(out, p)
				}
			} else if strings.HasPrefix(line, "import ") {
				// Side-effect import: import "./styles.css"
				if p := quoted(line); p != "" {
					out = append(out, p)
				}
			}
		case strings.Contains(line, "require("):
			i := strings.Index(line, "require(")
			if p := quoted(line[i:]); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func scanRustImports(content []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "use ") {
			continue
		}
		rest := strings.TrimPrefix(line, "use ")
		rest = strings.TrimSuffix(rest, ";")
		// Keep the path prefix before any brace group or glob.
		if i := strings.IndexAny(rest, "{*"); i >= 0 {
			rest = rest[:i]
		}
		rest = strings.TrimSuffix(strings.TrimSpace(rest), "::")
		if i := strings.Index(rest, " as "); i > 0 {
			rest = rest[:i]
		}
		if rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

func scanJavaImports(content []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "import ") {
			continue
		}
		rest := strings.TrimPrefix(line, "import ")
		rest = strings.TrimPrefix(rest, "static ")
		rest = strings.TrimSuffix(strings.TrimSpace(rest), ";")
		rest = strings.TrimSuffix(rest, ".*")
		if rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

// quoted returns the first single- or double-quoted string in s.
func quoted(s string) string {
	for _, q := range []byte{'"', '\'', '`'} {
		start := strings.IndexByte(s, q)
		if start < 0 {
			continue
		}
		end := strings.IndexByte(s[start+1:], q)
		if end < 0 {
			continue
		}
		return s[start+1 : start+1+end]
	}
	return ""
}
