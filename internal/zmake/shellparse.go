package zmake

import (
	"strings"
)

// ParseShellRecipe parses the shell-style recipe front-end. The scan is
// line-oriented and lenient: blanks, comments and unrecognized lines are
// skipped. Hook bodies are extracted separately from the same text.
func ParseShellRecipe(text string) *Recipe {
	rec := &Recipe{Hooks: make(map[HookName]string)}

	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if key, items, consumed, ok := parseArrayAssign(lines, i); ok {
			i = consumed
			switch key {
			case "architectures":
				rec.Architectures = items
			case "licenses":
				rec.Licenses = items
			case "runtime_dependencies":
				rec.RuntimeDeps = parseDependencies(items)
			case "build_dependencies":
				rec.BuildDeps = parseDependencies(items)
			case "sources":
				rec.Sources = items
			case "checksums":
				rec.Checksums = items
			}
			continue
		}

		key, value, ok := parseScalarAssign(line)
		if !ok {
			continue
		}
		switch key {
		case "name":
			rec.Name = value
		case "version":
			rec.Version = value
		case "release":
			rec.Release = value
		case "description":
			rec.Description = value
		case "url":
			rec.URL = value
		}
	}

	for _, hook := range hookNames {
		if body, ok := extractHook(text, hook); ok {
			rec.Hooks[hook] = body
		}
	}

	return rec
}

// parseScalarAssign recognizes key=value lines, stripping one enclosing
// layer of balanced single or double quotes from the value.
func parseScalarAssign(line string) (key, value string, ok bool) {
	idx := strings.Index(line, "=")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	if strings.ContainsAny(key, " \t(") {
		return "", "", false
	}
	return key, stripQuotes(strings.TrimSpace(line[idx+1:])), true
}

// parseArrayAssign recognizes key=( item item ... ) assignments, which may
// span multiple lines. It returns the index of the last consumed line.
func parseArrayAssign(lines []string, start int) (key string, items []string, last int, ok bool) {
	line := strings.TrimSpace(lines[start])
	idx := strings.Index(line, "=(")
	if idx <= 0 {
		return "", nil, start, false
	}
	key = strings.TrimSpace(line[:idx])
	if strings.ContainsAny(key, " \t") {
		return "", nil, start, false
	}

	var content strings.Builder
	rest := line[idx+2:]
	last = start
	for {
		if end := strings.Index(rest, ")"); end != -1 {
			content.WriteString(rest[:end])
			break
		}
		content.WriteString(rest)
		content.WriteString(" ")
		last++
		if last >= len(lines) {
			break
		}
		rest = lines[last]
	}

	items = []string{}
	for _, field := range strings.Fields(content.String()) {
		items = append(items, stripQuotes(field))
	}
	return key, items, last, true
}

// stripQuotes removes one enclosing layer of single or double quotes when
// the pair is balanced.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// extractHook pulls the named hook body out of a shell recipe text. The
// body starts after the function's opening brace and ends at the brace that
// closes it; nested braces inside the body are tracked by depth.
func extractHook(text string, hook HookName) (string, bool) {
	lines := strings.Split(text, "\n")
	marker := string(hook) + "()"

	for i, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		if !strings.HasPrefix(trimmed, marker) {
			continue
		}

		var body []string
		sawOpener := false
		depth := 0

		appendChunk := func(chunk string) bool {
			if !sawOpener {
				chunk = strings.TrimLeft(chunk, " \t")
				if chunk == "" {
					return false
				}
				if chunk[0] != '{' {
					return false
				}
				chunk = chunk[1:]
				sawOpener = true
				if strings.TrimSpace(chunk) == "" {
					return false
				}
			}
			for j := 0; j < len(chunk); j++ {
				switch chunk[j] {
				case '{':
					depth++
				case '}':
					if depth == 0 {
						if part := chunk[:j]; strings.TrimSpace(part) != "" || len(body) > 0 {
							body = append(body, part)
						}
						return true
					}
					depth--
				}
			}
			body = append(body, chunk)
			return false
		}

		if appendChunk(trimmed[len(marker):]) {
			return joinHookBody(body), true
		}
		for _, next := range lines[i+1:] {
			if appendChunk(next) {
				return joinHookBody(body), true
			}
		}
		return joinHookBody(body), true
	}
	return "", false
}

func joinHookBody(body []string) string {
	return strings.TrimRight(strings.Join(body, "\n"), " \t\n")
}
