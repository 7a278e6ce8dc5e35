package zmake

import (
	"os"
	"strings"
)

// LoadRecipeFile reads a recipe file, picks the front-end by sniffing for a
// declarative section header, and returns the parsed recipe together with
// the shell-form body text that feeds hook execution and cache keying, plus
// any target sections for fan-out builds.
func LoadRecipeFile(path string) (*Recipe, string, []TargetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", nil, buildErr(ErrInvalidRecipeFormat, path, err)
	}
	text := string(data)

	var (
		body    string
		targets []TargetSpec
	)
	if isDeclarative(text) {
		decl := ParseDeclRecipe(text)
		body = decl.LowerToShell()
		targets = decl.Targets
	} else {
		body = text
	}

	// Both front-ends converge on the shell surface, so the recipe model is
	// always rebuilt from the body the hooks will actually run against.
	rec := ParseShellRecipe(body)
	if err := rec.Validate(); err != nil {
		return nil, "", nil, err
	}
	return rec, body, targets, nil
}

// isDeclarative reports whether the first meaningful line is a section
// header like [package].
func isDeclarative(text string) bool {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")
	}
	return false
}
