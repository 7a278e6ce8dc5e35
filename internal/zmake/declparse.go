package zmake

import (
	"fmt"
	"strings"
)

// DeclRecipe is the result of parsing the declarative front-end: the recipe
// itself plus the build flavor and any target sections for fan-out builds.
type DeclRecipe struct {
	Recipe    *Recipe
	BuildType string
	Targets   []TargetSpec
}

// ParseDeclRecipe parses the declarative recipe front-end: bracketed section
// headers and key = value lines. Unknown sections and keys are ignored.
func ParseDeclRecipe(text string) *DeclRecipe {
	decl := &DeclRecipe{Recipe: &Recipe{Hooks: make(map[HookName]string)}}
	rec := decl.Recipe

	targets := make(map[string]*TargetSpec)
	var targetOrder []string

	section := ""
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			if label, ok := strings.CutPrefix(section, "target."); ok {
				if _, seen := targets[label]; !seen {
					targets[label] = &TargetSpec{Label: label}
					targetOrder = append(targetOrder, label)
				}
			}
			continue
		}

		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := stripQuotes(strings.TrimSpace(line[idx+1:]))

		if label, ok := strings.CutPrefix(section, "target."); ok {
			spec := targets[label]
			switch key {
			case "triple":
				spec.Triple = value
			case "optimization":
				spec.Optimization = value
			case "features":
				spec.Features = parseList(value)
			}
			continue
		}

		switch section {
		case "package":
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
			case "license":
				rec.Licenses = parseList(value)
			case "arch":
				rec.Architectures = parseList(value)
			}
		case "build":
			switch key {
			case "type":
				decl.BuildType = value
			case "sources":
				rec.Sources = parseList(value)
			case "checksums":
				rec.Checksums = parseList(value)
			case "prepare_script":
				rec.Hooks[HookPrepare] = value
			case "build_script":
				rec.Hooks[HookBuild] = value
			case "check_script":
				rec.Hooks[HookCheck] = value
			case "package_script":
				rec.Hooks[HookPackage] = value
			}
		case "dependencies":
			switch key {
			case "runtime":
				rec.RuntimeDeps = parseDependencies(parseList(value))
			case "build":
				rec.BuildDeps = parseDependencies(parseList(value))
			}
		}
	}

	// The declarative surface has no mandatory release key; default it the
	// way makepkg-style recipes start out.
	if rec.Release == "" {
		rec.Release = "1"
	}

	for _, label := range targetOrder {
		decl.Targets = append(decl.Targets, *targets[label])
	}
	return decl
}

// parseList accepts either bracketed form "[a, b, c]" or bare
// comma-separated form; elements are trimmed of whitespace and quotes.
func parseList(value string) []string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		value = value[1 : len(value)-1]
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = stripQuotes(strings.TrimSpace(part)); part != "" {
			items = append(items, part)
		}
	}
	return items
}

// defaultHooks returns conventional build/package hook bodies for the known
// build flavors, used when the recipe does not spell its own hooks out.
func defaultHooks(buildType string) map[HookName]string {
	switch strings.ToLower(buildType) {
	case "c", "cpp", "c++", "native":
		return map[HookName]string{
			HookBuild:   "if [ -x ./configure ]; then ./configure --prefix=/usr; fi\nmake",
			HookPackage: "make DESTDIR=\"$package_directory\" install",
		}
	}
	return nil
}

// LowerToShell emits the shell-recipe text equivalent of the declarative
// recipe, so that both front-ends feed the same execution path.
func (d *DeclRecipe) LowerToShell() string {
	rec := d.Recipe
	var b strings.Builder

	writeScalar := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s='%s'\n", key, value)
		}
	}
	writeList := func(key string, items []string) {
		if len(items) == 0 {
			return
		}
		quoted := make([]string, len(items))
		for i, item := range items {
			quoted[i] = "'" + item + "'"
		}
		fmt.Fprintf(&b, "%s=(%s)\n", key, strings.Join(quoted, " "))
	}

	writeScalar("name", rec.Name)
	writeScalar("version", rec.Version)
	writeScalar("release", rec.Release)
	writeScalar("description", rec.Description)
	writeScalar("url", rec.URL)
	writeList("architectures", rec.Architectures)
	writeList("licenses", rec.Licenses)
	writeList("runtime_dependencies", depStrings(rec.RuntimeDeps))
	writeList("build_dependencies", depStrings(rec.BuildDeps))
	writeList("sources", rec.Sources)
	writeList("checksums", rec.Checksums)

	hooks := make(map[HookName]string, len(rec.Hooks))
	for name, body := range rec.Hooks {
		hooks[name] = body
	}
	for name, body := range defaultHooks(d.BuildType) {
		if _, explicit := hooks[name]; !explicit {
			hooks[name] = body
		}
	}

	for _, name := range hookNames {
		body, ok := hooks[name]
		if !ok {
			continue
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s() {\n", name)
		for _, line := range strings.Split(body, "\n") {
			fmt.Fprintf(&b, "\t%s\n", line)
		}
		b.WriteString("}\n")
	}

	return b.String()
}

func depStrings(deps []Dependency) []string {
	out := make([]string, len(deps))
	for i, dep := range deps {
		out[i] = dep.String()
	}
	return out
}
