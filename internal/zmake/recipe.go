package zmake

import (
	"fmt"
	"strconv"
	"strings"
)

// HookName is one of the four recipe stages.
type HookName string

const (
	HookPrepare HookName = "prepare"
	HookBuild   HookName = "build"
	HookCheck   HookName = "check"
	HookPackage HookName = "package"
)

// hookNames lists the stages in execution order.
var hookNames = []HookName{HookPrepare, HookBuild, HookCheck, HookPackage}

// SkipChecksum is the sentinel that disables verification for one source.
const SkipChecksum = "SKIP"

// Recipe is the in-memory representation of a package recipe. It is
// immutable once parsed.
type Recipe struct {
	Name          string
	Version       string
	Release       string
	Description   string
	URL           string
	Architectures []string
	Licenses      []string
	RuntimeDeps   []Dependency
	BuildDeps     []Dependency
	Sources       []string
	Checksums     []string
	Hooks         map[HookName]string
}

// Architecture returns the default architecture: the first declared one, or
// "any" when the list is empty.
func (r *Recipe) Architecture() string {
	if len(r.Architectures) == 0 {
		return "any"
	}
	return r.Architectures[0]
}

// SupportsArchitecture reports whether the recipe declares arch, either
// literally or through the "any" wildcard.
func (r *Recipe) SupportsArchitecture(arch string) bool {
	for _, a := range r.Architectures {
		if a == arch || a == "any" {
			return true
		}
	}
	return false
}

// ArtifactName is the file name of the final package archive.
func (r *Recipe) ArtifactName() string {
	return fmt.Sprintf("%s-%s-%s-%s.pkg.tar.zst", r.Name, r.Version, r.Release, r.Architecture())
}

// Validate checks the parsed recipe against the minimal requirements.
func (r *Recipe) Validate() error {
	for field, value := range map[string]string{
		"name":    r.Name,
		"version": r.Version,
		"release": r.Release,
	} {
		if strings.TrimSpace(value) == "" {
			return buildErr(ErrMissingRequiredField, field, nil)
		}
	}
	if len(r.Architectures) == 0 {
		return buildErr(ErrMissingRequiredField, "architectures", nil)
	}
	if len(r.Checksums) != 0 && len(r.Checksums) != len(r.Sources) {
		return buildErr(ErrInvalidRecipeFormat, "checksums",
			fmt.Errorf("%d checksums for %d sources", len(r.Checksums), len(r.Sources)))
	}
	for _, sum := range r.Checksums {
		if sum == SkipChecksum {
			continue
		}
		if !isHexDigest(sum) {
			return buildErr(ErrInvalidRecipeFormat, "checksums",
				fmt.Errorf("%q is not a 64-character lowercase hex digest", sum))
		}
	}
	return nil
}

// isHexDigest reports whether s is exactly 64 lowercase hex characters.
func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Relation is a dependency version constraint operator.
type Relation int

const (
	RelNone Relation = iota
	RelEq
	RelGe
	RelLe
	RelGt
	RelLt
)

func (r Relation) String() string {
	switch r {
	case RelEq:
		return "="
	case RelGe:
		return ">="
	case RelLe:
		return "<="
	case RelGt:
		return ">"
	case RelLt:
		return "<"
	default:
		return ""
	}
}

// Dependency is the parsed form of a constrained dependency name.
type Dependency struct {
	Name     string
	Relation Relation
	Version  string
}

func (d Dependency) String() string {
	if d.Relation == RelNone {
		return d.Name
	}
	return d.Name + d.Relation.String() + d.Version
}

// depOperators is ordered longest-first so >= wins over > and <= over <.
var depOperators = []struct {
	token    string
	relation Relation
}{
	{">=", RelGe},
	{"<=", RelLe},
	{">", RelGt},
	{"<", RelLt},
	{"=", RelEq},
}

// ParseDependency splits tokens like "compiler>=4.7" into name, relation and
// version. A token without an operator has relation none and no version.
func ParseDependency(token string) Dependency {
	token = strings.TrimSpace(token)
	for _, op := range depOperators {
		if idx := strings.Index(token, op.token); idx != -1 {
			return Dependency{
				Name:     strings.TrimSpace(token[:idx]),
				Relation: op.relation,
				Version:  strings.TrimSpace(token[idx+len(op.token):]),
			}
		}
	}
	return Dependency{Name: token}
}

func parseDependencies(tokens []string) []Dependency {
	deps := make([]Dependency, 0, len(tokens))
	for _, tok := range tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			deps = append(deps, ParseDependency(tok))
		}
	}
	return deps
}

// Satisfies reports whether the installed version meets the constraint.
func (d Dependency) Satisfies(installed string) bool {
	if d.Relation == RelNone {
		return true
	}
	cmp := compareVersions(installed, d.Version)
	switch d.Relation {
	case RelEq:
		return cmp == 0
	case RelGe:
		return cmp >= 0
	case RelLe:
		return cmp <= 0
	case RelGt:
		return cmp > 0
	case RelLt:
		return cmp < 0
	}
	return true
}

// compareVersions compares two version strings split by dots. Numeric
// segments are compared numerically; non-numeric fall back to lexicographic.
// Returns -1 if a<b, 0 if equal, 1 if a>b.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := "0", "0"
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}

		ai, aerr := strconv.Atoi(av)
		bi, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if ai < bi {
				return -1
			}
			if ai > bi {
				return 1
			}
			continue
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}
