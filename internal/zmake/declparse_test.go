package zmake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const declRecipeText = `# hello, declaratively
[package]
name = hello
version = 1.0.0
description = "An example program"
url = https://example.com/hello
license = [MIT, Apache-2.0]
arch = [x86_64, aarch64]

[build]
type = c
sources = [hello.c]
checksums = [SKIP]

[dependencies]
runtime = [libc]
build = [compiler>=4.7, make]
`

func TestParseDeclRecipe(t *testing.T) {
	decl := ParseDeclRecipe(declRecipeText)
	rec := decl.Recipe

	assert.Equal(t, "hello", rec.Name)
	assert.Equal(t, "1.0.0", rec.Version)
	assert.Equal(t, "1", rec.Release, "release defaults when omitted")
	assert.Equal(t, "An example program", rec.Description)
	assert.Equal(t, []string{"MIT", "Apache-2.0"}, rec.Licenses)
	assert.Equal(t, []string{"x86_64", "aarch64"}, rec.Architectures)
	assert.Equal(t, "c", decl.BuildType)
	assert.Equal(t, []string{"hello.c"}, rec.Sources)

	require.Len(t, rec.BuildDeps, 2)
	assert.Equal(t, Dependency{Name: "compiler", Relation: RelGe, Version: "4.7"}, rec.BuildDeps[0])
}

func TestParseDeclRecipeTargets(t *testing.T) {
	text := declRecipeText + `
[target.linux-amd64]
triple = x86_64-linux-gnu
optimization = speed
features = [lto, pgo]

[target.linux-arm64]
triple = aarch64-linux-gnu
`
	decl := ParseDeclRecipe(text)
	require.Len(t, decl.Targets, 2)

	assert.Equal(t, "linux-amd64", decl.Targets[0].Label)
	assert.Equal(t, "x86_64-linux-gnu", decl.Targets[0].Triple)
	assert.Equal(t, "speed", decl.Targets[0].Optimization)
	assert.Equal(t, []string{"lto", "pgo"}, decl.Targets[0].Features)

	assert.Equal(t, "linux-arm64", decl.Targets[1].Label)
	assert.Empty(t, decl.Targets[1].Features)
}

func TestParseListForms(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, parseList("[a, b, c]"))
	assert.Equal(t, []string{"a", "b"}, parseList("a, b"))
	assert.Equal(t, []string{"solo"}, parseList("solo"))
	assert.Equal(t, []string{"quoted item"}, parseList(`["quoted item"]`))
	assert.Empty(t, parseList("[]"))
}

func TestLowerToShellRoundTrip(t *testing.T) {
	decl := ParseDeclRecipe(declRecipeText)
	body := decl.LowerToShell()

	rec := ParseShellRecipe(body)
	require.NoError(t, rec.Validate())

	assert.Equal(t, decl.Recipe.Name, rec.Name)
	assert.Equal(t, decl.Recipe.Version, rec.Version)
	assert.Equal(t, decl.Recipe.Release, rec.Release)
	assert.Equal(t, decl.Recipe.Description, rec.Description)
	assert.Equal(t, decl.Recipe.URL, rec.URL)
	assert.Equal(t, decl.Recipe.Architectures, rec.Architectures)
	assert.Equal(t, decl.Recipe.Licenses, rec.Licenses)
	assert.Equal(t, decl.Recipe.Sources, rec.Sources)
	assert.Equal(t, decl.Recipe.Checksums, rec.Checksums)
	assert.Equal(t, decl.Recipe.RuntimeDeps, rec.RuntimeDeps)
	assert.Equal(t, decl.Recipe.BuildDeps, rec.BuildDeps)
}

func TestLowerToShellDefaultHooks(t *testing.T) {
	decl := ParseDeclRecipe(declRecipeText)
	body := decl.LowerToShell()

	buildHook, ok := extractHook(body, HookBuild)
	require.True(t, ok)
	assert.Contains(t, buildHook, "make")

	packageHook, ok := extractHook(body, HookPackage)
	require.True(t, ok)
	assert.Contains(t, packageHook, `DESTDIR="$package_directory"`)

	_, ok = extractHook(body, HookCheck)
	assert.False(t, ok, "no default check hook")
}

func TestLowerToShellExplicitScriptWins(t *testing.T) {
	text := declRecipeText + "\n[build]\nbuild_script = cc -O3 -o hello hello.c\n"
	decl := ParseDeclRecipe(text)
	body := decl.LowerToShell()

	buildHook, ok := extractHook(body, HookBuild)
	require.True(t, ok)
	assert.Contains(t, buildHook, "cc -O3")
	assert.NotContains(t, buildHook, "./configure")
}

func TestLoadRecipeFileSniffsFrontEnd(t *testing.T) {
	dir := t.TempDir()

	declPath := writeTestFile(t, dir, "recipe.toml", declRecipeText)
	rec, body, targets, err := LoadRecipeFile(declPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Name)
	assert.Contains(t, body, "name='hello'\n")
	assert.Empty(t, targets)

	shellPath := writeTestFile(t, dir, "recipe.sh", shellRecipeText)
	rec, body, _, err = LoadRecipeFile(shellPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Name)
	assert.Equal(t, shellRecipeText, body)

	badPath := writeTestFile(t, dir, "bad.sh", "name=broken\n")
	_, _, _, err = LoadRecipeFile(badPath)
	assert.Equal(t, ErrMissingRequiredField, KindOf(err))
}
