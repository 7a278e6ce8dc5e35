package zmake

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stagePackageTree(t *testing.T) string {
	t.Helper()
	pkgDir := t.TempDir()
	writeTestFile(t, pkgDir, "usr/bin/hello", "binary payload")
	writeTestFile(t, pkgDir, "usr/share/doc/hello/README", "docs")
	return pkgDir
}

func composerRecipeForTest() *Recipe {
	rec := validRecipeForTest()
	rec.Description = "An example program"
	rec.URL = "https://example.com/hello"
	rec.Licenses = []string{"MIT"}
	rec.RuntimeDeps = []Dependency{ParseDependency("libc>=2.39")}
	return rec
}

func TestComposeProducesVerifiableArchive(t *testing.T) {
	pkgDir := stagePackageTree(t)
	outPath := filepath.Join(t.TempDir(), "hello-1.0.0-1-x86_64.pkg.tar.zst")

	c := &Composer{Packager: "Test Packager"}
	require.NoError(t, c.Compose(composerRecipeForTest(), pkgDir, outPath))
	require.NoError(t, c.Verify(outPath))

	// sidecars never remain in the package directory
	assert.NoFileExists(t, filepath.Join(pkgDir, packageInfoName))
	assert.NoFileExists(t, filepath.Join(pkgDir, manifestName))
}

func TestComposePackageInfoLayout(t *testing.T) {
	pkgDir := stagePackageTree(t)
	outPath := filepath.Join(t.TempDir(), "out.pkg.tar.zst")

	c := &Composer{Packager: "Test Packager"}
	require.NoError(t, c.Compose(composerRecipeForTest(), pkgDir, outPath))

	extracted := t.TempDir()
	require.NoError(t, extractTarZst(outPath, extracted))

	data, err := os.ReadFile(filepath.Join(extracted, packageInfoName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	assert.Equal(t, "name = hello", lines[0])
	assert.Equal(t, "version = 1.0.0", lines[1])
	assert.Equal(t, "release = 1", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "builddate = "))
	assert.Equal(t, "packager = Test Packager", lines[4])
	assert.Equal(t, "size = "+sizeOf("binary payload", "docs"), lines[5])
	assert.Equal(t, "architecture = x86_64", lines[6])
	assert.Contains(t, lines, "description = An example program")
	assert.Contains(t, lines, "url = https://example.com/hello")
	assert.Contains(t, lines, "license = MIT")
	assert.Contains(t, lines, "depend = libc>=2.39")
}

func sizeOf(contents ...string) string {
	total := 0
	for _, c := range contents {
		total += len(c)
	}
	return strconv.Itoa(total)
}

func TestManifestListsPayloadWithDigests(t *testing.T) {
	pkgDir := stagePackageTree(t)
	outPath := filepath.Join(t.TempDir(), "out.pkg.tar.zst")

	c := &Composer{Packager: "Test Packager"}
	require.NoError(t, c.Compose(composerRecipeForTest(), pkgDir, outPath))

	extracted := t.TempDir()
	require.NoError(t, extractTarZst(outPath, extracted))

	data, err := os.ReadFile(filepath.Join(extracted, manifestName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "#mtree", lines[0])
	assert.Equal(t, "/set type=file uid=0 gid=0 mode=644", lines[1])

	wantDigest := hashString("binary payload")
	assert.Equal(t, "./usr/bin/hello size=14 md5digest="+wantDigest, lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "./usr/share/doc/hello/README size=4 md5digest="))

	// the sidecars never list themselves
	for _, line := range lines {
		assert.NotContains(t, line, packageInfoName+" ")
		assert.NotContains(t, line, "./"+manifestName+" ")
	}
}

func TestManifestIsDeterministic(t *testing.T) {
	build := func() string {
		pkgDir := stagePackageTree(t)
		manifestPath := filepath.Join(t.TempDir(), "manifest")
		require.NoError(t, writeManifest(pkgDir, manifestPath))
		data, err := os.ReadFile(manifestPath)
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, build(), build())
}

func TestManifestHiddenPathRule(t *testing.T) {
	pkgDir := stagePackageTree(t)
	// only paths rooted at a dot are metadata-private; nested dotfiles are
	// ordinary payload
	writeTestFile(t, pkgDir, "etc/skel/.bashrc", "alias ls='ls --color=auto'\n")
	writeTestFile(t, pkgDir, ".state/seen", "1")

	manifestPath := filepath.Join(t.TempDir(), "manifest")
	require.NoError(t, writeManifest(pkgDir, manifestPath))
	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "./etc/skel/.bashrc size=")
	assert.NotContains(t, string(data), ".state")
}

func TestVerifyRejectsArchiveWithoutSidecars(t *testing.T) {
	pkgDir := stagePackageTree(t)
	outPath := filepath.Join(t.TempDir(), "bare.tar.zst")
	require.NoError(t, createTarZst(pkgDir, outPath))

	c := &Composer{}
	err := c.Verify(outPath)
	assert.Equal(t, ErrArchiveVerificationFailed, KindOf(err))
}

func TestVerifyRejectsUnreadableArchive(t *testing.T) {
	outPath := writeTestFile(t, t.TempDir(), "junk.tar.zst", "not a zstd stream")
	c := &Composer{}
	assert.Equal(t, ErrArchiveVerificationFailed, KindOf(c.Verify(outPath)))
}

func TestCreateTarZstRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	writeTestFile(t, srcDir, "a/b/c.txt", "nested")
	writeTestFile(t, srcDir, "top.txt", "top")
	require.NoError(t, os.Symlink("top.txt", filepath.Join(srcDir, "link")))

	outPath := filepath.Join(t.TempDir(), "round.tar.zst")
	require.NoError(t, createTarZst(srcDir, outPath))

	names, err := listTarZst(outPath)
	require.NoError(t, err)
	assert.Contains(t, names, "./")
	assert.Contains(t, names, "./a/b/c.txt")
	assert.Contains(t, names, "./link")

	dest := t.TempDir()
	require.NoError(t, extractTarZst(outPath, dest))

	data, err := os.ReadFile(filepath.Join(dest, "a/b/c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))

	target, err := os.Readlink(filepath.Join(dest, "link"))
	require.NoError(t, err)
	assert.Equal(t, "top.txt", target)
}

func TestExtractSourceArchiveStripsTopDir(t *testing.T) {
	tree := t.TempDir()
	writeTestFile(t, tree, "hello-1.0.0/hello.c", "int main(void) { return 0; }\n")
	writeTestFile(t, tree, "hello-1.0.0/Makefile", "all:\n")

	archivePath := filepath.Join(t.TempDir(), "hello-1.0.0.tar.zst")
	require.NoError(t, createTarZst(tree, archivePath))

	dest := t.TempDir()
	require.NoError(t, extractSourceArchive(archivePath, dest))
	assert.FileExists(t, filepath.Join(dest, "hello.c"))
	assert.FileExists(t, filepath.Join(dest, "Makefile"))
	assert.NoDirExists(t, filepath.Join(dest, "hello-1.0.0"))
}

func TestIsSourceArchive(t *testing.T) {
	assert.True(t, isSourceArchive("hello-1.0.0.tar.gz"))
	assert.True(t, isSourceArchive("hello.tgz"))
	assert.True(t, isSourceArchive("hello.tar.xz"))
	assert.True(t, isSourceArchive("hello.tar.zst"))
	assert.False(t, isSourceArchive("hello.c"))
	assert.False(t, isSourceArchive("hello.zip"))
}
