package zmake

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTestFile creates a file under dir and returns its path.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// requireShell skips tests that execute recipe hooks when no POSIX shell is
// on the PATH.
func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// installPackage seeds an installed-database entry for catalog tests.
func installPackage(t *testing.T, dbDir, name, version string) {
	t.Helper()
	writeTestFile(t, filepath.Join(dbDir, name), "version", version+"\n")
}

// testConfig builds a minimal configuration pointing all paths at temp dirs.
func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{Values: map[string]string{
		"packager": "Test Packager",
		"tmpdir":   t.TempDir(),
	}}
}
