package zmake

import (
	"runtime"

	"github.com/gookit/color"
)

// Global variables
var (
	rootDir     string
	CacheDir    string
	CacheStore  string
	Installed   string
	KeyDir      string
	tmpDir      string
	Debug       bool
	Verbose     bool
	activeKeyID string

	ConfigFile = "/etc/zmake.conf"

	Version   = "dev"     // overridden at build time
	BuildDate = "unknown" // overridden at build time
	hostArch  = normalizeArch(runtime.GOARCH)
)

// normalizeArch maps Go architecture names to the uname-style names recipes
// use (x86_64, aarch64).
func normalizeArch(arch string) string {
	switch arch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	}
	return arch
}

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
