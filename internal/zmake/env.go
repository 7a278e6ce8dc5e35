package zmake

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// BuildEnv is the variable environment one pipeline run exposes to its
// hooks: the three working directories, the package identity fields and the
// toolchain hints. It is created at pipeline start and released at the end.
type BuildEnv struct {
	SourceDir  string
	PackageDir string
	StartDir   string
	Name       string
	Version    string
	Release    string

	// Extra carries additional exported variables, e.g. the fan-out's
	// target description.
	Extra map[string]string

	cfg *Config
}

func newBuildEnv(rec *Recipe, dirs WorkDirs, cfg *Config) *BuildEnv {
	return &BuildEnv{
		SourceDir:  dirs.Source,
		PackageDir: dirs.Package,
		StartDir:   dirs.Start,
		Name:       rec.Name,
		Version:    rec.Version,
		Release:    rec.Release,
		Extra:      make(map[string]string),
		cfg:        cfg,
	}
}

// environ returns the process environment plus the recipe-visible variables
// and toolchain hints, ready for the hook's child process.
func (e *BuildEnv) environ() []string {
	env := os.Environ()

	jobs := runtime.NumCPU()
	cflags := "-O2 -pipe -fPIC"
	cxxflags := cflags
	ldflags := ""
	if e.cfg != nil {
		cflags = e.cfg.Get("cflags", cflags)
		cxxflags = e.cfg.Get("cxxflags", cxxflags)
		ldflags = e.cfg.Values["ldflags"]
		if n, err := strconv.Atoi(e.cfg.Values["jobs"]); err == nil && n > 0 {
			jobs = n
		}
	}

	env = append(env,
		"source_directory="+e.SourceDir,
		"package_directory="+e.PackageDir,
		"start_directory="+e.StartDir,
		"name="+e.Name,
		"version="+e.Version,
		"release="+e.Release,
		"CFLAGS="+cflags,
		"CXXFLAGS="+cxxflags,
		"LDFLAGS="+ldflags,
		fmt.Sprintf("MAKEFLAGS=-j%d", jobs),
	)
	for key, value := range e.Extra {
		env = append(env, key+"="+value)
	}
	return env
}

// workdirFor picks the hook's working directory: the package directory for
// the package hook, the source directory for all others.
func (e *BuildEnv) workdirFor(hook HookName) string {
	if hook == HookPackage {
		return e.PackageDir
	}
	return e.SourceDir
}
