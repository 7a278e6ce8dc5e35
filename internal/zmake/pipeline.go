package zmake

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WorkDirs are the working directories one pipeline run operates in. Build
// is the run's private root; Source and Package live underneath it. Start is
// the recipe's directory, where local sources live and the artifact lands.
type WorkDirs struct {
	Start   string
	Build   string
	Source  string
	Package string
}

// newWorkDirs lays out the working tree for a build under buildRoot.
func newWorkDirs(startDir, buildRoot string) (WorkDirs, error) {
	dirs := WorkDirs{
		Start:   startDir,
		Build:   buildRoot,
		Source:  filepath.Join(buildRoot, "src"),
		Package: filepath.Join(buildRoot, "pkg"),
	}
	for _, d := range []string{dirs.Build, dirs.Source, dirs.Package} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return WorkDirs{}, fmt.Errorf("failed to create work dir %s: %w", d, err)
		}
	}
	return dirs, nil
}

// Pipeline drives a recipe through dependency checks, source acquisition,
// the hook stages and artifact composition.
type Pipeline struct {
	Config  *Config
	Cache   *BuildCache
	Catalog *Catalog
	Fetcher *Fetcher

	// Conflicts lists package names that must not be installed for the
	// build to proceed.
	Conflicts []string

	// KeySalt distinguishes otherwise-identical builds in the cache, e.g.
	// per-target variants of the same recipe.
	KeySalt string

	// Env carries extra variables exported into every hook.
	Env map[string]string

	Quiet     bool
	LogWriter io.Writer
}

// PipelineResult describes a completed run.
type PipelineResult struct {
	ArtifactPath string
	CacheHit     bool
	Duration     time.Duration
}

// Run executes the full build pipeline for rec. body is the shell-form
// recipe text the hooks execute against; startDir is the recipe's directory.
// The artifact is written into startDir and its path returned.
func (p *Pipeline) Run(ctx context.Context, rec *Recipe, body, startDir string) (*PipelineResult, error) {
	started := time.Now()

	catalog := p.Catalog
	if catalog == nil {
		catalog = &Catalog{versions: map[string]string{}}
	}

	deps := append(append([]Dependency{}, rec.RuntimeDeps...), rec.BuildDeps...)
	if missing := catalog.Missing(deps); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, dep := range missing {
			names[i] = dep.String()
		}
		return nil, buildErr(ErrMissingDependency, strings.Join(names, ", "),
			fmt.Errorf("unsatisfied build dependencies"))
	}
	for _, name := range p.Conflicts {
		if catalog.Has(name) {
			return nil, buildErr(ErrConflictDetected, name,
				fmt.Errorf("conflicting package is installed"))
		}
	}

	if len(rec.Architectures) > 0 && !rec.SupportsArchitecture(hostArch) {
		cPrintf(colWarn, "Warning: %s does not list host architecture %s\n", rec.Name, hostArch)
	}

	buildRoot, err := os.MkdirTemp(tmpDirOrDefault(), "zmake-build-"+rec.Name+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create build root: %w", err)
	}
	defer os.RemoveAll(buildRoot)

	dirs, err := newWorkDirs(startDir, buildRoot)
	if err != nil {
		return nil, err
	}

	env := newBuildEnv(rec, dirs, p.Config)
	for k, v := range p.Env {
		env.Extra[k] = v
	}
	exec := NewExecutor(ctx)
	exec.Quiet = p.Quiet
	exec.LogWriter = p.LogWriter

	key := CacheKey(body+p.KeySalt, rec.Sources)
	cacheHit := false
	if p.Cache != nil {
		if entry, ok := p.Cache.Lookup(key); ok {
			if err := p.Cache.Extract(entry, dirs.Source); err != nil {
				return nil, err
			}
			cacheHit = true
			if !p.Quiet {
				colArrow.Print("-> ")
				colSuccess.Printf("Using cached sources for %s (key %.12s)\n", rec.Name, key)
			}
		}
	}

	// A cache hit replaces fetch and verification only; the hook stages
	// still run against the restored tree so rebuilds stay incremental.
	if !cacheHit {
		if err := p.acquireSources(ctx, rec, dirs); err != nil {
			return nil, err
		}
	}

	if err := p.runFatalHook(exec, body, HookPrepare, env, ErrPrepareFailed); err != nil {
		return nil, err
	}
	if err := p.runFatalHook(exec, body, HookBuild, env, ErrBuildFailed); err != nil {
		return nil, err
	}

	if !cacheHit && p.Cache != nil {
		if err := p.Cache.Store(key, dirs.Source); err != nil {
			cPrintf(colWarn, "Warning: failed to cache build for %s: %v\n", rec.Name, err)
		}
	}

	// check failures are reported but never fail the build
	if result, err := exec.RunHook(body, HookCheck, env); err != nil {
		cPrintf(colWarn, "Warning: check hook error for %s: %v\n", rec.Name, err)
	} else if !result.Success {
		cPrintf(colWarn, "Warning: check hook failed for %s (exit status %d)\n", rec.Name, result.ExitCode)
	}

	if err := p.runFatalHook(exec, body, HookPackage, env, ErrPackageFailed); err != nil {
		return nil, err
	}

	packager := "Unknown Packager"
	if p.Config != nil {
		packager = p.Config.Get("packager", packager)
	}
	composer := &Composer{Packager: packager}
	artifactPath := filepath.Join(startDir, rec.ArtifactName())
	if err := composer.Compose(rec, dirs.Package, artifactPath); err != nil {
		return nil, err
	}
	if err := composer.Verify(artifactPath); err != nil {
		return nil, err
	}

	if activeKeyID != "" {
		if err := SignArtifact(artifactPath, activeKeyID); err != nil {
			return nil, err
		}
	} else {
		cPrintf(colWarn, "Warning: no signing key configured, leaving %s unsigned\n",
			filepath.Base(artifactPath))
	}

	if !p.Quiet {
		colArrow.Print("-> ")
		colSuccess.Printf("Built %s in %s\n", filepath.Base(artifactPath),
			time.Since(started).Round(time.Millisecond))
	}

	return &PipelineResult{
		ArtifactPath: artifactPath,
		CacheHit:     cacheHit,
		Duration:     time.Since(started),
	}, nil
}

// acquireSources stages local sources from the start directory, downloads
// remote ones, verifies checksums and expands source tarballs.
func (p *Pipeline) acquireSources(ctx context.Context, rec *Recipe, dirs WorkDirs) error {
	for _, source := range rec.Sources {
		if isRemoteSource(source) {
			continue
		}
		src := source
		if !filepath.IsAbs(src) {
			src = filepath.Join(dirs.Start, source)
		}
		if _, err := os.Stat(src); err != nil {
			return buildErr(ErrDownloadFailed, source, fmt.Errorf("local source not found: %w", err))
		}
		if err := copyFile(src, filepath.Join(dirs.Source, sourceBasename(source))); err != nil {
			return buildErr(ErrDownloadFailed, source, fmt.Errorf("failed to stage local source: %w", err))
		}
	}

	fetcher := p.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	fetcher.Quiet = p.Quiet

	records := fetcher.FetchAll(ctx, rec.Sources, rec.Checksums, dirs.Source)
	for _, record := range records {
		if record.Err != nil {
			return record.Err
		}
	}

	for _, record := range records {
		name := sourceBasename(record.Source)
		if !isSourceArchive(name) {
			continue
		}
		if err := extractSourceArchive(record.Destination, dirs.Source); err != nil {
			return buildErr(ErrDownloadFailed, name, fmt.Errorf("failed to extract source: %w", err))
		}
	}
	return nil
}

// runFatalHook executes a mandatory pipeline stage and maps a failure to the
// stage's error kind.
func (p *Pipeline) runFatalHook(exec *Executor, body string, hook HookName, env *BuildEnv, kind ErrorKind) error {
	result, err := exec.RunHook(body, hook, env)
	if err != nil {
		return buildErr(kind, string(hook), err)
	}
	if !result.Success {
		return hookErr(kind, string(hook), result.ExitCode)
	}
	return nil
}
