package zmake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TargetSpec describes one build target of a multi-target recipe.
type TargetSpec struct {
	Label        string
	Triple       string
	Optimization string
	Features     []string
}

// TargetResult is the outcome of one target's build.
type TargetResult struct {
	Label         string
	Triple        string
	Success       bool
	ArtifactPath  string
	Reason        string
	BuildMillis   int64
	ArtifactBytes int64
}

// FanOutReport aggregates the per-target results of a fan-out run.
type FanOutReport struct {
	Results     []TargetResult
	Succeeded   int
	Failed      int
	TotalMillis int64
	MeanMillis  int64
	TotalBytes  int64
}

// FanOut builds a recipe for several targets concurrently, each in its own
// working tree, sharing the build cache and the installed catalog.
type FanOut struct {
	Config  *Config
	Cache   *BuildCache
	Catalog *Catalog

	// Jobs caps concurrent target builds. Zero means build all at once.
	Jobs  int
	Quiet bool

	// Observer, when set, receives target state transitions for a live
	// display.
	Observer func(label, state string)
}

// Run builds rec once per target. Results come back in target order; one
// target's failure never aborts its siblings.
func (f *FanOut) Run(ctx context.Context, rec *Recipe, body, startDir string, targets []TargetSpec) *FanOutReport {
	results := make([]TargetResult, len(targets))

	jobs := f.Jobs
	if jobs <= 0 || jobs > len(targets) {
		jobs = len(targets)
	}
	sem := make(chan struct{}, jobs)

	var wg sync.WaitGroup
	for i, target := range targets {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, target TargetSpec) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = f.buildTarget(ctx, rec, body, startDir, target)
		}(i, target)
	}
	wg.Wait()

	report := &FanOutReport{Results: results}
	for _, r := range results {
		if r.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.TotalMillis += r.BuildMillis
		report.TotalBytes += r.ArtifactBytes
	}
	if len(results) > 0 {
		report.MeanMillis = report.TotalMillis / int64(len(results))
	}
	return report
}

// buildTarget runs one pipeline for one target. A panicking build is
// converted into a failed result so the other goroutines keep going.
func (f *FanOut) buildTarget(ctx context.Context, rec *Recipe, body, startDir string, target TargetSpec) (result TargetResult) {
	started := time.Now()
	result = TargetResult{Label: target.Label, Triple: target.Triple}

	defer func() {
		result.BuildMillis = time.Since(started).Milliseconds()
		if r := recover(); r != nil {
			result.Success = false
			result.Reason = fmt.Sprintf("panic: %v", r)
			f.observe(target.Label, "failed")
		}
	}()

	f.observe(target.Label, "building")

	targetDir := filepath.Join(startDir, target.Label)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		result.Reason = err.Error()
		f.observe(target.Label, "failed")
		return result
	}
	if err := stageRecipeInputs(rec, startDir, targetDir); err != nil {
		result.Reason = err.Error()
		f.observe(target.Label, "failed")
		return result
	}

	pipe := &Pipeline{
		Config:  f.Config,
		Cache:   f.Cache,
		Catalog: f.Catalog,
		Quiet:   true,
		KeySalt: targetSalt(target),
		Env:     targetEnv(target),
	}

	res, err := pipe.Run(ctx, rec, body, targetDir)
	if err != nil {
		result.Reason = err.Error()
		f.observe(target.Label, "failed")
		return result
	}

	result.Success = true
	result.ArtifactPath = res.ArtifactPath
	if info, err := os.Stat(res.ArtifactPath); err == nil {
		result.ArtifactBytes = info.Size()
	}
	f.observe(target.Label, "done")
	return result
}

// stageRecipeInputs copies the recipe's local sources into the target's
// private start directory.
func stageRecipeInputs(rec *Recipe, startDir, targetDir string) error {
	for _, source := range rec.Sources {
		if isRemoteSource(source) || filepath.IsAbs(source) {
			continue
		}
		src := filepath.Join(startDir, source)
		if _, err := os.Stat(src); err != nil {
			continue // the pipeline reports the missing source itself
		}
		dst := filepath.Join(targetDir, source)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}

// targetEnv exports the target description to the hooks.
func targetEnv(target TargetSpec) map[string]string {
	env := map[string]string{
		"ZMAKE_TARGET_LABEL": target.Label,
	}
	if target.Triple != "" {
		env["ZMAKE_TARGET_TRIPLE"] = target.Triple
	}
	if target.Optimization != "" {
		env["ZMAKE_TARGET_OPT"] = target.Optimization
	}
	if len(target.Features) > 0 {
		env["ZMAKE_TARGET_FEATURES"] = strings.Join(target.Features, ",")
	}
	return env
}

func targetSalt(target TargetSpec) string {
	return "\x00target\x00" + target.Label + "\x00" + target.Triple + "\x00" +
		target.Optimization + "\x00" + strings.Join(target.Features, ",")
}

func (f *FanOut) observe(label, state string) {
	if f.Observer != nil {
		f.Observer(label, state)
		return
	}
	if f.Quiet {
		return
	}
	if isInteractive() {
		fmt.Printf("\r\033[K")
	}
	colArrow.Print("-> ")
	switch state {
	case "done":
		colSuccess.Printf("Target %s: %s\n", label, state)
	case "failed":
		colError.Printf("Target %s: %s\n", label, state)
	default:
		colInfo.Printf("Target %s: %s\n", label, state)
	}
}

// PrintReport writes the fan-out summary table.
func (r *FanOutReport) PrintReport() {
	fmt.Println()
	colNote.Println("Fan-out summary")
	for _, res := range r.Results {
		status := "ok"
		var style colorPrinter = colSuccess
		if !res.Success {
			status = "failed"
			style = colError
		}
		line := fmt.Sprintf("  %-16s %-24s %-7s %6dms", res.Label, res.Triple, status, res.BuildMillis)
		if res.Success {
			line += fmt.Sprintf("  %s (%d bytes)", filepath.Base(res.ArtifactPath), res.ArtifactBytes)
		} else if res.Reason != "" {
			line += "  " + res.Reason
		}
		cPrintln(style, line)
	}
	fmt.Printf("%d succeeded, %d failed, total %dms, mean %dms, %d artifact bytes\n",
		r.Succeeded, r.Failed, r.TotalMillis, r.MeanMillis, r.TotalBytes)
}
