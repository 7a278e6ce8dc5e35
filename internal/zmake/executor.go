package zmake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// hookPrelude forces early exit on the first failing command and on any
// reference to an unset variable.
const hookPrelude = "#!/bin/sh\nset -e\nset -u\n\n"

// HookResult reports one hook invocation.
type HookResult struct {
	Success  bool
	Skipped  bool
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Executor runs recipe hooks through a POSIX shell with the variable
// environment exported into the child.
type Executor struct {
	Context context.Context // cancellation for in-flight hooks
	Quiet   bool
	// LogWriter, when set, receives a copy of the hook's combined output.
	LogWriter io.Writer
}

func NewExecutor(ctx context.Context) *Executor {
	return &Executor{Context: ctx}
}

// RunHook extracts the named hook from the recipe body and executes it. A
// missing hook is not an error: it yields an immediately-successful result
// and is reported as skipped.
func (e *Executor) RunHook(body string, hook HookName, env *BuildEnv) (HookResult, error) {
	script, ok := extractHook(body, hook)
	if !ok {
		if !e.Quiet {
			colArrow.Print("-> ")
			colInfo.Printf("Hook %s not defined, skipping\n", hook)
		}
		return HookResult{Success: true, Skipped: true}, nil
	}

	scriptFile, err := os.CreateTemp(tmpDirOrDefault(), "zmake-hook-*.sh")
	if err != nil {
		return HookResult{}, fmt.Errorf("failed to create hook script: %w", err)
	}
	scriptPath := scriptFile.Name()
	defer os.Remove(scriptPath)

	if _, err := scriptFile.WriteString(hookPrelude + script + "\n"); err != nil {
		scriptFile.Close()
		return HookResult{}, fmt.Errorf("failed to write hook script: %w", err)
	}
	if err := scriptFile.Chmod(0o700); err != nil {
		scriptFile.Close()
		return HookResult{}, fmt.Errorf("failed to chmod hook script: %w", err)
	}
	if err := scriptFile.Close(); err != nil {
		return HookResult{}, err
	}

	ctx := e.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var stdout, stderr bytes.Buffer
	var outW, errW io.Writer = &stdout, &stderr
	if e.LogWriter != nil {
		outW = io.MultiWriter(&stdout, e.LogWriter)
		errW = io.MultiWriter(&stderr, e.LogWriter)
	}

	cmd := exec.Command("sh", scriptPath)
	cmd.Dir = env.workdirFor(hook)
	cmd.Env = env.environ()
	cmd.Stdin = nil
	cmd.Stdout = outW
	cmd.Stderr = errW
	// Isolate the child in its own process group so cancellation can reap
	// the whole hook, including anything it spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return HookResult{}, fmt.Errorf("failed to start hook %s: %w", hook, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	result := HookResult{
		Success: waitErr == nil,
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			// Give the process group kill a moment to settle before the
			// cancellation propagates.
			time.Sleep(100 * time.Millisecond)
			return result, fmt.Errorf("hook %s aborted: %w", hook, ctx.Err())
		}
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, fmt.Errorf("hook %s failed: %w", hook, waitErr)
		}
	}
	return result, nil
}

func tmpDirOrDefault() string {
	if tmpDir != "" {
		if err := os.MkdirAll(tmpDir, 0o755); err == nil {
			return tmpDir
		}
	}
	return os.TempDir()
}
