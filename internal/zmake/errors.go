package zmake

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the engine can surface. Each kind has a
// stable identifier and a stable exit code so scripts can branch on it.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrInvalidRecipeFormat
	ErrMissingRequiredField
	ErrMissingDependency
	ErrConflictDetected
	ErrDownloadFailed
	ErrChecksumMismatch
	ErrPrepareFailed
	ErrBuildFailed
	ErrPackageFailed
	ErrCacheCorruption
	ErrArchiveCreationFailed
	ErrArchiveVerificationFailed
	ErrSigningFailed
)

var errorKindNames = map[ErrorKind]string{
	ErrUnknown:                   "Unknown",
	ErrInvalidRecipeFormat:       "InvalidRecipeFormat",
	ErrMissingRequiredField:      "MissingRequiredField",
	ErrMissingDependency:         "MissingDependency",
	ErrConflictDetected:          "ConflictDetected",
	ErrDownloadFailed:            "DownloadFailed",
	ErrChecksumMismatch:          "ChecksumMismatch",
	ErrPrepareFailed:             "PrepareFailed",
	ErrBuildFailed:               "BuildFailed",
	ErrPackageFailed:             "PackageFailed",
	ErrCacheCorruption:           "CacheCorruption",
	ErrArchiveCreationFailed:     "ArchiveCreationFailed",
	ErrArchiveVerificationFailed: "ArchiveVerificationFailed",
	ErrSigningFailed:             "SigningFailed",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// ExitCode maps the kind to the process exit code used by the CLI.
func (k ErrorKind) ExitCode() int {
	if k == ErrUnknown {
		return 1
	}
	return 10 + int(k)
}

// BuildError is the typed error carried through the pipeline. Entity names
// the offending recipe field, source, dependency or hook; ExitStatus carries
// a hook's exit code when the kind is one of the *Failed hook kinds.
type BuildError struct {
	Kind       ErrorKind
	Entity     string
	ExitStatus int
	Err        error
}

func (e *BuildError) Error() string {
	msg := e.Kind.String()
	if e.Entity != "" {
		msg += "(" + e.Entity + ")"
	}
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	case e.ExitStatus != 0:
		return fmt.Sprintf("%s: exit status %d", msg, e.ExitStatus)
	default:
		return msg
	}
}

func (e *BuildError) Unwrap() error { return e.Err }

// Is lets errors.Is match two BuildErrors on kind alone.
func (e *BuildError) Is(target error) bool {
	var t *BuildError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func buildErr(kind ErrorKind, entity string, err error) *BuildError {
	return &BuildError{Kind: kind, Entity: entity, Err: err}
}

func hookErr(kind ErrorKind, hook string, exitCode int) *BuildError {
	return &BuildError{Kind: kind, Entity: hook, ExitStatus: exitCode}
}

// KindOf extracts the ErrorKind from err, or ErrUnknown.
func KindOf(err error) ErrorKind {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ErrUnknown
}

// ExitCodeFor maps any error to the CLI exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
