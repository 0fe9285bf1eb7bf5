package sandbox

import (
	"context"
)

// RunSpec names the per-entry host directories for one grading run.
// Everything else about the execution (image, mounts inside the
// container, entry command, limits) is fixed sandbox configuration.
type RunSpec struct {
	SubmissionID  string
	SubmissionDir string // mounted read-only at the configured input path
	OutputDir     string // mounted read-write at the configured output path
}

// RunResult is the outcome of one isolated execution.
type RunResult struct {
	ExitCode   int64
	Stdout     string
	Stderr     string
	WallMillis int64
	TimedOut   bool
}

// Sandbox runs an untrusted grading command in an isolated filesystem view.
type Sandbox interface {
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)
}
