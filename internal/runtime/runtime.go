// Package runtime provides the execution environment the Builder stage
// uses to turn a source tree into a wheel: either directly on the host
// (internal/runtime/exec) or inside a container (internal/runtime/docker).
// Adapted from the teacher's job-step Runtime, dropped down to what a
// single package build needs: no sidecar services, no service networking.
package runtime

import (
	"context"
	"io"
)

// Config is the base runtime configuration.
type Config struct {
	// WorkspaceDir is the working directory the build command executes
	// with (bind-mounted at /workspace by the docker runtime); the build
	// commands themselves change into the source tree.
	WorkspaceDir string
	// StagingDir is where the runtime may write its own scratch files
	// (e.g. the generated build script).
	StagingDir string
}

// ExecConfig describes the build command to run inside a runtime.
type ExecConfig struct {
	// Name identifies the command for logging and script file naming.
	Name string
	// Commands are the one or more shell commands that build the wheel.
	Commands []string
	// Env is the environment in the form name=value exposed to Commands.
	Env []string
	// Stdout/Stderr, if non-nil, receive the command's output.
	Stdout io.Writer
	Stderr io.Writer
}

// Runtime is an execution environment for a single package build.
type Runtime interface {
	// Start initializes the runtime and prepares it to have commands Exec'd.
	Start(ctx context.Context) error
	// Exec runs config inside the runtime. Start must have been called first.
	Exec(ctx context.Context, config ExecConfig) error
	// Stop tears down the runtime, freeing any resources it holds
	// (container, temp files). ctx should not share the build's own
	// deadline, so cleanup still runs after a build timeout.
	Stop(ctx context.Context) error
	// CleanUp removes resources left over from a previous, uncleanly
	// terminated run (e.g. a stale container). Assumes nothing is running.
	CleanUp(ctx context.Context) error
}
