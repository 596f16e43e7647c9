// Package exec implements internal/runtime.Runtime by executing the build
// command directly on the host, adapted near-verbatim from the teacher's
// exec runtime since a host build needs nothing job-orchestration-specific.
package exec

import (
	"context"
	"fmt"
	"os"
	osexec "os/exec"

	"github.com/wheelhouse/wheelhouse/internal/runtime"
)

type Config struct {
	runtime.Config
	ShellOrNil *string
}

// Runtime executes builds directly on the host machine.
type Runtime struct {
	config Config
}

func NewRuntime(config Config) *Runtime {
	return &Runtime{config: config}
}

func (r *Runtime) Start(ctx context.Context) error { return nil }

func (r *Runtime) Stop(ctx context.Context) error { return nil }

func (r *Runtime) Exec(ctx context.Context, config runtime.ExecConfig) error {
	hostOS := runtime.GetHostOS()

	scriptName := config.Name
	if hostOS == runtime.OSWindows {
		scriptName += ".bat"
	}
	scriptPath, err := runtime.WriteScript(r.config.StagingDir, scriptName, config.Commands)
	if err != nil {
		return err
	}
	shell := runtime.ShellOrDefault(hostOS, r.config.ShellOrNil)

	var cmd *osexec.Cmd
	if hostOS == runtime.OSWindows {
		cmd = osexec.CommandContext(ctx, shell, "/D", "/E:ON", "/V:OFF", "/S", "/C", scriptPath)
	} else {
		cmd = osexec.CommandContext(ctx, shell, scriptPath)
	}
	cmd.Dir = r.config.WorkspaceDir
	cmd.Stdout = config.Stdout
	cmd.Stderr = config.Stderr

	pathEnv := os.Getenv("PATH")
	cmd.Env = append(config.Env, "PATH="+pathEnv)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("error running build command: %w", err)
	}
	return nil
}

func (r *Runtime) CleanUp(ctx context.Context) error { return nil }
