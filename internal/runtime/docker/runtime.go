// Package docker implements internal/runtime.Runtime by running the build
// inside a container, adapted and heavily simplified from the teacher's
// Docker runtime: a package build needs no sidecar services and no
// container-to-container networking, so this drops straight to
// pull image -> create container with workspace bind-mounted -> exec build
// command -> remove container.
package docker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/wheelhouse/wheelhouse/internal/runtime"
)

const namePrefix = "wheelhouse"

var containerNameRegex = regexp.MustCompile("^" + namePrefix + "-build-[a-zA-Z0-9._-]+$")

// Config configures a build container.
type Config struct {
	runtime.Config
	// Image is the build image reference, e.g. "python:3.11".
	Image string
	// RuntimeID uniquely names this runtime instance's container.
	RuntimeID string
}

// Runtime executes builds inside a single, disposable Docker container.
type Runtime struct {
	config      Config
	client      *client.Client
	containerID string
}

func NewRuntime(config Config) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("error creating docker client: %w", err)
	}
	return &Runtime{config: config, client: cli}, nil
}

func containerName(runtimeID string) string {
	return fmt.Sprintf("%s-build-%s", namePrefix, runtimeID)
}

// Start pulls Image if needed and creates (but does not run any command in)
// the build container, with WorkspaceDir bind-mounted at /workspace.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.ensureImage(ctx); err != nil {
		return err
	}
	resp, err := r.client.ContainerCreate(ctx,
		&container.Config{
			Image:      r.config.Image,
			Tty:        false,
			WorkingDir: "/workspace",
			Entrypoint: []string{"sleep"},
			Cmd:        []string{"infinity"},
		},
		&container.HostConfig{
			Binds: []string{r.config.WorkspaceDir + ":/workspace"},
		},
		nil, nil, containerName(r.config.RuntimeID))
	if err != nil {
		return fmt.Errorf("error creating build container: %w", err)
	}
	r.containerID = resp.ID
	if err := r.client.ContainerStart(ctx, r.containerID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("error starting build container: %w", err)
	}
	return nil
}

func (r *Runtime) ensureImage(ctx context.Context) error {
	_, _, err := r.client.ImageInspectWithRaw(ctx, r.config.Image)
	if err == nil {
		return nil
	}
	reader, err := r.client.ImagePull(ctx, r.config.Image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("error pulling build image %s: %w", r.config.Image, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Exec runs config.Commands inside the build container via a generated
// shell script, streaming the combined output to config.Stdout (config.Stderr
// receives nothing), and returns an error if the command exits non-zero.
func (r *Runtime) Exec(ctx context.Context, config runtime.ExecConfig) error {
	scriptPath, err := runtime.WriteScript(r.config.StagingDir, config.Name+".sh", config.Commands)
	if err != nil {
		return err
	}
	// The script lives under WorkspaceDir's bind mount; address it by its
	// path relative to WorkspaceDir inside /workspace.
	rel, err := filepath.Rel(r.config.WorkspaceDir, scriptPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("build script %s is not under workspace %s", scriptPath, r.config.WorkspaceDir)
	}
	containerScript := path.Join("/workspace", filepath.ToSlash(rel))

	execResp, err := r.client.ContainerExecCreate(ctx, r.containerID, types.ExecConfig{
		Cmd:          []string{"/bin/sh", containerScript},
		Env:          config.Env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("error creating exec: %w", err)
	}
	attach, err := r.client.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return fmt.Errorf("error attaching to exec: %w", err)
	}
	defer attach.Close()

	if config.Stdout != nil || config.Stderr != nil {
		scanner := bufio.NewScanner(attach.Reader)
		for scanner.Scan() {
			if config.Stdout != nil {
				fmt.Fprintln(config.Stdout, scanner.Text())
			}
		}
	}

	for {
		inspect, err := r.client.ContainerExecInspect(ctx, execResp.ID)
		if err != nil {
			return fmt.Errorf("error inspecting exec: %w", err)
		}
		if !inspect.Running {
			if inspect.ExitCode != 0 {
				return fmt.Errorf("build command exited with status %d", inspect.ExitCode)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// Stop kills and removes the build container.
func (r *Runtime) Stop(ctx context.Context) error {
	if r.containerID == "" {
		return nil
	}
	_ = r.client.ContainerKill(ctx, r.containerID, "SIGKILL")
	return r.client.ContainerRemove(ctx, r.containerID, types.ContainerRemoveOptions{Force: true})
}

// CleanUp removes any wheelhouse build containers left over from a previous,
// uncleanly terminated run.
func (r *Runtime) CleanUp(ctx context.Context) error {
	containers, err := r.client.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return fmt.Errorf("error listing containers: %w", err)
	}
	for _, c := range containers {
		for _, name := range c.Names {
			trimmed := name
			if len(trimmed) > 0 && trimmed[0] == '/' {
				trimmed = trimmed[1:]
			}
			if containerNameRegex.MatchString(trimmed) {
				_ = r.client.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true})
			}
		}
	}
	return nil
}
