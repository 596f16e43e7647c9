package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wheelhouse/wheelhouse/internal/runtime"
	"github.com/wheelhouse/wheelhouse/internal/werror"
)

// BuildCommandFor returns the shell commands that turn a source tree into a
// wheel. It is a function rather than a fixed template so different source
// ecosystems (setup.py, pyproject.toml, ...) can be plugged in; the default
// used by cmd/wheelhouse shells out to a "build.sh" convention.
type BuildCommandFor func(sourceDir string) []string

// BuilderStage implements the Builder's stage work: building a source tree
// into a wheel. It does not extract source archives (see unpack).
type BuilderStage struct {
	rt         runtime.Runtime
	commandFor BuildCommandFor
	outputDir  string
}

func NewBuilderStage(rt runtime.Runtime, commandFor BuildCommandFor, outputDir string) *BuilderStage {
	return &BuilderStage{rt: rt, commandFor: commandFor, outputDir: outputDir}
}

// Handle builds job.Source (already on local disk, per the core's Artifact
// data model) into a wheel, populating Wheel. job.Source is passed through
// unpack, which does not extract archives (see unpack).
func (b *BuilderStage) Handle(ctx context.Context, job Job) (Job, error) {
	sourceDir, err := unpack(job.Source)
	if err != nil {
		return job, werror.NewBuildFailure("error unpacking source", err).EDetail(werror.DetailRequirement, job.Requirement.String())
	}

	if err := b.rt.Start(ctx); err != nil {
		return job, werror.NewBuildFailure("error starting build runtime", err)
	}
	defer b.rt.Stop(context.Background())

	commands := b.commandFor(sourceDir)
	err = b.rt.Exec(ctx, runtime.ExecConfig{Name: "build", Commands: commands})
	if err != nil {
		return job, werror.NewBuildFailure(
			fmt.Sprintf("error building %s", job.Requirement.String()), err,
		).EDetail(werror.DetailRequirement, job.Requirement.String())
	}

	wheel, err := findWheel(b.outputDir, string(job.Requirement.Name()))
	if err != nil {
		return job, werror.NewBuildFailure("build completed but produced no wheel", err)
	}
	job.Wheel = wheel
	return job, nil
}

// unpack extracts nothing: it checks that sourcePath exists and returns it
// unchanged. A directory (the Downloader's git+ checkout) is built in place;
// an archive file is handed to the build command as the same file path,
// not as an extracted tree.
func unpack(sourcePath string) (string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", fmt.Errorf("error stating source %s: %w", sourcePath, err)
	}
	if info.IsDir() {
		return sourcePath, nil
	}
	return sourcePath, nil
}

// findWheel locates the wheel the build produced for packageName under dir.
// Wheel filenames begin with the distribution name (with "_" substituted
// for any "-"), so both names are compared with "-" folded to "_" and a
// prefix match distinguishes concurrent builds sharing one output directory.
func findWheel(dir, packageName string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("error reading build output directory: %w", err)
	}
	prefix := strings.ReplaceAll(packageName, "-", "_") + "-"
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".whl" {
			continue
		}
		name := strings.ReplaceAll(e.Name(), "-", "_")
		if strings.HasPrefix(name, strings.ReplaceAll(prefix, "-", "_")) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no .whl found for %s in %s", packageName, dir)
}
