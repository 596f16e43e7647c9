package pipeline

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/wheelhouse/wheelhouse/internal/requirement"
	"github.com/wheelhouse/wheelhouse/internal/werror"
)

// DependencerStage implements the Dependencer's stage work: "Reads
// dependency metadata out of the wheel." A wheel is a zip archive carrying
// a "*.dist-info/METADATA" member with one "Requires-Dist: <requirement>"
// line per declared dependency; per §4.1 it emits one dependency_found per
// declared dependency (via the Dependencies field, routed by internal/env)
// then a single finished bearing the original wheel.
type DependencerStage struct{}

func NewDependencerStage() *DependencerStage { return &DependencerStage{} }

func (d *DependencerStage) Handle(ctx context.Context, job Job) (Job, error) {
	deps, err := readDependencies(job.Wheel)
	if err != nil {
		return job, werror.NewMetadataFailure(
			fmt.Sprintf("error reading dependency metadata for %s", job.Requirement.String()), err,
		).EDetail(werror.DetailRequirement, job.Requirement.String())
	}
	job.Dependencies = deps
	return job, nil
}

func readDependencies(wheelPath string) ([]requirement.Requirement, error) {
	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return nil, fmt.Errorf("error opening wheel: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if !strings.HasSuffix(f.Name, ".dist-info/METADATA") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening %s: %w", f.Name, err)
		}
		defer rc.Close()

		var deps []requirement.Requirement
		scanner := bufio.NewScanner(rc)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "Requires-Dist:") {
				continue
			}
			raw := strings.TrimSpace(strings.TrimPrefix(line, "Requires-Dist:"))
			// Drop any environment marker ("; extra == 'dev'") the metadata line
			// carries; this implementation does not model optional extras.
			if idx := strings.Index(raw, ";"); idx >= 0 {
				raw = strings.TrimSpace(raw[:idx])
			}
			req, err := requirement.Parse(normalizeDependencySpec(raw))
			if err != nil {
				continue
			}
			deps = append(deps, req)
		}
		return deps, scanner.Err()
	}
	return nil, fmt.Errorf("no *.dist-info/METADATA member found in %s", wheelPath)
}

// normalizeDependencySpec turns "name (>=1.0,<2.0)" / "name>=1.0" metadata
// forms into the Requirement textual form "name (op1version1, op2version2)".
func normalizeDependencySpec(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "(") {
		return raw
	}
	for _, op := range []string{"~=", "==", "!=", "<=", ">=", "<", ">"} {
		if idx := strings.Index(raw, op); idx > 0 {
			name := strings.TrimSpace(raw[:idx])
			version := strings.TrimSpace(raw[idx:])
			return fmt.Sprintf("%s (%s)", name, version)
		}
	}
	return raw
}
