package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wheelhouse/wheelhouse/internal/werror"
)

// InstallerStage implements the Installer's stage work: "Places the wheel
// contents into the target environment." The target environment is a
// directory (e.g. a virtualenv's site-packages); wheels are zip archives so
// installation is extraction.
type InstallerStage struct {
	targetDir string
}

func NewInstallerStage(targetDir string) *InstallerStage {
	return &InstallerStage{targetDir: targetDir}
}

func (s *InstallerStage) Handle(ctx context.Context, job Job) (Job, error) {
	if err := extractWheel(job.Wheel, s.targetDir); err != nil {
		return job, werror.NewInstallFailure(
			fmt.Sprintf("error installing %s", job.Requirement.String()), err,
		).EDetail(werror.DetailRequirement, job.Requirement.String())
	}
	return job, nil
}

func extractWheel(wheelPath, targetDir string) error {
	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return fmt.Errorf("error opening wheel: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		destPath := filepath.Join(targetDir, f.Name)
		if !strings.HasPrefix(destPath, filepath.Clean(targetDir)+string(os.PathSeparator)) {
			return fmt.Errorf("wheel member %q escapes target directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return fmt.Errorf("error creating directory %s: %w", destPath, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return fmt.Errorf("error creating directory for %s: %w", destPath, err)
		}
		if err := extractFile(f, destPath); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("error opening wheel member %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return fmt.Errorf("error creating %s: %w", destPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("error writing %s: %w", destPath, err)
	}
	return nil
}
