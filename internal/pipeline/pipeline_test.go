package pipeline

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wheelhouse/wheelhouse/internal/requirement"
)

func writeFakeWheel(t *testing.T, path string, requiresDist []string) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	w := zip.NewWriter(file)
	meta, err := w.Create("sure-0.1.2.dist-info/METADATA")
	require.NoError(t, err)
	content := "Metadata-Version: 2.1\nName: sure\n"
	for _, r := range requiresDist {
		content += "Requires-Dist: " + r + "\n"
	}
	_, err = meta.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestDependencerReadsRequiresDist(t *testing.T) {
	wheelPath := filepath.Join(t.TempDir(), "sure-0.1.2-py3-none-any.whl")
	writeFakeWheel(t, wheelPath, []string{
		"forbiddenfruit (>=0.1.2)",
		"pytest>=6.0 ; extra == 'dev'",
	})

	stage := NewDependencerStage()
	job := Job{Requirement: requirement.MustParse("sure (==0.1.2)"), Wheel: wheelPath}
	result, err := stage.Handle(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, result.Dependencies, 2)
	require.Equal(t, requirement.PackageName("forbiddenfruit"), result.Dependencies[0].Name())
	require.Equal(t, requirement.PackageName("pytest"), result.Dependencies[1].Name())
}

func TestInstallerExtractsWheelContents(t *testing.T) {
	wheelPath := filepath.Join(t.TempDir(), "pkg-1.0-py3-none-any.whl")
	file, err := os.Create(wheelPath)
	require.NoError(t, err)
	w := zip.NewWriter(file)
	f, err := w.Create("pkg/__init__.py")
	require.NoError(t, err)
	_, err = f.Write([]byte("# pkg\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, file.Close())

	targetDir := t.TempDir()
	stage := NewInstallerStage(targetDir)
	job := Job{Requirement: requirement.MustParse("pkg (==1.0)"), Wheel: wheelPath}
	_, err = stage.Handle(context.Background(), job)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(targetDir, "pkg", "__init__.py"))
	require.NoError(t, err)
	require.Equal(t, "# pkg\n", string(data))
}
