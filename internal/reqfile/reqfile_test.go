package reqfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandPlainFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements.txt")
	require.NoError(t, os.WriteFile(path, []byte("curdling\n# a comment\n\nsure (==0.1.2)\n"), 0644))

	specs, err := Expand(path)
	require.NoError(t, err)
	require.Equal(t, []string{"curdling", "sure (==0.1.2)"}, specs)
}

func TestExpandYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements.yml")
	require.NoError(t, os.WriteFile(path, []byte("requirements:\n  - curdling\n  - sure (==0.1.2)\n"), 0644))

	specs, err := Expand(path)
	require.NoError(t, err)
	require.Equal(t, []string{"curdling", "sure (==0.1.2)"}, specs)
}

func TestExpandGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.txt"), []byte("curdling\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dev.txt"), []byte("sure (==0.1.2)\n"), 0644))

	specs, err := Expand(filepath.Join(dir, "*.txt"))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	require.Contains(t, specs, "curdling")
	require.Contains(t, specs, "sure (==0.1.2)")
}
