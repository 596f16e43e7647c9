package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/alessio/shellescape"
)

type OS string

const (
	OSWindows OS = "windows"
	OSLinux   OS = "linux"
	OSMacOS   OS = "macos"
	OSUnknown OS = "unknown"
)

type Shell string

const (
	ShellCMD Shell = "cmd"
	ShellSH  Shell = "sh"
)

func ShellOrDefault(platform OS, shell *string) string {
	if shell != nil {
		return *shell
	}
	switch platform {
	case OSWindows:
		return "C:\\Windows\\System32\\cmd.exe"
	default:
		return "/bin/sh"
	}
}

func GetHostOS() OS {
	switch runtime.GOOS {
	case "windows":
		return OSWindows
	case "darwin":
		return OSMacOS
	case "linux":
		return OSLinux
	default:
		return OSUnknown
	}
}

// WriteScript writes commands, one per line, into a script file under dir
// named name, and returns its path. Each command is expected to already be
// a complete shell statement; QuoteArg is provided for callers that need to
// interpolate an untrusted argument (a package name, a file path) into one.
func WriteScript(dir string, name string, commands []string) (string, error) {
	path := filepath.Join(dir, name)
	contents := strings.Join(commands, "\n")
	if err := os.WriteFile(path, []byte(contents), 0755); err != nil {
		return "", fmt.Errorf("error writing script: %w", err)
	}
	return path, nil
}

// QuoteArg escapes value for safe interpolation into a shell command line,
// used by cmd/wheelhouse's default build command to quote the source and
// output directory paths in its "cd" / "build.sh" / "setup.py bdist_wheel"
// lines.
func QuoteArg(value string) string {
	return shellescape.Quote(value)
}
