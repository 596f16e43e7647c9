// Package wconfig builds the install command's options (§6): PyPIURLs,
// CurdlingURLs, Upload, LogLevel, plus the CLI-only fields (requirements
// file, package specs, work directory, build image) that anchor the CLI
// surface. The artifact index is not part of Config; cmd/wheelhouse builds
// it from WorkDir and hands it to env.New. Flags are registered with
// spf13/pflag on a spf13/cobra command and bound through spf13/viper so an
// environment variable can also supply them, matching the teacher's
// GlobalConfig/initConfig pattern. No config file is read.
package wconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the install command's fully resolved configuration.
type Config struct {
	// PyPIURLs are the upstream index base URLs the Finder queries.
	PyPIURLs []string
	// CurdlingURLs are private wheelhouse index base URLs, consulted
	// before PyPIURLs and used as the upload destination.
	CurdlingURLs []string
	// Upload runs the upload phase after install.
	Upload bool
	// LogLevel is a bare level name or a "subsystem=level,..." list, per
	// internal/wlog's Registry.
	LogLevel string
	// RequirementsFile expands, via internal/reqfile, into additional
	// package specs.
	RequirementsFile string
	// PackageSpecs are positional package specs in Requirement textual form.
	PackageSpecs []string
	// WorkDir is the scratch space for downloads, build staging and the
	// local artifact index.
	WorkDir string
	// BuildImage, if non-empty, runs the Builder stage inside a Docker
	// container using this image instead of directly on the host.
	BuildImage string
}

const (
	flagRequirements  = "requirements"
	flagIndex         = "index"
	flagCurdlingIndex = "curdling-index"
	flagUpload        = "upload"
	flagLogLevel      = "log-level"
	flagWorkDir       = "workdir"
	flagBuildImage    = "build-image"
)

// BindFlags registers the install command's flags on cmd: the flags of
// SPEC_FULL.md's CLI SURFACE section plus --workdir and --build-image.
func BindFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(flagRequirements, "r", "", "requirements file (plain list or YAML), glob-expanded")
	cmd.Flags().StringArrayP(flagIndex, "i", nil, "upstream index URL (repeatable)")
	cmd.Flags().StringArrayP(flagCurdlingIndex, "c", nil, "private wheelhouse index URL (repeatable)")
	cmd.Flags().BoolP(flagUpload, "u", false, "upload built wheels to the curdling indexes after install")
	cmd.Flags().StringP(flagLogLevel, "l", "info", "log level, or subsystem=level,... list")
	cmd.Flags().String(flagWorkDir, "~/.wheelhouse", "scratch directory for downloads, builds and the local index")
	cmd.Flags().String(flagBuildImage, "", "run builds inside this Docker image instead of on the host")
}

// Load resolves a Config from cmd's flags (bound through viper so a
// WHEELHOUSE_* environment variable can also supply them) and positional
// args.
func Load(cmd *cobra.Command, args []string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("wheelhouse")
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	workDir, err := homeify(v.GetString(flagWorkDir))
	if err != nil {
		return nil, err
	}

	return &Config{
		PyPIURLs:         v.GetStringSlice(flagIndex),
		CurdlingURLs:     v.GetStringSlice(flagCurdlingIndex),
		Upload:           v.GetBool(flagUpload),
		LogLevel:         v.GetString(flagLogLevel),
		RequirementsFile: v.GetString(flagRequirements),
		PackageSpecs:     args,
		WorkDir:          workDir,
		BuildImage:       v.GetString(flagBuildImage),
	}, nil
}

// homeify expands a leading "~/" the same way the original CLI's default
// workdir is expressed, without pulling in a dedicated homedir dependency.
func homeify(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error locating user home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
