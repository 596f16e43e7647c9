package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wheelhouse/wheelhouse/internal/env"
	"github.com/wheelhouse/wheelhouse/internal/gitsource"
	"github.com/wheelhouse/wheelhouse/internal/index"
	"github.com/wheelhouse/wheelhouse/internal/pipeline"
	"github.com/wheelhouse/wheelhouse/internal/progress"
	"github.com/wheelhouse/wheelhouse/internal/reqfile"
	"github.com/wheelhouse/wheelhouse/internal/requirement"
	"github.com/wheelhouse/wheelhouse/internal/runtime"
	dockerruntime "github.com/wheelhouse/wheelhouse/internal/runtime/docker"
	execruntime "github.com/wheelhouse/wheelhouse/internal/runtime/exec"
	"github.com/wheelhouse/wheelhouse/internal/upstream"
	"github.com/wheelhouse/wheelhouse/internal/wconfig"
	"github.com/wheelhouse/wheelhouse/internal/wlog"
)

func init() {
	wconfig.BindFlags(installCmd)
	RootCmd.AddCommand(installCmd)
}

// errFinishedWithErrors signals a non-empty error map at the end of a
// phase; Execute maps it to exit status 1, and SilenceUsage keeps cobra
// from also printing its usage text.
var errFinishedWithErrors = errors.New("wheelhouse: completed with errors")

var installCmd = &cobra.Command{
	Use:           "install [pkg...]",
	Short:         "Resolve, build and install one or more packages",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runInstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := wconfig.Load(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	registry, err := wlog.NewRegistry(cfg.LogLevel)
	if err != nil {
		return err
	}
	logFactory := wlog.NewFactory(registry)
	log := logFactory("install")

	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return fmt.Errorf("error creating work directory %s: %w", cfg.WorkDir, err)
	}

	specs := append([]string{}, cfg.PackageSpecs...)
	if cfg.RequirementsFile != "" {
		fileSpecs, err := reqfile.Expand(cfg.RequirementsFile)
		if err != nil {
			return err
		}
		specs = append(specs, fileSpecs...)
	}
	if len(specs) == 0 {
		return fmt.Errorf("no package specs given; pass package names or -r/--requirements")
	}

	roots := make([]requirement.Requirement, 0, len(specs))
	for _, s := range specs {
		req, err := requirement.Parse(s)
		if err != nil {
			return fmt.Errorf("error parsing requirement %q: %w", s, err)
		}
		roots = append(roots, req)
	}

	artifactIndex, err := buildLocalIndex(filepath.Join(cfg.WorkDir, "index"))
	if err != nil {
		return err
	}

	resolver := upstream.NewClient(resolverIndexes(cfg.CurdlingURLs, cfg.PyPIURLs), logFactory("upstream"))
	gitFetcher := gitsource.NewFetcher(logFactory, filepath.Join(cfg.WorkDir, "git"), nil)
	downloaderStage := pipeline.NewDownloaderStage(http.DefaultClient, gitFetcher, filepath.Join(cfg.WorkDir, "downloads"))

	buildOutputDir := filepath.Join(cfg.WorkDir, "wheels")
	stagingDir := filepath.Join(cfg.WorkDir, "build-staging")
	for _, dir := range []string{buildOutputDir, stagingDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating %s: %w", dir, err)
		}
	}
	rt, err := buildRuntime(cfg, stagingDir)
	if err != nil {
		return err
	}
	builderStage := pipeline.NewBuilderStage(rt, defaultBuildCommand(buildOutputDir), buildOutputDir)

	installDir := filepath.Join(cfg.WorkDir, "site-packages")
	if err := os.MkdirAll(installDir, 0755); err != nil {
		return fmt.Errorf("error creating %s: %w", installDir, err)
	}

	stages := env.Stages{
		Finder:      pipeline.NewFinderStage(resolver),
		Downloader:  downloaderStage,
		Builder:     builderStage,
		Dependencer: pipeline.NewDependencerStage(),
		Installer:   pipeline.NewInstallerStage(installDir),
	}

	if cfg.Upload {
		uploadIndexes, err := buildUploadIndexes(cfg.CurdlingURLs, logFactory)
		if err != nil {
			return err
		}
		stages.Uploader = pipeline.NewUploaderStage(uploadIndexes)
	}

	e := env.New(ctx, env.Config{}, artifactIndex, logFactory, stages)

	prog := progress.New()
	if cfg.Upload {
		prog.AddUpload()
	}
	e.OnRetrieveAndBuildProgress(prog.OnRetrieveAndBuild)
	e.OnInstallProgress(prog.OnInstall)
	e.OnUploadProgress(prog.OnUpload)
	prog.Start()
	defer prog.Stop()

	e.Start()
	defer e.Stop()

	for _, root := range roots {
		e.Feed(root, nil)
	}

	if err := e.WaitRetrieveAndBuild(ctx); err != nil {
		log.Warnf("retrieve-and-build phase ended with errors: %v", err)
	}
	if ctx.Err() != nil {
		printErrorReport(e)
		return nil
	}
	if len(e.Errors()) > 0 {
		printErrorReport(e)
		return errFinishedWithErrors
	}

	installable, conflictErr := e.Reconcile()
	if conflictErr != nil {
		printErrorReport(e)
		return errFinishedWithErrors
	}

	if err := e.RunInstall(ctx, installable); err != nil {
		printErrorReport(e)
		return errFinishedWithErrors
	}
	if ctx.Err() != nil {
		return nil
	}

	if cfg.Upload {
		if err := e.RunUpload(ctx); err != nil {
			printErrorReport(e)
			return errFinishedWithErrors
		}
	}

	if len(e.Errors()) > 0 {
		printErrorReport(e)
		return errFinishedWithErrors
	}
	return nil
}

// resolverIndexes builds the Finder's consultation order: curdling
// (private) indexes first, then public pypi-style indexes, per the CLI
// SURFACE contract.
func resolverIndexes(curdlingURLs, pypiURLs []string) []upstream.Index {
	indexes := make([]upstream.Index, 0, len(curdlingURLs)+len(pypiURLs))
	for _, u := range curdlingURLs {
		indexes = append(indexes, upstream.Index{BaseURL: u})
	}
	for _, u := range pypiURLs {
		indexes = append(indexes, upstream.Index{BaseURL: u})
	}
	return indexes
}

// buildLocalIndex opens the local on-disk ArtifactIndex consulted
// monotonically by Env.Feed: content under dir/blobs, catalog metadata in
// dir/catalog.db.
func buildLocalIndex(dir string) (*index.Index, error) {
	if err := os.MkdirAll(filepath.Join(dir, "blobs"), 0755); err != nil {
		return nil, fmt.Errorf("error creating local index directory: %w", err)
	}
	store := index.NewLocalStore(filepath.Join(dir, "blobs"))
	catalog, err := index.OpenSQLiteCatalog(filepath.Join(dir, "catalog.db"))
	if err != nil {
		return nil, err
	}
	return index.New(store, catalog), nil
}

// buildUploadIndexes opens one ArtifactIndex per configured curdling
// server for the Uploader stage, keyed by the same base URL string the
// Resolver reports as a server in Resolve's missed-servers list, so
// Env.RunUpload's lookup finds the right destination index. An
// "s3://bucket[/prefix]" URL gets an S3Store, anything else is treated as
// a local directory path.
func buildUploadIndexes(curdlingURLs []string, logFactory wlog.Factory) (map[string]*index.Index, error) {
	out := make(map[string]*index.Index, len(curdlingURLs))
	for _, server := range curdlingURLs {
		idx, err := buildUploadIndex(server, logFactory)
		if err != nil {
			return nil, fmt.Errorf("error preparing upload index for %s: %w", server, err)
		}
		out[server] = idx
	}
	return out, nil
}

func buildUploadIndex(server string, logFactory wlog.Factory) (*index.Index, error) {
	if strings.HasPrefix(server, "s3://") {
		rest := strings.TrimPrefix(server, "s3://")
		bucket := rest
		if idx := strings.Index(rest, "/"); idx >= 0 {
			bucket = rest[:idx]
		}
		store, err := index.NewS3Store(index.S3Config{BucketName: bucket}, logFactory)
		if err != nil {
			return nil, err
		}
		catalogPath := filepath.Join(os.TempDir(), "wheelhouse-"+bucket+".db")
		catalog, err := index.OpenSQLiteCatalog(catalogPath)
		if err != nil {
			return nil, err
		}
		return index.New(store, catalog), nil
	}
	return buildLocalIndex(server)
}

// buildRuntime selects the Builder stage's execution environment: a Docker
// container running cfg.BuildImage when set, otherwise the host directly.
// Each invocation gets its own container name suffix so two concurrent
// wheelhouse runs sharing a Docker daemon never collide.
func buildRuntime(cfg *wconfig.Config, stagingDir string) (runtime.Runtime, error) {
	if cfg.BuildImage == "" {
		return execruntime.NewRuntime(execruntime.Config{
			Config: runtime.Config{WorkspaceDir: cfg.WorkDir, StagingDir: stagingDir},
		}), nil
	}
	rt, err := dockerruntime.NewRuntime(dockerruntime.Config{
		Config:    runtime.Config{WorkspaceDir: cfg.WorkDir, StagingDir: stagingDir},
		Image:     cfg.BuildImage,
		RuntimeID: uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("error preparing docker build runtime: %w", err)
	}
	return rt, nil
}

// defaultBuildCommand is the build.sh convention mentioned in
// pipeline.BuildCommandFor's doc comment: if the source tree ships its own
// build.sh, run it; otherwise fall back to invoking setup.py's bdist_wheel
// target, the common case for the distribution format this installer
// targets.
func defaultBuildCommand(outputDir string) pipeline.BuildCommandFor {
	return func(sourceDir string) []string {
		buildScript := filepath.Join(sourceDir, "build.sh")
		if _, err := os.Stat(buildScript); err == nil {
			return []string{
				fmt.Sprintf("cd %s", runtime.QuoteArg(sourceDir)),
				fmt.Sprintf("sh %s %s", runtime.QuoteArg(buildScript), runtime.QuoteArg(outputDir)),
			}
		}
		return []string{
			fmt.Sprintf("cd %s", runtime.QuoteArg(sourceDir)),
			fmt.Sprintf("python setup.py bdist_wheel -d %s", runtime.QuoteArg(outputDir)),
		}
	}
}

func printErrorReport(e *env.Env) {
	errs := e.Errors()
	if len(errs) == 0 {
		return
	}
	byPackage := map[string][]string{}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name := key
		if req, err := requirement.Parse(key); err == nil && !req.IsURL() {
			name = string(req.Name())
		}
		chain := []string{key}
		cursor := e.DependencyOf(key)
		for cursor != nil {
			chain = append(chain, cursor.String())
			cursor = e.DependencyOf(cursor.String())
		}
		line := fmt.Sprintf("  %s: %v (requested by %s)", key, errs[key], strings.Join(chain, " <- "))
		byPackage[name] = append(byPackage[name], line)
	}

	names := make([]string, 0, len(byPackage))
	for n := range byPackage {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "wheelhouse: errors:")
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "%s:\n", n)
		for _, line := range byPackage[n] {
			fmt.Fprintln(os.Stderr, line)
		}
	}
}
