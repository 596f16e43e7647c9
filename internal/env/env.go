// Package env implements the core's Env component: the pipeline
// controller. It owns the six Services, the global requirement set,
// per-requirement state, counters, the termination detector, and drives
// the reconciliation / install / upload phases against Mapping.
package env

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/wheelhouse/wheelhouse/internal/fingerprint"
	"github.com/wheelhouse/wheelhouse/internal/index"
	"github.com/wheelhouse/wheelhouse/internal/mapping"
	"github.com/wheelhouse/wheelhouse/internal/pipeline"
	"github.com/wheelhouse/wheelhouse/internal/requirement"
	"github.com/wheelhouse/wheelhouse/internal/service"
	"github.com/wheelhouse/wheelhouse/internal/wlog"
)

// Stages bundles the already-constructed stage handlers the Env wires
// together into its six Services. Uploader is nil when the upload phase is
// disabled.
type Stages struct {
	Finder      *pipeline.FinderStage
	Downloader  *pipeline.DownloaderStage
	Builder     *pipeline.BuilderStage
	Dependencer *pipeline.DependencerStage
	Installer   *pipeline.InstallerStage
	Uploader    *pipeline.UploaderStage
}

// Config configures an Env.
type Config struct {
	// Blacklist is the set of package names feed rejects unconditionally.
	// Defaults to DefaultBlacklist when nil.
	Blacklist []string
	// Workers is the per-stage worker pool size. Defaults to 1.
	Workers int
	// PollInterval is the termination detector's poll cadence. Defaults to
	// 500ms, the cadence the original tool used.
	PollInterval time.Duration
	// Clock is injected for deterministic tests; defaults to the real clock.
	Clock clock.Clock
}

// ProgressFunc is the shape of the three progress signals Env emits (§6):
// it is used for update_retrieve_and_build, update_install and
// update_upload alike, with unused fields left at zero. Env emits no
// finished signal; callers read Errors after each phase.
type ProgressFunc func(total, a, b, c int)

// Env is the pipeline controller.
type Env struct {
	log   wlog.Log
	index *index.Index

	blacklist map[requirement.PackageName]bool
	workers   int
	poll      time.Duration
	clock     clock.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu                sync.Mutex
	requirements      map[string]struct{}
	packageNames      map[requirement.PackageName]bool
	urlRequirements   []requirement.Requirement
	dependencyOf      map[string]*requirement.Requirement
	wheels            map[string]string
	errors            map[string]error
	repeated          int
	builtCount        int
	inFlightDownloads map[string]bool
	inFlightBuilds    map[fingerprint.Key]bool

	mapping *mapping.Mapping

	finder      *service.Service[pipeline.Job]
	downloader  *service.Service[pipeline.Job]
	builder     *service.Service[pipeline.Job]
	dependencer *service.Service[pipeline.Job]
	installer   *service.Service[pipeline.Job]
	uploader    *service.Service[pipeline.Job]

	finderStage   *pipeline.FinderStage
	uploaderStage *pipeline.UploaderStage

	onRetrieveAndBuildProgress ProgressFunc
	onInstallProgress          ProgressFunc
	onUploadProgress           ProgressFunc

	installedCount     int
	installFailedCount int
	uploadedCount      int
	uploadFailedCount  int
}

// New builds an Env wiring stages into Services per §4.2's fixed edges.
// Services are constructed but not started; call Start.
func New(ctx context.Context, cfg Config, artifactIndex *index.Index, logFactory wlog.Factory, stages Stages) *Env {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	blacklist := cfg.Blacklist
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}

	ctx, cancel := context.WithCancel(ctx)
	e := &Env{
		log:               logFactory("env"),
		index:             artifactIndex,
		blacklist:         blacklistSet(blacklist),
		workers:           cfg.Workers,
		poll:              cfg.PollInterval,
		clock:             cfg.Clock,
		ctx:               ctx,
		cancel:            cancel,
		requirements:      make(map[string]struct{}),
		packageNames:      make(map[requirement.PackageName]bool),
		dependencyOf:      make(map[string]*requirement.Requirement),
		wheels:            make(map[string]string),
		errors:            make(map[string]error),
		inFlightDownloads: make(map[string]bool),
		inFlightBuilds:    make(map[fingerprint.Key]bool),
		mapping:           mapping.New(),
		finderStage:       stages.Finder,
		uploaderStage:     stages.Uploader,
	}

	e.finder = service.New(ctx, "finder", cfg.Workers, logFactory("finder"), stages.Finder.Handle)
	e.downloader = service.New(ctx, "downloader", cfg.Workers, logFactory("downloader"), stages.Downloader.Handle)
	e.builder = service.New(ctx, "builder", cfg.Workers, logFactory("builder"), stages.Builder.Handle)
	e.dependencer = service.New(ctx, "dependencer", cfg.Workers, logFactory("dependencer"), stages.Dependencer.Handle)
	e.installer = service.New(ctx, "installer", cfg.Workers, logFactory("installer"), stages.Installer.Handle)
	if stages.Uploader != nil {
		e.uploader = service.New(ctx, "uploader", cfg.Workers, logFactory("uploader"), stages.Uploader.Handle)
	}

	e.wireServices()
	return e
}

func (e *Env) wireServices() {
	e.finder.OnFinished(e.handleFinderFinished)
	e.finder.OnFailed(e.handleStageFailed)

	e.downloader.OnFinished(e.handleDownloaderFinished)
	e.downloader.OnFailed(e.handleStageFailed)

	e.builder.OnFinished(func(job pipeline.Job) {
		e.releaseBuildGuard(job)
		e.dependencer.Queue(job)
	})
	e.builder.OnFailed(func(job pipeline.Job, err error) {
		e.releaseBuildGuard(job)
		e.handleStageFailed(job, err)
	})

	e.dependencer.OnFinished(e.handleDependencerFinished)
	e.dependencer.OnFailed(e.handleStageFailed)

	e.installer.OnFinished(func(job pipeline.Job) {
		e.mu.Lock()
		e.installedCount++
		e.mu.Unlock()
	})
	e.installer.OnFailed(func(job pipeline.Job, err error) {
		e.recordError(job.Requirement, err)
		e.mu.Lock()
		e.installFailedCount++
		e.mu.Unlock()
	})

	if e.uploader != nil {
		e.uploader.OnFinished(func(job pipeline.Job) {
			e.mu.Lock()
			e.uploadedCount++
			e.mu.Unlock()
		})
		e.uploader.OnFailed(func(job pipeline.Job, err error) {
			e.recordError(job.Requirement, err)
			e.mu.Lock()
			e.uploadFailedCount++
			e.mu.Unlock()
		})
	}
}

// Start begins processing on every wired Service.
func (e *Env) Start() {
	e.finder.Start()
	e.downloader.Start()
	e.builder.Start()
	e.dependencer.Start()
	e.installer.Start()
	if e.uploader != nil {
		e.uploader.Start()
	}
}

// Stop drains every wired Service.
func (e *Env) Stop() {
	e.cancel()
	e.finder.Stop()
	e.downloader.Stop()
	e.builder.Stop()
	e.dependencer.Stop()
	e.installer.Stop()
	if e.uploader != nil {
		e.uploader.Stop()
	}
}

func (e *Env) OnRetrieveAndBuildProgress(fn ProgressFunc) { e.onRetrieveAndBuildProgress = fn }
func (e *Env) OnInstallProgress(fn ProgressFunc)          { e.onInstallProgress = fn }
func (e *Env) OnUploadProgress(fn ProgressFunc)           { e.onUploadProgress = fn }

// Feed is the single entry point for every new requirement, per §4.3.
func (e *Env) Feed(req requirement.Requirement, dependencyOf *requirement.Requirement) {
	if !req.IsURL() && e.blacklist[req.Name()] {
		return
	}

	e.mu.Lock()
	key := req.String()
	if _, exists := e.requirements[key]; exists {
		e.mu.Unlock()
		return
	}
	e.requirements[key] = struct{}{}
	if !req.IsURL() {
		e.packageNames[req.Name()] = true
	} else {
		e.urlRequirements = append(e.urlRequirements, req)
	}
	if dependencyOf != nil {
		e.dependencyOf[key] = dependencyOf
	}
	e.mu.Unlock()

	e.mapping.FileRequirement(req, dependencyOf)

	job := pipeline.Job{ID: uuid.New(), Requirement: req, DependencyOf: dependencyOf}
	e.log.WithField("job", job.ID).Debugf("fed requirement %s", key)

	if _, err := e.index.Get(e.ctx, index.WheelKey(key)); err == nil {
		job.Wheel = e.resolvePath(index.WheelKey(key))
		e.dependencer.Queue(job)
		return
	}
	if _, err := e.index.Get(e.ctx, index.SourceKey(key)); err == nil {
		job.Source = e.resolvePath(index.SourceKey(key))
		e.queueBuild(job)
		return
	}
	if req.IsURL() {
		job.URL = req.URL()
		e.downloader.Queue(job)
		return
	}
	e.finder.Queue(job)
}

// resolvePath turns an ArtifactIndex key into the path a pipeline stage
// can os.Open/zip.OpenReader directly: the real on-disk path when the
// backing Store exposes one (LocalStore), otherwise the opaque locator
// itself (only ever correct today for LocalStore-backed indexes, which is
// what cmd/wheelhouse wires as the primary cache).
func (e *Env) resolvePath(key string) string {
	if path, ok := e.index.Path(key); ok {
		return path
	}
	locator, _ := e.index.Get(e.ctx, key)
	return locator
}

// handleFinderFinished implements the uniqueness guard on the
// Finder->Downloader edge (§4.2 item 1): a job is dropped, and repeated
// incremented, if another in-flight Downloader job shares the same tarball
// basename.
func (e *Env) handleFinderFinished(job pipeline.Job) {
	base := path.Base(job.URL)
	e.mu.Lock()
	if e.inFlightDownloads[base] {
		e.repeated++
		e.mu.Unlock()
		return
	}
	e.inFlightDownloads[base] = true
	e.mu.Unlock()
	e.downloader.Queue(job)
}

func (e *Env) handleDownloaderFinished(job pipeline.Job) {
	e.mu.Lock()
	delete(e.inFlightDownloads, path.Base(job.URL))
	e.mu.Unlock()

	if job.Source != "" {
		e.queueBuild(job)
		return
	}
	e.dependencer.Queue(job)
}

// queueBuild implements the at-most-one-build guarantee per package
// fingerprint (§5): two requirements that resolve to the same source
// locator (e.g. one reaching Builder via a cache hit while another reaches
// it via a fresh download that happened to land on the same archive) are
// never built concurrently. This is a second, stricter guard than the
// Finder->Downloader basename guard, since it fires at the point a source
// is actually known rather than from a URL alone. A duplicate increments
// repeated, same as the basename guard, so it still participates in the
// termination predicate.
func (e *Env) queueBuild(job pipeline.Job) {
	key, err := fingerprint.Of(struct {
		Name   requirement.PackageName
		Source string
	}{job.Requirement.Name(), job.Source})
	if err != nil {
		// Fingerprinting failure must never block a build; fall back to
		// queuing unguarded.
		e.builder.Queue(job)
		return
	}

	e.mu.Lock()
	if e.inFlightBuilds[key] {
		e.repeated++
		e.mu.Unlock()
		return
	}
	e.inFlightBuilds[key] = true
	e.mu.Unlock()
	e.builder.Queue(job)
}

func (e *Env) releaseBuildGuard(job pipeline.Job) {
	key, err := fingerprint.Of(struct {
		Name   requirement.PackageName
		Source string
	}{job.Requirement.Name(), job.Source})
	if err != nil {
		return
	}
	e.mu.Lock()
	delete(e.inFlightBuilds, key)
	e.mu.Unlock()
}

func (e *Env) handleDependencerFinished(job pipeline.Job) {
	for _, dep := range job.Dependencies {
		parent := job.Requirement
		e.Feed(dep, &parent)
	}

	e.mu.Lock()
	e.wheels[job.Requirement.String()] = job.Wheel
	e.builtCount++
	e.mu.Unlock()

	ver, verErr := versionFromWheelPath(job.Wheel)
	if verErr == nil {
		e.mapping.SetWheel(job.Requirement, ver, job.Wheel)
	}
}

func (e *Env) handleStageFailed(job pipeline.Job, err error) {
	e.log.WithField("job", job.ID).Warnf("%s failed: %v", job.Requirement.String(), err)
	e.recordError(job.Requirement, err)
}

func (e *Env) recordError(req requirement.Requirement, err error) {
	e.mu.Lock()
	e.errors[req.String()] = err
	e.mu.Unlock()
	e.mapping.SetError(req, err)
}

// versionFromWheelPath derives the built version from a wheel filename's
// second hyphen-delimited segment, per the "{name}-{version}-..." wheel
// naming convention.
func versionFromWheelPath(wheelPath string) (*semver.Version, error) {
	base := strings.TrimSuffix(path.Base(wheelPath), ".whl")
	parts := strings.Split(base, "-")
	if len(parts) < 2 {
		return nil, fmt.Errorf("cannot derive version from wheel filename %q", wheelPath)
	}
	return semver.NewVersion(parts[1])
}

// WaitRetrieveAndBuild polls at the configured cadence until the
// retrieve-and-build phase's termination predicate holds:
// |requirements| == built + failed, where built = dependencer-finished
// count + repeated. Emits onRetrieveAndBuildProgress on every tick.
func (e *Env) WaitRetrieveAndBuild(ctx context.Context) error {
	ticker := e.clock.Ticker(e.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return e.aggregatedErrors()
		case <-ticker.C:
			total, built, failed, done := e.retrieveAndBuildSnapshot()
			if e.onRetrieveAndBuildProgress != nil {
				e.onRetrieveAndBuildProgress(total, total-failed, built, failed)
			}
			if done {
				return e.aggregatedErrors()
			}
		}
	}
}

func (e *Env) retrieveAndBuildSnapshot() (total, built, failed int, done bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	total = len(e.requirements)
	built = e.builtCount + e.repeated
	failed = len(e.errors)
	return total, built, failed, total == built+failed
}

func (e *Env) aggregatedErrors() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errors) == 0 {
		return nil
	}
	var result error
	keys := make([]string, 0, len(e.errors))
	for k := range e.errors {
		keys = append(keys, k)
	}
	for _, k := range keys {
		result = multierror.Append(result, e.errors[k])
	}
	return result
}

// Reconcile implements load_installer (§4.3): for each distinct package
// name filed, ask Mapping for its best version and enqueue the chosen
// (requirement, wheel) pair for installation. On VersionConflict, every
// filed requirement for that name is attached to the error report.
//
// URL-form requirements never go through Mapping: a URL already pins one
// exact locator, so there is no version to reconcile against siblings.
// Each one that built successfully is installed by its own locator.
func (e *Env) Reconcile() ([]pipeline.Job, error) {
	e.mu.Lock()
	names := make([]requirement.PackageName, 0, len(e.packageNames))
	for name := range e.packageNames {
		names = append(names, name)
	}
	urlReqs := append([]requirement.Requirement(nil), e.urlRequirements...)
	e.mu.Unlock()

	var installable []pipeline.Job
	var conflicts error
	for _, req := range urlReqs {
		e.mu.Lock()
		wheel := e.wheels[req.String()]
		e.mu.Unlock()
		if wheel == "" {
			continue
		}
		installable = append(installable, pipeline.Job{Requirement: req, Wheel: wheel})
	}
	for _, name := range names {
		_, req, err := e.mapping.BestVersion(name)
		if err != nil {
			conflicts = multierror.Append(conflicts, e.attachConflict(name, err))
			continue
		}
		e.mu.Lock()
		wheel := e.wheels[req.String()]
		e.mu.Unlock()
		if wheel == "" {
			continue
		}
		installable = append(installable, pipeline.Job{Requirement: req, Wheel: wheel})
	}
	return installable, conflicts
}

func (e *Env) attachConflict(name requirement.PackageName, conflictErr error) error {
	for _, entry := range e.mapping.Entries(name) {
		useErr := conflictErr
		if entry.Err != nil {
			useErr = entry.Err
		}
		e.mu.Lock()
		e.errors[entry.Requirement.String()] = useErr
		e.mu.Unlock()
	}
	return conflictErr
}

// RunInstall enqueues every job in installable to the Installer and polls
// until every one has finished or failed.
func (e *Env) RunInstall(ctx context.Context, installable []pipeline.Job) error {
	total := len(installable)
	for _, job := range installable {
		e.installer.Queue(job)
	}
	return e.pollUntil(ctx, total, func() (int, int) {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.installedCount, e.installFailedCount
	}, func(total, done int) {
		if e.onInstallProgress != nil {
			e.onInstallProgress(total, done, 0, 0)
		}
	})
}

// RunUpload implements the optional upload phase (§4.3): asks the Finder
// for {server -> [package_name]}, looks up each package's chosen version via
// Mapping, and enqueues to Uploader. Version-conflict errors during lookup
// skip the package rather than aborting.
func (e *Env) RunUpload(ctx context.Context) error {
	if e.uploader == nil {
		return nil
	}
	toUpdate := e.finderStage.ServersToUpdate()

	var total int
	for server, names := range toUpdate {
		if !e.uploaderStage.HasServer(server) {
			// This installer has no destination index for server (e.g. a
			// public pypi index that happened to miss the package); there
			// is nowhere to republish the wheel to.
			continue
		}
		for _, name := range names {
			_, req, err := e.mapping.BestVersion(requirement.PackageName(name))
			if err != nil {
				continue
			}
			e.mu.Lock()
			wheel := e.wheels[req.String()]
			e.mu.Unlock()
			if wheel == "" {
				continue
			}
			total++
			e.uploader.Queue(pipeline.Job{Requirement: req, Wheel: wheel, Server: server})
		}
	}
	if total == 0 {
		return nil
	}
	return e.pollUntil(ctx, total, func() (int, int) {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.uploadedCount, e.uploadFailedCount
	}, func(total, done int) {
		if e.onUploadProgress != nil {
			e.onUploadProgress(total, done, 0, 0)
		}
	})
}

func (e *Env) pollUntil(ctx context.Context, total int, snapshot func() (done, failed int), report func(total, done int)) error {
	if total == 0 {
		return nil
	}
	ticker := e.clock.Ticker(e.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return e.aggregatedErrors()
		case <-ticker.C:
			done, failed := snapshot()
			report(total, done)
			if done+failed >= total {
				return e.aggregatedErrors()
			}
		}
	}
}

// Errors returns a snapshot of the error table keyed by normalized
// requirement string, for building the user-facing report grouped by
// package name (§7).
func (e *Env) Errors() map[string]error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]error, len(e.errors))
	for k, v := range e.errors {
		out[k] = v
	}
	return out
}

// Wheels returns a snapshot of the requirement->wheel-locator map.
func (e *Env) Wheels() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.wheels))
	for k, v := range e.wheels {
		out[k] = v
	}
	return out
}

// Repeated returns the count of requirements short-circuited by the
// uniqueness guard.
func (e *Env) Repeated() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repeated
}

// DependencyOf returns the requester that pulled reqKey into the
// requirement set (nil for a user-requested root, or if reqKey is
// unknown), for building the "chain of dependency_of requesters" the error
// report groups by package name (§7).
func (e *Env) DependencyOf(reqKey string) *requirement.Requirement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dependencyOf[reqKey]
}
