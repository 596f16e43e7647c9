package env_test

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wheelhouse/wheelhouse/internal/env"
	"github.com/wheelhouse/wheelhouse/internal/gitsource"
	"github.com/wheelhouse/wheelhouse/internal/index"
	"github.com/wheelhouse/wheelhouse/internal/pipeline"
	"github.com/wheelhouse/wheelhouse/internal/requirement"
	"github.com/wheelhouse/wheelhouse/internal/werror"
	"github.com/wheelhouse/wheelhouse/internal/wlog"
)

// fakeResolver resolves a package name to a path served by an httptest
// server, standing in for the upstream index lookup internal/upstream
// normally performs over the network.
type fakeResolver struct {
	baseURL string
	urls    map[string]string
	calls   int
}

func (f *fakeResolver) Resolve(ctx context.Context, name string) (string, string, []string, error) {
	f.calls++
	path, ok := f.urls[name]
	if !ok {
		return "", "", []string{"test-index"}, werror.NewNotFound(fmt.Sprintf("no upstream index has %q", name))
	}
	return f.baseURL + path, "test-index", nil, nil
}

// missingFromResolver is a fakeResolver variant that finds every requirement
// on winnerServer but reports missedServers as having been consulted and
// come up empty first, standing in for a curdling mirror that has not yet
// seen a package a public index already carries.
type missingFromResolver struct {
	baseURL       string
	urls          map[string]string
	winnerServer  string
	missedServers []string
	calls         int
}

func (f *missingFromResolver) Resolve(ctx context.Context, name string) (string, string, []string, error) {
	f.calls++
	path, ok := f.urls[name]
	if !ok {
		return "", "", f.missedServers, werror.NewNotFound(fmt.Sprintf("no upstream index has %q", name))
	}
	return f.baseURL + path, f.winnerServer, f.missedServers, nil
}

// buildWheel returns the bytes of a minimal wheel (a zip carrying only a
// dist-info/METADATA member) declaring the given Requires-Dist lines.
func buildWheel(t *testing.T, name, version string, requiresDist []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(fmt.Sprintf("%s-%s.dist-info/METADATA", name, version))
	require.NoError(t, err)
	content := fmt.Sprintf("Metadata-Version: 2.1\nName: %s\nVersion: %s\n", name, version)
	for _, r := range requiresDist {
		content += "Requires-Dist: " + r + "\n"
	}
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestIndex(t *testing.T) *index.Index {
	t.Helper()
	store := index.NewLocalStore(t.TempDir())
	catalog, err := index.OpenSQLiteCatalog(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	return index.New(store, catalog)
}

func newTestEnv(t *testing.T, resolver pipeline.Resolver, artifactIndex *index.Index) (*env.Env, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()

	stages := env.Stages{
		Finder:      pipeline.NewFinderStage(resolver),
		Downloader:  pipeline.NewDownloaderStage(http.DefaultClient, gitsource.NewFetcher(wlog.NoOpFactory, dir, nil), dir),
		Builder:     pipeline.NewBuilderStage(nil, nil, dir),
		Dependencer: pipeline.NewDependencerStage(),
		Installer:   pipeline.NewInstallerStage(dir),
	}
	e := env.New(ctx, env.Config{PollInterval: 10 * time.Millisecond}, artifactIndex, wlog.NoOpFactory, stages)
	e.Start()
	return e, func() {
		e.Stop()
		cancel()
	}
}

func serveWheels(t *testing.T, wheels map[string][]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, content := range wheels {
		content := content
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Write(content)
		})
	}
	return httptest.NewServer(mux)
}

// TestSeedSingleRootNoDeps covers the simplest retrieve-and-build run: one
// root requirement, no dependencies, ending with the wheel recorded and no
// errors.
func TestSeedSingleRootNoDeps(t *testing.T) {
	srv := serveWheels(t, map[string][]byte{
		"/curdling-1.0.0-py3-none-any.whl": buildWheel(t, "curdling", "1.0.0", nil),
	})
	defer srv.Close()

	resolver := &fakeResolver{baseURL: srv.URL, urls: map[string]string{
		"curdling": "/curdling-1.0.0-py3-none-any.whl",
	}}
	idx := newTestIndex(t)
	e, stop := newTestEnv(t, resolver, idx)
	defer stop()

	e.Feed(requirement.MustParse("curdling"), nil)

	require.NoError(t, e.WaitRetrieveAndBuild(context.Background()))
	require.Empty(t, e.Errors())
	require.Contains(t, e.Wheels(), "curdling")
}

// TestSeedSatisfiableDependency covers a root whose wheel declares one
// dependency that is itself resolvable and buildable, exercising the
// Dependencer->Env.Feed feedback edge.
func TestSeedSatisfiableDependency(t *testing.T) {
	srv := serveWheels(t, map[string][]byte{
		"/curdling-1.0.0-py3-none-any.whl": buildWheel(t, "curdling", "1.0.0", []string{"sure (==0.1.2)"}),
		"/sure-0.1.2-py3-none-any.whl":      buildWheel(t, "sure", "0.1.2", nil),
	})
	defer srv.Close()

	resolver := &fakeResolver{baseURL: srv.URL, urls: map[string]string{
		"curdling": "/curdling-1.0.0-py3-none-any.whl",
		"sure":     "/sure-0.1.2-py3-none-any.whl",
	}}
	idx := newTestIndex(t)
	e, stop := newTestEnv(t, resolver, idx)
	defer stop()

	e.Feed(requirement.MustParse("curdling"), nil)

	require.NoError(t, e.WaitRetrieveAndBuild(context.Background()))
	require.Empty(t, e.Errors())

	wheels := e.Wheels()
	require.Contains(t, wheels, "curdling")
	require.Contains(t, wheels, "sure (==0.1.2)")

	installable, conflictErr := e.Reconcile()
	require.NoError(t, conflictErr)
	names := map[string]bool{}
	for _, job := range installable {
		names[string(job.Requirement.Name())] = true
	}
	require.True(t, names["curdling"])
	require.True(t, names["sure"])
}

// TestSeedVersionConflict covers a root requiring the same package name
// under two mutually unsatisfiable predicates; Reconcile must report a
// VersionConflict attached to both filed requirements.
func TestSeedVersionConflict(t *testing.T) {
	srv := serveWheels(t, map[string][]byte{
		"/a-1.0.0-py3-none-any.whl": buildWheel(t, "a", "1.0.0", []string{"b (==1.0)", "b (==2.0)"}),
		"/b-1.0.0-py3-none-any.whl": buildWheel(t, "b", "1.0.0", nil),
	})
	defer srv.Close()

	resolver := &fakeResolver{baseURL: srv.URL, urls: map[string]string{
		"a": "/a-1.0.0-py3-none-any.whl",
		"b": "/b-1.0.0-py3-none-any.whl",
	}}
	idx := newTestIndex(t)
	e, stop := newTestEnv(t, resolver, idx)
	defer stop()

	e.Feed(requirement.MustParse("a"), nil)

	require.NoError(t, e.WaitRetrieveAndBuild(context.Background()))

	_, conflictErr := e.Reconcile()
	require.Error(t, conflictErr)

	errs := e.Errors()
	require.Contains(t, errs, "b (==1.0)")
	require.Contains(t, errs, "b (==2.0)")
	require.True(t, werror.IsVersionConflict(errs["b (==1.0)"]))
	require.True(t, werror.IsVersionConflict(errs["b (==2.0)"]))
}

// TestSeedCacheShortCircuit covers a requirement whose wheel is already
// present in the ArtifactIndex: Feed must route straight to the
// Dependencer, never touching the Finder or Downloader.
func TestSeedCacheShortCircuit(t *testing.T) {
	idx := newTestIndex(t)
	req := requirement.MustParse("pkg")
	_, err := idx.Put(context.Background(), index.WheelKey(req.String()), bytes.NewReader(buildWheel(t, "pkg", "1.0.0", nil)))
	require.NoError(t, err)

	resolver := &fakeResolver{urls: map[string]string{}}
	e, stop := newTestEnv(t, resolver, idx)
	defer stop()

	e.Feed(req, nil)

	require.NoError(t, e.WaitRetrieveAndBuild(context.Background()))
	require.Empty(t, e.Errors())
	require.Contains(t, e.Wheels(), "pkg")
	require.Equal(t, 0, resolver.calls)
}

// TestSeedURLRequirement covers a direct URL requirement, which bypasses
// the Finder entirely per the core's data model.
func TestSeedURLRequirement(t *testing.T) {
	srv := serveWheels(t, map[string][]byte{
		"/direct-2.0.0-py3-none-any.whl": buildWheel(t, "direct", "2.0.0", nil),
	})
	defer srv.Close()

	resolver := &fakeResolver{urls: map[string]string{}}
	idx := newTestIndex(t)
	e, stop := newTestEnv(t, resolver, idx)
	defer stop()

	req := requirement.MustParse(srv.URL + "/direct-2.0.0-py3-none-any.whl")
	require.True(t, req.IsURL())
	e.Feed(req, nil)

	require.NoError(t, e.WaitRetrieveAndBuild(context.Background()))
	require.Empty(t, e.Errors())
	require.Equal(t, 0, resolver.calls)
	require.Contains(t, e.Wheels(), req.String())

	installable, conflictErr := e.Reconcile()
	require.NoError(t, conflictErr)
	require.Len(t, installable, 1)
	require.Equal(t, req.String(), installable[0].Requirement.String())
}

// TestRunUploadRepublishesToMissingServer covers the upload phase's actual
// purpose: a package built after being found on one index must be
// republished to every other configured curdling index the Finder
// consulted and found missing it, not just skipped because it was found
// somewhere.
func TestRunUploadRepublishesToMissingServer(t *testing.T) {
	srv := serveWheels(t, map[string][]byte{
		"/curdling-1.0.0-py3-none-any.whl": buildWheel(t, "curdling", "1.0.0", nil),
	})
	defer srv.Close()

	resolver := &missingFromResolver{
		baseURL:       srv.URL,
		urls:          map[string]string{"curdling": "/curdling-1.0.0-py3-none-any.whl"},
		winnerServer:  "public-index",
		missedServers: []string{"curdling-mirror"},
	}

	idx := newTestIndex(t)
	uploadIdx := newTestIndex(t)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stages := env.Stages{
		Finder:      pipeline.NewFinderStage(resolver),
		Downloader:  pipeline.NewDownloaderStage(http.DefaultClient, gitsource.NewFetcher(wlog.NoOpFactory, dir, nil), dir),
		Builder:     pipeline.NewBuilderStage(nil, nil, dir),
		Dependencer: pipeline.NewDependencerStage(),
		Installer:   pipeline.NewInstallerStage(dir),
		Uploader:    pipeline.NewUploaderStage(map[string]*index.Index{"curdling-mirror": uploadIdx}),
	}
	e := env.New(ctx, env.Config{PollInterval: 10 * time.Millisecond}, idx, wlog.NoOpFactory, stages)
	e.Start()
	defer e.Stop()

	e.Feed(requirement.MustParse("curdling"), nil)
	require.NoError(t, e.WaitRetrieveAndBuild(context.Background()))
	require.Empty(t, e.Errors())

	require.NoError(t, e.RunUpload(context.Background()))

	_, err := uploadIdx.Get(context.Background(), index.WheelKey("curdling"))
	require.NoError(t, err)
}
