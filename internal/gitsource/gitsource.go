// Package gitsource resolves "git+" scheme Requirements (per the core's
// data model, a URL-form Requirement whose scheme is git+...) into a
// checked-out source tree the Downloader stage hands onward to the
// Builder, exactly as it would a downloaded archive. Adapted from the
// teacher's GitCheckoutManager: a mirror-then-clone strategy with one lock
// per repository so concurrent Downloader workers never race on the same
// mirror.
package gitsource

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/wheelhouse/wheelhouse/internal/wlog"
)

// Ref describes a parsed "git+" Requirement URL.
type Ref struct {
	RepoURL string
	Ref     string // branch, tag or commit SHA; "" means the repo's default branch
}

// ParseURL parses a pip-style "git+<transport>://host/path[@ref]" URL.
func ParseURL(raw string) (Ref, error) {
	if !strings.HasPrefix(raw, "git+") {
		return Ref{}, fmt.Errorf("not a git+ requirement: %q", raw)
	}
	rest := strings.TrimPrefix(raw, "git+")
	repoURL := rest
	ref := ""
	if idx := strings.LastIndex(rest, "@"); idx > strings.Index(rest, "://")+3 {
		repoURL = rest[:idx]
		ref = rest[idx+1:]
	}
	return Ref{RepoURL: repoURL, Ref: ref}, nil
}

// Fetcher clones git+ requirements into per-repo mirrors under mirrorRoot,
// then checks the requested ref out into a fresh workspace directory per call.
type Fetcher struct {
	log         wlog.Log
	mirrorRoot  string
	repoLocksMu sync.Mutex
	repoLocks   map[string]*sync.Mutex
	sshKey      []byte
}

func NewFetcher(factory wlog.Factory, mirrorRoot string, sshKey []byte) *Fetcher {
	return &Fetcher{
		log:        factory("git"),
		mirrorRoot: mirrorRoot,
		repoLocks:  map[string]*sync.Mutex{},
		sshKey:     sshKey,
	}
}

// Fetch resolves ref and checks it out into checkoutDir, returning that
// directory as the Builder-ready source path.
func (f *Fetcher) Fetch(ctx context.Context, ref Ref, checkoutDir string) (string, error) {
	start := time.Now()
	mirrorPath, err := f.mirrorWith(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("error getting mirror for %s: %w", ref.RepoURL, err)
	}
	mirrorURL, _ := url.Parse(mirrorPath)
	mirrorURL.Scheme = "file"
	mirrorURI := mirrorURL.String()

	refName := plumbing.ReferenceName(ref.Ref)
	cloneOpts := &git.CloneOptions{
		URL:          mirrorURI,
		RemoteName:   "origin",
		SingleBranch: ref.Ref != "",
		Tags:         git.AllTags,
	}
	if ref.Ref != "" {
		cloneOpts.ReferenceName = refName
	}
	_, err = git.PlainCloneContext(ctx, checkoutDir, false, cloneOpts)
	if err != nil {
		return "", fmt.Errorf("error cloning %s: %w", ref.RepoURL, err)
	}
	f.log.Debugf("checked out %s in %s", ref.RepoURL, time.Since(start).Round(time.Millisecond))
	return checkoutDir, nil
}

func (f *Fetcher) repoLock(repoURL string) *sync.Mutex {
	f.repoLocksMu.Lock()
	defer f.repoLocksMu.Unlock()
	mu, ok := f.repoLocks[repoURL]
	if !ok {
		mu = &sync.Mutex{}
		f.repoLocks[repoURL] = mu
	}
	return mu
}

func (f *Fetcher) mirrorWith(ctx context.Context, ref Ref) (string, error) {
	mu := f.repoLock(ref.RepoURL)
	mu.Lock()
	defer mu.Unlock()

	path := f.mirrorPath(ref.RepoURL)
	mirror, err := f.findMirror(path)
	if err != nil {
		return "", fmt.Errorf("error finding mirror: %w", err)
	}
	if mirror == nil {
		mirror, err = f.createMirror(ctx, ref.RepoURL, path)
		if err != nil {
			return "", fmt.Errorf("error creating mirror: %w", err)
		}
		return path, nil
	}
	if ref.Ref != "" {
		if _, err := mirror.ResolveRevision(plumbing.Revision(ref.Ref)); err == nil {
			return path, nil
		}
	}
	if err := f.updateMirror(ctx, mirror); err != nil {
		return "", fmt.Errorf("error updating mirror: %w", err)
	}
	return path, nil
}

func (f *Fetcher) findMirror(mirrorPath string) (*git.Repository, error) {
	fs := osfs.New(mirrorPath)
	storage := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())
	mirror, err := git.Open(storage, fs)
	if err == nil {
		return mirror, nil
	}
	if _, statErr := os.Stat(mirrorPath); !os.IsNotExist(statErr) {
		f.log.Warnf("error opening mirror at %s; destroying: %v", mirrorPath, err)
		if rmErr := os.RemoveAll(mirrorPath); rmErr != nil {
			return nil, fmt.Errorf("error deleting bad mirror: %w", rmErr)
		}
	}
	return nil, nil
}

func (f *Fetcher) createMirror(ctx context.Context, repoURL, mirrorPath string) (*git.Repository, error) {
	if err := os.MkdirAll(mirrorPath, 0744); err != nil {
		return nil, fmt.Errorf("error creating mirror path: %w", err)
	}
	auth, err := f.auth()
	if err != nil {
		return nil, err
	}
	fs := osfs.New(mirrorPath)
	storage := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())
	mirror, err := git.CloneContext(ctx, storage, nil, &git.CloneOptions{
		URL:        repoURL,
		Auth:       auth,
		RemoteName: "origin",
		NoCheckout: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error cloning mirror: %w", err)
	}
	return mirror, nil
}

func (f *Fetcher) updateMirror(ctx context.Context, repo *git.Repository) error {
	auth, err := f.auth()
	if err != nil {
		return err
	}
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{"refs/*:refs/*"},
		Auth:       auth,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("error fetching mirror updates: %w", err)
	}
	return nil
}

// auth returns nil (anonymous, suitable for http/https) unless an SSH
// deploy key was configured, in which case it returns SSH public key auth
// with host key checking disabled the same way the teacher's runner does
// for ephemeral build workers.
func (f *Fetcher) auth() (transport.AuthMethod, error) {
	if len(f.sshKey) == 0 {
		return nil, nil
	}
	sshAuth, err := gitssh.NewPublicKeys("git", f.sshKey, "")
	if err != nil {
		return nil, fmt.Errorf("error loading ssh key: %w", err)
	}
	sshAuth.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	return sshAuth, nil
}

func (f *Fetcher) mirrorPath(repoURL string) string {
	safe := strings.NewReplacer("/", "_", ":", "_", "@", "_").Replace(repoURL)
	return filepath.Join(f.mirrorRoot, safe)
}
