// Package index implements the ArtifactIndex external contract from §6: a
// keyed lookup over already-known source archives and built wheel
// artifacts. The core only ever holds the opaque locator string Get
// returns; Index itself owns content storage (Store) and key->locator
// bookkeeping (Catalog).
package index

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wheelhouse/wheelhouse/internal/werror"
)

// SourceKey returns the ArtifactIndex key for requirement's unbuilt source
// archive, per §6: "<requirement>;~whl".
func SourceKey(requirement string) string { return requirement + ";~whl" }

// WheelKey returns the ArtifactIndex key for requirement's built wheel,
// per §6: "<requirement>;whl".
func WheelKey(requirement string) string { return requirement + ";whl" }

// IsWheelKey reports whether key addresses a built wheel rather than source.
func IsWheelKey(key string) bool {
	return strings.HasSuffix(key, ";whl") && !strings.HasSuffix(key, ";~whl")
}

// Store persists blob content addressed by an opaque key. Both LocalStore
// and S3Store implement it.
type Store interface {
	Put(ctx context.Context, key string, content io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Catalog records the locator under which a key's content was stored, so
// that repeated Gets don't need to re-derive it from the Store. SQLiteCatalog
// is the default implementation.
type Catalog interface {
	Locator(ctx context.Context, key string) (string, error)
	Record(ctx context.Context, key, locator string) error
}

// Index is the concrete ArtifactIndex: Get satisfies the core's contract
// (locator string, or fails with werror's NotFound code); Put is the
// out-of-core operation that populates it, used by the Uploader stage.
type Index struct {
	store   Store
	catalog Catalog
}

func New(store Store, catalog Catalog) *Index {
	return &Index{store: store, catalog: catalog}
}

// Get returns the locator string for key, or werror.NewNotFound.
func (i *Index) Get(ctx context.Context, key string) (string, error) {
	locator, err := i.catalog.Locator(ctx, key)
	if err != nil {
		return "", err
	}
	if locator == "" {
		return "", werror.NewNotFound(fmt.Sprintf("artifact index miss for key %q", key)).
			EDetail(werror.DetailURL, key)
	}
	return locator, nil
}

// Put writes content under key, using key itself as the locator (both
// backing stores are content-addressed by key), and records it in the
// catalog so subsequent Gets short-circuit.
func (i *Index) Put(ctx context.Context, key string, content io.Reader) (string, error) {
	if err := i.store.Put(ctx, key, content); err != nil {
		return "", fmt.Errorf("error writing artifact %q: %w", key, err)
	}
	if err := i.catalog.Record(ctx, key, key); err != nil {
		return "", fmt.Errorf("error recording artifact %q: %w", key, err)
	}
	return key, nil
}

// Open returns a reader over the content stored under locator.
func (i *Index) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	return i.store.Get(ctx, locator)
}

// pathLocator is implemented by stores whose content is directly
// reachable from the local filesystem (LocalStore); S3Store does not
// implement it, since its content has no local path without a download.
type pathLocator interface {
	PathFor(key string) string
}

// Path returns the on-disk path backing key, when the underlying Store
// keeps content directly addressable on the local filesystem. Callers
// that need a real path (pipeline stages doing os.Open/zip.OpenReader on
// a cache hit, rather than going through Open's io.Reader) use this
// instead of treating the opaque locator as a path.
func (i *Index) Path(key string) (string, bool) {
	pl, ok := i.store.(pathLocator)
	if !ok {
		return "", false
	}
	return pl.PathFor(key), true
}
