package index

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/wheelhouse/wheelhouse/internal/werror"
)

// LocalStore is a Store backed by a directory on the local filesystem,
// adapted from the teacher's LocalBlobStore: one file per key, the key
// escaped so it is always a safe single path segment.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// Put writes all data in content to the blob identified by key. The caller
// is responsible for closing content.
func (s *LocalStore) Put(ctx context.Context, key string, content io.Reader) error {
	path := s.PathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "error making artifact directory")
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error opening artifact %s for writing", path)
	}
	defer file.Close()
	if _, err := io.Copy(file, content); err != nil {
		return errors.Wrapf(err, "error writing artifact %s", path)
	}
	return file.Sync()
}

// Get returns a reader positioned at the beginning of the blob identified
// by key. The caller is responsible for closing the reader.
func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path := s.PathFor(key)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, werror.NewNotFound("artifact not found").Wrap(err).IDetail(werror.DetailURL, key)
		}
		return nil, errors.Wrapf(err, "error opening artifact %s for reading", path)
	}
	return file, nil
}

// Delete deletes a blob. Returns nil if the blob does not exist.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path := s.PathFor(key)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error deleting artifact %s: %w", path, err)
	}
	return nil
}

// PathFor maps a key to a path on disk, escaping it into a single safe
// path segment so that keys containing predicate characters ("(", ")",
// ";", "=", ",") never escape the store's root directory. Index uses it,
// via the pathLocator interface, to hand pipeline stages a real
// filesystem path instead of routing every cache hit through Open.
func (s *LocalStore) PathFor(key string) string {
	escaped := url.QueryEscape(key)
	return filepath.Join(s.dir, escaped)
}
