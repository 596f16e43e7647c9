package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/wheelhouse/wheelhouse/internal/index"
	"github.com/wheelhouse/wheelhouse/internal/werror"
)

// UploaderStage implements the Uploader's stage work: "Posts the wheel to
// the designated remote server." Here "server" addresses one of the
// configured curdling (private) indexes, and posting means writing into
// that index's ArtifactIndex.
type UploaderStage struct {
	indexByServer map[string]*index.Index
}

func NewUploaderStage(indexByServer map[string]*index.Index) *UploaderStage {
	return &UploaderStage{indexByServer: indexByServer}
}

// HasServer reports whether server has a configured destination index, so
// Env.RunUpload can skip a Finder-reported miss against a server (e.g. a
// public pypi index) this installer has no way to publish into.
func (s *UploaderStage) HasServer(server string) bool {
	_, ok := s.indexByServer[server]
	return ok
}

func (s *UploaderStage) Handle(ctx context.Context, job Job) (Job, error) {
	idx, ok := s.indexByServer[job.Server]
	if !ok {
		return job, werror.NewTransport(fmt.Sprintf("unknown upload server %q", job.Server), nil)
	}
	file, err := os.Open(job.Wheel)
	if err != nil {
		return job, werror.NewTransport("error opening wheel for upload", err)
	}
	defer file.Close()

	key := index.WheelKey(job.Requirement.String())
	if _, err := idx.Put(ctx, key, file); err != nil {
		return job, werror.NewTransport(fmt.Sprintf("error uploading %s to %s", job.Requirement.String(), job.Server), err)
	}
	return job, nil
}
