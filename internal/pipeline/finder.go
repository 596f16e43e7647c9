package pipeline

import (
	"context"
	"sync"
)

// Resolver queries upstream indexes for a requirement's download URL; it is
// satisfied by *internal/upstream.Client in production and a fake in tests.
// Besides the winning URL/server, it reports every index consulted that did
// not have the requirement (every index before the winner, or every
// configured index on a total miss), so the Finder can track, per server,
// which packages it failed to supply.
type Resolver interface {
	Resolve(ctx context.Context, requirementName string) (url string, server string, missedServers []string, err error)
}

// FinderStage implements the Finder's stage work: "Queries each configured
// upstream index; returns the first index reporting a match." It also
// tracks, per §6's Finder contract, which servers failed to supply which
// package names, for the optional upload phase.
type FinderStage struct {
	resolver Resolver

	mu              sync.Mutex
	missingByServer map[string]map[string]bool
}

func NewFinderStage(resolver Resolver) *FinderStage {
	return &FinderStage{
		resolver:        resolver,
		missingByServer: make(map[string]map[string]bool),
	}
}

// Handle performs the Finder stage's work for job, populating URL.
func (f *FinderStage) Handle(ctx context.Context, job Job) (Job, error) {
	name := string(job.Requirement.Name())
	url, server, missed, err := f.resolver.Resolve(ctx, name)
	for _, m := range missed {
		f.recordMiss(m, name)
	}
	if err != nil {
		return job, err
	}
	_ = server
	job.URL = url
	return job, nil
}

func (f *FinderStage) recordMiss(server, packageName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missingByServer[server] == nil {
		f.missingByServer[server] = make(map[string]bool)
	}
	f.missingByServer[server][packageName] = true
}

// ServersToUpdate implements the Finder contract's get_servers_to_update:
// {server_url -> [package_name]} of packages each upstream server failed to
// supply, recorded as a side effect of every Resolve call during the find
// phase (§6's Finder contract extra). A server only appears here for a
// package it was actually consulted and missed for, not every configured
// server.
func (f *FinderStage) ServersToUpdate() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]string, len(f.missingByServer))
	for server, names := range f.missingByServer {
		list := make([]string, 0, len(names))
		for name := range names {
			list = append(list, name)
		}
		out[server] = list
	}
	return out
}
