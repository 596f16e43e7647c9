// Package pipeline implements the core's Pipeline component: the fixed
// wiring of Finder, Downloader, Builder, Dependencer, Installer and
// Uploader services around a single Job type, per §4.1-§4.2. Routing
// between stages (including the Dependencer->Env.feed feedback edge) is
// owned by internal/env; this package only defines the Job payload and
// each stage's own unit of work.
package pipeline

import (
	"github.com/google/uuid"

	"github.com/wheelhouse/wheelhouse/internal/requirement"
)

// Job is the message flowing between services. Fields accumulate as a Job
// advances through stages; every Job carries at minimum Requirement and
// DependencyOf.
type Job struct {
	// ID identifies this Job across every stage it passes through, for log
	// correlation; assigned once when internal/env first feeds the
	// requirement, independent of the requirement's own normalized identity.
	ID           uuid.UUID
	Requirement  requirement.Requirement
	DependencyOf *requirement.Requirement // nil for a user-requested root

	URL    string // populated by Finder
	Source string // populated by Downloader, when the fetched resource is an archive
	Wheel  string // populated by Downloader (already built) or Builder

	// Server is populated for Uploader jobs: the destination index.
	Server string

	// Dependencies is populated by Dependencer: one child Requirement per
	// declared dependency, read out of the wheel's metadata.
	Dependencies []requirement.Requirement
}

// WithDependencyOf returns a copy of job with DependencyOf set to parent.
func (j Job) WithDependencyOf(parent requirement.Requirement) Job {
	j.DependencyOf = &parent
	return j
}
