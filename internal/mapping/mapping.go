// Package mapping implements the core's Mapping component: version
// reconciliation. Grounded in the original install tool's maestro mapping
// shape, { package_name: { predicate: {dependency_of, data} } }, generalized
// into a typed Entry keyed by (PackageName, predicate string).
package mapping

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/wheelhouse/wheelhouse/internal/requirement"
	"github.com/wheelhouse/wheelhouse/internal/werror"
)

// Candidate is one built wheel recorded against an Entry: the version it
// was built at and the locator of the wheel that built it.
type Candidate struct {
	Version *semver.Version
	Wheel   string
}

// Entry is one filed (name, predicate) pair's accumulated state: the
// requirement it was filed under, who requested it (nil for a root), and
// either the set of built wheels recorded against it (keyed by version's
// original textual form, so repeated builds of the same predicate each
// remain a candidate rather than the latest silently winning) or an
// attached exception.
type Entry struct {
	Requirement  requirement.Requirement
	DependencyOf *requirement.Requirement
	Candidates   map[string]Candidate
	Err          error
}

// Mapping accumulates requirements grouped by PackageName and chooses, per
// name, the single version satisfying every filed predicate.
type Mapping struct {
	mu      sync.Mutex
	entries map[requirement.PackageName]map[string]*Entry
}

func New() *Mapping {
	return &Mapping{entries: make(map[requirement.PackageName]map[string]*Entry)}
}

// FileRequirement records the (name, predicate) pair. Filing the same pair
// again replaces its DependencyOf with the latest requester; earlier
// requesters are not kept. It does not touch the pair's wheel candidates.
func (m *Mapping) FileRequirement(req requirement.Requirement, dependencyOf *requirement.Requirement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := req.Name()
	predicate := req.Spec().String()
	if m.entries[name] == nil {
		m.entries[name] = make(map[string]*Entry)
	}
	entry, ok := m.entries[name][predicate]
	if !ok {
		entry = &Entry{Requirement: req}
		m.entries[name][predicate] = entry
	}
	entry.DependencyOf = dependencyOf
}

// SetWheel records that req's build produced wheel at version ver. A second
// call for the same req at a different version adds a second candidate
// rather than replacing the first — per §4.4 step 1, the candidate set is
// "the versions for which a wheel locator is on file", not a single latest
// build.
func (m *Mapping) SetWheel(req requirement.Requirement, ver *semver.Version, wheel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.entryLocked(req)
	if entry.Candidates == nil {
		entry.Candidates = make(map[string]Candidate)
	}
	entry.Candidates[ver.Original()] = Candidate{Version: ver, Wheel: wheel}
	entry.Err = nil
}

// SetError records that req failed with err.
func (m *Mapping) SetError(req requirement.Requirement, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.entryLocked(req)
	entry.Err = err
}

func (m *Mapping) entryLocked(req requirement.Requirement) *Entry {
	name := req.Name()
	predicate := req.Spec().String()
	if m.entries[name] == nil {
		m.entries[name] = make(map[string]*Entry)
	}
	entry, ok := m.entries[name][predicate]
	if !ok {
		entry = &Entry{Requirement: req}
		m.entries[name][predicate] = entry
	}
	return entry
}

// RequirementsByPackageName returns every filed requirement sharing name.
func (m *Mapping) RequirementsByPackageName(name requirement.PackageName) []requirement.Requirement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []requirement.Requirement
	for _, entry := range m.entries[name] {
		out = append(out, entry.Requirement)
	}
	return out
}

// BestVersion chooses the single version satisfying every predicate filed
// under name, per §4.4's algorithm: intersect every filed predicate set,
// pick the highest version (under semver's total order) among the
// candidates that have a wheel on file, and return it together with the
// specific filed requirement carrying that wheel. Fails with
// werror.ErrCodeVersionConflict, carrying the predicate set and the filed
// requirements, if the intersection admits no built candidate.
func (m *Mapping) BestVersion(name requirement.PackageName) (*semver.Version, requirement.Requirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byPredicate := m.entries[name]
	if len(byPredicate) == 0 {
		return nil, requirement.Requirement{}, werror.NewVersionConflict(
			fmt.Sprintf("no requirement filed for package %q", name), nil)
	}

	var combined requirement.VersionSpec
	var candidates []*semver.Version
	entriesByVersion := make(map[string][]*Entry)
	for _, entry := range byPredicate {
		combined = combined.Intersect(entry.Requirement.Spec())
		for key, c := range entry.Candidates {
			candidates = append(candidates, c.Version)
			entriesByVersion[key] = append(entriesByVersion[key], entry)
		}
	}

	best, ok := combined.Best(candidates)
	if !ok {
		return nil, requirement.Requirement{}, m.conflict(name, combined, byPredicate)
	}

	winner := pickTieBreakWinner(entriesByVersion[best.Original()])
	return best, winner.Requirement, nil
}

// pickTieBreakWinner implements §4.4's tie-break: prefer the entry whose
// DependencyOf is nil (user-requested), else the lexicographically
// smallest DependencyOf.
func pickTieBreakWinner(candidates []*Entry) *Entry {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.DependencyOf == nil && best.DependencyOf != nil {
			best = c
			continue
		}
		if c.DependencyOf != nil && best.DependencyOf != nil && c.DependencyOf.String() < best.DependencyOf.String() {
			best = c
		}
	}
	return best
}

func (m *Mapping) conflict(name requirement.PackageName, combined requirement.VersionSpec, byPredicate map[string]*Entry) error {
	requesters := make([]string, 0, len(byPredicate))
	for _, entry := range byPredicate {
		requesters = append(requesters, entry.Requirement.String())
	}
	sort.Strings(requesters)
	return werror.NewVersionConflict(
		fmt.Sprintf("no version of %q satisfies every requirement", name),
		werror.Details{
			werror.DetailPackageName: werror.NewDetail(werror.AudienceExternal, werror.DetailPackageName, string(name)),
			werror.DetailPredicates:  werror.NewDetail(werror.AudienceExternal, werror.DetailPredicates, combined.String()),
			werror.DetailRequesters:  werror.NewDetail(werror.AudienceExternal, werror.DetailRequesters, requesters),
		},
	)
}

// Entries returns every filed entry for name, for building the error report
// grouped by package name (§7's "grouped by package name" requirement).
func (m *Mapping) Entries(name requirement.PackageName) []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Entry, 0, len(m.entries[name]))
	for _, e := range m.entries[name] {
		out = append(out, e)
	}
	return out
}
