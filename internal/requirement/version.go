package requirement

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Op is one of the seven predicate operators a VersionSpec may carry.
type Op string

const (
	OpEQ  Op = "=="
	OpNE  Op = "!="
	OpLT  Op = "<"
	OpLE  Op = "<="
	OpGT  Op = ">"
	OpGE  Op = ">="
	OpCompatible Op = "~="
)

var validOps = map[Op]bool{
	OpEQ: true, OpNE: true, OpLT: true, OpLE: true, OpGT: true, OpGE: true, OpCompatible: true,
}

// Predicate is a single "<op><version>" constraint.
type Predicate struct {
	Op      Op
	Version *semver.Version
}

func (p Predicate) String() string { return fmt.Sprintf("%s%s", p.Op, p.Version.Original()) }

// Matches reports whether ver satisfies this single predicate.
func (p Predicate) Matches(ver *semver.Version) bool {
	switch p.Op {
	case OpEQ:
		return ver.Equal(p.Version)
	case OpNE:
		return !ver.Equal(p.Version)
	case OpLT:
		return ver.LessThan(p.Version)
	case OpLE:
		return ver.LessThan(p.Version) || ver.Equal(p.Version)
	case OpGT:
		return ver.GreaterThan(p.Version)
	case OpGE:
		return ver.GreaterThan(p.Version) || ver.Equal(p.Version)
	case OpCompatible:
		lower := p.Version
		upper := compatibleUpperBound(p.Version)
		return (ver.GreaterThan(lower) || ver.Equal(lower)) && ver.LessThan(upper)
	}
	return false
}

// compatibleUpperBound implements PEP 440's "~=" compatible-release
// semantics: ~=X.Y is equivalent to >=X.Y,<(X+1).0; ~=X.Y.Z is equivalent
// to >=X.Y.Z,<X.(Y+1).0. Only the first two segments participate in the
// upper bound regardless of how many trailing segments were given.
func compatibleUpperBound(v *semver.Version) *semver.Version {
	if v.Patch() != 0 || strings.Count(v.Original(), ".") >= 2 {
		next := fmt.Sprintf("%d.%d.0", v.Major(), v.Minor()+1)
		upper, _ := semver.NewVersion(next)
		return upper
	}
	next := fmt.Sprintf("%d.0.0", v.Major()+1)
	upper, _ := semver.NewVersion(next)
	return upper
}

// VersionSpec is the parsed predicate set of a Requirement: it supports
// intersection (by concatenation of predicates — a version satisfies the
// intersection iff it satisfies every predicate from every contributing
// spec) and membership testing against a concrete version.
type VersionSpec struct {
	Predicates []Predicate
}

// ParseVersionSpec parses a comma separated "<op><version>, ..." predicate
// list. An empty string yields an empty (always-satisfied) VersionSpec.
func ParseVersionSpec(s string) (VersionSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return VersionSpec{}, nil
	}
	var predicates []Predicate
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pred, err := parsePredicate(part)
		if err != nil {
			return VersionSpec{}, err
		}
		predicates = append(predicates, pred)
	}
	return VersionSpec{Predicates: predicates}, nil
}

func parsePredicate(part string) (Predicate, error) {
	for _, op := range []Op{OpCompatible, OpEQ, OpNE, OpLE, OpGE, OpLT, OpGT} {
		if strings.HasPrefix(part, string(op)) {
			versionStr := strings.TrimSpace(strings.TrimPrefix(part, string(op)))
			ver, err := semver.NewVersion(versionStr)
			if err != nil {
				return Predicate{}, fmt.Errorf("invalid version %q in predicate %q: %w", versionStr, part, err)
			}
			return Predicate{Op: op, Version: ver}, nil
		}
	}
	return Predicate{}, fmt.Errorf("unrecognized predicate %q", part)
}

// Matches reports whether ver satisfies every predicate in the spec.
func (v VersionSpec) Matches(ver *semver.Version) bool {
	for _, p := range v.Predicates {
		if !p.Matches(ver) {
			return false
		}
	}
	return true
}

// Intersect returns the VersionSpec whose predicate set is the union of
// v's and other's predicates: a version satisfies the intersection iff it
// satisfies every predicate from both.
func (v VersionSpec) Intersect(other VersionSpec) VersionSpec {
	merged := make([]Predicate, 0, len(v.Predicates)+len(other.Predicates))
	merged = append(merged, v.Predicates...)
	merged = append(merged, other.Predicates...)
	return VersionSpec{Predicates: merged}
}

// String renders the predicate set back to its comma separated textual form,
// in a stable (sorted) order so that two VersionSpecs built from the same
// predicates in different order still normalize identically.
func (v VersionSpec) String() string {
	if len(v.Predicates) == 0 {
		return ""
	}
	parts := make([]string, len(v.Predicates))
	for i, p := range v.Predicates {
		parts[i] = p.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// Best picks the highest version, under semver's total order (which already
// sorts pre-releases below their corresponding release), from candidates
// that satisfies v. Returns false if none do.
func (v VersionSpec) Best(candidates []*semver.Version) (*semver.Version, bool) {
	var best *semver.Version
	for _, c := range candidates {
		if !v.Matches(c) {
			continue
		}
		if best == nil || c.GreaterThan(best) {
			best = c
		}
	}
	return best, best != nil
}
