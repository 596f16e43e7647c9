// Package requirement implements the core's Requirement, PackageName and
// VersionSpec types: the textual form "<name>[ (<predicates>)]" or a URL,
// normalized so that requirement equality is string equality of the
// normalized form.
package requirement

import (
	"fmt"
	"sort"
	"strings"
)

// PackageName is the normalized name component of a Requirement; the
// reconciliation key used throughout internal/mapping.
type PackageName string

// schemes that mark a Requirement as URL-form; URL-form requirements bypass
// the Finder per the core's data model.
var urlSchemes = []string{"http://", "https://", "file://", "git+"}

// Requirement is a normalized value carrying a package name and an optional
// VersionSpec, or a URL. Equality is by normalized textual form.
type Requirement struct {
	normalized string
	name       PackageName
	spec       VersionSpec
	url        string
}

// Parse normalizes raw (lowercasing the name, canonicalizing separators)
// into a Requirement. A raw value beginning with a recognized URL scheme
// becomes a URL-form Requirement; its VersionSpec is always empty.
func Parse(raw string) (Requirement, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Requirement{}, fmt.Errorf("empty requirement")
	}
	for _, scheme := range urlSchemes {
		if strings.HasPrefix(raw, scheme) {
			return Requirement{normalized: raw, url: raw}, nil
		}
	}

	name := raw
	predicateStr := ""
	if idx := strings.Index(raw, "("); idx >= 0 {
		if !strings.HasSuffix(raw, ")") {
			return Requirement{}, fmt.Errorf("malformed requirement %q: unbalanced parentheses", raw)
		}
		name = strings.TrimSpace(raw[:idx])
		predicateStr = strings.TrimSpace(raw[idx+1 : len(raw)-1])
	}
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "-")
	if name == "" {
		return Requirement{}, fmt.Errorf("malformed requirement %q: no package name", raw)
	}

	spec, err := ParseVersionSpec(predicateStr)
	if err != nil {
		return Requirement{}, fmt.Errorf("requirement %q: %w", raw, err)
	}

	normalized := name
	if specStr := spec.String(); specStr != "" {
		normalized = fmt.Sprintf("%s (%s)", name, specStr)
	}
	return Requirement{normalized: normalized, name: PackageName(name), spec: spec}, nil
}

// MustParse is Parse but panics on error; used for literal requirements in
// tests and internal call sites that construct Requirements from constants.
func MustParse(raw string) Requirement {
	r, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// IsURL reports whether this Requirement is URL-form.
func (r Requirement) IsURL() bool { return r.url != "" }

// URL returns the Requirement's URL, or "" if it is not URL-form.
func (r Requirement) URL() string { return r.url }

// Name returns the package name, or "" for a URL-form Requirement.
func (r Requirement) Name() PackageName { return r.name }

// Spec returns the Requirement's VersionSpec (empty for a URL-form Requirement).
func (r Requirement) Spec() VersionSpec { return r.spec }

// String returns the normalized textual form; two Requirements are Equal
// iff their String() values match.
func (r Requirement) String() string { return r.normalized }

// Equal reports whether r and other share the same normalized textual form.
func (r Requirement) Equal(other Requirement) bool { return r.normalized == other.normalized }

// SortRequirements returns requirements sorted by normalized textual form,
// for callers that need deterministic ordering rather than map iteration
// order.
func SortRequirements(reqs []Requirement) []Requirement {
	sorted := make([]Requirement, len(reqs))
	copy(sorted, reqs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].normalized < sorted[j].normalized })
	return sorted
}
