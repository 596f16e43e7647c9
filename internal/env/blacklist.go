package env

import "github.com/wheelhouse/wheelhouse/internal/requirement"

// DefaultBlacklist is the fixed set of package names whose presence as a
// dependency (or as a user-requested root — the blacklist is a hard filter
// regardless, per the Open Question decision) is ignored: bootstrap tooling
// assumed already present in the target environment.
var DefaultBlacklist = []string{"setuptools"}

func blacklistSet(names []string) map[requirement.PackageName]bool {
	set := make(map[requirement.PackageName]bool, len(names))
	for _, n := range names {
		set[requirement.PackageName(n)] = true
	}
	return set
}
