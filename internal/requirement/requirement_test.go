package requirement

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/require"
)

func TestParseNormalization(t *testing.T) {
	a, err := Parse("Curdling_Core (== 0.1.2)")
	require.NoError(t, err)
	require.Equal(t, PackageName("curdling-core"), a.Name())
	require.Equal(t, "curdling-core (==0.1.2)", a.String())

	b, err := Parse("curdling-core(==0.1.2)")
	require.NoError(t, err)
	require.True(t, a.Equal(b), "requirements differing only in whitespace/case must normalize identically")
}

func TestParseURL(t *testing.T) {
	r, err := Parse("https://example/pkg-1.0.tar.gz")
	require.NoError(t, err)
	require.True(t, r.IsURL())
	require.Equal(t, "https://example/pkg-1.0.tar.gz", r.URL())

	r, err = Parse("git+ssh://git@github.com/org/repo.git")
	require.NoError(t, err)
	require.True(t, r.IsURL())
}

func TestVersionSpecIntersectAndConflict(t *testing.T) {
	sure, err := ParseVersionSpec(">0.1.0")
	require.NoError(t, err)
	fruit, err := ParseVersionSpec(">=0.1.2")
	require.NoError(t, err)
	combined := sure.Intersect(fruit)

	candidates := mustVersions(t, "0.1.0", "0.1.1", "0.1.2", "0.1.3")
	best, ok := combined.Best(candidates)
	require.True(t, ok)
	require.Equal(t, "0.1.3", best.Original())

	conflicting := MustParse("b (== 1.0)").Spec().Intersect(MustParse("b (== 2.0)").Spec())
	_, ok = conflicting.Best(mustVersions(t, "1.0", "2.0"))
	require.False(t, ok, "disjoint equality predicates must never both match a single candidate")
}

func TestCompatibleRelease(t *testing.T) {
	spec, err := ParseVersionSpec("~=1.4.2")
	require.NoError(t, err)
	require.True(t, spec.Matches(mustVersion(t, "1.4.9")))
	require.False(t, spec.Matches(mustVersion(t, "1.5.0")))
	require.False(t, spec.Matches(mustVersion(t, "1.4.1")))
}

func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	require.NoError(t, err)
	return v
}

func mustVersions(t *testing.T, ss ...string) []*semver.Version {
	t.Helper()
	out := make([]*semver.Version, len(ss))
	for i, s := range ss {
		out[i] = mustVersion(t, s)
	}
	return out
}
