package mapping

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/require"

	"github.com/wheelhouse/wheelhouse/internal/requirement"
	"github.com/wheelhouse/wheelhouse/internal/werror"
)

func TestBestVersionDiamondDependency(t *testing.T) {
	m := New()
	root := requirement.MustParse("sure (>=0.1)")
	fromA := requirement.MustParse("sure (<0.2)")
	m.FileRequirement(root, nil)
	m.FileRequirement(fromA, &root)

	v1_1, _ := semver.NewVersion("0.1.1")
	v1_9, _ := semver.NewVersion("0.1.9")
	v2_0, _ := semver.NewVersion("0.2.0")
	m.SetWheel(root, v1_1, "sure-0.1.1.whl")
	m.SetWheel(fromA, v1_9, "sure-0.1.9.whl")
	m.SetWheel(fromA, v2_0, "sure-0.2.0.whl")

	best, winner, err := m.BestVersion("sure")
	require.NoError(t, err)
	require.Equal(t, "0.1.9", best.Original())
	require.Equal(t, fromA.String(), winner.String())
}

func TestBestVersionConflict(t *testing.T) {
	m := New()
	a := requirement.MustParse("sure (==1.0.0)")
	b := requirement.MustParse("sure (==2.0.0)")
	m.FileRequirement(a, nil)
	m.FileRequirement(b, nil)

	v1, _ := semver.NewVersion("1.0.0")
	v2, _ := semver.NewVersion("2.0.0")
	m.SetWheel(a, v1, "sure-1.0.0.whl")
	m.SetWheel(b, v2, "sure-2.0.0.whl")

	_, _, err := m.BestVersion("sure")
	require.Error(t, err)
	require.True(t, werror.IsVersionConflict(err))
}

func TestBestVersionTieBreakPrefersRoot(t *testing.T) {
	m := New()
	dep := requirement.MustParse("sure (==1.0.0)")
	root := requirement.MustParse("sure (>=1.0.0)")
	requester := requirement.MustParse("other (>=1.0)")
	m.FileRequirement(dep, &requester)
	// The same package is also a root requirement under a different
	// predicate; both filed entries carry a wheel at the chosen version, so
	// the nil-DependencyOf (root) entry must win the tie-break.
	m.FileRequirement(root, nil)

	v1, _ := semver.NewVersion("1.0.0")
	m.SetWheel(dep, v1, "sure-1.0.0.whl")
	m.SetWheel(root, v1, "sure-1.0.0.whl")

	best, winner, err := m.BestVersion("sure")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", best.Original())
	require.Equal(t, "sure (>=1.0.0)", winner.String())
}

func TestRequirementsByPackageName(t *testing.T) {
	m := New()
	a := requirement.MustParse("sure (>=0.1)")
	b := requirement.MustParse("sure (<0.2)")
	m.FileRequirement(a, nil)
	m.FileRequirement(b, nil)

	reqs := m.RequirementsByPackageName("sure")
	require.Len(t, reqs, 2)
}

func TestBestVersionNoRequirementFiled(t *testing.T) {
	m := New()
	_, _, err := m.BestVersion("nonexistent")
	require.Error(t, err)
	require.True(t, werror.IsVersionConflict(err))
}
