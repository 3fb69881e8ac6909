package views

import (
	"sort"

	"github.com/Masterminds/semver"
)

// sortVersionsDesc orders version literals highest-first. Literals that do
// not parse as semver order below all parseable ones, ties keep their
// input order for stability.
func sortVersionsDesc(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		a, aerr := semver.NewVersion(versions[i])
		b, berr := semver.NewVersion(versions[j])
		switch {
		case aerr == nil && berr == nil:
			return a.GreaterThan(b)
		case aerr == nil:
			return true
		case berr == nil:
			return false
		}
		return false
	})
}

// maxVersion returns the highest parseable version, or the first entry when
// none parse, or "" for an empty list.
func maxVersion(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	sorted := make([]string, len(versions))
	copy(sorted, versions)
	sortVersionsDesc(sorted)
	return sorted[0]
}
