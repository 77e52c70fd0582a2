// Package region maps storefront paths to the market whose cart they use.
package region

import (
	"strings"

	"github.com/spirithubcafe/spirithubcafe-sub004/internal/domain"
)

// FromPath derives the storefront region from a URL path. Anything that is
// not under /sa or /om belongs to the default region.
func FromPath(path string) domain.Region {
	switch {
	case strings.HasPrefix(path, "/sa"):
		return domain.RegionSaudi
	case strings.HasPrefix(path, "/om"):
		return domain.RegionOman
	default:
		return domain.DefaultRegion
	}
}

// Valid reports whether r is a known region code.
func Valid(r domain.Region) bool {
	return r == domain.RegionOman || r == domain.RegionSaudi
}
