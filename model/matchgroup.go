// Package model - MatchGroup collapses CPE entries sharing vendor+product
// into one representative for presentation.
package model

import (
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/package-url/packageurl-go"
)

// Match signals describing which query produced a candidate.
const (
	FoundByName    = "name"
	FoundByWebsite = "website"
	FoundByBoth    = "both"
)

// MatchGroup is the result of grouping candidate entries by
// (vendor, product). Version holds the single literal value shared by all
// grouped entries, or "*" when the group collapsed several versions.
// Groups are ephemeral, built per query.
type MatchGroup struct {
	Vendor   string   `json:"vendor"`
	Product  string   `json:"product"`
	Version  string   `json:"version"`
	CPE      string   `json:"cpe"`
	Versions []string `json:"versions"`
	NameIDs  []string `json:"cpe_name_ids"`
	FoundBy  string   `json:"found_by"`

	// Representative is the sample entry the group formed around.
	Representative CPEEntry `json:"sample,omitempty"`
}

// Size returns the number of entries the group collapsed.
func (g *MatchGroup) Size() int {
	return len(g.NameIDs)
}

// VersionCount returns the number of distinct versions in the group.
func (g *MatchGroup) VersionCount() int {
	return len(g.Versions)
}

// PURL renders the group as a generic package URL, e.g.
// pkg:generic/apache/http_server@2.4.41. Wildcard versions are omitted.
func (g *MatchGroup) PURL() string {
	version := g.Version
	if version == "*" || version == "-" {
		version = ""
	}
	purl := packageurl.NewPackageURL(packageurl.TypeGeneric, g.Vendor, g.Product, version, nil, "")
	return purl.ToString()
}

// SortVersions orders the version list semver-aware, falling back to
// lexical order for versions that do not parse as semver.
func SortVersions(versions []string) {
	sort.Slice(versions, func(i, j int) bool {
		vi, erri := semver.NewVersion(versions[i])
		vj, errj := semver.NewVersion(versions[j])
		switch {
		case erri == nil && errj == nil:
			return vi.LessThan(vj)
		case erri == nil:
			// Parsable versions sort before opaque ones.
			return true
		case errj == nil:
			return false
		default:
			return versions[i] < versions[j]
		}
	})
}
