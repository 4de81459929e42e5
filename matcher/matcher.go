// Package matcher resolves externally supplied tool names and websites to
// canonical CPE identifiers, grouping results by vendor and product.
package matcher

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cpedb/cpedb-backend/backend"
	"github.com/cpedb/cpedb-backend/model"
)

// DefaultLimit caps the number of match groups returned per tool.
const DefaultLimit = 5

// perQueryLimit bounds each backend query before grouping collapses the
// candidates.
const perQueryLimit = 50

// Options control one match request.
type Options struct {
	// IncludeDeprecated keeps deprecated entries in the candidate set.
	IncludeDeprecated bool
	// Limit overrides DefaultLimit when positive.
	Limit int
}

// ToolMatcher queries the already-indexed backend at request time. It has
// no side effects beyond backend reads.
type ToolMatcher struct {
	store  backend.Store
	logger *zap.SugaredLogger
}

// NewToolMatcher creates a matcher over the given store.
func NewToolMatcher(store backend.Store, logger *zap.Logger) *ToolMatcher {
	return &ToolMatcher{store: store, logger: logger.Sugar()}
}

// CleanWebsite strips a leading URL scheme and trailing slashes, keeping
// domain plus path for reference matching.
func CleanWebsite(website string) string {
	cleaned := strings.TrimSpace(website)
	cleaned = strings.TrimPrefix(cleaned, "https://")
	cleaned = strings.TrimPrefix(cleaned, "http://")
	if cleaned == "" {
		return ""
	}

	parsed, err := url.Parse("http://" + cleaned)
	if err != nil {
		// Fall back to the bare domain.
		return strings.SplitN(cleaned, "/", 2)[0]
	}

	host := parsed.Host
	path := strings.TrimRight(parsed.Path, "/")
	return host + path
}

// candidate tracks one entry and the signals that produced it.
type candidate struct {
	entry  model.CPEEntry
	byName bool
	bySite bool
}

// Match returns up to 5 MatchGroup candidates for a tool name and website.
// Both signals are queried and unioned; ordering prefers entries matched by
// both signals, then reference matches, then name matches, then larger
// groups. Returning fewer groups than the limit is not an error.
func (m *ToolMatcher) Match(ctx context.Context, toolName, website string, opts Options) ([]model.MatchGroup, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	deprecated := backend.DeprecatedExclude
	if opts.IncludeDeprecated {
		deprecated = backend.DeprecatedAny
	}

	candidates := map[string]*candidate{}

	if cleaned := CleanWebsite(website); cleaned != "" {
		hits, err := m.store.Search(ctx, backend.Query{
			RefContains: cleaned,
			Deprecated:  deprecated,
			Limit:       perQueryLimit,
		})
		if err != nil {
			return nil, err
		}
		m.logger.Infof("Website %q matched %d entries", cleaned, len(hits))
		for _, hit := range hits {
			addCandidate(candidates, hit, false)
		}
	}

	if toolName != "" {
		hits, err := m.searchByName(ctx, toolName, deprecated)
		if err != nil {
			return nil, err
		}
		m.logger.Infof("Tool name %q matched %d entries", toolName, len(hits))
		for _, hit := range hits {
			addCandidate(candidates, hit, true)
		}
	}

	groups := m.group(candidates)
	if len(groups) > limit {
		groups = groups[:limit]
	}
	return groups, nil
}

// searchByName tries an exact title match first and falls back to fuzzy
// search only when nothing matches verbatim.
func (m *ToolMatcher) searchByName(ctx context.Context, toolName string, deprecated backend.DeprecatedFilter) ([]model.CPEEntry, error) {
	hits, err := m.store.Search(ctx, backend.Query{
		ExactTitle: toolName,
		Deprecated: deprecated,
		Limit:      perQueryLimit,
	})
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		return hits, nil
	}

	return m.store.Search(ctx, backend.Query{
		FuzzyTitle: toolName,
		Deprecated: deprecated,
		Limit:      perQueryLimit,
	})
}

func addCandidate(candidates map[string]*candidate, entry model.CPEEntry, byName bool) {
	c, ok := candidates[entry.NameID]
	if !ok {
		c = &candidate{entry: entry}
		candidates[entry.NameID] = c
	}
	if byName {
		c.byName = true
	} else {
		c.bySite = true
	}
}

// group collapses candidates sharing (vendor, product) into MatchGroups,
// ordered by signal strength, then group size, then vendor/product.
func (m *ToolMatcher) group(candidates map[string]*candidate) []model.MatchGroup {
	type bucket struct {
		entries  []model.CPEEntry
		versions map[string]bool
		byName   bool
		bySite   bool
	}

	buckets := map[string]*bucket{}
	for _, c := range candidates {
		entry := c.entry
		if entry.Vendor == "" || entry.Product == "" {
			// Entries indexed before name fields were derived.
			if err := entry.ParseAndSetNameFields(); err != nil {
				continue
			}
		}

		key := entry.Vendor + ":" + entry.Product
		b, ok := buckets[key]
		if !ok {
			b = &bucket{versions: map[string]bool{}}
			buckets[key] = b
		}
		b.entries = append(b.entries, entry)
		b.versions[entry.Version] = true
		b.byName = b.byName || c.byName
		b.bySite = b.bySite || c.bySite
	}

	groups := make([]model.MatchGroup, 0, len(buckets))
	for _, b := range buckets {
		sort.Slice(b.entries, func(i, j int) bool { return b.entries[i].NameID < b.entries[j].NameID })

		versions := make([]string, 0, len(b.versions))
		for v := range b.versions {
			versions = append(versions, v)
		}
		model.SortVersions(versions)

		rep := b.entries[0]
		version := rep.Version
		if len(versions) > 1 || b.versions["*"] {
			version = "*"
		}

		cpe := rep.Name
		if parsed, err := model.ParseCPEName(rep.Name); err == nil {
			cpe = parsed.WithVersion(version).String()
		}

		nameIDs := make([]string, 0, len(b.entries))
		for _, e := range b.entries {
			nameIDs = append(nameIDs, e.NameID)
		}

		groups = append(groups, model.MatchGroup{
			Vendor:         rep.Vendor,
			Product:        rep.Product,
			Version:        version,
			CPE:            cpe,
			Versions:       versions,
			NameIDs:        nameIDs,
			FoundBy:        foundBy(b.byName, b.bySite),
			Representative: rep,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		ri, rj := signalRank(groups[i].FoundBy), signalRank(groups[j].FoundBy)
		if ri != rj {
			return ri > rj
		}
		if groups[i].Size() != groups[j].Size() {
			return groups[i].Size() > groups[j].Size()
		}
		if groups[i].Vendor != groups[j].Vendor {
			return groups[i].Vendor < groups[j].Vendor
		}
		return groups[i].Product < groups[j].Product
	})

	return groups
}

func foundBy(byName, bySite bool) string {
	switch {
	case byName && bySite:
		return model.FoundByBoth
	case bySite:
		return model.FoundByWebsite
	default:
		return model.FoundByName
	}
}

func signalRank(foundBy string) int {
	switch foundBy {
	case model.FoundByBoth:
		return 3
	case model.FoundByWebsite:
		return 2
	default:
		return 1
	}
}
