package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cpedb/cpedb-backend/backend"
)

func TestLikePattern(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"cpe:2.3:a:apache:*", "cpe:2.3:a:apache:%"},
		{"*nginx*", "%nginx%"},
		{"plain", "plain"},
		{"100%_done*", "100\\%\\_done%"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, likePattern(tc.in), "input %q", tc.in)
	}
}

func TestBuildFilters(t *testing.T) {
	t.Parallel()

	t.Run("empty query has no filters", func(t *testing.T) {
		t.Parallel()

		filters, bindVars := buildFilters(backend.Query{})
		assert.Empty(t, filters)
		assert.Empty(t, bindVars)
	})

	t.Run("each field contributes a filter and bind var", func(t *testing.T) {
		t.Parallel()

		filters, bindVars := buildFilters(backend.Query{
			ExactTitle:  "nginx",
			RefContains: "nginx.org",
			NamePattern: "cpe:2.3:a:nginx:*",
			Vendor:      "nginx",
			Product:     "nginx",
			Deprecated:  backend.DeprecatedExclude,
		})

		assert.Contains(t, filters, "@title")
		assert.Contains(t, filters, "@site")
		assert.Contains(t, filters, "@pattern")
		assert.Contains(t, filters, "d.vendor == @vendor")
		assert.Contains(t, filters, "d.product == @product")
		assert.Contains(t, filters, "d.deprecated == false")

		assert.Equal(t, "nginx", bindVars["title"])
		assert.Equal(t, "nginx.org", bindVars["site"])
		assert.Equal(t, "cpe:2.3:a:nginx:%", bindVars["pattern"])
	})

	t.Run("deprecated-only flips the flag filter", func(t *testing.T) {
		t.Parallel()

		filters, _ := buildFilters(backend.Query{Deprecated: backend.DeprecatedOnly})
		assert.Contains(t, filters, "d.deprecated == true")
	})
}

func TestBuildSearch(t *testing.T) {
	t.Parallel()

	s := &Store{db: DBConnection{Collection: "cpe", View: "cpe_search"}}

	t.Run("fuzzy queries go through the view", func(t *testing.T) {
		t.Parallel()

		query, bindVars := s.buildSearch(backend.Query{FuzzyTitle: "Apache", Limit: 5})
		assert.Contains(t, query, "FOR d IN cpe_search")
		assert.Contains(t, query, "BM25(d)")
		assert.Equal(t, "Apache", bindVars["q"])
		assert.Equal(t, "%apache%", bindVars["sub"])
		assert.Equal(t, 5, bindVars["limit"])
	})

	t.Run("filter queries hit the collection with a default limit", func(t *testing.T) {
		t.Parallel()

		query, bindVars := s.buildSearch(backend.Query{Vendor: "apache"})
		assert.Contains(t, query, "FOR d IN @@col")
		assert.Equal(t, "cpe", bindVars["@col"])
		assert.Equal(t, 50, bindVars["limit"])
	})
}
