package matcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cpedb/cpedb-backend/matcher"
	"github.com/cpedb/cpedb-backend/mock"
	"github.com/cpedb/cpedb-backend/model"
)

func TestCleanWebsite(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"https://nginx.org", "nginx.org"},
		{"http://nginx.org", "nginx.org"},
		{"nginx.org", "nginx.org"},
		{"https://nginx.org/", "nginx.org"},
		{"https://httpd.apache.org/docs/", "httpd.apache.org/docs"},
		{"  https://nginx.org  ", "nginx.org"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matcher.CleanWebsite(tc.in), "input %q", tc.in)
	}
}

func catalogEntry(nameID, name, title string, refs ...string) model.CPEEntry {
	e := model.CPEEntry{NameID: nameID, Name: name}
	_ = e.ParseAndSetNameFields()
	if title != "" {
		e.Titles = []model.Title{{Title: title, Lang: "en"}}
	}
	for _, ref := range refs {
		e.Refs = append(e.Refs, model.Ref{Ref: ref})
	}
	return e
}

func seededStore(t *testing.T, entries ...model.CPEEntry) *mock.Store {
	t.Helper()
	store := mock.NewStore()
	store.Commit(entries)
	return store
}

func TestToolMatcher_Match(t *testing.T) {
	t.Parallel()

	logger := zap.NewNop()

	t.Run("collapses versions of one product into a wildcard group", func(t *testing.T) {
		t.Parallel()

		store := seededStore(t,
			catalogEntry("id-1", "cpe:2.3:a:apache:http_server:2.4.41:*:*:*:*:*:*:*", "Apache HTTP Server 2.4.41"),
			catalogEntry("id-2", "cpe:2.3:a:apache:http_server:2.4.46:*:*:*:*:*:*:*", "Apache HTTP Server 2.4.46"),
		)

		m := matcher.NewToolMatcher(store, logger)
		groups, err := m.Match(context.Background(), "Apache HTTP Server", "", matcher.Options{})
		require.NoError(t, err)

		require.Len(t, groups, 1)
		g := groups[0]
		assert.Equal(t, "apache", g.Vendor)
		assert.Equal(t, "http_server", g.Product)
		assert.Equal(t, "*", g.Version)
		assert.Equal(t, "cpe:2.3:a:apache:http_server:*:*:*:*:*:*:*:*", g.CPE)
		assert.Equal(t, 2, g.Size())
		assert.Equal(t, []string{"2.4.41", "2.4.46"}, g.Versions)
		assert.Equal(t, model.FoundByName, g.FoundBy)
	})

	t.Run("a single version stays literal", func(t *testing.T) {
		t.Parallel()

		store := seededStore(t,
			catalogEntry("id-1", "cpe:2.3:a:nginx:nginx:1.18.0:*:*:*:*:*:*:*", "nginx 1.18.0"),
		)

		m := matcher.NewToolMatcher(store, logger)
		groups, err := m.Match(context.Background(), "nginx 1.18.0", "", matcher.Options{})
		require.NoError(t, err)

		require.Len(t, groups, 1)
		assert.Equal(t, "1.18.0", groups[0].Version)
		assert.Equal(t, "cpe:2.3:a:nginx:nginx:1.18.0:*:*:*:*:*:*:*", groups[0].CPE)
	})

	t.Run("name and website signals union into one candidate set", func(t *testing.T) {
		t.Parallel()

		store := seededStore(t,
			catalogEntry("id-1", "cpe:2.3:a:nginx:nginx:1.18.0:*:*:*:*:*:*:*", "nginx 1.18.0", "https://nginx.org"),
			catalogEntry("id-2", "cpe:2.3:a:f5:nginx_plus:r23:*:*:*:*:*:*:*", "NGINX Plus R23", "https://nginx.org/plus"),
			catalogEntry("id-3", "cpe:2.3:a:other:tool:1.0:*:*:*:*:*:*:*", "Unrelated"),
		)

		m := matcher.NewToolMatcher(store, logger)
		groups, err := m.Match(context.Background(), "nginx 1.18.0", "https://nginx.org", matcher.Options{})
		require.NoError(t, err)

		require.Len(t, groups, 2)
		// Matched by both signals ranks first.
		assert.Equal(t, "nginx", groups[0].Product)
		assert.Equal(t, model.FoundByBoth, groups[0].FoundBy)
		assert.Equal(t, "nginx_plus", groups[1].Product)
		assert.Equal(t, model.FoundByWebsite, groups[1].FoundBy)
	})

	t.Run("deprecated entries are excluded by default", func(t *testing.T) {
		t.Parallel()

		dep := catalogEntry("id-1", "cpe:2.3:a:apache:http_server:2.2.0:*:*:*:*:*:*:*", "Apache HTTP Server 2.2.0")
		dep.Deprecated = true
		store := seededStore(t, dep)

		m := matcher.NewToolMatcher(store, logger)

		groups, err := m.Match(context.Background(), "Apache HTTP Server 2.2.0", "", matcher.Options{})
		require.NoError(t, err)
		assert.Empty(t, groups)

		groups, err = m.Match(context.Background(), "Apache HTTP Server 2.2.0", "", matcher.Options{IncludeDeprecated: true})
		require.NoError(t, err)
		assert.Len(t, groups, 1)
	})

	t.Run("falls back to fuzzy search when no exact title matches", func(t *testing.T) {
		t.Parallel()

		store := seededStore(t,
			catalogEntry("id-1", "cpe:2.3:a:gitlab:gitlab:13.9.1:*:*:*:*:*:*:*", "GitLab Community Edition 13.9.1"),
		)

		m := matcher.NewToolMatcher(store, logger)
		groups, err := m.Match(context.Background(), "gitlab", "", matcher.Options{})
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "gitlab", groups[0].Product)
	})

	t.Run("truncates to the requested limit", func(t *testing.T) {
		t.Parallel()

		store := seededStore(t,
			catalogEntry("id-1", "cpe:2.3:a:v1:p1:1.0:*:*:*:*:*:*:*", "shared tool"),
			catalogEntry("id-2", "cpe:2.3:a:v2:p2:1.0:*:*:*:*:*:*:*", "shared tool"),
			catalogEntry("id-3", "cpe:2.3:a:v3:p3:1.0:*:*:*:*:*:*:*", "shared tool"),
		)

		m := matcher.NewToolMatcher(store, logger)
		groups, err := m.Match(context.Background(), "shared tool", "", matcher.Options{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, groups, 2)
	})

	t.Run("an empty request matches nothing", func(t *testing.T) {
		t.Parallel()

		store := seededStore(t,
			catalogEntry("id-1", "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*", "tool"),
		)

		m := matcher.NewToolMatcher(store, logger)
		groups, err := m.Match(context.Background(), "", "", matcher.Options{})
		require.NoError(t, err)
		assert.Empty(t, groups)
	})
}
