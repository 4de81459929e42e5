// Package search implements the REST API handlers for catalog queries.
package search

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/cpedb/cpedb-backend/backend"
	"github.com/cpedb/cpedb-backend/matcher"
)

func limitParam(c *fiber.Ctx) int {
	limit, err := strconv.Atoi(c.Query("limit", "10"))
	if err != nil || limit <= 0 {
		return 10
	}
	return limit
}

func deprecatedParam(c *fiber.Ctx) backend.DeprecatedFilter {
	if c.QueryBool("include_deprecated", false) {
		return backend.DeprecatedAny
	}
	return backend.DeprecatedExclude
}

// searchHandler runs a query and renders the hits.
func searchHandler(st backend.Store, build func(c *fiber.Ctx) (backend.Query, string)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, missing := build(c)
		if missing != "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": missing + " is required",
			})
		}

		hits, err := st.Search(c.Context(), q)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Search failed: " + err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"success": true,
			"total":   len(hits),
			"hits":    hits,
		})
	}
}

// ByTool handles GET /search/tool?q=<name>.
func ByTool(st backend.Store) fiber.Handler {
	return searchHandler(st, func(c *fiber.Ctx) (backend.Query, string) {
		q := c.Query("q")
		if q == "" {
			return backend.Query{}, "q"
		}
		return backend.Query{
			FuzzyTitle: q,
			Deprecated: deprecatedParam(c),
			Limit:      limitParam(c),
		}, ""
	})
}

// ByWebsite handles GET /search/website?q=<url>.
func ByWebsite(st backend.Store) fiber.Handler {
	return searchHandler(st, func(c *fiber.Ctx) (backend.Query, string) {
		q := c.Query("q")
		if q == "" {
			return backend.Query{}, "q"
		}
		return backend.Query{
			RefContains: matcher.CleanWebsite(q),
			Deprecated:  deprecatedParam(c),
			Limit:       limitParam(c),
		}, ""
	})
}

// ByPattern handles GET /search/cpe?pattern=<cpe pattern>.
func ByPattern(st backend.Store) fiber.Handler {
	return searchHandler(st, func(c *fiber.Ctx) (backend.Query, string) {
		pattern := c.Query("pattern")
		if pattern == "" {
			return backend.Query{}, "pattern"
		}
		return backend.Query{
			NamePattern: pattern,
			Deprecated:  deprecatedParam(c),
			Limit:       limitParam(c),
		}, ""
	})
}

// ByVendor handles GET /search/vendor/:vendor.
func ByVendor(st backend.Store) fiber.Handler {
	return searchHandler(st, func(c *fiber.Ctx) (backend.Query, string) {
		vendor := c.Params("vendor")
		if vendor == "" {
			return backend.Query{}, "vendor"
		}
		return backend.Query{
			Vendor:     vendor,
			Product:    c.Query("product"),
			Deprecated: deprecatedParam(c),
			Limit:      limitParam(c),
		}, ""
	})
}

// Match handles GET /match?tool=<name>&website=<url>, returning grouped
// canonical matches.
func Match(m *matcher.ToolMatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		toolName := c.Query("tool")
		website := c.Query("website")
		if toolName == "" && website == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "tool or website is required",
			})
		}

		groups, err := m.Match(c.Context(), toolName, website, matcher.Options{
			IncludeDeprecated: c.QueryBool("include_deprecated", false),
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Match failed: " + err.Error(),
			})
		}

		type matchView struct {
			CPE      string   `json:"cpe"`
			Vendor   string   `json:"vendor"`
			Product  string   `json:"product"`
			Version  string   `json:"version"`
			Versions []string `json:"versions"`
			PURL     string   `json:"purl"`
			FoundBy  string   `json:"found_by"`
			Size     int      `json:"size"`
		}
		views := make([]matchView, 0, len(groups))
		for _, g := range groups {
			views = append(views, matchView{
				CPE:      g.CPE,
				Vendor:   g.Vendor,
				Product:  g.Product,
				Version:  g.Version,
				Versions: g.Versions,
				PURL:     g.PURL(),
				FoundBy:  g.FoundBy,
				Size:     g.Size(),
			})
		}

		return c.JSON(fiber.Map{
			"success": true,
			"total":   len(views),
			"matches": views,
		})
	}
}

// Stats handles GET /stats with total and deprecated document counts.
func Stats(st backend.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		total, err := st.Count(c.Context(), backend.Query{})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Count failed: " + err.Error(),
			})
		}
		deprecated, err := st.Count(c.Context(), backend.Query{Deprecated: backend.DeprecatedOnly})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Count failed: " + err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"success":         true,
			"total_documents": total,
			"deprecated":      deprecated,
			"active":          total - deprecated,
		})
	}
}
