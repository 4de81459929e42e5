// Package restapi provides the main router and initialization for REST API endpoints.
package restapi

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/cpedb/cpedb-backend/backend"
	"github.com/cpedb/cpedb-backend/feed"
	"github.com/cpedb/cpedb-backend/matcher"
	"github.com/cpedb/cpedb-backend/restapi/modules/admin"
	"github.com/cpedb/cpedb-backend/restapi/modules/search"
	"github.com/cpedb/cpedb-backend/updater"
)

// Deps bundles the services the route handlers close over.
type Deps struct {
	Store      backend.Store
	Matcher    *matcher.ToolMatcher
	Updater    *updater.Updater
	Downloader *feed.Downloader
	DiffDir    string
}

// SetupRoutes configures all REST API routes and the GraphQL endpoint.
func SetupRoutes(app *fiber.App, deps Deps, schema graphql.Schema) {
	// API Group /api/v1
	api := app.Group("/api/v1")

	// GraphQL Route - Mounted within the api group to inherit path prefixes
	api.Post("/graphql", GraphQLHandler(schema))

	// Search Routes
	searchGroup := api.Group("/search")
	searchGroup.Get("/tool", search.ByTool(deps.Store))
	searchGroup.Get("/website", search.ByWebsite(deps.Store))
	searchGroup.Get("/cpe", search.ByPattern(deps.Store))
	searchGroup.Get("/vendor/:vendor", search.ByVendor(deps.Store))

	// Matching & Stats
	api.Get("/match", search.Match(deps.Matcher))
	api.Get("/stats", search.Stats(deps.Store))

	// Admin Routes
	adminGroup := api.Group("/admin")
	adminGroup.Post("/update", admin.PostUpdate(deps.Updater, deps.Downloader, deps.DiffDir))
	adminGroup.Get("/update/status", admin.GetStatus())
	adminGroup.Post("/recreate", admin.PostRecreateIndex(deps.Updater, deps.Downloader))

	log.Println("API routes initialized successfully")
}
