// Package cpes defines the GraphQL queries for the CPE catalog.
package cpes

import (
	"github.com/graphql-go/graphql"

	"github.com/cpedb/cpedb-backend/backend"
	"github.com/cpedb/cpedb-backend/matcher"
)

func deprecatedFilter(p graphql.ResolveParams) backend.DeprecatedFilter {
	if include, ok := p.Args["includeDeprecated"].(bool); ok && include {
		return backend.DeprecatedAny
	}
	return backend.DeprecatedExclude
}

func limitArg(p graphql.ResolveParams) int {
	if limit, ok := p.Args["limit"].(int); ok && limit > 0 {
		return limit
	}
	return 10
}

// GetQueryFields returns the catalog queries to be mounted in the root schema.
func GetQueryFields(st backend.Store, m *matcher.ToolMatcher) graphql.Fields {
	return graphql.Fields{
		"searchByTool": &graphql.Field{
			Type: graphql.NewList(CPEEntryType),
			Args: graphql.FieldConfigArgument{
				"name":              &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"limit":             &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 10},
				"includeDeprecated": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				name := p.Args["name"].(string)
				return st.Search(p.Context, backend.Query{
					FuzzyTitle: name,
					Deprecated: deprecatedFilter(p),
					Limit:      limitArg(p),
				})
			},
		},
		"searchByWebsite": &graphql.Field{
			Type: graphql.NewList(CPEEntryType),
			Args: graphql.FieldConfigArgument{
				"url":               &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"limit":             &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 10},
				"includeDeprecated": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				rawURL := p.Args["url"].(string)
				return st.Search(p.Context, backend.Query{
					RefContains: matcher.CleanWebsite(rawURL),
					Deprecated:  deprecatedFilter(p),
					Limit:       limitArg(p),
				})
			},
		},
		"searchByPattern": &graphql.Field{
			Type: graphql.NewList(CPEEntryType),
			Args: graphql.FieldConfigArgument{
				"pattern":           &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"limit":             &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 10},
				"includeDeprecated": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				pattern := p.Args["pattern"].(string)
				return st.Search(p.Context, backend.Query{
					NamePattern: pattern,
					Deprecated:  deprecatedFilter(p),
					Limit:       limitArg(p),
				})
			},
		},
		"searchByVendor": &graphql.Field{
			Type: graphql.NewList(CPEEntryType),
			Args: graphql.FieldConfigArgument{
				"vendor":            &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"product":           &graphql.ArgumentConfig{Type: graphql.String},
				"limit":             &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 10},
				"includeDeprecated": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				vendor := p.Args["vendor"].(string)
				product, _ := p.Args["product"].(string)
				return st.Search(p.Context, backend.Query{
					Vendor:     vendor,
					Product:    product,
					Deprecated: deprecatedFilter(p),
					Limit:      limitArg(p),
				})
			},
		},
		"matchTool": &graphql.Field{
			Type: graphql.NewList(MatchGroupType),
			Args: graphql.FieldConfigArgument{
				"tool":              &graphql.ArgumentConfig{Type: graphql.String},
				"website":           &graphql.ArgumentConfig{Type: graphql.String},
				"limit":             &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: matcher.DefaultLimit},
				"includeDeprecated": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				toolName, _ := p.Args["tool"].(string)
				website, _ := p.Args["website"].(string)
				include, _ := p.Args["includeDeprecated"].(bool)
				return m.Match(p.Context, toolName, website, matcher.Options{
					IncludeDeprecated: include,
					Limit:             limitArg(p),
				})
			},
		},
		"catalogStats": &graphql.Field{
			Type: CatalogStatsType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				total, err := st.Count(p.Context, backend.Query{})
				if err != nil {
					return nil, err
				}
				deprecated, err := st.Count(p.Context, backend.Query{Deprecated: backend.DeprecatedOnly})
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{
					"totalDocuments": total,
					"deprecated":     deprecated,
					"active":         total - deprecated,
				}, nil
			},
		},
	}
}
