// Package cpes defines the GraphQL types for the CPE catalog.
package cpes

import (
	"github.com/graphql-go/graphql"

	"github.com/cpedb/cpedb-backend/model"
)

// RefType represents an external reference attached to a CPE record.
var RefType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Ref",
	Fields: graphql.Fields{
		"ref":  &graphql.Field{Type: graphql.String},
		"type": &graphql.Field{Type: graphql.String},
	},
})

// TitleType represents a localized product title.
var TitleType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Title",
	Fields: graphql.Fields{
		"title": &graphql.Field{Type: graphql.String},
		"lang":  &graphql.Field{Type: graphql.String},
	},
})

// CPEEntryType represents a single catalog record.
var CPEEntryType = graphql.NewObject(graphql.ObjectConfig{
	Name: "CPEEntry",
	Fields: graphql.Fields{
		"cpeName":      &graphql.Field{Type: graphql.String},
		"cpeNameId":    &graphql.Field{Type: graphql.String},
		"created":      &graphql.Field{Type: graphql.String},
		"lastModified": &graphql.Field{Type: graphql.String},
		"deprecated":   &graphql.Field{Type: graphql.Boolean},
		"vendor":       &graphql.Field{Type: graphql.String},
		"product":      &graphql.Field{Type: graphql.String},
		"version":      &graphql.Field{Type: graphql.String},
		"refs":         &graphql.Field{Type: graphql.NewList(RefType)},
		"titles":       &graphql.Field{Type: graphql.NewList(TitleType)},
		"primaryTitle": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if entry, ok := p.Source.(model.CPEEntry); ok {
					return entry.PrimaryTitle(), nil
				}
				return nil, nil
			},
		},
	},
})

// MatchGroupType represents a canonical tool match.
var MatchGroupType = graphql.NewObject(graphql.ObjectConfig{
	Name: "MatchGroup",
	Fields: graphql.Fields{
		"cpe":      &graphql.Field{Type: graphql.String},
		"vendor":   &graphql.Field{Type: graphql.String},
		"product":  &graphql.Field{Type: graphql.String},
		"version":  &graphql.Field{Type: graphql.String},
		"versions": &graphql.Field{Type: graphql.NewList(graphql.String)},
		"foundBy": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if g, ok := p.Source.(model.MatchGroup); ok {
					return g.FoundBy, nil
				}
				return nil, nil
			},
		},
		"size": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if g, ok := p.Source.(model.MatchGroup); ok {
					return g.Size(), nil
				}
				return nil, nil
			},
		},
		"purl": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if g, ok := p.Source.(model.MatchGroup); ok {
					return g.PURL(), nil
				}
				return nil, nil
			},
		},
	},
})

// CatalogStatsType summarizes the indexed catalog.
var CatalogStatsType = graphql.NewObject(graphql.ObjectConfig{
	Name: "CatalogStats",
	Fields: graphql.Fields{
		"totalDocuments": &graphql.Field{Type: graphql.Int},
		"deprecated":     &graphql.Field{Type: graphql.Int},
		"active":         &graphql.Field{Type: graphql.Int},
	},
})
