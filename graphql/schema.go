// Package graphql assembles the root schema from the module query fields.
package graphql

import (
	"github.com/graphql-go/graphql"

	"github.com/cpedb/cpedb-backend/backend"
	"github.com/cpedb/cpedb-backend/graphql/modules/cpes"
	"github.com/cpedb/cpedb-backend/matcher"
)

// CreateSchema builds the root query schema over the given store.
func CreateSchema(st backend.Store, m *matcher.ToolMatcher) (graphql.Schema, error) {
	fields := graphql.Fields{}
	for name, field := range cpes.GetQueryFields(st, m) {
		fields[name] = field
	}

	rootQuery := graphql.NewObject(graphql.ObjectConfig{
		Name:   "Query",
		Fields: fields,
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: rootQuery,
	})
}
