// Package database - ArangoDB implementation of the backend.Store contract.
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/arangodb/go-driver/v2/arangodb"

	"github.com/cpedb/cpedb-backend/backend"
	"github.com/cpedb/cpedb-backend/model"
)

// Store implements backend.Store on top of an ArangoDB collection plus an
// ArangoSearch view for fuzzy title matching.
//
// Batch contract: BulkUpsert issues a single AQL statement. ArangoDB
// executes one statement transactionally on a single collection, so either
// every document of the batch is visible afterwards or none are; a failed
// batch can be resubmitted as a whole without creating duplicates.
type Store struct {
	db DBConnection
}

// NewStore wraps an initialized database connection.
func NewStore(db DBConnection) *Store {
	return &Store{db: db}
}

var _ backend.Store = (*Store)(nil)

// Persistent index definitions for the cpe collection.
type indexConfig struct {
	IdxName  string
	IdxField string
}

var cpeIndexes = []indexConfig{
	{IdxName: "cpe_name", IdxField: "cpeName"},
	{IdxName: "cpe_vendor", IdxField: "vendor"},
	{IdxName: "cpe_product", IdxField: "product"},
	{IdxName: "cpe_deprecated", IdxField: "deprecated"},
	{IdxName: "cpe_last_modified", IdxField: "lastModified"},
}

// EnsureIndex creates the cpe collection, its persistent indexes, and the
// search view if they do not exist yet.
func (s *Store) EnsureIndex(ctx context.Context) error {
	var col arangodb.Collection

	exists, err := s.db.Database.CollectionExists(ctx, s.db.Collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if exists {
		var options arangodb.GetCollectionOptions
		if col, err = s.db.Database.GetCollection(ctx, s.db.Collection, &options); err != nil {
			return fmt.Errorf("failed to use collection: %w", err)
		}
	} else {
		if col, err = s.db.Database.CreateCollection(ctx, s.db.Collection, nil); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		logger.Sugar().Infof("Created collection %s", s.db.Collection)
	}

	False := false
	for _, idx := range cpeIndexes {
		found := false

		if indexes, err := col.Indexes(ctx); err == nil {
			for _, index := range indexes {
				if idx.IdxName == index.Name {
					found = true
					break
				}
			}
		}

		if !found {
			indexOptions := arangodb.CreatePersistentIndexOptions{
				Unique: &False,
				Sparse: &False,
				Name:   idx.IdxName,
			}

			_, _, err = col.EnsurePersistentIndex(ctx, []string{idx.IdxField}, &indexOptions)
			if err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.IdxName, err)
			}
			logger.Sugar().Infof("Created index: %s on %s.%s", idx.IdxName, s.db.Collection, idx.IdxField)
		}
	}

	return s.ensureSearchView(ctx)
}

// ensureSearchView creates the ArangoSearch view that backs fuzzy queries
// against titles and the identifier string.
func (s *Store) ensureSearchView(ctx context.Context) error {
	exists, err := s.db.Database.ViewExists(ctx, s.db.View)
	if err != nil {
		return fmt.Errorf("failed to check search view: %w", err)
	}
	if exists {
		return nil
	}

	False := false
	True := true
	props := arangodb.ArangoSearchViewProperties{
		Links: arangodb.ArangoSearchLinks{
			s.db.Collection: arangodb.ArangoSearchElementProperties{
				IncludeAllFields: &False,
				Fields: arangodb.ArangoSearchFields{
					"cpeName": arangodb.ArangoSearchElementProperties{
						Analyzers: []string{"identity"},
					},
					"titles": arangodb.ArangoSearchElementProperties{
						Fields: arangodb.ArangoSearchFields{
							"title": arangodb.ArangoSearchElementProperties{
								Analyzers:          []string{"identity", "text_en"},
								TrackListPositions: &False,
							},
						},
					},
				},
				InBackground: &True,
			},
		},
	}

	if _, err := s.db.Database.CreateArangoSearchView(ctx, s.db.View, &props); err != nil {
		return fmt.Errorf("failed to create search view: %w", err)
	}
	logger.Sugar().Infof("Created search view %s", s.db.View)
	return nil
}

// DeleteIndex drops the search view and the cpe collection with all
// documents. Destructive; callers gate it behind explicit confirmation.
func (s *Store) DeleteIndex(ctx context.Context) error {
	if exists, err := s.db.Database.ViewExists(ctx, s.db.View); err == nil && exists {
		view, err := s.db.Database.View(ctx, s.db.View)
		if err != nil {
			return fmt.Errorf("failed to get search view: %w", err)
		}
		if err := view.Remove(ctx); err != nil {
			return fmt.Errorf("failed to drop search view: %w", err)
		}
	}

	exists, err := s.db.Database.CollectionExists(ctx, s.db.Collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil
	}

	var options arangodb.GetCollectionOptions
	col, err := s.db.Database.GetCollection(ctx, s.db.Collection, &options)
	if err != nil {
		return fmt.Errorf("failed to get collection: %w", err)
	}
	if err := col.Remove(ctx); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}

	logger.Sugar().Infof("Deleted collection %s", s.db.Collection)
	return nil
}

// BulkUpsert writes a batch of entries keyed by NameID in one AQL
// statement. Re-running the same batch replaces the documents in place.
func (s *Store) BulkUpsert(ctx context.Context, entries []model.CPEEntry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]model.CPEEntry, len(entries))
	for i, e := range entries {
		e.Key = e.NameID
		docs[i] = e
	}

	query := `
		FOR d IN @docs
			UPSERT { _key: d._key }
			INSERT d
			REPLACE d
			IN @@col
	`
	bindVars := map[string]interface{}{
		"docs": docs,
		"@col": s.db.Collection,
	}

	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return fmt.Errorf("bulk upsert of %d documents failed: %w", len(docs), err)
	}
	cursor.Close()
	return nil
}

// Search runs one logical catalog query, translated to AQL.
func (s *Store) Search(ctx context.Context, q backend.Query) ([]model.CPEEntry, error) {
	query, bindVars := s.buildSearch(q)

	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer cursor.Close()

	var results []model.CPEEntry
	for cursor.HasMore() {
		var entry model.CPEEntry
		if _, err := cursor.ReadDocument(ctx, &entry); err != nil {
			return nil, fmt.Errorf("failed to read search result: %w", err)
		}
		results = append(results, entry)
	}
	return results, nil
}

// Count returns the number of documents matching the query filters.
func (s *Store) Count(ctx context.Context, q backend.Query) (int64, error) {
	filters, bindVars := buildFilters(q)
	bindVars["@col"] = s.db.Collection

	query := "FOR d IN @@col\n" + filters + "\tCOLLECT WITH COUNT INTO total\n\tRETURN total"

	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	defer cursor.Close()

	var total int64
	if cursor.HasMore() {
		if _, err := cursor.ReadDocument(ctx, &total); err != nil {
			return 0, fmt.Errorf("failed to read count: %w", err)
		}
	}
	return total, nil
}

// All streams every document in the collection to fn.
func (s *Store) All(ctx context.Context, fn func(model.CPEEntry) error) error {
	query := `FOR d IN @@col RETURN d`
	bindVars := map[string]interface{}{"@col": s.db.Collection}

	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return fmt.Errorf("scan query failed: %w", err)
	}
	defer cursor.Close()

	for cursor.HasMore() {
		var entry model.CPEEntry
		if _, err := cursor.ReadDocument(ctx, &entry); err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// buildSearch assembles the AQL for one query. Fuzzy title queries go
// through the search view for analyzer support and BM25 ranking; everything
// else filters the collection directly.
func (s *Store) buildSearch(q backend.Query) (string, map[string]interface{}) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	if q.FuzzyTitle != "" {
		bindVars := map[string]interface{}{
			"q":     q.FuzzyTitle,
			"sub":   "%" + strings.ToLower(q.FuzzyTitle) + "%",
			"limit": limit,
		}
		var b strings.Builder
		b.WriteString("FOR d IN " + s.db.View + "\n")
		b.WriteString("\tSEARCH ANALYZER(PHRASE(d.titles.title, @q), \"text_en\")\n")
		b.WriteString("\t\tOR ANALYZER(LEVENSHTEIN_MATCH(d.titles.title, LOWER(@q), 2), \"text_en\")\n")
		b.WriteString("\t\tOR ANALYZER(LIKE(LOWER(d.cpeName), @sub), \"identity\")\n")
		writeDeprecatedFilter(&b, q.Deprecated)
		b.WriteString("\tSORT BM25(d) DESC, d.lastModified DESC\n")
		b.WriteString("\tLIMIT @limit\n\tRETURN d")
		return b.String(), bindVars
	}

	filters, bindVars := buildFilters(q)
	bindVars["@col"] = s.db.Collection
	bindVars["limit"] = limit

	return "FOR d IN @@col\n" + filters + "\tSORT d.lastModified DESC\n\tLIMIT @limit\n\tRETURN d", bindVars
}

// buildFilters translates the non-fuzzy query fields into FILTER lines.
func buildFilters(q backend.Query) (string, map[string]interface{}) {
	var b strings.Builder
	bindVars := map[string]interface{}{}

	if q.ExactTitle != "" {
		b.WriteString("\tFILTER LOWER(@title) IN (FOR t IN d.titles RETURN LOWER(t.title))\n")
		bindVars["title"] = q.ExactTitle
	}
	if q.RefContains != "" {
		b.WriteString("\tFILTER LENGTH(FOR r IN d.refs FILTER CONTAINS(LOWER(r.ref), LOWER(@site)) RETURN 1) > 0\n")
		bindVars["site"] = q.RefContains
	}
	if q.NamePattern != "" {
		b.WriteString("\tFILTER LIKE(d.cpeName, @pattern, true)\n")
		bindVars["pattern"] = likePattern(q.NamePattern)
	}
	if q.Vendor != "" {
		b.WriteString("\tFILTER d.vendor == @vendor\n")
		bindVars["vendor"] = q.Vendor
	}
	if q.Product != "" {
		b.WriteString("\tFILTER d.product == @product\n")
		bindVars["product"] = q.Product
	}
	writeDeprecatedFilter(&b, q.Deprecated)

	return b.String(), bindVars
}

func writeDeprecatedFilter(b *strings.Builder, f backend.DeprecatedFilter) {
	switch f {
	case backend.DeprecatedExclude:
		b.WriteString("\tFILTER d.deprecated == false\n")
	case backend.DeprecatedOnly:
		b.WriteString("\tFILTER d.deprecated == true\n")
	}
}

// likePattern converts a "*" wildcard pattern into AQL LIKE syntax.
func likePattern(pattern string) string {
	replacer := strings.NewReplacer("%", "\\%", "_", "\\_", "*", "%")
	return replacer.Replace(pattern)
}
