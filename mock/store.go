// Package mock provides an in-memory implementation of backend.Store for
// tests, mirroring the query semantics of the ArangoDB store.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cpedb/cpedb-backend/backend"
	"github.com/cpedb/cpedb-backend/model"
)

var _ backend.Store = (*Store)(nil)

// Store keeps documents in a map keyed by NameID. Individual operations
// can be overridden through the Fn hooks to inject failures.
type Store struct {
	mu   sync.Mutex
	docs map[string]model.CPEEntry

	// BulkUpsertFn, when set, replaces the default upsert. Use it to
	// simulate transient backend failures; call Commit from inside to
	// apply the batch on a simulated success.
	BulkUpsertFn func(ctx context.Context, entries []model.CPEEntry) error

	// BulkUpsertCalls counts BulkUpsert invocations, including retries.
	BulkUpsertCalls int
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{docs: map[string]model.CPEEntry{}}
}

// EnsureIndex is a no-op for the in-memory store.
func (s *Store) EnsureIndex(context.Context) error { return nil }

// DeleteIndex drops all documents.
func (s *Store) DeleteIndex(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = map[string]model.CPEEntry{}
	return nil
}

// Commit applies a batch directly, bypassing any BulkUpsertFn hook.
func (s *Store) Commit(entries []model.CPEEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.docs[e.NameID] = e
	}
}

// BulkUpsert stores the batch keyed by NameID, honoring the hook if set.
func (s *Store) BulkUpsert(ctx context.Context, entries []model.CPEEntry) error {
	s.mu.Lock()
	s.BulkUpsertCalls++
	hook := s.BulkUpsertFn
	s.mu.Unlock()

	if hook != nil {
		return hook(ctx, entries)
	}
	s.Commit(entries)
	return nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Search applies the query filters over the stored documents.
func (s *Store) Search(_ context.Context, q backend.Query) ([]model.CPEEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	var results []model.CPEEntry
	for _, doc := range s.docs {
		if matches(doc, q) {
			results = append(results, doc)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].NameID < results[j].NameID })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count counts documents matching the query filters.
func (s *Store) Count(_ context.Context, q backend.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, doc := range s.docs {
		if matches(doc, q) {
			total++
		}
	}
	return total, nil
}

// All streams every stored document to fn in NameID order.
func (s *Store) All(_ context.Context, fn func(model.CPEEntry) error) error {
	s.mu.Lock()
	docs := make([]model.CPEEntry, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	s.mu.Unlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].NameID < docs[j].NameID })
	for _, doc := range docs {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func matches(doc model.CPEEntry, q backend.Query) bool {
	switch q.Deprecated {
	case backend.DeprecatedExclude:
		if doc.Deprecated {
			return false
		}
	case backend.DeprecatedOnly:
		if !doc.Deprecated {
			return false
		}
	}

	if q.ExactTitle != "" {
		found := false
		for _, t := range doc.Titles {
			if strings.EqualFold(t.Title, q.ExactTitle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if q.FuzzyTitle != "" {
		needle := strings.ToLower(q.FuzzyTitle)
		found := strings.Contains(strings.ToLower(doc.Name), needle)
		for _, t := range doc.Titles {
			if strings.Contains(strings.ToLower(t.Title), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if q.RefContains != "" {
		needle := strings.ToLower(q.RefContains)
		found := false
		for _, r := range doc.Refs {
			if strings.Contains(strings.ToLower(r.Ref), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if q.NamePattern != "" && !wildcardMatch(doc.Name, q.NamePattern) {
		return false
	}
	if q.Vendor != "" && doc.Vendor != q.Vendor {
		return false
	}
	if q.Product != "" && doc.Product != q.Product {
		return false
	}

	return true
}

// wildcardMatch implements "*" glob matching over the identifier string.
func wildcardMatch(s, pattern string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return s == pattern
	}

	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	last := parts[len(parts)-1]
	if !strings.HasSuffix(s, last) {
		return false
	}
	s = s[:len(s)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return true
}
