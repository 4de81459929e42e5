// Package backend defines the abstract contract to the search/storage
// engine holding the CPE catalog. Core components depend on this contract
// only; the ArangoDB implementation lives in the database package and test
// fixtures in the mock package.
package backend

import (
	"context"
	"errors"

	"github.com/cpedb/cpedb-backend/model"
)

// ErrUnavailable marks a backend failure that outlived the retry policy.
// Callers treat it as fatal for the run.
var ErrUnavailable = errors.New("backend unavailable")

// DeprecatedFilter controls how Search and Count treat the deprecated flag.
type DeprecatedFilter int

const (
	// DeprecatedAny applies no deprecated filter.
	DeprecatedAny DeprecatedFilter = iota
	// DeprecatedExclude drops deprecated entries, the default for matching.
	DeprecatedExclude
	// DeprecatedOnly returns deprecated entries only.
	DeprecatedOnly
)

// Query describes one logical catalog query. Zero-value fields are
// ignored; set fields combine with AND except FuzzyTitle, which widens an
// exact title match into a fuzzy one when ExactTitle finds nothing.
type Query struct {
	// ExactTitle matches a title verbatim (case-insensitive).
	ExactTitle string
	// FuzzyTitle matches titles and name strings by fuzzy/substring search.
	FuzzyTitle string
	// RefContains matches entries whose reference URL list contains the
	// given string as a substring.
	RefContains string
	// NamePattern is a wildcard pattern against the full identifier string,
	// using "*" as the any-sequence wildcard.
	NamePattern string
	// Vendor and Product match the structured identifier fields exactly.
	Vendor  string
	Product string

	Deprecated DeprecatedFilter
	Limit      int
}

// Store is the abstract index/query contract to the search backend.
//
// BulkUpsert is keyed by CPEEntry.NameID and must be all-or-nothing per
// call: after a nil return every document of the batch is visible; after an
// error none are, so the caller may retry the whole batch without creating
// duplicates.
type Store interface {
	// EnsureIndex creates the index and its search mapping if absent.
	EnsureIndex(ctx context.Context) error
	// DeleteIndex drops the index and all documents. Destructive.
	DeleteIndex(ctx context.Context) error
	BulkUpsert(ctx context.Context, entries []model.CPEEntry) error
	Search(ctx context.Context, q Query) ([]model.CPEEntry, error)
	Count(ctx context.Context, q Query) (int64, error)
	// All streams every document to fn, for snapshot backup. A non-nil
	// error from fn stops the scan.
	All(ctx context.Context, fn func(model.CPEEntry) error) error
}
