// Package differ compares two catalog snapshots and classifies additions,
// removals, and modifications for audit and update reporting.
package differ

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"

	"github.com/cpedb/cpedb-backend/model"
)

// ArchiveError marks a snapshot backup that could not be persisted before
// an index swap. Fatal: the update must not proceed without a rollback
// point.
type ArchiveError struct {
	Err error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("failed to archive snapshot: %v", e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// Archiver persists the superseded snapshot for rollback.
type Archiver interface {
	Archive(ctx context.Context, snapshot *model.Snapshot) (string, error)
}

// SnapshotDiffer computes the change set between a previously persisted
// snapshot and a newly parsed one. Both snapshots must be fully
// materialized: add/remove classification needs the complete key sets.
type SnapshotDiffer struct {
	archiver Archiver
	logger   *zap.SugaredLogger
}

// NewSnapshotDiffer creates a differ. The archiver runs before any diff is
// returned; pass a NopArchiver to skip backups in tests.
func NewSnapshotDiffer(archiver Archiver, logger *zap.Logger) *SnapshotDiffer {
	return &SnapshotDiffer{archiver: archiver, logger: logger.Sugar()}
}

// Orderings that make refs and titles comparable as unordered multisets.
var (
	refLess = func(a, b model.Ref) bool {
		if a.Ref != b.Ref {
			return a.Ref < b.Ref
		}
		return a.Type < b.Type
	}
	titleLess = func(a, b model.Title) bool {
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.Lang < b.Lang
	}
	diffCmpOpts = []cmp.Option{
		cmpopts.SortSlices(refLess),
		cmpopts.SortSlices(titleLess),
		cmpopts.EquateEmpty(),
	}
)

// changedFields lists the fields differing between two versions of an
// entry, by value. Order-insensitive for refs and titles.
func changedFields(old, current model.CPEEntry) []string {
	var changed []string

	if old.Name != current.Name {
		changed = append(changed, "name")
	}
	if old.Deprecated != current.Deprecated {
		changed = append(changed, "deprecated")
	}
	if !old.LastModified.Equal(current.LastModified) {
		changed = append(changed, "lastModified")
	}
	if !cmp.Equal(old.Titles, current.Titles, diffCmpOpts...) {
		changed = append(changed, "titles")
	}
	if !cmp.Equal(old.Refs, current.Refs, diffCmpOpts...) {
		changed = append(changed, "refs")
	}

	return changed
}

// Diff classifies the entries of both snapshots by NameID. The old
// snapshot is archived before the result is returned; if archival fails
// the diff fails and no index swap may proceed.
func (d *SnapshotDiffer) Diff(ctx context.Context, old, current *model.Snapshot) (*model.DiffResult, error) {
	if _, err := d.archiver.Archive(ctx, old); err != nil {
		return nil, &ArchiveError{Err: err}
	}

	result := &model.DiffResult{
		Added:           []model.CPEEntry{},
		Removed:         []model.CPEEntry{},
		Modified:        []model.Modification{},
		NewlyDeprecated: []model.CPEEntry{},
	}

	for _, key := range current.Keys() {
		entry, _ := current.Get(key)
		oldEntry, ok := old.Get(key)
		if !ok {
			result.Added = append(result.Added, entry)
			continue
		}

		changed := changedFields(oldEntry, entry)
		if len(changed) == 0 {
			result.Unchanged++
			continue
		}

		result.Modified = append(result.Modified, model.Modification{
			NameID:        key,
			Old:           oldEntry,
			New:           entry,
			ChangedFields: changed,
		})
		if !oldEntry.Deprecated && entry.Deprecated {
			result.NewlyDeprecated = append(result.NewlyDeprecated, entry)
		}
	}

	for _, key := range old.Keys() {
		if _, ok := current.Get(key); !ok {
			entry, _ := old.Get(key)
			result.Removed = append(result.Removed, entry)
		}
	}

	// Deterministic output regardless of map iteration order.
	sort.Slice(result.Added, func(i, j int) bool { return result.Added[i].NameID < result.Added[j].NameID })
	sort.Slice(result.Removed, func(i, j int) bool { return result.Removed[i].NameID < result.Removed[j].NameID })
	sort.Slice(result.Modified, func(i, j int) bool { return result.Modified[i].NameID < result.Modified[j].NameID })
	sort.Slice(result.NewlyDeprecated, func(i, j int) bool { return result.NewlyDeprecated[i].NameID < result.NewlyDeprecated[j].NameID })

	d.logger.Infof("Diff generated - Added: %d, Removed: %d, Modified: %d, Newly deprecated: %d, Unchanged: %d",
		len(result.Added), len(result.Removed), len(result.Modified), len(result.NewlyDeprecated), result.Unchanged)

	return result, nil
}
