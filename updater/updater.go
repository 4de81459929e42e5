// Package updater orchestrates a catalog update run: backup the live
// index, parse the new feed, diff it against the previous snapshot, then
// swap the index and reindex.
package updater

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cpedb/cpedb-backend/backend"
	"github.com/cpedb/cpedb-backend/differ"
	"github.com/cpedb/cpedb-backend/feed"
	"github.com/cpedb/cpedb-backend/indexer"
	"github.com/cpedb/cpedb-backend/model"
)

// Options control one update run.
type Options struct {
	// SkipDiff skips backup and diff generation for a faster update.
	SkipDiff bool
	// DiffDir receives the JSON and CSV diff reports. Required unless
	// SkipDiff is set.
	DiffDir string
}

// Result summarizes an update run for reporting, regardless of outcome.
type Result struct {
	Timestamp   string             `json:"timestamp"`
	Stats       *model.UpdateStats `json:"statistics,omitempty"`
	Index       *indexer.Report    `json:"index_report,omitempty"`
	DiffFile    string             `json:"diff_file,omitempty"`
	CSVDiffFile string             `json:"csv_diff_file,omitempty"`
	ParseErrors int                `json:"parse_errors"`
	FetchErrors []string           `json:"fetch_errors,omitempty"`
}

// Updater runs update and recreate operations. A mutex makes the index
// swap a critical section: only one update or recreate may run at a time,
// and a recreate never starts while batches are still being submitted.
type Updater struct {
	store   backend.Store
	differ  *differ.SnapshotDiffer
	indexer *indexer.BatchIndexer
	logger  *zap.SugaredLogger

	mu sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// NewUpdater wires the update pipeline over a shared store handle.
func NewUpdater(store backend.Store, d *differ.SnapshotDiffer, ix *indexer.BatchIndexer, logger *zap.Logger) *Updater {
	return &Updater{
		store:   store,
		differ:  d,
		indexer: ix,
		logger:  logger.Sugar(),
		now:     time.Now,
	}
}

// currentSnapshot materializes the live index contents.
func (u *Updater) currentSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var entries []model.CPEEntry
	err := u.store.All(ctx, func(e model.CPEEntry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read current index: %w", err)
	}
	return model.NewSnapshot(entries), nil
}

// loadSnapshot parses all chunk files into a snapshot. File-level fetch
// errors are collected and reported; they do not abort the run.
func loadSnapshot(files []string, result *Result) (*model.Snapshot, *feed.ChunkParser) {
	parser := feed.NewChunkParser()
	var entries []model.CPEEntry

	for _, file := range files {
		err := parser.ParseFile(file, func(e model.CPEEntry) error {
			entries = append(entries, e)
			return nil
		})
		var fetchErr *feed.FetchError
		if errors.As(err, &fetchErr) {
			result.FetchErrors = append(result.FetchErrors, fetchErr.Error())
		}
	}

	result.ParseErrors = parser.SkippedRecords()
	return model.NewSnapshot(entries), parser
}

// Run performs a full update from the given chunk files. The old snapshot
// is archived before the index swap; if archival fails the run stops with
// the live index untouched.
func (u *Updater) Run(ctx context.Context, chunkFiles []string, opts Options) (*Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	result := &Result{Timestamp: u.now().Format("20060102_150405")}

	u.logger.Infof("Starting catalog update from %d chunk files", len(chunkFiles))

	var oldSnapshot *model.Snapshot
	if !opts.SkipDiff {
		var err error
		if oldSnapshot, err = u.currentSnapshot(ctx); err != nil {
			return result, err
		}
		u.logger.Infof("Loaded %d entries from current index", oldSnapshot.Len())
	}

	newSnapshot, _ := loadSnapshot(chunkFiles, result)
	if newSnapshot.Len() == 0 {
		return result, fmt.Errorf("no entries parsed from %d chunk files", len(chunkFiles))
	}
	u.logger.Infof("Loaded %d entries from new feed (%d records skipped)", newSnapshot.Len(), result.ParseErrors)

	if !opts.SkipDiff {
		diff, err := u.differ.Diff(ctx, oldSnapshot, newSnapshot)
		if err != nil {
			// Covers archival failure: no rollback point, no swap.
			return result, err
		}

		stats := diff.Stats(oldSnapshot, newSnapshot)
		result.Stats = &stats

		report := differ.NewReport(diff, stats, u.now())
		if result.DiffFile, err = report.WriteJSON(opts.DiffDir); err != nil {
			return result, err
		}
		if result.CSVDiffFile, err = report.WriteCSV(opts.DiffDir); err != nil {
			return result, err
		}
	}

	// Swap: drop and recreate the index, then reindex the new snapshot.
	if err := u.store.DeleteIndex(ctx); err != nil {
		return result, fmt.Errorf("failed to delete index: %w", err)
	}
	if err := u.store.EnsureIndex(ctx); err != nil {
		return result, fmt.Errorf("failed to recreate index: %w", err)
	}

	report, err := u.indexer.IndexEntries(ctx, newSnapshot.Entries())
	result.Index = report
	if err != nil {
		return result, err
	}
	if report.Succeeded == 0 {
		return result, fmt.Errorf("failed to index any documents")
	}

	u.logger.Infof("Update completed - %d documents indexed", report.Succeeded)
	return result, nil
}

// RecreateIndex drops and recreates an empty index. Shares the critical
// section with Run so it cannot interleave with an indexing run.
func (u *Updater) RecreateIndex(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.store.DeleteIndex(ctx); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	return u.store.EnsureIndex(ctx)
}

// Summary renders a human-readable account of an update run.
func Summary(result *Result, err error) string {
	if err != nil {
		return fmt.Sprintf("Update failed: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Catalog updated successfully at %s\n", result.Timestamp)
	if result.Index != nil {
		fmt.Fprintf(&b, "  indexed:  %d documents (%d failed, %d retries)\n",
			result.Index.Succeeded, result.Index.Failed, result.Index.Retries)
	}
	if result.ParseErrors > 0 {
		fmt.Fprintf(&b, "  skipped:  %d malformed records\n", result.ParseErrors)
	}
	for _, fe := range result.FetchErrors {
		fmt.Fprintf(&b, "  fetch error: %s\n", fe)
	}
	if result.Stats != nil {
		fmt.Fprintf(&b, "  added: %d  removed: %d  modified: %d  newly deprecated: %d  unchanged: %d\n",
			result.Stats.Added, result.Stats.Removed, result.Stats.Modified,
			result.Stats.NewlyDeprecated, result.Stats.Unchanged)
	}
	if result.DiffFile != "" {
		fmt.Fprintf(&b, "  diff report: %s\n", result.DiffFile)
	}
	if result.CSVDiffFile != "" {
		fmt.Fprintf(&b, "  diff summary: %s\n", result.CSVDiffFile)
	}
	return b.String()
}

// IndexFromFiles streams entries from chunk files straight into the
// indexer, for the initial load where no diff is wanted. Parser and
// indexer run as a producer/consumer pair.
func (u *Updater) IndexFromFiles(ctx context.Context, chunkFiles []string) (*indexer.Report, *Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	result := &Result{Timestamp: u.now().Format("20060102_150405")}
	parser := feed.NewChunkParser()

	// Scoped cancel unblocks the producer when the indexer stops early.
	feedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan model.CPEEntry)
	var fetchErrors []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(entries)
		for _, file := range chunkFiles {
			err := parser.ParseFile(file, func(e model.CPEEntry) error {
				select {
				case entries <- e:
					return nil
				case <-feedCtx.Done():
					return feedCtx.Err()
				}
			})
			var fetchErr *feed.FetchError
			if errors.As(err, &fetchErr) {
				u.logger.Errorf("Skipping chunk file: %v", fetchErr)
				fetchErrors = append(fetchErrors, fetchErr.Error())
			}
		}
	}()

	report, err := u.indexer.Index(ctx, entries)
	cancel()
	<-done

	result.Index = report
	result.FetchErrors = fetchErrors
	result.ParseErrors = parser.SkippedRecords()
	return report, result, err
}
