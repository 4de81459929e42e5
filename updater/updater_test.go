package updater_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cpedb/cpedb-backend/differ"
	"github.com/cpedb/cpedb-backend/indexer"
	"github.com/cpedb/cpedb-backend/mock"
	"github.com/cpedb/cpedb-backend/model"
	"github.com/cpedb/cpedb-backend/updater"
)

type failingArchiver struct {
	err error
}

func (a failingArchiver) Archive(context.Context, *model.Snapshot) (string, error) {
	return "", a.err
}

// writeChunks renders one chunk file per product list.
func writeChunks(t *testing.T, productLists ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var files []string
	for i, products := range productLists {
		path := filepath.Join(dir, fmt.Sprintf("nvdcpe-2.0-chunk-%d.json", i+1))
		content := fmt.Sprintf(`{"format":"NVD_CPE","products":[%s]}`, products)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		files = append(files, path)
	}
	return files
}

func product(nameID, name string, deprecated bool) string {
	return fmt.Sprintf(`{"cpe":{"cpeName":%q,"cpeNameId":%q,"deprecated":%t}}`, name, nameID, deprecated)
}

func newUpdater(store *mock.Store, arch differ.Archiver) *updater.Updater {
	logger := zap.NewNop()
	d := differ.NewSnapshotDiffer(arch, logger)
	ix := indexer.NewBatchIndexer(store, indexer.Config{BatchSize: 10, Workers: 1, Retry: indexer.RetryPolicy{MaxAttempts: 1}}, logger)
	return updater.NewUpdater(store, d, ix, logger)
}

func TestUpdater_Run(t *testing.T) {
	t.Parallel()

	const (
		id1 = "11111111-1111-4111-8111-111111111111"
		id2 = "22222222-2222-4222-8222-222222222222"
		id3 = "33333333-3333-4333-8333-333333333333"
	)

	t.Run("diffs against the live index and reindexes", func(t *testing.T) {
		t.Parallel()

		store := mock.NewStore()
		store.Commit([]model.CPEEntry{
			{NameID: id1, Name: "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*"},
			{NameID: id2, Name: "cpe:2.3:a:v:p:2.0:*:*:*:*:*:*:*"},
		})

		files := writeChunks(t,
			product(id2, "cpe:2.3:a:v:p:2.0:*:*:*:*:*:*:*", true),
			product(id3, "cpe:2.3:a:v:p:3.0:*:*:*:*:*:*:*", false),
		)

		backups := t.TempDir()
		diffs := t.TempDir()
		u := newUpdater(store, differ.NewFileArchiver(backups, zap.NewNop()))

		result, err := u.Run(context.Background(), files, updater.Options{DiffDir: diffs})
		require.NoError(t, err)

		require.NotNil(t, result.Stats)
		assert.Equal(t, 1, result.Stats.Added)
		assert.Equal(t, 1, result.Stats.Removed)
		assert.Equal(t, 1, result.Stats.Modified)
		assert.Equal(t, 1, result.Stats.NewlyDeprecated)

		// The index now holds exactly the new snapshot.
		assert.Equal(t, 2, store.Len())
		assert.Equal(t, 2, result.Index.Succeeded)

		// Backup and both report files were written.
		assert.FileExists(t, result.DiffFile)
		assert.FileExists(t, result.CSVDiffFile)
		backupFiles, err := filepath.Glob(filepath.Join(backups, "cpe_backup_*.json"))
		require.NoError(t, err)
		assert.Len(t, backupFiles, 1)
	})

	t.Run("archival failure leaves the live index untouched", func(t *testing.T) {
		t.Parallel()

		store := mock.NewStore()
		store.Commit([]model.CPEEntry{
			{NameID: id1, Name: "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*"},
		})

		files := writeChunks(t, product(id2, "cpe:2.3:a:v:p:2.0:*:*:*:*:*:*:*", false))
		u := newUpdater(store, failingArchiver{err: errors.New("disk full")})

		_, err := u.Run(context.Background(), files, updater.Options{DiffDir: t.TempDir()})
		require.Error(t, err)

		var archiveErr *differ.ArchiveError
		assert.ErrorAs(t, err, &archiveErr)

		// Old content is still there.
		assert.Equal(t, 1, store.Len())
		entry, ok := storeGet(store, id1)
		require.True(t, ok)
		assert.Equal(t, "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*", entry.Name)
	})

	t.Run("unwritable diff dir blocks the index swap", func(t *testing.T) {
		t.Parallel()

		store := mock.NewStore()
		store.Commit([]model.CPEEntry{
			{NameID: id1, Name: "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*"},
		})

		files := writeChunks(t, product(id2, "cpe:2.3:a:v:p:2.0:*:*:*:*:*:*:*", false))
		u := newUpdater(store, differ.NopArchiver{})

		_, err := u.Run(context.Background(), files, updater.Options{DiffDir: ""})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "diff dir")

		// The report failed before the swap; old content survives.
		assert.Equal(t, 1, store.Len())
		_, ok := storeGet(store, id1)
		assert.True(t, ok)
	})

	t.Run("skip-diff runs without backup or reports", func(t *testing.T) {
		t.Parallel()

		store := mock.NewStore()
		files := writeChunks(t, product(id1, "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*", false))

		// The archiver would fail; SkipDiff must never reach it.
		u := newUpdater(store, failingArchiver{err: errors.New("unreachable")})
		result, err := u.Run(context.Background(), files, updater.Options{SkipDiff: true})
		require.NoError(t, err)

		assert.Nil(t, result.Stats)
		assert.Empty(t, result.DiffFile)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("fails when no entries parse", func(t *testing.T) {
		t.Parallel()

		store := mock.NewStore()
		files := writeChunks(t, "")

		u := newUpdater(store, differ.NopArchiver{})
		_, err := u.Run(context.Background(), files, updater.Options{SkipDiff: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no entries parsed")
	})

	t.Run("malformed records are skipped and counted", func(t *testing.T) {
		t.Parallel()

		store := mock.NewStore()
		files := writeChunks(t,
			product(id1, "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*", false)+","+
				product("not-a-uuid", "cpe:2.3:a:v:p:9.0:*:*:*:*:*:*:*", false),
		)

		u := newUpdater(store, differ.NopArchiver{})
		result, err := u.Run(context.Background(), files, updater.Options{SkipDiff: true})
		require.NoError(t, err)

		assert.Equal(t, 1, result.ParseErrors)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("missing chunk files become fetch errors", func(t *testing.T) {
		t.Parallel()

		store := mock.NewStore()
		files := writeChunks(t, product(id1, "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*", false))
		files = append(files, filepath.Join(t.TempDir(), "missing.json"))

		u := newUpdater(store, differ.NopArchiver{})
		result, err := u.Run(context.Background(), files, updater.Options{SkipDiff: true})
		require.NoError(t, err)
		assert.Len(t, result.FetchErrors, 1)
	})
}

func TestUpdater_IndexFromFiles(t *testing.T) {
	t.Parallel()

	const (
		id1 = "11111111-1111-4111-8111-111111111111"
		id2 = "22222222-2222-4222-8222-222222222222"
	)

	store := mock.NewStore()
	files := writeChunks(t,
		product(id1, "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*", false),
		product(id2, "cpe:2.3:a:v:p:2.0:*:*:*:*:*:*:*", false),
	)

	u := newUpdater(store, differ.NopArchiver{})
	report, result, err := u.IndexFromFiles(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Zero(t, result.ParseErrors)
	assert.Equal(t, 2, store.Len())
}

func TestUpdater_RecreateIndex(t *testing.T) {
	t.Parallel()

	store := mock.NewStore()
	store.Commit([]model.CPEEntry{{NameID: "11111111-1111-4111-8111-111111111111"}})

	u := newUpdater(store, differ.NopArchiver{})
	require.NoError(t, u.RecreateIndex(context.Background()))
	assert.Zero(t, store.Len())
}

func TestSummary(t *testing.T) {
	t.Parallel()

	t.Run("reports failures", func(t *testing.T) {
		t.Parallel()
		out := updater.Summary(nil, errors.New("boom"))
		assert.Contains(t, out, "Update failed: boom")
	})

	t.Run("reports counts and files", func(t *testing.T) {
		t.Parallel()

		result := &updater.Result{
			Timestamp:   "20240502_150405",
			Index:       &indexer.Report{Succeeded: 10, Failed: 1, Retries: 2},
			Stats:       &model.UpdateStats{Added: 3, Unchanged: 7},
			ParseErrors: 1,
			DiffFile:    "/tmp/diff.json",
		}
		out := updater.Summary(result, nil)
		assert.Contains(t, out, "indexed:  10 documents (1 failed, 2 retries)")
		assert.Contains(t, out, "skipped:  1 malformed records")
		assert.Contains(t, out, "added: 3")
		assert.Contains(t, out, "/tmp/diff.json")
	})
}

// storeGet reads one document back out of the mock store.
func storeGet(store *mock.Store, nameID string) (model.CPEEntry, bool) {
	var found model.CPEEntry
	ok := false
	_ = store.All(context.Background(), func(e model.CPEEntry) error {
		if e.NameID == nameID {
			found = e
			ok = true
		}
		return nil
	})
	return found, ok
}
