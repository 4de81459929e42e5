package differ

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cpedb/cpedb-backend/model"
)

// FileArchiver persists superseded snapshots as timestamped JSON files
// under Dir, one backup per update run.
type FileArchiver struct {
	Dir    string
	logger *zap.SugaredLogger

	// now is swappable for tests.
	now func() time.Time
}

// NewFileArchiver creates an archiver writing under dir.
func NewFileArchiver(dir string, logger *zap.Logger) *FileArchiver {
	return &FileArchiver{Dir: dir, logger: logger.Sugar(), now: time.Now}
}

// Archive writes the snapshot to a new backup file and returns its path.
func (a *FileArchiver) Archive(_ context.Context, snapshot *model.Snapshot) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}

	entries := snapshot.Entries()
	name := fmt.Sprintf("cpe_backup_%s.json", a.now().Format("20060102_150405"))
	path := filepath.Join(a.Dir, name)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup file: %w", err)
	}

	a.logger.Infof("Backup created: %s (%d entries)", path, len(entries))
	return path, nil
}

// LoadArchive reads a backup file back into a snapshot, for rollback or
// offline diffing.
func LoadArchive(path string) (*model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}

	var entries []model.CPEEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse backup file %s: %w", path, err)
	}

	return model.NewSnapshot(entries), nil
}

// NopArchiver skips archival, for pipelines that explicitly opt out of
// diff generation and for tests.
type NopArchiver struct{}

// Archive is a no-op.
func (NopArchiver) Archive(context.Context, *model.Snapshot) (string, error) {
	return "", nil
}
