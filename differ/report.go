package differ

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cpedb/cpedb-backend/model"
)

// Report bundles a diff with its statistics for persistence.
type Report struct {
	Timestamp  string            `json:"timestamp"`
	Statistics model.UpdateStats `json:"statistics"`
	Changes    *model.DiffResult `json:"changes"`
}

// NewReport stamps a diff for writing.
func NewReport(diff *model.DiffResult, stats model.UpdateStats, at time.Time) *Report {
	return &Report{
		Timestamp:  at.Format("20060102_150405"),
		Statistics: stats,
		Changes:    diff,
	}
}

// WriteJSON persists the structured diff report under dir and returns the
// file path.
func (r *Report) WriteJSON(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create diff dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("cpe_diff_%s.json", r.Timestamp))
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode diff report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write diff report: %w", err)
	}
	return path, nil
}

// WriteCSV persists a human-oriented change summary under dir: one row per
// added, modified, and newly deprecated entry.
func (r *Report) WriteCSV(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create diff dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("cpe_diff_summary_%s.csv", r.Timestamp))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create diff summary: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"Change Type", "CPE Name", "Product Title", "Vendor", "Product", "Version", "References", "Deprecated", "Changed Fields"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write diff summary: %w", err)
	}

	for _, entry := range r.Changes.Added {
		if err := w.Write(summaryRow("ADDED", entry, nil)); err != nil {
			return "", fmt.Errorf("failed to write diff summary: %w", err)
		}
	}
	for _, mod := range r.Changes.Modified {
		if err := w.Write(summaryRow("MODIFIED", mod.New, mod.ChangedFields)); err != nil {
			return "", fmt.Errorf("failed to write diff summary: %w", err)
		}
	}
	for _, entry := range r.Changes.NewlyDeprecated {
		if err := w.Write(summaryRow("DEPRECATED", entry, nil)); err != nil {
			return "", fmt.Errorf("failed to write diff summary: %w", err)
		}
	}
	for _, entry := range r.Changes.Removed {
		if err := w.Write(summaryRow("REMOVED", entry, nil)); err != nil {
			return "", fmt.Errorf("failed to write diff summary: %w", err)
		}
	}

	return path, w.Error()
}

func summaryRow(changeType string, entry model.CPEEntry, changed []string) []string {
	return []string{
		changeType,
		entry.Name,
		entry.PrimaryTitle(),
		entry.Vendor,
		entry.Product,
		entry.Version,
		strings.Join(entry.RefURLs(), "; "),
		fmt.Sprintf("%t", entry.Deprecated),
		strings.Join(changed, "|"),
	}
}
