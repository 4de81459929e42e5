// Package model - Snapshot and DiffResult describe the catalog at a point
// in time and the change set between two such points.
package model

// Snapshot is an immutable mapping from NameID to CPEEntry representing the
// full catalog at one point in time. Build it through NewSnapshot; the
// internal map is never handed out for mutation.
type Snapshot struct {
	entries map[string]CPEEntry
}

// NewSnapshot builds a snapshot from a slice of entries. Later entries win
// on duplicate NameIDs, matching keyed upsert semantics.
func NewSnapshot(entries []CPEEntry) *Snapshot {
	m := make(map[string]CPEEntry, len(entries))
	for _, e := range entries {
		if e.NameID == "" {
			continue
		}
		m[e.NameID] = e
	}
	return &Snapshot{entries: m}
}

// Len returns the number of entries in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Get looks up an entry by NameID.
func (s *Snapshot) Get(nameID string) (CPEEntry, bool) {
	e, ok := s.entries[nameID]
	return e, ok
}

// Keys returns the NameIDs present in the snapshot, in map order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Entries returns a copy of the snapshot contents.
func (s *Snapshot) Entries() []CPEEntry {
	out := make([]CPEEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// Modification pairs the old and new versions of a changed entry together
// with the names of the fields that differ.
type Modification struct {
	NameID        string   `json:"cpeNameId"`
	Old           CPEEntry `json:"old"`
	New           CPEEntry `json:"new"`
	ChangedFields []string `json:"changed_fields"`
}

// DiffResult is the change set derived from exactly two snapshots. The
// three sets are disjoint by NameID and together with the unchanged keys
// partition keys(old) union keys(new).
type DiffResult struct {
	Added    []CPEEntry     `json:"added"`
	Removed  []CPEEntry     `json:"removed"`
	Modified []Modification `json:"modified"`

	// NewlyDeprecated lists modified entries whose deprecated flag flipped
	// from false to true; they also appear in Modified.
	NewlyDeprecated []CPEEntry `json:"newly_deprecated"`
	Unchanged       int        `json:"unchanged"`
}

// Empty reports whether the diff contains no changes.
func (d *DiffResult) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// UpdateStats summarizes an update operation for reporting.
type UpdateStats struct {
	TotalOld        int `json:"total_old"`
	TotalNew        int `json:"total_new"`
	Added           int `json:"added"`
	Removed         int `json:"removed"`
	Modified        int `json:"modified"`
	NewlyDeprecated int `json:"newly_deprecated"`
	Unchanged       int `json:"unchanged"`
}

// Stats derives the counters of a diff between two snapshots.
func (d *DiffResult) Stats(old, current *Snapshot) UpdateStats {
	return UpdateStats{
		TotalOld:        old.Len(),
		TotalNew:        current.Len(),
		Added:           len(d.Added),
		Removed:         len(d.Removed),
		Modified:        len(d.Modified),
		NewlyDeprecated: len(d.NewlyDeprecated),
		Unchanged:       d.Unchanged,
	}
}
