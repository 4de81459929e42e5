package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cpedb/cpedb-backend/model"
)

func TestNewSnapshot(t *testing.T) {
	t.Parallel()

	t.Run("keys entries by NameID", func(t *testing.T) {
		t.Parallel()

		s := model.NewSnapshot([]model.CPEEntry{
			{NameID: "id-1", Name: "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*"},
			{NameID: "id-2", Name: "cpe:2.3:a:v:p:2.0:*:*:*:*:*:*:*"},
		})

		assert.Equal(t, 2, s.Len())
		entry, ok := s.Get("id-1")
		assert.True(t, ok)
		assert.Equal(t, "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*", entry.Name)
	})

	t.Run("later duplicates win", func(t *testing.T) {
		t.Parallel()

		s := model.NewSnapshot([]model.CPEEntry{
			{NameID: "id-1", Deprecated: false},
			{NameID: "id-1", Deprecated: true},
		})

		assert.Equal(t, 1, s.Len())
		entry, _ := s.Get("id-1")
		assert.True(t, entry.Deprecated)
	})

	t.Run("drops entries without a NameID", func(t *testing.T) {
		t.Parallel()

		s := model.NewSnapshot([]model.CPEEntry{{Name: "cpe:2.3:a:v:p:1.0:*:*:*:*:*:*:*"}})
		assert.Equal(t, 0, s.Len())
	})
}

func TestDiffResultStats(t *testing.T) {
	t.Parallel()

	old := model.NewSnapshot([]model.CPEEntry{{NameID: "a"}, {NameID: "b"}})
	current := model.NewSnapshot([]model.CPEEntry{{NameID: "b"}, {NameID: "c"}, {NameID: "d"}})

	d := &model.DiffResult{
		Added:     []model.CPEEntry{{NameID: "c"}, {NameID: "d"}},
		Removed:   []model.CPEEntry{{NameID: "a"}},
		Unchanged: 1,
	}

	stats := d.Stats(old, current)
	assert.Equal(t, 2, stats.TotalOld)
	assert.Equal(t, 3, stats.TotalNew)
	assert.Equal(t, 2, stats.Added)
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, 0, stats.Modified)
	assert.Equal(t, 1, stats.Unchanged)
	assert.False(t, d.Empty())
	assert.True(t, (&model.DiffResult{}).Empty())
}
