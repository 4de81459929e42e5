package matcher_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cpedb/cpedb-backend/matcher"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tools.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestToolMatcher_ProcessCSV(t *testing.T) {
	t.Parallel()

	logger := zap.NewNop()

	t.Run("annotates rows with match columns", func(t *testing.T) {
		t.Parallel()

		store := seededStore(t,
			catalogEntry("id-1", "cpe:2.3:a:apache:http_server:2.4.41:*:*:*:*:*:*:*", "Apache HTTP Server", "https://httpd.apache.org"),
		)
		m := matcher.NewToolMatcher(store, logger)

		input := writeCSV(t, "tool,website,owner\nApache HTTP Server,https://httpd.apache.org,infra\nUnknown Tool,https://nowhere.example,devs\n")
		output := filepath.Join(t.TempDir(), "out.csv")

		stats, err := m.ProcessCSV(context.Background(), input, output, matcher.CSVOptions{ToolCol: 0, WebsiteCol: 1})
		require.NoError(t, err)

		assert.Equal(t, 2, stats.TotalRows)
		assert.Equal(t, 1, stats.ToolsWithCPE)
		assert.Equal(t, 1, stats.ToolsWithoutCPE)
		assert.Equal(t, 1, stats.MatchesByBoth)
		assert.Zero(t, stats.SkippedRows)

		rows := readCSV(t, output)
		require.Len(t, rows, 3)

		// Original columns, then match count, then 5 groups of 6 columns.
		wantCols := 3 + 1 + 5*6
		assert.Len(t, rows[0], wantCols)
		assert.Equal(t, "cpe_match_count", rows[0][3])
		assert.Equal(t, "cpe_1", rows[0][4])
		assert.Equal(t, "found_by_1", rows[0][9])

		matched := rows[1]
		assert.Equal(t, "1", matched[3])
		assert.Equal(t, "cpe:2.3:a:apache:http_server:2.4.41:*:*:*:*:*:*:*", matched[4])
		assert.Equal(t, "apache", matched[5])
		assert.Equal(t, "http_server", matched[6])
		assert.Equal(t, "2.4.41", matched[7])
		assert.Equal(t, "pkg:generic/apache/http_server@2.4.41", matched[8])
		assert.Equal(t, "both", matched[9])

		unmatched := rows[2]
		assert.Equal(t, "0", unmatched[3])
		assert.Equal(t, "", unmatched[4])
	})

	t.Run("detects semicolon delimited input", func(t *testing.T) {
		t.Parallel()

		store := seededStore(t,
			catalogEntry("id-1", "cpe:2.3:a:nginx:nginx:1.18.0:*:*:*:*:*:*:*", "nginx"),
		)
		m := matcher.NewToolMatcher(store, logger)

		input := writeCSV(t, "tool;website\nnginx;https://nginx.org\n")
		output := filepath.Join(t.TempDir(), "out.csv")

		stats, err := m.ProcessCSV(context.Background(), input, output, matcher.CSVOptions{ToolCol: 0, WebsiteCol: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.ToolsWithCPE)

		rows := readCSV(t, output)
		require.Len(t, rows, 2)
		assert.Equal(t, "tool", rows[0][0])
	})

	t.Run("short rows are skipped, reported, and still written", func(t *testing.T) {
		t.Parallel()

		store := seededStore(t)
		m := matcher.NewToolMatcher(store, logger)

		input := writeCSV(t, "tool,website\nonly-one-column\nvalid tool,https://example.org\n")
		output := filepath.Join(t.TempDir(), "out.csv")

		stats, err := m.ProcessCSV(context.Background(), input, output, matcher.CSVOptions{ToolCol: 0, WebsiteCol: 1})
		require.NoError(t, err)

		assert.Equal(t, 2, stats.TotalRows)
		assert.Equal(t, 1, stats.SkippedRows)
		require.Len(t, stats.RowErrors, 1)
		assert.Equal(t, 1, stats.RowErrors[0].Row)

		rows := readCSV(t, output)
		require.Len(t, rows, 3)
		// Skipped row is padded to the header width and carries no matches.
		assert.Equal(t, len(rows[0]), len(rows[1]))
		assert.Equal(t, "0", rows[1][2])
	})

	t.Run("empty input produces empty stats", func(t *testing.T) {
		t.Parallel()

		store := seededStore(t)
		m := matcher.NewToolMatcher(store, logger)

		input := writeCSV(t, "")
		output := filepath.Join(t.TempDir(), "out.csv")

		stats, err := m.ProcessCSV(context.Background(), input, output, matcher.CSVOptions{ToolCol: 0, WebsiteCol: 1})
		require.NoError(t, err)
		assert.Zero(t, stats.TotalRows)
	})
}
