package matcher

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cpedb/cpedb-backend/model"
)

// RowError marks a malformed CSV row (missing required column). The row is
// skipped and counted; processing continues.
type RowError struct {
	Row    int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// CSVOptions select the tool-name and website columns by 0-based index.
type CSVOptions struct {
	ToolCol    int
	WebsiteCol int
	Match      Options
}

// CSVStats summarizes a batch matching run.
type CSVStats struct {
	TotalRows        int        `json:"total_rows"`
	SkippedRows      int        `json:"skipped_rows"`
	ToolsWithCPE     int        `json:"tools_with_cpe"`
	ToolsWithoutCPE  int        `json:"tools_without_cpe"`
	TotalCPEMatches  int        `json:"total_cpe_matches"`
	MatchesByName    int        `json:"matches_by_name"`
	MatchesByWebsite int        `json:"matches_by_website"`
	MatchesByBoth    int        `json:"matches_by_both"`
	RowErrors        []RowError `json:"row_errors,omitempty"`
}

// matchColumns is the number of output columns appended per match group.
var matchColumns = []string{"cpe", "vendor", "product", "versions", "purl", "found_by"}

// ProcessCSV matches every row of the input CSV against the catalog and
// writes the original columns extended with up to 5 match groups. Rows
// missing the required columns are skipped, counted, and reported in the
// returned stats; the run continues.
func (m *ToolMatcher) ProcessCSV(ctx context.Context, inputPath, outputPath string, opts CSVOptions) (*CSVStats, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input CSV: %w", err)
	}
	defer in.Close()

	br := bufio.NewReader(in)
	delimiter, err := sniffDelimiter(br)
	if err != nil {
		return nil, fmt.Errorf("failed to detect CSV delimiter: %w", err)
	}

	reader := csv.NewReader(br)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output CSV: %w", err)
	}
	defer out.Close()

	writer := csv.NewWriter(out)
	defer writer.Flush()

	header, err := reader.Read()
	if err == io.EOF {
		return &CSVStats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	if err := writer.Write(extendHeader(header)); err != nil {
		return nil, fmt.Errorf("failed to write output header: %w", err)
	}

	stats := &CSVStats{}
	requiredCols := max(opts.ToolCol, opts.WebsiteCol) + 1
	width := len(header)

	for rowNum := 1; ; rowNum++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", rowNum, err)
		}

		stats.TotalRows++

		if len(row) < requiredCols {
			rowErr := RowError{Row: rowNum, Reason: fmt.Sprintf("has %d columns, need %d", len(row), requiredCols)}
			stats.SkippedRows++
			stats.RowErrors = append(stats.RowErrors, rowErr)
			m.logger.Warnf("Skipping %v", &rowErr)
			if err := writer.Write(extendRow(padRow(row, width), nil)); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", rowNum, err)
			}
			continue
		}

		toolName := strings.TrimSpace(row[opts.ToolCol])
		website := strings.TrimSpace(row[opts.WebsiteCol])

		groups, err := m.Match(ctx, toolName, website, opts.Match)
		if err != nil {
			return stats, fmt.Errorf("match failed for row %d (%s): %w", rowNum, toolName, err)
		}

		if len(groups) > 0 {
			stats.ToolsWithCPE++
			stats.TotalCPEMatches += len(groups)
			for _, g := range groups {
				switch g.FoundBy {
				case model.FoundByName:
					stats.MatchesByName++
				case model.FoundByWebsite:
					stats.MatchesByWebsite++
				case model.FoundByBoth:
					stats.MatchesByBoth++
				}
			}
		} else {
			stats.ToolsWithoutCPE++
		}

		if err := writer.Write(extendRow(padRow(row, width), groups)); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", rowNum, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return stats, fmt.Errorf("failed to flush output CSV: %w", err)
	}

	m.logger.Infof("Matched %d/%d tools (%d skipped rows), results written to %s",
		stats.ToolsWithCPE, stats.TotalRows, stats.SkippedRows, outputPath)
	return stats, nil
}

// sniffDelimiter inspects the buffered first line and picks the separator
// occurring most often among comma, semicolon, and tab.
func sniffDelimiter(br *bufio.Reader) (rune, error) {
	sample, err := br.Peek(1024)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return 0, err
	}
	line := string(sample)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}

	best := ','
	bestCount := -1
	for _, d := range []rune{',', ';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best, nil
}

func extendHeader(header []string) []string {
	extended := append([]string{}, header...)
	extended = append(extended, "cpe_match_count")
	for i := 1; i <= DefaultLimit; i++ {
		for _, col := range matchColumns {
			extended = append(extended, col+"_"+strconv.Itoa(i))
		}
	}
	return extended
}

// padRow right-pads a row with empty fields so every output record has the
// same width as the header.
func padRow(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}

func extendRow(row []string, groups []model.MatchGroup) []string {
	extended := append([]string{}, row...)
	extended = append(extended, strconv.Itoa(len(groups)))
	for i := 0; i < DefaultLimit; i++ {
		if i < len(groups) {
			g := groups[i]
			extended = append(extended, g.CPE, g.Vendor, g.Product, strings.Join(g.Versions, "|"), g.PURL(), g.FoundBy)
		} else {
			extended = append(extended, "", "", "", "", "", "")
		}
	}
	return extended
}
