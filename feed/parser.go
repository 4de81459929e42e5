package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cpedb/cpedb-backend/model"
)

// feedFormat is the format marker expected at the top of every chunk file.
const feedFormat = "NVD_CPE"

// Raw wire types of the NVD CPE 2.0 chunk files.
type rawProduct struct {
	CPE rawCPE `json:"cpe"`
}

type rawCPE struct {
	Name         string        `json:"cpeName"`
	NameID       string        `json:"cpeNameId"`
	Created      string        `json:"created"`
	LastModified string        `json:"lastModified"`
	Deprecated   bool          `json:"deprecated"`
	Refs         []model.Ref   `json:"refs"`
	Titles       []model.Title `json:"titles"`
}

// ChunkParser converts raw catalog chunk files into validated entries.
// Record-level problems are recorded as ParseErrors and skipped; the parser
// never aborts a run on one bad record.
type ChunkParser struct {
	parseErrors []ParseError
}

// NewChunkParser returns a parser with empty error state.
func NewChunkParser() *ChunkParser {
	return &ChunkParser{}
}

// ParseErrors returns the record-level errors collected so far.
func (p *ChunkParser) ParseErrors() []ParseError {
	return p.parseErrors
}

// SkippedRecords returns the number of records skipped so far.
func (p *ChunkParser) SkippedRecords() int {
	return len(p.parseErrors)
}

// ParseFile streams the products of one chunk file to emit, decoding one
// record at a time. The sequence is finite and not restartable; call
// ParseFile again to re-iterate. Container-level failures return a
// FetchError; a non-nil error from emit stops the stream and is returned
// as-is.
func (p *ChunkParser) ParseFile(path string, emit func(model.CPEEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return &FetchError{Path: path, Err: err}
	}
	defer f.Close()

	dec := json.NewDecoder(f)

	// Opening brace of the envelope object.
	if err := expectDelim(dec, '{'); err != nil {
		return &FetchError{Path: path, Err: err}
	}

	record := 0
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return &FetchError{Path: path, Err: err}
		}
		key, _ := keyTok.(string)

		switch key {
		case "format":
			var format string
			if err := dec.Decode(&format); err != nil {
				return &FetchError{Path: path, Err: err}
			}
			if format != feedFormat {
				return &FetchError{Path: path, Err: fmt.Errorf("unexpected feed format %q", format)}
			}
		case "products":
			if err := expectDelim(dec, '['); err != nil {
				return &FetchError{Path: path, Err: err}
			}
			for dec.More() {
				record++
				var raw rawProduct
				if err := dec.Decode(&raw); err != nil {
					return &FetchError{Path: path, Err: err}
				}
				entry, perr := p.buildEntry(raw.CPE)
				if perr != nil {
					perr.File = path
					perr.Record = record
					p.parseErrors = append(p.parseErrors, *perr)
					continue
				}
				if err := emit(*entry); err != nil {
					return err
				}
			}
			if err := expectDelim(dec, ']'); err != nil {
				return &FetchError{Path: path, Err: err}
			}
		default:
			// Skip fields we do not consume (version, timestamp, paging).
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return &FetchError{Path: path, Err: err}
			}
		}
	}

	return nil
}

// buildEntry validates and converts one raw record.
func (p *ChunkParser) buildEntry(raw rawCPE) (*model.CPEEntry, *ParseError) {
	if raw.Name == "" {
		return nil, &ParseError{Reason: "missing cpeName"}
	}
	if raw.NameID == "" {
		return nil, &ParseError{Reason: "missing cpeNameId"}
	}
	if _, err := uuid.Parse(raw.NameID); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("cpeNameId %q is not a UUID", raw.NameID)}
	}

	entry := model.NewCPEEntry()
	entry.Name = raw.Name
	entry.NameID = raw.NameID
	entry.Deprecated = raw.Deprecated

	if err := entry.ParseAndSetNameFields(); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}

	var err error
	if raw.Created != "" {
		if entry.Created, err = parseTimestamp(raw.Created); err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("unparsable created timestamp %q", raw.Created)}
		}
	}
	if raw.LastModified != "" {
		if entry.LastModified, err = parseTimestamp(raw.LastModified); err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("unparsable lastModified timestamp %q", raw.LastModified)}
		}
	}

	if raw.Refs != nil {
		entry.Refs = raw.Refs
	}
	if raw.Titles != nil {
		entry.Titles = raw.Titles
	}

	return entry, nil
}

// Timestamp layouts seen in NVD feeds: RFC3339 and zone-less variants with
// optional fractional seconds.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
