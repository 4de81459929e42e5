// Package feed downloads the NVD CPE feed and parses its chunk files into
// catalog entries.
package feed

import "fmt"

// FetchError marks a chunk file that could not be opened or decoded at the
// container level. Fatal for that file, non-fatal for the run.
type FetchError struct {
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to read chunk file %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError marks a malformed individual record. The record is skipped and
// counted; parsing continues.
type ParseError struct {
	File   string
	Record int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record %d in %s: %s", e.Record, e.File, e.Reason)
}
