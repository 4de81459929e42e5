// Package model defines the data structures used by cpedb-backend,
// including CPE entries, catalog snapshots, diff results, and match groups.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Ref is a reference URL attached to a CPE entry.
type Ref struct {
	Ref  string `json:"ref"`
	Type string `json:"type,omitempty"`
}

// Title is a localized human-readable title for a CPE entry.
type Title struct {
	Title string `json:"title"`
	Lang  string `json:"lang,omitempty"`
}

// CPEEntry represents one canonical identifier record stored in the database.
// NameID is the stable primary key across snapshots and doubles as the
// ArangoDB document key; the Name string is mutable catalog data.
type CPEEntry struct {
	Key          string    `json:"_key,omitempty"`
	ObjType      string    `json:"objtype,omitempty"`
	Name         string    `json:"cpeName"`
	NameID       string    `json:"cpeNameId"`
	Created      time.Time `json:"created,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
	Deprecated   bool      `json:"deprecated"`
	Refs         []Ref     `json:"refs"`
	Titles       []Title   `json:"titles"`

	// Parsed name components, populated by ParseAndSetNameFields so the
	// backend can index and filter on them directly.
	Vendor  string `json:"vendor,omitempty"`
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
}

// NewCPEEntry creates a CPEEntry with default values and normalized lists.
func NewCPEEntry() *CPEEntry {
	return &CPEEntry{
		ObjType: "CPEEntry",
		Refs:    []Ref{},
		Titles:  []Title{},
	}
}

// ParseAndSetNameFields parses the Name field and populates vendor,
// product, and version. An unparsable name leaves the fields empty.
func (e *CPEEntry) ParseAndSetNameFields() error {
	parsed, err := ParseCPEName(e.Name)
	if err != nil {
		return err
	}
	e.Vendor = parsed.Vendor
	e.Product = parsed.Product
	e.Version = parsed.Version
	return nil
}

// PrimaryTitle returns the first title of the entry, or the empty string.
func (e *CPEEntry) PrimaryTitle() string {
	if len(e.Titles) == 0 {
		return ""
	}
	return e.Titles[0].Title
}

// RefURLs returns the plain reference URLs of the entry.
func (e *CPEEntry) RefURLs() []string {
	urls := make([]string, 0, len(e.Refs))
	for _, r := range e.Refs {
		urls = append(urls, r.Ref)
	}
	return urls
}

// CPEName holds the structured fields of a cpe:2.3 identifier string.
// Any field may be the wildcard "*".
type CPEName struct {
	Part      string `json:"part"`
	Vendor    string `json:"vendor"`
	Product   string `json:"product"`
	Version   string `json:"version"`
	Update    string `json:"update"`
	Edition   string `json:"edition"`
	Language  string `json:"language"`
	SwEdition string `json:"sw_edition"`
	TargetSw  string `json:"target_sw"`
	TargetHw  string `json:"target_hw"`
	Other     string `json:"other"`
}

const cpePrefix = "cpe:2.3"

// ParseCPEName parses a cpe:2.3 identifier string into its fixed fields.
// Colons escaped with a backslash do not split fields.
func ParseCPEName(name string) (*CPEName, error) {
	if !strings.HasPrefix(name, cpePrefix+":") {
		return nil, fmt.Errorf("not a cpe:2.3 identifier: %q", name)
	}

	fields := splitCPE(name[len(cpePrefix)+1:])
	if len(fields) != 11 {
		return nil, fmt.Errorf("cpe identifier has %d fields, want 11: %q", len(fields), name)
	}

	return &CPEName{
		Part:      fields[0],
		Vendor:    fields[1],
		Product:   fields[2],
		Version:   fields[3],
		Update:    fields[4],
		Edition:   fields[5],
		Language:  fields[6],
		SwEdition: fields[7],
		TargetSw:  fields[8],
		TargetHw:  fields[9],
		Other:     fields[10],
	}, nil
}

// splitCPE splits on unescaped colons, keeping "\:" intact within a field.
func splitCPE(s string) []string {
	var fields []string
	var b strings.Builder
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			b.WriteRune('\\')
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if escaped {
		b.WriteRune('\\')
	}
	fields = append(fields, b.String())

	return fields
}

// String reassembles the identifier in cpe:2.3 form.
func (n *CPEName) String() string {
	return strings.Join([]string{
		cpePrefix, n.Part, n.Vendor, n.Product, n.Version, n.Update,
		n.Edition, n.Language, n.SwEdition, n.TargetSw, n.TargetHw, n.Other,
	}, ":")
}

// WithVersion returns a copy of the name with the version field replaced.
func (n *CPEName) WithVersion(version string) *CPEName {
	c := *n
	c.Version = version
	return &c
}
