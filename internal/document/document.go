// Package document defines the page and chunk types shared by the ingestion
// and query paths.
package document

import (
	"fmt"
	"strconv"
)

// Metadata keys as stored alongside every chunk in the vector store.
const (
	KeySource        = "source"
	KeyPage          = "page"
	KeySection       = "section"
	KeyContainsImage = "contains_image"
	KeyContainsTable = "contains_table"
)

// UnknownSection is the label carried by pages that precede any recognised heading.
const UnknownSection = "Unknown"

// Metadata is the provenance attached to a page and copied to each of its chunks.
type Metadata struct {
	Source        string `json:"source"`
	Page          int    `json:"page"`
	Section       string `json:"section"`
	ContainsImage bool   `json:"contains_image"`
	ContainsTable bool   `json:"contains_table"`
}

// Page is one physical page of an extracted document.
//
// The section is fixed when the page is created from the running state of the
// section detector and is never re-derived afterwards.
type Page struct {
	Text     string
	Source   string
	Number   int
	Section  string
	HasImage bool
	HasTable bool
}

// Metadata returns the chunk metadata derived from the page.
func (p Page) Metadata() Metadata {
	return Metadata{
		Source:        p.Source,
		Page:          p.Number,
		Section:       p.Section,
		ContainsImage: p.HasImage,
		ContainsTable: p.HasTable,
	}
}

// Chunk is a bounded slice of page text with inherited metadata.
type Chunk struct {
	// ID is the content signature once the chunk has been indexed.
	ID       string   `json:"id,omitempty"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Map converts metadata to the generic payload form used by vector stores.
func (m Metadata) Map() map[string]interface{} {
	return map[string]interface{}{
		KeySource:        m.Source,
		KeyPage:          m.Page,
		KeySection:       m.Section,
		KeyContainsImage: m.ContainsImage,
		KeyContainsTable: m.ContainsTable,
	}
}

// MetadataFromMap rebuilds metadata from a store payload.
//
// Stores that keep metadata as strings (chromem) are handled by parsing the
// string forms; unknown or malformed values leave the zero value in place.
func MetadataFromMap(m map[string]interface{}) Metadata {
	var md Metadata
	if m == nil {
		return md
	}
	md.Source = stringValue(m[KeySource])
	md.Section = stringValue(m[KeySection])
	md.Page = intValue(m[KeyPage])
	md.ContainsImage = boolValue(m[KeyContainsImage])
	md.ContainsTable = boolValue(m[KeyContainsTable])
	return md
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func intValue(v interface{}) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func boolValue(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return false
		}
		return b
	default:
		return false
	}
}
