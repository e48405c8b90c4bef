package manifest

import (
	"slices"
	"time"
)

// Document represents a decoded audiobook manifest.
type Document struct {
	Contexts     []string // every @context entry, in document order
	FormatType   string
	Metadata     Metadata
	Links        []Link
	ReadingOrder []ReadingOrderItem
	TOC          []TOCItem
	Raw          []byte // exact bytes the document was decoded from
}

// HasContext reports whether uri is one of the document's @context entries.
func (d *Document) HasContext(uri string) bool {
	return slices.Contains(d.Contexts, uri)
}

// Metadata represents the metadata section of the manifest
type Metadata struct {
	Identifier string
	Title      string
	Subtitle   string
	Author     Contributor
	Narrator   Contributor
	Publisher  string
	Language   string // canonical BCP 47 tag
	Duration   time.Duration
	Published  time.Time // zero when absent
	Modified   time.Time // zero when absent
	License    string
	Abridged   bool
	Encrypted  *Encryption
}

// Contributor represents an author or narrator of the book
type Contributor struct {
	Name   string
	SortAs string
}

// Encryption describes the DRM scheme declared by the publisher.
type Encryption struct {
	Scheme    string
	Profile   string
	Algorithm string
}

// Link represents an entry of the top-level links array
type Link struct {
	Rel     []string
	Href    string
	Type    string
	Title   string
	Width   int
	Height  int
	Bitrate float64
}

// HasRel reports whether the link carries the given relation.
func (l Link) HasRel(rel string) bool {
	for _, r := range l.Rel {
		if r == rel {
			return true
		}
	}
	return false
}

// ReadingOrderItem represents one playable resource in the reading order
type ReadingOrderItem struct {
	Href     string
	Type     string
	Title    string
	Bitrate  float64
	Duration time.Duration // zero when the publisher did not declare it
	Part     int           // findaway:part, zero when absent
	Sequence int           // findaway:sequence, zero when absent
}

// HasFindawayOrder reports whether the item carries the Findaway part/sequence extension.
func (it ReadingOrderItem) HasFindawayOrder() bool {
	return it.Part > 0 || it.Sequence > 0
}

// TOCItem represents a single entry in the table of contents tree.
type TOCItem struct {
	Href     string
	Title    string
	Children []TOCItem
}

// WithTOC returns a shallow copy of the document whose table of contents is replaced.
func (d *Document) WithTOC(toc []TOCItem) *Document {
	cp := *d
	cp.TOC = toc
	return &cp
}

// Link returns the first link carrying rel.
func (d *Document) Link(rel string) (Link, bool) {
	for _, l := range d.Links {
		if l.HasRel(rel) {
			return l, true
		}
	}
	return Link{}, false
}
