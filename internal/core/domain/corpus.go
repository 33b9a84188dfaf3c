package domain

import (
	"fmt"
	"time"
)

// CorpusLine is one line-aligned pair of the translation-memory corpus.
type CorpusLine struct {
	// Position is the 0-indexed ordinal of the line in both corpus files.
	Position int

	// Source is the source-language text.
	Source string

	// Target is the target-language text.
	Target string
}

// QueryID returns the metadata row id for this line.
func (l CorpusLine) QueryID() int {
	return QueryIDFor(l.Position)
}

// QueryIDFor maps a corpus position to its 1-indexed metadata row id.
func QueryIDFor(position int) int {
	return position + 1
}

// PositionFor maps a metadata row id back to its corpus position.
func PositionFor(queryID int) int {
	return queryID - 1
}

// SourceKind identifies where a corpus was collected from.
type SourceKind string

// Available source kinds.
const (
	// SourceKindWebsite marks segments crawled from a website.
	SourceKindWebsite SourceKind = "website"

	// SourceKindFile marks segments extracted from files.
	SourceKindFile SourceKind = "file"
)

// IsValid returns true if the source kind is recognised.
func (k SourceKind) IsValid() bool {
	return k == SourceKindWebsite || k == SourceKindFile
}

// YCCDomain is an entry of the domain taxonomy.
type YCCDomain struct {
	Code   string
	Gloss  string
	Domain string
	Note   string
}

// Provenance describes the origin shared by every segment of an imported corpus.
type Provenance struct {
	SourceLang string
	TargetLang string

	// Quality is a free-form quality flag, e.g. "machine cleaned".
	Quality string

	// Type is the segment type, e.g. "TM".
	Type string

	Kind       SourceKind
	URI        string
	Owner      string
	Size       int64
	LastUpdate time.Time
	Note       string
	Domain     YCCDomain
}

// PositionSpan summarises the positions held by a metadata store.
type PositionSpan struct {
	Count int
	Min   int
	Max   int

	// Skewed counts rows whose query_id is not position + 1.
	Skewed int
}

// Check returns ErrPositionMismatch unless the span covers exactly 0..n-1
// with query_id = position + 1. Positions are assumed unique.
func (s PositionSpan) Check(n int) error {
	switch {
	case s.Count != n:
		return fmt.Errorf("%w: store holds %d segments, index holds %d", ErrPositionMismatch, s.Count, n)
	case s.Skewed > 0:
		return fmt.Errorf("%w: %d segments with query_id != position + 1", ErrPositionMismatch, s.Skewed)
	case n > 0 && (s.Min != 0 || s.Max != n-1):
		return fmt.Errorf("%w: positions span %d..%d, want 0..%d", ErrPositionMismatch, s.Min, s.Max, n-1)
	}
	return nil
}
