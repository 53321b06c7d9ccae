// Package search computes signed relevance scores for wiki pages.
package search

import (
	"crypto/sha1"
	"encoding/hex"
)

// Entry is one scored title. Non-negative scores are candidate matches,
// negative scores are exclusions; titles judged irrelevant are omitted
// entirely rather than scored zero.
type Entry struct {
	Title string
	Score float64
}

// ScoreTable is an ordered score map. Enumeration order is part of the
// contract: the ranking step breaks score ties by table order.
type ScoreTable []Entry

// Scorer evaluates a search expression into a ScoreTable.
type Scorer interface {
	Scores(expression string) (ScoreTable, error)
	Healthy() bool
}

// Indexer pushes page content into the search backend.
type Indexer interface {
	IndexPage(record PageRecord) error
	IndexPages(records []PageRecord) error
	DeletePage(title string) error
}

// PageRecord is the data indexed per page.
type PageRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// RecordID derives a meilisearch-safe document id from a title.
func RecordID(title string) string {
	sum := sha1.Sum([]byte(title))
	return hex.EncodeToString(sum[:])
}
