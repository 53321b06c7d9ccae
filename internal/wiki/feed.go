package wiki

import (
	"fmt"
	"time"

	"github.com/gorilla/feeds"
)

// FeedEntry is one item of an Atom feed. Timestamps are explicit: changes
// feeds carry the update time, posts feeds the publication time.
type FeedEntry struct {
	Title     string
	BodyHTML  string
	Author    string
	URL       string
	Timestamp time.Time
}

// BuildFeed assembles an Atom document from pre-ordered entries. The caller
// decides ordering and cutoff; this only serializes.
func BuildFeed(feedTitle, feedURL, siteURL, authorEmail string, entries []FeedEntry) (string, error) {
	var updated time.Time
	if len(entries) > 0 {
		updated = entries[0].Timestamp
	}

	feed := &feeds.Feed{
		Title:   feedTitle,
		Link:    &feeds.Link{Href: feedURL},
		Id:      feedURL,
		Author:  &feeds.Author{Email: authorEmail},
		Updated: updated,
	}
	for _, entry := range entries {
		feed.Items = append(feed.Items, &feeds.Item{
			Title:   entry.Title,
			Link:    &feeds.Link{Href: siteURL + entry.URL},
			Id:      siteURL + entry.URL,
			Author:  &feeds.Author{Name: entry.Author},
			Content: entry.BodyHTML,
			Updated: entry.Timestamp,
		})
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return "", fmt.Errorf("render atom feed: %w", err)
	}
	return atom, nil
}
