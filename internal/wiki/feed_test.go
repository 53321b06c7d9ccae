package wiki

import (
	"strings"
	"testing"
	"time"
)

func TestBuildFeed(t *testing.T) {
	entries := []FeedEntry{
		{
			Title:     "Release Notes",
			BodyHTML:  "<p>shipped</p>",
			Author:    "alice",
			URL:       "/Release_Notes",
			Timestamp: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			Title:     "Roadmap",
			BodyHTML:  "<p>plans</p>",
			Author:    "bob",
			URL:       "/Roadmap",
			Timestamp: time.Date(2024, 2, 28, 12, 30, 0, 0, time.UTC),
		},
	}

	atom, err := BuildFeed("Wiki Changes", "https://wiki.example.com/sp.changes?_type=atom", "https://wiki.example.com", "admin@example.com", entries)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"<title>Wiki Changes</title>",
		"<title>Release Notes</title>",
		"https://wiki.example.com/Release_Notes",
		"<name>alice</name>",
		"2024-03-02T09:00:00Z",
	} {
		if !strings.Contains(atom, want) {
			t.Errorf("feed missing %q:\n%s", want, atom)
		}
	}

	// The first entry's timestamp becomes the feed-level updated time.
	if !strings.Contains(atom, "<updated>2024-03-02T09:00:00Z</updated>") {
		t.Errorf("feed-level updated should come from the newest entry:\n%s", atom)
	}
}

func TestBuildFeedEmpty(t *testing.T) {
	atom, err := BuildFeed("Posts", "https://wiki.example.com/sp.posts", "https://wiki.example.com", "admin@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(atom, "<title>Posts</title>") {
		t.Errorf("empty feed still renders the envelope:\n%s", atom)
	}
}
