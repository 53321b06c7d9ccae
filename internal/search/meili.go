package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxPages = "leafwiki_pages"

// Meili implements Scorer and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the page index.
// An unreachable backend is tolerated: the health monitor reconfigures the
// index once it comes back.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxPages,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxPages, err)
	}
	searchable := []string{"title", "body"}
	if _, err := m.client.Index(idxPages).UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxPages, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Scores evaluates a search expression. Positive terms contribute the
// backend's ranking score per hit, negated terms subtract it; titles end up
// in the table in first-seen order, which downstream ranking relies on for
// tie-breaking.
func (m *Meili) Scores(expression string) (ScoreTable, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	expr := ParseExpression(expression)

	var order []string
	scores := map[string]float64{}
	add := func(title string, delta float64) {
		if _, seen := scores[title]; !seen {
			order = append(order, title)
		}
		scores[title] += delta
	}

	run := func(query string, sign float64) error {
		if query == "" {
			return nil
		}
		resp, err := m.client.Index(idxPages).Search(query, &meili.SearchRequest{
			Limit:            100,
			ShowRankingScore: true,
		})
		if err != nil {
			m.healthy.Store(false)
			return fmt.Errorf("meilisearch query %q: %w", query, err)
		}
		for _, hit := range resp.Hits {
			title := decodeString(hit, "title")
			if title == "" {
				continue
			}
			add(title, sign*decodeScore(hit))
		}
		return nil
	}

	if err := run(strings.Join(expr.Positives(), " "), 1); err != nil {
		return nil, err
	}
	for _, negative := range expr.Negatives() {
		if err := run(negative, -1); err != nil {
			return nil, err
		}
	}

	table := make(ScoreTable, 0, len(order))
	for _, title := range order {
		table = append(table, Entry{Title: title, Score: scores[title]})
	}
	return table, nil
}

// IndexPage adds or updates one page in the search index.
func (m *Meili) IndexPage(record PageRecord) error {
	_, err := m.client.Index(idxPages).AddDocuments([]PageRecord{record}, nil)
	return err
}

// IndexPages bulk-indexes pages.
func (m *Meili) IndexPages(records []PageRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPages).AddDocuments(records, nil)
	return err
}

// DeletePage removes a page from the search index.
func (m *Meili) DeletePage(title string) error {
	_, err := m.client.Index(idxPages).DeleteDocument(RecordID(title), nil)
	return err
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeScore(hit meili.Hit) float64 {
	raw, ok := hit["_rankingScore"]
	if !ok {
		return 0
	}
	var score float64
	if err := json.Unmarshal(raw, &score); err == nil {
		return score
	}
	return 0
}
