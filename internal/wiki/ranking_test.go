package wiki

import (
	"fmt"
	"testing"

	"leafwiki/api/internal/search"
)

func TestRankSearchPartitionsAndSorts(t *testing.T) {
	table := search.ScoreTable{
		{Title: "A", Score: 5},
		{Title: "B", Score: 5},
		{Title: "C", Score: -2},
		{Title: "D", Score: -8},
	}
	matches, exclusions := RankSearch(table)

	if len(matches) != 2 || matches[0].Title != "A" || matches[1].Title != "B" {
		t.Fatalf("tied matches must keep table order, got %v", matches)
	}
	if len(exclusions) != 2 || exclusions[0].Title != "D" || exclusions[1].Title != "C" {
		t.Fatalf("exclusions must sort by magnitude descending, got %v", exclusions)
	}
	if exclusions[0].Score != 8 || exclusions[1].Score != 2 {
		t.Fatalf("exclusions must be stored by absolute value, got %v", exclusions)
	}
}

func TestRankSearchTruncatesAfterSorting(t *testing.T) {
	// 25 entries with ascending scores: a pre-sort truncation would keep the
	// lowest 20 and lose the best hits.
	var table search.ScoreTable
	for i := 0; i < 25; i++ {
		table = append(table, search.Entry{Title: fmt.Sprintf("P%02d", i), Score: float64(i)})
	}
	matches, _ := RankSearch(table)

	if len(matches) != maxSearchResults {
		t.Fatalf("expected %d matches, got %d", maxSearchResults, len(matches))
	}
	if matches[0].Title != "P24" || matches[0].Score != 24 {
		t.Fatalf("expected highest score first, got %v", matches[0])
	}
	if matches[len(matches)-1].Score != 5 {
		t.Fatalf("expected the 20 best scores kept, got tail %v", matches[len(matches)-1])
	}
}

func TestRankSearchZeroScoreIsMatch(t *testing.T) {
	matches, exclusions := RankSearch(search.ScoreTable{{Title: "Z", Score: 0}})
	if len(matches) != 1 || len(exclusions) != 0 {
		t.Fatalf("zero score must be a match, got %v / %v", matches, exclusions)
	}
}
