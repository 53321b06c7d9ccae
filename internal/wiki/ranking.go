package wiki

import (
	"math"
	"sort"

	"leafwiki/api/internal/search"
)

// maxSearchResults bounds each partition of a ranked search result.
const maxSearchResults = 20

// RankSearch partitions a score table into matches (score >= 0) and
// exclusions (score < 0, stored by absolute value). Both partitions are
// sorted by score descending; ties keep the table's enumeration order, and
// truncation to the top entries happens after sorting.
func RankSearch(table search.ScoreTable) (matches, exclusions search.ScoreTable) {
	for _, entry := range table {
		if entry.Score >= 0 {
			matches = append(matches, entry)
		} else {
			exclusions = append(exclusions, search.Entry{Title: entry.Title, Score: math.Abs(entry.Score)})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	sort.SliceStable(exclusions, func(i, j int) bool { return exclusions[i].Score > exclusions[j].Score })

	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
	}
	if len(exclusions) > maxSearchResults {
		exclusions = exclusions[:maxSearchResults]
	}
	return matches, exclusions
}
