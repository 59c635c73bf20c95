package search

import (
	"sort"

	"github.com/efebarandurmaz/tome/internal/vector"
)

// Dedupe collapses results to one per distinct document, keeping the highest
// scoring chunk, and returns them sorted by score descending. A single source
// document commonly yields several matching chunks; surfacing all of them
// wastes the caller's attention budget and biases citation counts toward
// documents with many indexed chunks.
func Dedupe(results []vector.SearchResult) []vector.SearchResult {
	best := make(map[string]int, len(results)) // doc_id -> index into out
	var out []vector.SearchResult

	for _, r := range results {
		if i, seen := best[r.DocID]; seen {
			if r.Score > out[i].Score {
				out[i] = r
			}
			continue
		}
		best[r.DocID] = len(out)
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
