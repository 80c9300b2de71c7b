// Package retrieval scores documents of a term index against a query. It
// provides dense (TF-IDF cosine), sparse (BM25) and hybrid scorers plus the
// deterministic ordering and merging rules every strategy's output follows.
package retrieval

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
)

// SearchResult is one hit produced by exactly one strategy. Score is always
// normalised to [0,1]; RawScore keeps the scorer's own scale.
type SearchResult struct {
	DocID    string     `json:"doc_id"`
	Path     string     `json:"path"`
	Span     index.Span `json:"span"`
	Score    float64    `json:"score"`
	RawScore float64    `json:"raw_score"`
	Snippet  string     `json:"snippet"`
	Strategy string     `json:"strategy"`
	Query    string     `json:"query"`
}

// Key identifies a result for de-duplication.
type Key struct {
	DocID string
	Span  index.Span
}

func (r SearchResult) Key() Key {
	return Key{DocID: r.DocID, Span: r.Span}
}

// ID is the stable textual identity used by insights, e.g. "auth.py@1-40".
func (r SearchResult) ID() string {
	return fmt.Sprintf("%s@%s", r.DocID, r.Span)
}

// Less orders by score descending, then path, span start, strategy, query
// and document ID, giving a total order over distinct results.
func Less(a, b SearchResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	if a.Span.StartLine != b.Span.StartLine {
		return a.Span.StartLine < b.Span.StartLine
	}
	if a.Span.EndLine != b.Span.EndLine {
		return a.Span.EndLine < b.Span.EndLine
	}
	if a.Strategy != b.Strategy {
		return a.Strategy < b.Strategy
	}
	if a.Query != b.Query {
		return a.Query < b.Query
	}
	return a.DocID < b.DocID
}

func Sort(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return Less(results[i], results[j])
	})
}

// Merge combines result lists into one sorted list with a single entry per
// (DocID, Span), keeping the entry that sorts first. The output does not
// depend on the order of the input lists.
func Merge(lists ...[]SearchResult) []SearchResult {
	best := make(map[Key]SearchResult)
	for _, list := range lists {
		for _, r := range list {
			if cur, ok := best[r.Key()]; !ok || Less(r, cur) {
				best[r.Key()] = r
			}
		}
	}
	out := make([]SearchResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	Sort(out)
	return out
}

// Truncate sorts results and keeps at most limit of them. limit <= 0 keeps
// everything.
func Truncate(results []SearchResult, limit int) []SearchResult {
	Sort(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Clamp bounds a score to [0,1].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
