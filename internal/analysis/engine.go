// Package analysis turns a set of search results into insights: recurring
// terms, files that concentrate results, thematic clusters and cross-file
// references. Every insight carries the IDs of the results supporting it.
package analysis

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/retrieval"
)

// Insight kinds, in output order.
const (
	KindFrequency     = "frequency"
	KindConcentration = "concentration"
	KindTheme         = "theme"
	KindRelationship  = "relationship"
)

type Insight struct {
	Kind string `json:"kind"`
	// Key identifies an insight across iterations; two insights with the
	// same key say the same thing.
	Key                    string   `json:"key"`
	Text                   string   `json:"text"`
	Terms                  []string `json:"terms,omitempty"`
	Files                  []string `json:"files,omitempty"`
	SupportingResultIDs    []string `json:"supporting_result_ids"`
	ConfidenceContribution float64  `json:"confidence_contribution"`
}

// DocumentSource resolves result document IDs to their content.
type DocumentSource interface {
	Document(id string) (index.Document, bool)
}

type Options struct {
	// SimilarityThreshold filters the input; when nothing passes, the
	// FallbackResults best results are analysed instead.
	SimilarityThreshold float64
	FallbackResults     int
	MinSupport          int
	MaxTerms            int
	MaxFiles            int
	ClusterOverlap      float64
	MaxRelationships    int
}

func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.3,
		FallbackResults:     10,
		MinSupport:          2,
		MaxTerms:            5,
		MaxFiles:            3,
		ClusterOverlap:      0.3,
		MaxRelationships:    10,
	}
}

// Engine is stateless apart from its options and safe for concurrent use.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Engine {
	return &Engine{
		opts:   opts,
		logger: slog.Default().With("component", "analysis"),
	}
}

// Analyze returns insights ordered by kind, then deterministically within
// each kind. Zero or one usable result yields no insights.
func (e *Engine) Analyze(results []retrieval.SearchResult, docs DocumentSource) []Insight {
	selected := e.selectInput(results)
	if len(selected) <= 1 {
		return nil
	}
	vocab := make([]map[string]struct{}, len(selected))
	for i, r := range selected {
		vocab[i] = vocabulary(r.Snippet)
	}

	var insights []Insight
	insights = append(insights, e.frequency(selected, vocab)...)
	insights = append(insights, e.concentration(selected)...)
	insights = append(insights, e.themes(selected, vocab)...)
	if docs != nil {
		insights = append(insights, e.relationships(selected, docs)...)
	}
	e.logger.Debug("analysis complete", "results", len(selected), "insights", len(insights))
	return insights
}

func (e *Engine) selectInput(results []retrieval.SearchResult) []retrieval.SearchResult {
	sorted := append([]retrieval.SearchResult(nil), results...)
	retrieval.Sort(sorted)
	var kept []retrieval.SearchResult
	for _, r := range sorted {
		if r.Score >= e.opts.SimilarityThreshold {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		n := e.opts.FallbackResults
		if n <= 0 || n > len(sorted) {
			n = len(sorted)
		}
		kept = sorted[:n]
	}
	return kept
}

func (e *Engine) frequency(results []retrieval.SearchResult, vocab []map[string]struct{}) []Insight {
	support := make(map[string][]int)
	for i, v := range vocab {
		for term := range v {
			support[term] = append(support[term], i)
		}
	}
	terms := make([]string, 0, len(support))
	for term, idx := range support {
		if len(idx) >= e.opts.MinSupport {
			terms = append(terms, term)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if len(support[terms[i]]) != len(support[terms[j]]) {
			return len(support[terms[i]]) > len(support[terms[j]])
		}
		return terms[i] < terms[j]
	})
	if len(terms) > e.opts.MaxTerms {
		terms = terms[:e.opts.MaxTerms]
	}

	insights := make([]Insight, 0, len(terms))
	for _, term := range terms {
		idx := support[term]
		insights = append(insights, Insight{
			Kind:                   KindFrequency,
			Key:                    "term:" + term,
			Text:                   fmt.Sprintf("Term %q recurs across %d of %d results", term, len(idx), len(results)),
			Terms:                  []string{term},
			Files:                  filesOf(results, idx),
			SupportingResultIDs:    idsOf(results, idx),
			ConfidenceContribution: float64(len(idx)) / float64(len(results)),
		})
	}
	return insights
}

func (e *Engine) concentration(results []retrieval.SearchResult) []Insight {
	byFile := make(map[string][]int)
	for i, r := range results {
		byFile[r.Path] = append(byFile[r.Path], i)
	}
	files := make([]string, 0, len(byFile))
	for f, idx := range byFile {
		if len(idx) >= 2 {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if len(byFile[files[i]]) != len(byFile[files[j]]) {
			return len(byFile[files[i]]) > len(byFile[files[j]])
		}
		return files[i] < files[j]
	})
	if len(files) > e.opts.MaxFiles {
		files = files[:e.opts.MaxFiles]
	}

	insights := make([]Insight, 0, len(files))
	for _, f := range files {
		idx := byFile[f]
		insights = append(insights, Insight{
			Kind:                   KindConcentration,
			Key:                    "file:" + f,
			Text:                   fmt.Sprintf("%s holds %d of %d results", f, len(idx), len(results)),
			Files:                  []string{f},
			SupportingResultIDs:    idsOf(results, idx),
			ConfidenceContribution: float64(len(idx)) / float64(len(results)),
		})
	}
	return insights
}

type cluster struct {
	seed    map[string]struct{}
	members []int
}

// themes clusters results greedily in rank order; a result joins the first
// cluster whose seed vocabulary overlaps its own by at least ClusterOverlap.
func (e *Engine) themes(results []retrieval.SearchResult, vocab []map[string]struct{}) []Insight {
	var clusters []*cluster
	for i, v := range vocab {
		if len(v) == 0 {
			continue
		}
		joined := false
		for _, c := range clusters {
			if jaccard(c.seed, v) >= e.opts.ClusterOverlap {
				c.members = append(c.members, i)
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, &cluster{seed: v, members: []int{i}})
		}
	}

	seen := make(map[string]struct{})
	var insights []Insight
	for _, c := range clusters {
		if len(c.members) < 2 {
			continue
		}
		shared := sharedTerms(vocab, c.members, 3)
		if len(shared) == 0 {
			continue
		}
		key := "theme:" + strings.Join(sortedCopy(shared), ",")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		files := filesOf(results, c.members)
		insights = append(insights, Insight{
			Kind:                   KindTheme,
			Key:                    key,
			Text:                   fmt.Sprintf("Theme around %s spans %d results in %d files", strings.Join(shared, ", "), len(c.members), len(files)),
			Terms:                  shared,
			Files:                  files,
			SupportingResultIDs:    idsOf(results, c.members),
			ConfidenceContribution: float64(len(c.members)) / float64(len(results)),
		})
	}
	return insights
}

// relationships links result files whose content names another result file
// by base name or relative path.
func (e *Engine) relationships(results []retrieval.SearchResult, docs DocumentSource) []Insight {
	byFile := make(map[string][]int)
	contents := make(map[string][]string)
	seenDoc := make(map[string]struct{})
	for i, r := range results {
		byFile[r.Path] = append(byFile[r.Path], i)
		if _, ok := seenDoc[r.DocID]; ok {
			continue
		}
		seenDoc[r.DocID] = struct{}{}
		if d, ok := docs.Document(r.DocID); ok {
			contents[r.Path] = append(contents[r.Path], d.Content)
		}
	}
	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	words := make(map[string]map[string]struct{}, len(files))
	for _, f := range files {
		set := make(map[string]struct{})
		for _, c := range contents[f] {
			for _, w := range tokenizer.Words(c) {
				set[w] = struct{}{}
			}
		}
		words[f] = set
	}

	var insights []Insight
	for _, from := range files {
		for _, to := range files {
			if from == to {
				continue
			}
			name := baseName(to)
			_, byName := words[from][name]
			byName = byName && len(name) >= 3
			byPath := false
			for _, c := range contents[from] {
				if strings.Contains(c, to) {
					byPath = true
					break
				}
			}
			if !byName && !byPath {
				continue
			}
			idx := append(append([]int(nil), byFile[from]...), byFile[to]...)
			insights = append(insights, Insight{
				Kind:                   KindRelationship,
				Key:                    "rel:" + from + "->" + to,
				Text:                   fmt.Sprintf("%s references %s", from, to),
				Terms:                  []string{name},
				Files:                  []string{from, to},
				SupportingResultIDs:    idsOf(results, idx),
				ConfidenceContribution: float64(len(idx)) / float64(len(results)),
			})
			if len(insights) >= e.opts.MaxRelationships {
				return insights
			}
		}
	}
	return insights
}

// vocabulary is the set of alphabetic, non-stop-word words of at least three
// letters in text.
func vocabulary(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range tokenizer.Words(text) {
		if utf8.RuneCountInString(w) < 3 || tokenizer.IsStopWord(w) || !alphabetic(w) {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

func alphabetic(w string) bool {
	for _, r := range w {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// sharedTerms returns up to limit terms present in at least two members,
// most widely shared first.
func sharedTerms(vocab []map[string]struct{}, members []int, limit int) []string {
	counts := make(map[string]int)
	for _, m := range members {
		for w := range vocab[m] {
			counts[w]++
		}
	}
	var terms []string
	for w, n := range counts {
		if n >= 2 {
			terms = append(terms, w)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}

func idsOf(results []retrieval.SearchResult, idx []int) []string {
	set := make(map[string]struct{}, len(idx))
	for _, i := range idx {
		set[results[i].ID()] = struct{}{}
	}
	return sortedKeys(set)
}

func filesOf(results []retrieval.SearchResult, idx []int) []string {
	set := make(map[string]struct{}, len(idx))
	for _, i := range idx {
		set[results[i].Path] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func baseName(p string) string {
	b := path.Base(p)
	return strings.ToLower(strings.TrimSuffix(b, path.Ext(b)))
}
