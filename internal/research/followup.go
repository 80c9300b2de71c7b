package research

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/query"
)

// followups derives the next iteration's queries from terms of new insights
// that no query has used yet. Candidates rank by the number of results
// supporting them, then alphabetically; they are packed into at most
// maxQueries queries of termsPerQuery terms.
func followups(insights []analysis.Insight, asked map[string]struct{}, tok *tokenizer.Tokenizer, maxQueries, termsPerQuery int) []query.Query {
	support := make(map[string]int)
	for _, in := range insights {
		for _, term := range in.Terms {
			term = strings.ToLower(term)
			if len(term) < 3 || explored(term, asked, tok) {
				continue
			}
			if n := len(in.SupportingResultIDs); n > support[term] {
				support[term] = n
			}
		}
	}
	terms := make([]string, 0, len(support))
	for t := range support {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if support[terms[i]] != support[terms[j]] {
			return support[terms[i]] > support[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if limit := maxQueries * termsPerQuery; len(terms) > limit {
		terms = terms[:limit]
	}

	var out []query.Query
	for start := 0; start < len(terms); start += termsPerQuery {
		end := start + termsPerQuery
		if end > len(terms) {
			end = len(terms)
		}
		out = append(out, query.FromTerms(terms[start:end], tok))
	}
	return out
}

// askedTerms is every raw word and normalised term of q, the vocabulary a
// follow-up must avoid repeating.
func askedTerms(q query.Query) []string {
	out := append([]string(nil), q.Words...)
	return append(out, q.Terms...)
}

func explored(term string, asked map[string]struct{}, tok *tokenizer.Tokenizer) bool {
	if _, ok := asked[term]; ok {
		return true
	}
	if norm, ok := tok.Normalize(term); ok {
		if _, seen := asked[norm]; seen {
			return true
		}
	} else {
		return true
	}
	return false
}
