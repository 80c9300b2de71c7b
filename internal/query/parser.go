// Package query turns a raw research query into the forms the strategies
// consume: normalised index terms, raw keywords and an optional regex.
package query

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
)

const minWordLength = 3

type Query struct {
	Raw string
	// Terms are tokenizer-normalised, duplicates kept in query order.
	Terms []string
	// Words are distinct lower-cased keywords with stop-words removed.
	Words []string
	// Pattern is set when the query contains a /regex/ token.
	Pattern *regexp.Regexp
}

// HasPattern reports whether a regex token was given.
func (q Query) HasPattern() bool {
	return q.Pattern != nil
}

// Parse splits raw into its parts. A token of the form /expr/ is compiled as
// a case-insensitive regular expression; a malformed expression is an
// InvalidConfig error.
func Parse(raw string, tok *tokenizer.Tokenizer) (Query, error) {
	q := Query{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return q, nil
	}

	var text []string
	for _, field := range strings.Fields(raw) {
		if len(field) > 2 && strings.HasPrefix(field, "/") && strings.HasSuffix(field, "/") {
			if q.Pattern != nil {
				return Query{}, apperrors.InvalidConfig("only one regex pattern is allowed per query")
			}
			re, err := regexp.Compile("(?i)" + field[1:len(field)-1])
			if err != nil {
				return Query{}, apperrors.InvalidConfig("malformed regex %s: %v", field, err)
			}
			q.Pattern = re
			continue
		}
		text = append(text, field)
	}

	joined := strings.Join(text, " ")
	q.Terms = tok.Terms(joined)
	q.Words = Keywords(joined)
	return q, nil
}

// FromTerms builds a follow-up query from already chosen keywords.
func FromTerms(words []string, tok *tokenizer.Tokenizer) Query {
	raw := strings.Join(words, " ")
	return Query{
		Raw:   raw,
		Terms: tok.Terms(raw),
		Words: Keywords(raw),
	}
}

// Keywords returns the distinct lower-cased words of text that are at least
// three characters long and not stop-words.
func Keywords(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range tokenizer.Words(text) {
		if utf8.RuneCountInString(w) < minWordLength || tokenizer.IsStopWord(w) {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
