// Package tokenizer provides text tokenisation for the term index.
// It lower-cases input, splits on non-alphanumeric boundaries, drops short
// tokens and stop-words, and optionally applies the Porter2 stemmer.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/surgebase/porter2"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {}, "how": {},
	"does": {}, "did": {}, "all": {}, "any": {}, "you": {}, "your": {},
	"our": {}, "there": {}, "then": {}, "than": {}, "into": {}, "about": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Options controls tokenisation.
type Options struct {
	MinLength int
	Stemming  bool
	StopWords bool
}

// DefaultOptions are the index defaults: minimum length 3, stemming and
// stop-word removal on.
func DefaultOptions() Options {
	return Options{MinLength: 3, Stemming: true, StopWords: true}
}

// Tokenizer is safe for concurrent use; it holds no mutable state.
type Tokenizer struct {
	opts Options
}

func New(opts Options) *Tokenizer {
	if opts.MinLength < 1 {
		opts.MinLength = 1
	}
	return &Tokenizer{opts: opts}
}

func (t *Tokenizer) Options() Options {
	return t.opts
}

// Tokenize breaks text into normalised Tokens. Positions count kept tokens.
func (t *Tokenizer) Tokenize(text string) []Token {
	words := Words(text)
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		term, ok := t.Normalize(word)
		if !ok {
			continue
		}
		tokens = append(tokens, Token{
			Term:     term,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms returns the normalised terms of text in order, duplicates included.
func (t *Tokenizer) Terms(text string) []string {
	tokens := t.Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// UniqueTerms returns the distinct normalised terms of text in first-seen
// order.
func (t *Tokenizer) UniqueTerms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range t.Tokenize(text) {
		if _, ok := seen[tok.Term]; ok {
			continue
		}
		seen[tok.Term] = struct{}{}
		out = append(out, tok.Term)
	}
	return out
}

// Normalize applies the length, stop-word and stemming rules to a single
// lower-cased word. ok is false when the word is discarded.
func (t *Tokenizer) Normalize(word string) (string, bool) {
	if utf8.RuneCountInString(word) < t.opts.MinLength {
		return "", false
	}
	if t.opts.StopWords {
		if _, isStop := stopWords[word]; isStop {
			return "", false
		}
	}
	if t.opts.Stemming {
		stemmed := porter2.Stem(word)
		if stemmed != "" {
			word = stemmed
		}
	}
	return word, true
}

// Words lower-cases text and splits it on non-alphanumeric boundaries
// without any filtering.
func Words(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// IsStopWord reports whether the lower-cased word is on the stop list.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}
