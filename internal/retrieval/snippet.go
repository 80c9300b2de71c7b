package retrieval

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/tokenizer"
)

const maxSnippetRunes = 200

// Snippet returns the first line of doc containing one of terms, or the
// first non-blank line when none does.
func Snippet(doc index.Document, tok *tokenizer.Tokenizer, terms []string) string {
	want := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		want[t] = struct{}{}
	}
	fallback := ""
	for _, line := range doc.Lines() {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if fallback == "" {
			fallback = trimmed
		}
		for _, word := range tokenizer.Words(trimmed) {
			if term, ok := tok.Normalize(word); ok {
				if _, hit := want[term]; hit {
					return TrimSnippet(trimmed)
				}
			}
		}
	}
	return TrimSnippet(fallback)
}

// TrimSnippet caps s at a fixed number of runes.
func TrimSnippet(s string) string {
	r := []rune(s)
	if len(r) <= maxSnippetRunes {
		return s
	}
	return string(r[:maxSnippetRunes]) + "..."
}
