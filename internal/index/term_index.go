// Package index builds the per-workspace term statistics shared by every
// retrieval scorer: posting lists, document lengths, the average length and
// the dense vector norm of each document.
package index

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/tokenizer"
)

// TermIndex is immutable after Build and safe for concurrent readers.
type TermIndex struct {
	tok      *tokenizer.Tokenizer
	postings map[string]PostingList
	docs     []Document
	byID     map[string]int
	norms    map[string]float64
	totalLen int
	avgLen   float64
	files    int
}

// Build indexes docs. The result depends only on the document set, not on
// the order docs are passed in.
func Build(docs []Document, tok *tokenizer.Tokenizer) *TermIndex {
	ix := &TermIndex{
		tok:      tok,
		postings: make(map[string]PostingList),
		docs:     make([]Document, len(docs)),
		byID:     make(map[string]int, len(docs)),
		norms:    make(map[string]float64, len(docs)),
	}
	copy(ix.docs, docs)
	sort.Slice(ix.docs, func(i, j int) bool {
		return ix.docs[i].ID < ix.docs[j].ID
	})

	termFreqs := make([]map[string]int, len(ix.docs))
	paths := make(map[string]struct{})
	for i := range ix.docs {
		doc := &ix.docs[i]
		ix.byID[doc.ID] = i
		paths[doc.Path] = struct{}{}

		tokens := tok.Tokenize(doc.Content)
		doc.Length = len(tokens)
		ix.totalLen += doc.Length

		termData := make(map[string]*Posting)
		freqs := make(map[string]int)
		for _, token := range tokens {
			p, exists := termData[token.Term]
			if !exists {
				p = &Posting{
					DocID:     doc.ID,
					Positions: make([]int, 0, 4),
				}
				termData[token.Term] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, token.Position)
			freqs[token.Term]++
		}
		// docs are visited in ID order so every posting list stays sorted
		for term, posting := range termData {
			ix.postings[term] = append(ix.postings[term], *posting)
		}
		termFreqs[i] = freqs
	}
	ix.files = len(paths)
	if len(ix.docs) > 0 {
		ix.avgLen = float64(ix.totalLen) / float64(len(ix.docs))
	}

	for i, doc := range ix.docs {
		ix.norms[doc.ID] = ix.vectorNorm(termFreqs[i], doc.Length)
	}
	return ix
}

func (ix *TermIndex) vectorNorm(freqs map[string]int, length int) float64 {
	if length == 0 {
		return 0
	}
	terms := make([]string, 0, len(freqs))
	for term := range freqs {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	var sum float64
	for _, term := range terms {
		w := float64(freqs[term]) / float64(length) * ix.DenseIDF(term)
		sum += w * w
	}
	return math.Sqrt(sum)
}

// DenseIDF is ln((N+1)/(df+1)) + 1, which stays positive even for terms that
// occur in every document.
func (ix *TermIndex) DenseIDF(term string) float64 {
	n := float64(len(ix.docs))
	df := float64(len(ix.postings[term]))
	return math.Log((n+1)/(df+1)) + 1
}

// Postings returns the posting list for an already-normalised term.
func (ix *TermIndex) Postings(term string) PostingList {
	return ix.postings[term]
}

func (ix *TermIndex) DocFreq(term string) int {
	return len(ix.postings[term])
}

func (ix *TermIndex) DocCount() int {
	return len(ix.docs)
}

func (ix *TermIndex) AvgDocLength() float64 {
	return ix.avgLen
}

func (ix *TermIndex) DocLength(id string) int {
	if i, ok := ix.byID[id]; ok {
		return ix.docs[i].Length
	}
	return 0
}

// DocNorm is the Euclidean norm of the document's TF-IDF vector.
func (ix *TermIndex) DocNorm(id string) float64 {
	return ix.norms[id]
}

func (ix *TermIndex) Document(id string) (Document, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return Document{}, false
	}
	return ix.docs[i], true
}

// Documents returns all documents sorted by ID. Callers must not modify the
// returned slice.
func (ix *TermIndex) Documents() []Document {
	return ix.docs
}

func (ix *TermIndex) Tokenizer() *tokenizer.Tokenizer {
	return ix.tok
}

// Snapshot lists every term with its postings, sorted by term.
func (ix *TermIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(ix.postings))
	for term, postings := range ix.postings {
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

func (ix *TermIndex) Stats() Stats {
	return Stats{
		Documents:   len(ix.docs),
		Files:       ix.files,
		Terms:       len(ix.postings),
		TotalTokens: ix.totalLen,
		AvgLength:   ix.avgLen,
	}
}
