package retrieval

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
)

// Scoring modes, also used as strategy identifiers on the results they emit.
const (
	ModeDense  = "dense"
	ModeSparse = "sparse"
	ModeHybrid = "hybrid"
)

// Params are the tunable scoring parameters.
type Params struct {
	K1           float64
	B            float64
	DenseWeight  float64
	SparseWeight float64
	Limit        int
}

func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75, DenseWeight: 0.5, SparseWeight: 0.5, Limit: 50}
}

// Request is a scoring request. Terms must already be normalised by the
// index tokenizer; Query is only carried onto the results.
type Request struct {
	Query  string
	Terms  []string
	Params Params
}

// Dense ranks documents by cosine similarity of TF-IDF vectors.
func Dense(ix *index.TermIndex, req Request) []SearchResult {
	scores := DenseScores(ix, req.Terms)
	results := make([]SearchResult, 0, len(scores))
	for docID, raw := range scores {
		results = append(results, newResult(ix, docID, raw, Clamp(raw), ModeDense, req))
	}
	return Truncate(results, req.Params.Limit)
}

// Sparse ranks documents with BM25 and normalises by the best raw score.
func Sparse(ix *index.TermIndex, req Request) []SearchResult {
	scores := SparseScores(ix, req.Terms, req.Params.K1, req.Params.B)
	var maxScore float64
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}
	results := make([]SearchResult, 0, len(scores))
	for docID, raw := range scores {
		norm := 1.0
		if maxScore > 0 {
			norm = raw / maxScore
		}
		results = append(results, newResult(ix, docID, raw, Clamp(norm), ModeSparse, req))
	}
	return Truncate(results, req.Params.Limit)
}

// Hybrid min-max normalises the dense and sparse scores over the union of
// matched documents and combines them with the configured weights.
func Hybrid(ix *index.TermIndex, req Request) []SearchResult {
	dense := DenseScores(ix, req.Terms)
	sparse := SparseScores(ix, req.Terms, req.Params.K1, req.Params.B)

	union := make(map[string]struct{}, len(dense))
	for id := range dense {
		union[id] = struct{}{}
	}
	for id := range sparse {
		union[id] = struct{}{}
	}
	normDense := MinMax(dense, union)
	normSparse := MinMax(sparse, union)

	results := make([]SearchResult, 0, len(union))
	for docID := range union {
		score := Combine(normDense[docID], normSparse[docID], req.Params.DenseWeight, req.Params.SparseWeight)
		raw := req.Params.DenseWeight*dense[docID] + req.Params.SparseWeight*sparse[docID]
		results = append(results, newResult(ix, docID, raw, score, ModeHybrid, req))
	}
	return Truncate(results, req.Params.Limit)
}

// DenseScores returns the raw cosine score of every document sharing at
// least one term with the query.
func DenseScores(ix *index.TermIndex, terms []string) map[string]float64 {
	scores := make(map[string]float64)
	if len(terms) == 0 || ix.DocCount() == 0 {
		return scores
	}
	unique, counts := countTerms(terms)

	var queryNorm float64
	for _, term := range unique {
		if ix.DocFreq(term) == 0 {
			continue
		}
		idf := ix.DenseIDF(term)
		qw := float64(counts[term]) / float64(len(terms)) * idf
		queryNorm += qw * qw
		for _, p := range ix.Postings(term) {
			length := ix.DocLength(p.DocID)
			if length == 0 {
				continue
			}
			dw := float64(p.Frequency) / float64(length) * idf
			scores[p.DocID] += qw * dw
		}
	}
	queryNorm = math.Sqrt(queryNorm)
	for docID, dot := range scores {
		denom := queryNorm * ix.DocNorm(docID)
		if denom == 0 {
			delete(scores, docID)
			continue
		}
		scores[docID] = dot / denom
	}
	return scores
}

// SparseScores returns the raw BM25 score of every matching document. Each
// distinct query term contributes once.
func SparseScores(ix *index.TermIndex, terms []string, k1, b float64) map[string]float64 {
	scores := make(map[string]float64)
	if len(terms) == 0 || ix.DocCount() == 0 {
		return scores
	}
	unique, _ := countTerms(terms)
	totalDocs := int64(ix.DocCount())
	for _, term := range unique {
		postings := ix.Postings(term)
		if len(postings) == 0 {
			continue
		}
		idf := computeIDF(totalDocs, int64(len(postings)))
		for _, p := range postings {
			tfNorm := computeTFNorm(
				float64(p.Frequency),
				float64(ix.DocLength(p.DocID)),
				ix.AvgDocLength(),
				k1, b,
			)
			scores[p.DocID] += idf * tfNorm
		}
	}
	return scores
}

// MinMax rescales scores over ids to [0,1]. A single id or a zero range maps
// every id to 1.
func MinMax(scores map[string]float64, ids map[string]struct{}) map[string]float64 {
	out := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return out
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for id := range ids {
		s := scores[id]
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	for id := range ids {
		if len(ids) == 1 || hi-lo == 0 {
			out[id] = 1
			continue
		}
		out[id] = (scores[id] - lo) / (hi - lo)
	}
	return out
}

// Combine is the hybrid formula: denseWeight*dense + sparseWeight*sparse,
// clamped to [0,1].
func Combine(dense, sparse, denseWeight, sparseWeight float64) float64 {
	return Clamp(denseWeight*dense + sparseWeight*sparse)
}

// computeIDF is the non-negative BM25 IDF ln(1 + (N-df+0.5)/(df+0.5)).
func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

func computeTFNorm(termFreq, docLength, avgDocLength, k1, b float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

func countTerms(terms []string) ([]string, map[string]int) {
	counts := make(map[string]int, len(terms))
	unique := make([]string, 0, len(terms))
	for _, t := range terms {
		if counts[t] == 0 {
			unique = append(unique, t)
		}
		counts[t]++
	}
	return unique, counts
}

func newResult(ix *index.TermIndex, docID string, raw, score float64, mode string, req Request) SearchResult {
	doc, _ := ix.Document(docID)
	return SearchResult{
		DocID:    docID,
		Path:     doc.Path,
		Span:     doc.Span,
		Score:    score,
		RawScore: raw,
		Snippet:  Snippet(doc, ix.Tokenizer(), req.Terms),
		Strategy: mode,
		Query:    req.Query,
	}
}
