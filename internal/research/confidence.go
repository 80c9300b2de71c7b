package research

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
)

const confidenceTopK = 10

// Confidence scores a result set as
//
//	wc*min(1, n/saturation) + wr*mean(top-k scores) + wd*distinctFiles/n
//
// with k = min(10, n), clamped to [0,1]. An empty set scores 0.
func Confidence(results []retrieval.SearchResult, w config.ConfidenceWeights, saturation int) float64 {
	n := len(results)
	if n == 0 {
		return 0
	}
	if saturation <= 0 {
		saturation = 20
	}
	count := float64(n) / float64(saturation)
	if count > 1 {
		count = 1
	}

	scores := make([]float64, n)
	files := make(map[string]struct{})
	for i, r := range results {
		scores[i] = r.Score
		files[r.Path] = struct{}{}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	k := confidenceTopK
	if n < k {
		k = n
	}
	var sum float64
	for _, s := range scores[:k] {
		sum += s
	}
	relevance := sum / float64(k)
	diversity := float64(len(files)) / float64(n)

	return retrieval.Clamp(w.Count*count + w.Relevance*relevance + w.Diversity*diversity)
}
