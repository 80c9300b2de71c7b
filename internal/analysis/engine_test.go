package analysis

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type docMap map[string]index.Document

func (m docMap) Document(id string) (index.Document, bool) {
	d, ok := m[id]
	return d, ok
}

func result(path string, line int, score float64, snippet string) retrieval.SearchResult {
	return retrieval.SearchResult{
		DocID:   path,
		Path:    path,
		Span:    index.Span{StartLine: line, EndLine: line},
		Score:   score,
		Snippet: snippet,
	}
}

func kinds(insights []Insight) map[string][]Insight {
	out := make(map[string][]Insight)
	for _, in := range insights {
		out[in.Kind] = append(out[in.Kind], in)
	}
	return out
}

func TestAnalyzeZeroOrOneResult(t *testing.T) {
	e := New(DefaultOptions())
	assert.Empty(t, e.Analyze(nil, nil))
	assert.Empty(t, e.Analyze([]retrieval.SearchResult{result("a.py", 1, 0.9, "jwt token")}, nil))
}

func TestAnalyzeFrequencyAndConcentration(t *testing.T) {
	results := []retrieval.SearchResult{
		result("auth.py", 3, 0.9, "def authenticate_user(name, password):"),
		result("auth.py", 4, 0.8, "token = jwt.encode(name)"),
		result("views.py", 10, 0.7, "user = authenticate_user(name, password)"),
		result("noise.py", 1, 0.1, "unrelated"),
	}
	insights := New(DefaultOptions()).Analyze(results, nil)
	byKind := kinds(insights)

	freq := byKind[KindFrequency]
	require.Len(t, freq, 4)
	assert.Equal(t, "term:name", freq[0].Key)
	assert.Equal(t, "term:authenticate", freq[1].Key)
	assert.Equal(t, []string{"auth.py@3-3", "views.py@10-10"}, freq[1].SupportingResultIDs)
	for _, in := range freq {
		assert.NotEqual(t, "term:unrelated", in.Key)
	}

	conc := byKind[KindConcentration]
	require.Len(t, conc, 1)
	assert.Equal(t, "file:auth.py", conc[0].Key)
	assert.InDelta(t, 2.0/3.0, conc[0].ConfidenceContribution, 1e-9)
}

func TestAnalyzeFallsBackToBestResults(t *testing.T) {
	opts := DefaultOptions()
	opts.SimilarityThreshold = 0.95
	results := []retrieval.SearchResult{
		result("a.go", 1, 0.2, "cache redis client"),
		result("b.go", 1, 0.1, "cache redis pool"),
	}
	insights := New(opts).Analyze(results, nil)
	assert.NotEmpty(t, insights)
}

func TestAnalyzeThemes(t *testing.T) {
	results := []retrieval.SearchResult{
		result("a.go", 1, 0.9, "redis cache client connect"),
		result("b.go", 1, 0.8, "redis cache client pool"),
		result("c.go", 1, 0.7, "postgres migration schema table"),
	}
	themes := kinds(New(DefaultOptions()).Analyze(results, nil))[KindTheme]
	require.Len(t, themes, 1)
	assert.Equal(t, []string{"cache", "client", "redis"}, themes[0].Terms)
	assert.Equal(t, "theme:cache,client,redis", themes[0].Key)
	assert.Equal(t, []string{"a.go", "b.go"}, themes[0].Files)
}

func TestAnalyzeRelationships(t *testing.T) {
	docs := docMap{
		"auth.py":  {ID: "auth.py", Path: "auth.py", Content: "from utils import hash_password\n"},
		"utils.py": {ID: "utils.py", Path: "utils.py", Content: "def hash_password(p):\n    return p"},
	}
	results := []retrieval.SearchResult{
		result("auth.py", 1, 0.9, "from utils import hash_password"),
		result("utils.py", 1, 0.8, "def hash_password(p):"),
	}
	rels := kinds(New(DefaultOptions()).Analyze(results, docs))[KindRelationship]
	require.Len(t, rels, 1)
	assert.Equal(t, "rel:auth.py->utils.py", rels[0].Key)
	assert.Equal(t, []string{"auth.py", "utils.py"}, rels[0].Files)
	assert.Equal(t, []string{"utils"}, rels[0].Terms)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	results := []retrieval.SearchResult{
		result("a.go", 1, 0.5, "alpha beta gamma"),
		result("b.go", 2, 0.5, "alpha beta delta"),
		result("c.go", 3, 0.5, "alpha gamma delta"),
	}
	e := New(DefaultOptions())
	first := e.Analyze(results, nil)
	reversed := []retrieval.SearchResult{results[2], results[1], results[0]}
	assert.Equal(t, first, e.Analyze(reversed, nil))
}
