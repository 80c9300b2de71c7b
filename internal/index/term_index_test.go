package index

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainTokenizer() *tokenizer.Tokenizer {
	return tokenizer.New(tokenizer.Options{MinLength: 3})
}

func TestBuildPostingsAndLengths(t *testing.T) {
	docs := []Document{
		{ID: "b.go", Path: "b.go", Content: "cache cache redis"},
		{ID: "a.go", Path: "a.go", Content: "redis client"},
	}
	ix := Build(docs, plainTokenizer())

	assert.Equal(t, 2, ix.DocCount())
	assert.Equal(t, 3, ix.DocLength("b.go"))
	assert.Equal(t, 2, ix.DocLength("a.go"))
	assert.InDelta(t, 2.5, ix.AvgDocLength(), 1e-9)

	redis := ix.Postings("redis")
	require.Len(t, redis, 2)
	assert.Equal(t, "a.go", redis[0].DocID)
	assert.Equal(t, "b.go", redis[1].DocID)

	cache := ix.Postings("cache")
	require.Len(t, cache, 1)
	assert.Equal(t, 2, cache[0].Frequency)
	assert.Equal(t, []int{0, 1}, cache[0].Positions)

	assert.Nil(t, ix.Postings("missing"))
	assert.Equal(t, 0, ix.DocLength("missing"))
}

func TestBuildIsOrderIndependent(t *testing.T) {
	docs := []Document{
		{ID: "x", Path: "x", Content: "alpha beta gamma"},
		{ID: "y", Path: "y", Content: "beta delta"},
		{ID: "z", Path: "z", Content: "gamma gamma alpha"},
	}
	reversed := []Document{docs[2], docs[1], docs[0]}

	a := Build(docs, plainTokenizer())
	b := Build(reversed, plainTokenizer())
	assert.Equal(t, a.Snapshot(), b.Snapshot())
	for _, d := range docs {
		assert.Equal(t, a.DocNorm(d.ID), b.DocNorm(d.ID))
	}
}

func TestDenseIDFPositiveForUbiquitousTerm(t *testing.T) {
	docs := []Document{
		{ID: "1", Content: "shared one"},
		{ID: "2", Content: "shared two"},
	}
	ix := Build(docs, plainTokenizer())
	assert.Greater(t, ix.DenseIDF("shared"), 0.0)
	assert.Greater(t, ix.DenseIDF("one"), ix.DenseIDF("shared"))
}

func TestEmptyIndex(t *testing.T) {
	ix := Build(nil, plainTokenizer())
	assert.Equal(t, 0, ix.DocCount())
	assert.Equal(t, 0.0, ix.AvgDocLength())
	assert.Equal(t, Stats{}, ix.Stats())
}

func TestSectionsSplitsLongFiles(t *testing.T) {
	lines := make([]string, 5)
	for i := range lines {
		lines[i] = "line"
	}
	content := strings.Join(lines, "\n") + "\n"

	single := Sections("a.txt", content, 10)
	require.Len(t, single, 1)
	assert.Equal(t, "a.txt", single[0].ID)
	assert.Equal(t, Span{StartLine: 1, EndLine: 5}, single[0].Span)

	split := Sections("a.txt", content, 2)
	require.Len(t, split, 3)
	assert.Equal(t, "a.txt#1", split[0].ID)
	assert.Equal(t, Span{StartLine: 3, EndLine: 4}, split[1].Span)
	assert.Equal(t, Span{StartLine: 5, EndLine: 5}, split[2].Span)
	assert.Equal(t, 5, split[2].LineNumber(0))
}

func TestStats(t *testing.T) {
	docs := Sections("long.txt", "alpha\nbeta\ngamma", 1)
	docs = append(docs, Document{ID: "b", Path: "b", Content: "alpha"})
	st := Build(docs, plainTokenizer()).Stats()
	assert.Equal(t, 4, st.Documents)
	assert.Equal(t, 2, st.Files)
	assert.Equal(t, 3, st.Terms)
	assert.Equal(t, 4, st.TotalTokens)
}
