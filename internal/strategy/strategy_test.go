package strategy

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/workspace"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tok = tokenizer.New(tokenizer.DefaultOptions())

func parse(t *testing.T, raw string) query.Query {
	t.Helper()
	q, err := query.Parse(raw, tok)
	require.NoError(t, err)
	return q
}

func fixture() *index.TermIndex {
	var docs []index.Document
	files := map[string]string{
		"auth.py":         "import jwt\n\ndef authenticate_user(name, password):\n    token = jwt.encode(name)\n    return token",
		"utils.py":        "def hash_password(p):\n    return p",
		"config/app.yaml": "auth:\n  jwt_secret: changeme\n  token_ttl: 3600",
		"etl.go":          "func parseRecords(in []byte) []Record {\n\trecords := decode(in)\n\treturn records\n}",
	}
	for path, content := range files {
		docs = append(docs, index.Sections(path, content, 0)...)
	}
	return index.Build(docs, tok)
}

func input(t *testing.T, raw string) Input {
	return Input{
		Query:    parse(t, raw),
		Index:    fixture(),
		Settings: SettingsFrom(config.DefaultResearch()),
	}
}

func run(t *testing.T, id string, raw string) []retrieval.SearchResult {
	t.Helper()
	s, ok := DefaultRegistry().Get(id)
	require.True(t, ok)
	results, err := s.Run(context.Background(), input(t, raw))
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, id, r.Strategy)
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
	return results
}

func TestSelectAlwaysIncludesDefaults(t *testing.T) {
	got := Select(parse(t, "anything"), workspace.Summary{})
	assert.Equal(t, DefaultSet, got)

	got = Select(query.Query{}, workspace.Summary{})
	assert.NotEmpty(t, got)
}

func TestSelectHeuristics(t *testing.T) {
	ws := workspace.Summary{Files: 3, CodeFiles: 2, ConfigFiles: 1}

	got := Select(parse(t, "which functions call the api"), ws)
	assert.Contains(t, got, Structural)
	assert.NotContains(t, got, Config)

	got = Select(parse(t, "where are settings loaded"), ws)
	assert.Contains(t, got, Config)
	assert.Contains(t, got, DataFlow)

	got = Select(parse(t, "find /def\\s+auth/"), ws)
	assert.Contains(t, got, Regex)

	// no code files, so code vocabulary alone does not add structural search
	got = Select(parse(t, "class hierarchy"), workspace.Summary{Files: 1, OtherFiles: 1})
	assert.NotContains(t, got, Structural)
}

func TestExplainReasons(t *testing.T) {
	d := Explain(parse(t, "data pipeline"), workspace.Summary{})
	assert.Len(t, d.Reasons, 2)
	assert.Equal(t, append(append([]string(nil), DefaultSet...), DataFlow), d.Strategies)
}

func TestResolve(t *testing.T) {
	r := DefaultRegistry()
	got, err := r.Resolve([]string{"fuzzy", "dense", "fuzzy"})
	require.NoError(t, err)
	assert.Equal(t, []string{Dense, Fuzzy}, got)

	_, err = r.Resolve([]string{"telepathy"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	got, err = r.Resolve(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Len(t, r.IDs(), 9)
}

func TestRetrievalStrategiesRankAuthFirst(t *testing.T) {
	for _, id := range []string{Dense, Sparse, Hybrid} {
		results := run(t, id, "authentication methods")
		require.NotEmpty(t, results, id)
		assert.Equal(t, "auth.py", results[0].Path, id)
	}
}

func TestLiteral(t *testing.T) {
	results := run(t, Literal, "jwt token")
	require.NotEmpty(t, results)
	top := results[0]
	assert.Equal(t, 1.0, top.Score)
	assert.Equal(t, top.Span.StartLine, top.Span.EndLine)
}

func TestFuzzyMatchesMisspelling(t *testing.T) {
	results := run(t, Fuzzy, "pasword")
	require.NotEmpty(t, results)
	paths := map[string]bool{}
	for _, r := range results {
		paths[r.Path] = true
	}
	assert.True(t, paths["utils.py"])
}

func TestRegex(t *testing.T) {
	results := run(t, Regex, `/def\s+hash_\w+/`)
	require.Len(t, results, 1)
	assert.Equal(t, "utils.py", results[0].Path)
	assert.Equal(t, 1, results[0].Span.StartLine)

	assert.Empty(t, run(t, Regex, "no pattern here"))
}

func TestStructural(t *testing.T) {
	results := run(t, Structural, "authenticate function")
	require.NotEmpty(t, results)
	assert.Equal(t, "auth.py", results[0].Path)
	assert.Equal(t, 3, results[0].Span.StartLine)
}

func TestConfigOnlySearchesConfigFiles(t *testing.T) {
	results := run(t, Config, "jwt secret")
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "config/app.yaml", r.Path)
	}
}

func TestDataFlow(t *testing.T) {
	results := run(t, DataFlow, "parse records")
	require.NotEmpty(t, results)
	assert.Equal(t, "etl.go", results[0].Path)
	assert.GreaterOrEqual(t, results[0].Score, 0.7)
}

func TestStrategiesHonourCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, id := range DefaultRegistry().IDs() {
		s, _ := DefaultRegistry().Get(id)
		_, err := s.Run(ctx, input(t, "jwt /jwt/ parse config"))
		assert.ErrorIs(t, err, context.Canceled, id)
	}
}

func TestOrderedPutsCustomIDsLast(t *testing.T) {
	assert.Equal(t, []string{Dense, Regex, "custom"}, Ordered([]string{"custom", Regex, Dense}))
}
