package strategy

import (
	"context"
	"regexp"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/workspace"
	"github.com/hbollon/go-edlib"
)

const maxPatternWords = 5

// lineMatcher scores one line. ok is false when the line is not a hit.
type lineMatcher func(line string) (score float64, ok bool)

// scanLines runs match over every line of the documents accepted by keep and
// emits one single-line result per hit.
func scanLines(ctx context.Context, in Input, id string, keep func(index.Document) bool, match lineMatcher) ([]retrieval.SearchResult, error) {
	var results []retrieval.SearchResult
	for _, doc := range in.Index.Documents() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if keep != nil && !keep(doc) {
			continue
		}
		for i, line := range doc.Lines() {
			score, ok := match(line)
			if !ok {
				continue
			}
			n := doc.LineNumber(i)
			results = append(results, retrieval.SearchResult{
				DocID:    doc.ID,
				Path:     doc.Path,
				Span:     index.Span{StartLine: n, EndLine: n},
				Score:    retrieval.Clamp(score),
				RawScore: score,
				Snippet:  retrieval.TrimSnippet(strings.TrimSpace(line)),
				Strategy: id,
				Query:    in.Query.Raw,
			})
		}
	}
	return retrieval.Truncate(results, in.Settings.MaxResults), nil
}

func patternWords(in Input) []string {
	words := in.Query.Words
	if len(words) > maxPatternWords {
		words = words[:maxPatternWords]
	}
	return words
}

// matchedWords counts how many words occur in the lower-cased line.
func matchedWords(line string, words []string) int {
	lower := strings.ToLower(line)
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

// literalStrategy is case-insensitive substring search for the query words.
type literalStrategy struct{}

func (literalStrategy) ID() string { return Literal }

func (literalStrategy) Run(ctx context.Context, in Input) ([]retrieval.SearchResult, error) {
	words := patternWords(in)
	if len(words) == 0 {
		return nil, nil
	}
	return scanLines(ctx, in, Literal, nil, func(line string) (float64, bool) {
		n := matchedWords(line, words)
		return float64(n) / float64(len(words)), n > 0
	})
}

// fuzzyStrategy matches query words against line tokens by Jaro-Winkler
// similarity.
type fuzzyStrategy struct{}

func (fuzzyStrategy) ID() string { return Fuzzy }

func (fuzzyStrategy) Run(ctx context.Context, in Input) ([]retrieval.SearchResult, error) {
	words := patternWords(in)
	if len(words) == 0 {
		return nil, nil
	}
	threshold := in.Settings.FuzzyThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	memo := make(map[[2]string]float64)
	similarity := func(a, b string) float64 {
		key := [2]string{a, b}
		if s, ok := memo[key]; ok {
			return s
		}
		s := 0.0
		if a == b {
			s = 1
		} else if v, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler); err == nil {
			s = float64(v)
		}
		memo[key] = s
		return s
	}
	return scanLines(ctx, in, Fuzzy, nil, func(line string) (float64, bool) {
		tokens := tokenizer.Words(line)
		var sum float64
		for _, w := range words {
			best := 0.0
			for _, tok := range tokens {
				if len(tok) < 3 {
					continue
				}
				if s := similarity(w, tok); s > best {
					best = s
				}
			}
			if best >= threshold {
				sum += best
			}
		}
		return sum / float64(len(words)), sum > 0
	})
}

// regexStrategy runs the query's /pattern/ over every line.
type regexStrategy struct{}

func (regexStrategy) ID() string { return Regex }

func (regexStrategy) Run(ctx context.Context, in Input) ([]retrieval.SearchResult, error) {
	re := in.Query.Pattern
	if re == nil {
		return nil, nil
	}
	return scanLines(ctx, in, Regex, nil, func(line string) (float64, bool) {
		return 1, re.MatchString(line)
	})
}

var (
	definitionPattern = regexp.MustCompile(`^\s*(?:export\s+)?(?:pub\s+)?(?:async\s+)?(?:func|def|function|class|interface|type|struct|trait|enum)\s+(?:\([^)]*\)\s*)?([A-Za-z_][A-Za-z0-9_]*)`)
	importPattern     = regexp.MustCompile(`^\s*(?:import|from|require|use|#include)\b`)
)

// structuralStrategy finds definitions whose name contains a query word or
// term, and import lines mentioning one.
type structuralStrategy struct{}

func (structuralStrategy) ID() string { return Structural }

func (structuralStrategy) Run(ctx context.Context, in Input) ([]retrieval.SearchResult, error) {
	needles := append(append([]string(nil), in.Query.Words...), in.Query.Terms...)
	if len(needles) == 0 {
		return nil, nil
	}
	return scanLines(ctx, in, Structural, func(d index.Document) bool {
		return workspace.IsCodeFile(d.Path)
	}, func(line string) (float64, bool) {
		if m := definitionPattern.FindStringSubmatch(line); m != nil {
			name := strings.ToLower(m[1])
			best := 0.0
			for _, n := range needles {
				switch {
				case name == n:
					best = 1
				case strings.Contains(name, n) && best < 0.7:
					best = 0.7
				}
			}
			return best, best > 0
		}
		if importPattern.MatchString(line) && matchedWords(line, needles) > 0 {
			return 0.5, true
		}
		return 0, false
	})
}

// configStrategy searches configuration files only.
type configStrategy struct{}

func (configStrategy) ID() string { return Config }

func (configStrategy) Run(ctx context.Context, in Input) ([]retrieval.SearchResult, error) {
	words := patternWords(in)
	if len(words) == 0 {
		return nil, nil
	}
	return scanLines(ctx, in, Config, func(d index.Document) bool {
		return workspace.IsConfigFile(d.Path)
	}, func(line string) (float64, bool) {
		n := matchedWords(line, words)
		return float64(n) / float64(len(words)), n > 0
	})
}

var dataFlowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:def|func|function)\s+(?:\([^)]*\)\s*)?\w*(?:process|transform|parse|convert|load|save|read|write|handle|stream|pipe|map|filter|reduce)\w*`),
	regexp.MustCompile(`\b(?:class|type|struct)\s+\w*(?:Parser|Loader|Handler|Processor|Transformer|Pipeline|Reader|Writer|Stream)\w*`),
	regexp.MustCompile(`(?i)\b\w*(?:data|records|rows|payload|result)\w*\s*(?::=|=)\s*\S`),
}

// dataFlowStrategy finds transformation steps that mention a query word.
type dataFlowStrategy struct{}

func (dataFlowStrategy) ID() string { return DataFlow }

func (dataFlowStrategy) Run(ctx context.Context, in Input) ([]retrieval.SearchResult, error) {
	words := patternWords(in)
	if len(words) == 0 {
		return nil, nil
	}
	return scanLines(ctx, in, DataFlow, nil, func(line string) (float64, bool) {
		n := matchedWords(line, words)
		if n == 0 {
			return 0, false
		}
		for _, re := range dataFlowPatterns {
			if re.MatchString(line) {
				return 0.7 + 0.3*float64(n)/float64(len(words)), true
			}
		}
		return 0, false
	})
}
