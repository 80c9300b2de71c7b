package strategy

import (
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/workspace"
	"github.com/surgebase/porter2"
)

var (
	codeVocabulary = stemSet(
		"function", "method", "class", "import", "struct", "interface",
		"api", "def", "module", "package", "type", "implementation", "call",
	)
	configVocabulary = stemSet(
		"config", "configuration", "setting", "settings", "env",
		"environment", "parameter", "option", "variable",
	)
	dataFlowVocabulary = stemSet(
		"data", "flow", "pipeline", "process", "transform", "parse",
		"convert", "load", "save", "stream", "input", "output",
	)
)

// Decision explains a selection.
type Decision struct {
	Strategies []string `json:"strategies"`
	Reasons    []string `json:"reasons"`
}

// Select returns the strategies to run for q. The default set is always
// included and each heuristic adds to it independently, so the result is
// never empty.
func Select(q query.Query, ws workspace.Summary) []string {
	return Explain(q, ws).Strategies
}

// Explain is Select with the reason for each added strategy.
func Explain(q query.Query, ws workspace.Summary) Decision {
	ids := append([]string(nil), DefaultSet...)
	reasons := []string{"default retrieval and pattern strategies"}

	if mentions(q, codeVocabulary) && ws.CodeFiles > 0 {
		ids = append(ids, Structural)
		reasons = append(reasons, "code vocabulary with code files present")
	}
	if mentions(q, configVocabulary) && ws.ConfigFiles > 0 {
		ids = append(ids, Config)
		reasons = append(reasons, "configuration vocabulary with config files present")
	}
	if mentions(q, dataFlowVocabulary) {
		ids = append(ids, DataFlow)
		reasons = append(reasons, "data-flow vocabulary")
	}
	if q.HasPattern() {
		ids = append(ids, Regex)
		reasons = append(reasons, "regex pattern in query")
	}
	return Decision{Strategies: Ordered(ids), Reasons: reasons}
}

func mentions(q query.Query, vocabulary map[string]struct{}) bool {
	for _, w := range q.Words {
		if _, ok := vocabulary[porter2.Stem(w)]; ok {
			return true
		}
	}
	return false
}

func stemSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[porter2.Stem(w)] = struct{}{}
	}
	return set
}
