// Package strategy defines the search strategies the research engine can run
// and the heuristic that picks which of them to run for a query.
package strategy

import (
	"context"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
)

// Strategy identifiers, in canonical order.
const (
	Dense      = retrieval.ModeDense
	Sparse     = retrieval.ModeSparse
	Hybrid     = retrieval.ModeHybrid
	Literal    = "literal"
	Fuzzy      = "fuzzy"
	Regex      = "regex"
	Structural = "structural"
	Config     = "config"
	DataFlow   = "dataflow"
)

var canonical = []string{Dense, Sparse, Hybrid, Literal, Fuzzy, Regex, Structural, Config, DataFlow}

// DefaultSet is always selected.
var DefaultSet = []string{Dense, Sparse, Hybrid, Literal, Fuzzy}

// Settings are the strategy-relevant parts of a research config.
type Settings struct {
	Params         retrieval.Params
	FuzzyThreshold float64
	MaxResults     int
}

func SettingsFrom(cfg config.ResearchConfig) Settings {
	return Settings{
		Params: retrieval.Params{
			K1:           cfg.BM25.K1,
			B:            cfg.BM25.B,
			DenseWeight:  cfg.HybridWeights.Dense,
			SparseWeight: cfg.HybridWeights.Sparse,
			Limit:        cfg.MaxResultsPerStrategy,
		},
		FuzzyThreshold: cfg.FuzzyThreshold,
		MaxResults:     cfg.MaxResultsPerStrategy,
	}
}

// Input is everything a strategy may read. Index and its documents are
// shared between concurrently running strategies and must not be modified.
type Input struct {
	Query    query.Query
	Index    *index.TermIndex
	Settings Settings
}

// Strategy is one search capability. Run must honour ctx cancellation and
// return results with scores in [0,1].
type Strategy interface {
	ID() string
	Run(ctx context.Context, in Input) ([]retrieval.SearchResult, error)
}

// Registry maps identifiers to strategies.
type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// DefaultRegistry holds every built-in strategy.
func DefaultRegistry() *Registry {
	return NewRegistry(
		retrievalStrategy{id: Dense, score: retrieval.Dense},
		retrievalStrategy{id: Sparse, score: retrieval.Sparse},
		retrievalStrategy{id: Hybrid, score: retrieval.Hybrid},
		literalStrategy{},
		fuzzyStrategy{},
		regexStrategy{},
		structuralStrategy{},
		configStrategy{},
		dataFlowStrategy{},
	)
}

// Register adds or replaces a strategy.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.ID()] = s
}

func (r *Registry) Get(id string) (Strategy, bool) {
	s, ok := r.strategies[id]
	return s, ok
}

// IDs lists the registered identifiers in canonical order, unknown custom
// identifiers last in lexical order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	return Ordered(ids)
}

// Resolve turns an explicit enabledStrategies override into an ordered set.
// An empty override returns nil; an unknown identifier is InvalidConfig.
func (r *Registry) Resolve(enabled []string) ([]string, error) {
	if len(enabled) == 0 {
		return nil, nil
	}
	for _, id := range enabled {
		if _, ok := r.strategies[id]; !ok {
			return nil, apperrors.InvalidConfig("unknown strategy %q", id)
		}
	}
	return Ordered(enabled), nil
}

// Available splits ids into the registered ones and the ones with no
// strategy behind them, both in input order.
func (r *Registry) Available(ids []string) (available, missing []string) {
	for _, id := range ids {
		if _, ok := r.strategies[id]; ok {
			available = append(available, id)
		} else {
			missing = append(missing, id)
		}
	}
	return available, missing
}

// Ordered de-duplicates ids and sorts them canonically.
func Ordered(ids []string) []string {
	rank := make(map[string]int, len(canonical))
	for i, id := range canonical {
		rank[id] = i
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

type retrievalStrategy struct {
	id    string
	score func(*index.TermIndex, retrieval.Request) []retrieval.SearchResult
}

func (s retrievalStrategy) ID() string { return s.id }

func (s retrievalStrategy) Run(ctx context.Context, in Input) ([]retrieval.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := in.Settings.Params
	params.Limit = in.Settings.MaxResults
	return s.score(in.Index, retrieval.Request{
		Query:  in.Query.Raw,
		Terms:  in.Query.Terms,
		Params: params,
	}), nil
}
