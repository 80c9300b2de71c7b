package research

import (
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
)

// Validate checks a research config and returns a copy with optional fields
// defaulted and weights normalised to sum to one. Every failure is an
// InvalidConfig error.
func Validate(cfg config.ResearchConfig) (config.ResearchConfig, error) {
	def := config.DefaultResearch()

	if cfg.MaxIterations <= 0 {
		return cfg, apperrors.InvalidConfig("maxIterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return cfg, apperrors.InvalidConfig("similarityThreshold must be in [0,1], got %v", cfg.SimilarityThreshold)
	}
	if cfg.ConfidenceTarget < 0 || cfg.ConfidenceTarget > 1 {
		return cfg, apperrors.InvalidConfig("confidenceTarget must be in [0,1], got %v", cfg.ConfidenceTarget)
	}
	if cfg.ConfidenceTarget == 0 {
		cfg.ConfidenceTarget = def.ConfidenceTarget
	}

	hw := cfg.HybridWeights
	if hw.Dense < 0 || hw.Sparse < 0 {
		return cfg, apperrors.InvalidConfig("hybrid weights must be non-negative, got %v/%v", hw.Dense, hw.Sparse)
	}
	if sum := hw.Dense + hw.Sparse; sum == 0 {
		cfg.HybridWeights = def.HybridWeights
	} else {
		cfg.HybridWeights = config.HybridWeights{Dense: hw.Dense / sum, Sparse: hw.Sparse / sum}
	}

	if cfg.BM25.K1 < 0 || cfg.BM25.B < 0 || cfg.BM25.B > 1 {
		return cfg, apperrors.InvalidConfig("bm25 requires k1 >= 0 and b in [0,1], got k1=%v b=%v", cfg.BM25.K1, cfg.BM25.B)
	}
	if cfg.BM25.K1 == 0 && cfg.BM25.B == 0 {
		cfg.BM25 = def.BM25
	}

	cw := cfg.ConfidenceWeights
	if cw.Count < 0 || cw.Relevance < 0 || cw.Diversity < 0 {
		return cfg, apperrors.InvalidConfig("confidence weights must be non-negative")
	}
	if sum := cw.Count + cw.Relevance + cw.Diversity; sum == 0 {
		cfg.ConfidenceWeights = def.ConfidenceWeights
	} else {
		cfg.ConfidenceWeights = config.ConfidenceWeights{
			Count: cw.Count / sum, Relevance: cw.Relevance / sum, Diversity: cw.Diversity / sum,
		}
	}

	if cfg.FuzzyThreshold < 0 || cfg.FuzzyThreshold > 1 {
		return cfg, apperrors.InvalidConfig("fuzzyThreshold must be in [0,1], got %v", cfg.FuzzyThreshold)
	}
	if cfg.FuzzyThreshold == 0 {
		cfg.FuzzyThreshold = def.FuzzyThreshold
	}
	if cfg.StrategyTimeout < 0 {
		return cfg, apperrors.InvalidConfig("strategyTimeout must not be negative")
	}
	if cfg.MaxParallelStrategies <= 0 {
		cfg.MaxParallelStrategies = def.MaxParallelStrategies
	}
	if cfg.TopResults <= 0 {
		cfg.TopResults = def.TopResults
	}
	if cfg.MaxResultsPerStrategy <= 0 {
		cfg.MaxResultsPerStrategy = def.MaxResultsPerStrategy
	}
	if cfg.Saturation <= 0 {
		cfg.Saturation = def.Saturation
	}
	if cfg.FollowupQueries <= 0 {
		cfg.FollowupQueries = def.FollowupQueries
	}
	if cfg.FollowupTerms <= 0 {
		cfg.FollowupTerms = def.FollowupTerms
	}
	return cfg, nil
}
