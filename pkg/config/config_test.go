package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Research.MaxIterations)
	assert.InDelta(t, 0.3, cfg.Research.SimilarityThreshold, 1e-9)
	assert.Equal(t, HybridWeights{Dense: 0.5, Sparse: 0.5}, cfg.Research.HybridWeights)
	assert.Equal(t, BM25Params{K1: 1.5, B: 0.75}, cfg.Research.BM25)
	assert.Equal(t, 3, cfg.Index.MinTokenLength)
	assert.Contains(t, cfg.Workspace.Exclude, ".git/**")
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
research:
  maxIterations: 5
  similarityThreshold: 0.4
  hybridWeights:
    dense: 0.7
    sparse: 0.3
  strategyTimeout: 2s
index:
  minTokenLength: 4
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("DR_STRATEGIES", "dense,sparse")
	t.Setenv("DR_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Research.MaxIterations)
	assert.InDelta(t, 0.4, cfg.Research.SimilarityThreshold, 1e-9)
	assert.Equal(t, HybridWeights{Dense: 0.7, Sparse: 0.3}, cfg.Research.HybridWeights)
	assert.Equal(t, 2*time.Second, cfg.Research.StrategyTimeout)
	assert.Equal(t, []string{"dense", "sparse"}, cfg.Research.EnabledStrategies)
	assert.Equal(t, 4, cfg.Index.MinTokenLength)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep their defaults
	assert.Equal(t, BM25Params{K1: 1.5, B: 0.75}, cfg.Research.BM25)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultResearch().MaxIterations, cfg.Research.MaxIterations)
	assert.Equal(t, DefaultWorkspace().Exclude, cfg.Workspace.Exclude)
	assert.Equal(t, DefaultIndex(), cfg.Index)
	assert.Equal(t, 30, cfg.Server.ResearchPerMinute)
	assert.Equal(t, "research-events", cfg.Kafka.Topics.ResearchEvents)
	assert.Equal(t, 10*time.Minute, cfg.Redis.CacheTTL)
}
