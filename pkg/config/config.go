// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Research, Workspace, Index, Redis, Postgres, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Research  ResearchConfig  `yaml:"research"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Index     IndexConfig     `yaml:"index"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	// WorkspaceBase confines API requests to workspaces under this directory.
	// Empty allows any absolute path.
	WorkspaceBase     string        `yaml:"workspaceBase"`
	// ResearchPerMinute caps POST requests per client; 0 disables limiting.
	ResearchPerMinute int           `yaml:"researchPerMinute"`
	ResearchBurst     int           `yaml:"researchBurst"`
}

// HybridWeights are the dense/sparse mixing weights for hybrid retrieval.
type HybridWeights struct {
	Dense  float64 `yaml:"dense" json:"dense"`
	Sparse float64 `yaml:"sparse" json:"sparse"`
}

// BM25Params are the sparse scorer's saturation and length-normalisation
// parameters.
type BM25Params struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
}

// ConfidenceWeights weight the three confidence components: result count,
// top-k relevance and file diversity.
type ConfidenceWeights struct {
	Count     float64 `yaml:"count" json:"count"`
	Relevance float64 `yaml:"relevance" json:"relevance"`
	Diversity float64 `yaml:"diversity" json:"diversity"`
}

// ResearchConfig is the per-run configuration of the research engine.
type ResearchConfig struct {
	MaxIterations         int               `yaml:"maxIterations" json:"max_iterations"`
	SimilarityThreshold   float64           `yaml:"similarityThreshold" json:"similarity_threshold"`
	ConfidenceTarget      float64           `yaml:"confidenceTarget" json:"confidence_target"`
	EnabledStrategies     []string          `yaml:"enabledStrategies" json:"enabled_strategies,omitempty"`
	HybridWeights         HybridWeights     `yaml:"hybridWeights" json:"hybrid_weights"`
	BM25                  BM25Params        `yaml:"bm25" json:"bm25"`
	StrategyTimeout       time.Duration     `yaml:"strategyTimeout" json:"strategy_timeout"`
	MaxParallelStrategies int               `yaml:"maxParallelStrategies" json:"max_parallel_strategies"`
	TopResults            int               `yaml:"topResults" json:"top_results"`
	MaxResultsPerStrategy int               `yaml:"maxResultsPerStrategy" json:"max_results_per_strategy"`
	FuzzyThreshold        float64           `yaml:"fuzzyThreshold" json:"fuzzy_threshold"`
	ConfidenceWeights     ConfidenceWeights `yaml:"confidenceWeights" json:"confidence_weights"`
	Saturation            int               `yaml:"saturation" json:"saturation"`
	FollowupQueries       int               `yaml:"followupQueries" json:"followup_queries"`
	FollowupTerms         int               `yaml:"followupTerms" json:"followup_terms"`
}

// WorkspaceConfig controls which files of a workspace are considered.
type WorkspaceConfig struct {
	Include     []string `yaml:"include"`
	Exclude     []string `yaml:"exclude"`
	MaxFileSize int64    `yaml:"maxFileSize"`
	MaxFiles    int      `yaml:"maxFiles"`
	Workers     int      `yaml:"workers"`
}

// IndexConfig controls tokenisation, sectioning and index caching.
type IndexConfig struct {
	MinTokenLength int  `yaml:"minTokenLength"`
	Stemming       bool `yaml:"stemming"`
	StopWords      bool `yaml:"stopWords"`
	SectionLines   int  `yaml:"sectionLines"`
	CacheSize      int  `yaml:"cacheSize"`
}

// RedisConfig holds Redis connection and report caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters for the report store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
	BufferSize    int         `yaml:"bufferSize"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ResearchEvents string `yaml:"researchEvents"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// DefaultResearch returns the research defaults: three iterations, a 0.3
// similarity threshold, equal hybrid weights and BM25 k1=1.5, b=0.75.
func DefaultResearch() ResearchConfig {
	return ResearchConfig{
		MaxIterations:         3,
		SimilarityThreshold:   0.3,
		ConfidenceTarget:      0.75,
		HybridWeights:         HybridWeights{Dense: 0.5, Sparse: 0.5},
		BM25:                  BM25Params{K1: 1.5, B: 0.75},
		StrategyTimeout:       10 * time.Second,
		MaxParallelStrategies: 8,
		TopResults:            10,
		MaxResultsPerStrategy: 50,
		FuzzyThreshold:        0.8,
		ConfidenceWeights:     ConfidenceWeights{Count: 1.0 / 3, Relevance: 1.0 / 3, Diversity: 1.0 / 3},
		Saturation:            20,
		FollowupQueries:       2,
		FollowupTerms:         3,
	}
}

// DefaultWorkspace returns the default file selection rules.
func DefaultWorkspace() WorkspaceConfig {
	return WorkspaceConfig{
		Include: []string{"**/*"},
		Exclude: []string{
			".git/**", "**/.git/**",
			"node_modules/**", "**/node_modules/**",
			"vendor/**", "**/__pycache__/**",
			".research_cache/**", "**/*.min.js",
		},
		MaxFileSize: 2 << 20,
		MaxFiles:    5000,
		Workers:     8,
	}
}

// DefaultIndex returns the default tokenizer and sectioning settings.
func DefaultIndex() IndexConfig {
	return IndexConfig{
		MinTokenLength: 3,
		Stemming:       true,
		StopWords:      true,
		SectionLines:   200,
		CacheSize:      16,
	}
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			ResearchBurst:   2,
		},
		Research:  DefaultResearch(),
		Workspace: DefaultWorkspace(),
		Index:     DefaultIndex(),
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "deepresearch",
			User:            "deepresearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "research-analytics",
			Topics:        KafkaTopics{ResearchEvents: "research-events"},
			BufferSize:    1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads DR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DR_RESEARCH_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.ResearchPerMinute = n
		}
	}
	if v := os.Getenv("DR_WORKSPACE_BASE"); v != "" {
		cfg.Server.WorkspaceBase = v
	}
	if v := os.Getenv("DR_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Research.MaxIterations = n
		}
	}
	if v := os.Getenv("DR_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Research.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("DR_STRATEGIES"); v != "" {
		cfg.Research.EnabledStrategies = strings.Split(v, ",")
	}
	if v := os.Getenv("DR_STRATEGY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Research.StrategyTimeout = d
		}
	}
	if v := os.Getenv("DR_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v)
	}
	if v := os.Getenv("DR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DR_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v)
	}
	if v := os.Getenv("DR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DR_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DR_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DR_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v)
	}
	if v := os.Getenv("DR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
