package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/logger"
)

const maxDurations = 10000

// Stats summarise the runs an Aggregator has seen.
type Stats struct {
	TotalRuns         int64            `json:"total_runs"`
	ByStatus          map[string]int64 `json:"by_status"`
	ByTermination     map[string]int64 `json:"by_termination"`
	AvgConfidence     float64          `json:"avg_confidence"`
	AvgIterations     float64          `json:"avg_iterations"`
	AvgResults        float64          `json:"avg_results"`
	TotalWarnings     int64            `json:"total_warnings"`
	P50DurationMS     int64            `json:"p50_duration_ms"`
	P95DurationMS     int64            `json:"p95_duration_ms"`
	P99DurationMS     int64            `json:"p99_duration_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	RunsPerMinute     float64          `json:"runs_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds run-completed events into Stats. It is fed either
// in-process as a research observer or from the events topic through
// HandleMessage.
type Aggregator struct {
	mu            sync.RWMutex
	total         int64
	byStatus      map[string]int64
	byTermination map[string]int64
	confidence    float64
	iterations    int64
	results       int64
	warnings      int64
	durations     []int64
	queries       map[string]int64
	zeroResults   map[string]int64
	seen          map[string]struct{}
	started       time.Time
	now           func() time.Time
	logger        *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byStatus:      make(map[string]int64),
		byTermination: make(map[string]int64),
		queries:       make(map[string]int64),
		zeroResults:   make(map[string]int64),
		seen:          make(map[string]struct{}),
		started:       time.Now(),
		now:           time.Now,
		logger:        logger.WithComponent("events-aggregator"),
	}
}

// RunCompleted records rep directly.
func (a *Aggregator) RunCompleted(_ context.Context, rep *research.Report) {
	a.Record(FromReport(rep))
}

// HandleMessage decodes one topic message. Undecodable messages are logged
// and skipped so they are committed.
func (a *Aggregator) HandleMessage(_ context.Context, _, value []byte) error {
	event, err := kafka.DecodeJSON[RunCompleted](value)
	if err != nil || event.Type != TypeRunCompleted {
		a.logger.Warn("skipping unrecognised event", "error", err, "type", event.Type)
		return nil
	}
	a.Record(event)
	return nil
}

// Record adds one run. A run ID seen before is ignored, so redelivered
// events are counted once.
func (a *Aggregator) Record(event RunCompleted) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if event.RunID != "" {
		if _, dup := a.seen[event.RunID]; dup {
			return
		}
		a.seen[event.RunID] = struct{}{}
	}
	a.total++
	a.byStatus[string(event.Status)]++
	a.byTermination[event.TerminationReason]++
	a.confidence += event.ConfidenceScore
	a.iterations += int64(event.IterationsRun)
	a.results += int64(event.TotalResults)
	a.warnings += int64(event.Warnings)
	if len(a.durations) == maxDurations {
		a.durations = a.durations[1:]
	}
	a.durations = append(a.durations, event.DurationMS)
	a.queries[event.Query]++
	if event.TotalResults == 0 {
		a.zeroResults[event.Query]++
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		TotalRuns:         a.total,
		ByStatus:          copyCounts(a.byStatus),
		ByTermination:     copyCounts(a.byTermination),
		TotalWarnings:     a.warnings,
		TopQueries:        topN(a.queries, 10),
		ZeroResultQueries: topN(a.zeroResults, 10),
	}
	if a.total > 0 {
		n := float64(a.total)
		stats.AvgConfidence = a.confidence / n
		stats.AvgIterations = float64(a.iterations) / n
		stats.AvgResults = float64(a.results) / n
	}
	if len(a.durations) > 0 {
		sorted := append([]int64(nil), a.durations...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		stats.P50DurationMS = percentile(sorted, 50)
		stats.P95DurationMS = percentile(sorted, 95)
		stats.P99DurationMS = percentile(sorted, 99)
	}
	if elapsed := a.now().Sub(a.started).Minutes(); elapsed > 0 {
		stats.RunsPerMinute = float64(a.total) / elapsed
	}
	return stats
}

// StatsHandler serves Stats as JSON.
func (a *Aggregator) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(a.Stats()); err != nil {
			a.logger.Error("failed to write analytics response", "error", err)
		}
	}
}

func percentile(sorted []int64, pct int) int64 {
	idx := pct * len(sorted) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query, and keeps the first n.
func topN(counts map[string]int64, n int) []QueryCount {
	out := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		out = append(out, QueryCount{Query: q, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
