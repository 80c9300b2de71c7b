// Package research drives a research run: it plans which strategies to run,
// searches in parallel, analyses what was found, decides whether to follow
// up, and synthesises the final report.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
	idxcache "github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/cache"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/strategy"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/workspace"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/tracing"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Observer is notified of every finished run, including cancelled ones.
type Observer interface {
	RunCompleted(ctx context.Context, rep *Report)
}

// Runner executes research runs. A Runner is safe for concurrent use; each
// Run owns its own State.
type Runner struct {
	registry  *strategy.Registry
	cache     *idxcache.IndexCache
	metrics   *metrics.Metrics
	observers []Observer
	logger    *slog.Logger
	workspace config.WorkspaceConfig
	index     config.IndexConfig
}

type Option func(*Runner)

// WithRegistry replaces the strategy registry.
func WithRegistry(reg *strategy.Registry) Option {
	return func(r *Runner) { r.registry = reg }
}

// WithStrategy registers an extra strategy, or replaces a built-in one with
// the same ID.
func WithStrategy(s strategy.Strategy) Option {
	return func(r *Runner) { r.registry.Register(s) }
}

func WithIndexCache(c *idxcache.IndexCache) Option {
	return func(r *Runner) { r.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func WithWorkspaceConfig(cfg config.WorkspaceConfig) Option {
	return func(r *Runner) { r.workspace = cfg }
}

func WithIndexConfig(cfg config.IndexConfig) Option {
	return func(r *Runner) { r.index = cfg }
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		registry:  strategy.DefaultRegistry(),
		logger:    slog.Default().With("component", "research"),
		workspace: config.DefaultWorkspace(),
		index:     config.DefaultIndex(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry exposes the strategies this runner can execute.
func (r *Runner) Registry() *strategy.Registry {
	return r.registry
}

// Tokenizer returns the tokenizer runs use for queries and documents.
func (r *Runner) Tokenizer() *tokenizer.Tokenizer {
	return tokenizer.New(tokenizer.Options{
		MinLength: r.index.MinTokenLength,
		Stemming:  r.index.Stemming,
		StopWords: r.index.StopWords,
	})
}

// Run researches raw over the workspace at root. Only an invalid config,
// query or workspace root produces an error, and it does so before any
// search; everything else degrades into warnings on the report. A cancelled
// ctx yields a report with status cancelled and a nil error.
func (r *Runner) Run(ctx context.Context, raw, root string, cfg config.ResearchConfig) (*Report, error) {
	started := time.Now()
	cfg, err := Validate(cfg)
	if err != nil {
		r.countRun("invalid")
		return nil, err
	}
	tok := r.Tokenizer()
	q, err := query.Parse(raw, tok)
	if err != nil {
		r.countRun("invalid")
		return nil, err
	}
	override, err := r.registry.Resolve(cfg.EnabledStrategies)
	if err != nil {
		r.countRun("invalid")
		return nil, err
	}
	files, err := workspace.NewLister(r.workspace).List(ctx, root)
	if err != nil && (errors.Is(err, apperrors.ErrInvalidConfig) || ctx.Err() == nil) {
		r.countRun("invalid")
		return nil, err
	}
	selected, missing := override, []string(nil)
	if err == nil && selected == nil {
		selected, missing = r.registry.Available(strategy.Select(q, workspace.Summarize(files)))
		if len(selected) == 0 {
			r.countRun("invalid")
			return nil, apperrors.InvalidConfig("none of the selected strategies are registered: %s", strings.Join(missing, ", "))
		}
	}

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := r.logger.With("run_id", runID)
	ctx, span := tracing.StartSpan(ctx, "research", runID)
	defer func() {
		span.End()
		span.Log(log)
	}()

	st := newState()
	stats := make(map[string]*StrategyStat)
	finish := func(filesAnalyzed int) *Report {
		st.Phase = PhaseSynthesizing
		rep := synthesize(runID, raw, root, st, filesAnalyzed, cfg.TopResults, stats, started)
		st.Phase = PhaseDone
		r.observe(ctx, rep)
		log.Info("research finished",
			"status", rep.Status,
			"confidence", rep.ConfidenceScore,
			"results", rep.TotalResults,
			"iterations", rep.IterationsRun,
			"reason", rep.TerminationReason,
			"duration_ms", rep.DurationMS,
		)
		return rep
	}
	if err != nil {
		st.Reason = ReasonCancelled
		return finish(0), nil
	}

	_, planSpan := tracing.StartChildSpan(ctx, PhasePlanning.String())
	entry, err := r.loadIndex(ctx, root, files, tok)
	planSpan.End()
	if err != nil {
		st.Reason = ReasonCancelled
		return finish(0), nil
	}
	ix := entry.Index
	for _, s := range entry.Skipped {
		st.warn(skipWarning(s))
	}
	for _, id := range missing {
		st.warn(Warning{Kind: WarnStrategyMissing, Source: id, Message: "strategy is not registered"})
	}
	filesAnalyzed := ix.Stats().Files
	log.Info("research started",
		"query", raw,
		"root", root,
		"files", filesAnalyzed,
		"documents", ix.DocCount(),
		"strategies", selected,
	)

	aopts := analysis.DefaultOptions()
	aopts.SimilarityThreshold = cfg.SimilarityThreshold
	engine := analysis.New(aopts)
	settings := strategy.SettingsFrom(cfg)
	queries := []query.Query{q}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		if ctx.Err() != nil {
			st.Reason = ReasonCancelled
			break
		}
		iterStart := time.Now()

		st.Phase = PhaseSearching
		searchCtx, searchSpan := tracing.StartChildSpan(ctx, PhaseSearching.String())
		searchSpan.SetAttr("iteration", iter)
		outcomes := r.search(searchCtx, queries, selected, ix, settings, cfg)
		searchSpan.End()
		if ctx.Err() != nil {
			st.Reason = ReasonCancelled
			break
		}

		st.Phase = PhaseAnalyzing
		_, analyzeSpan := tracing.StartChildSpan(ctx, PhaseAnalyzing.String())
		lists := make([][]retrieval.SearchResult, 0, len(outcomes))
		var warnings []Warning
		for _, o := range outcomes {
			if o.err != nil {
				warnings = append(warnings, failureWarning(o, iter))
				log.Warn("strategy discarded", "strategy", o.strategy, "query", o.query, "error", o.err)
				continue
			}
			lists = append(lists, o.results)
		}
		fresh := st.newResults(retrieval.Merge(lists...))
		insights := st.newInsights(engine.Analyze(fresh, ix))
		conf := Confidence(st.withResults(fresh), cfg.ConfidenceWeights, cfg.Saturation)
		if conf < st.Confidence {
			conf = st.Confidence
		}
		analyzeSpan.End()
		if ctx.Err() != nil {
			st.Reason = ReasonCancelled
			break
		}

		it := Iteration{
			Index:      iter,
			Strategies: selected,
			Results:    fresh,
			Insights:   insights,
			Warnings:   warnings,
			Confidence: conf,
			Duration:   time.Since(iterStart),
		}
		var asked []string
		for _, fq := range queries {
			it.Queries = append(it.Queries, fq.Raw)
			asked = append(asked, askedTerms(fq)...)
		}
		st.commit(it, asked)
		r.recordOutcomes(stats, outcomes)
		log.Info("iteration complete",
			"iteration", iter,
			"queries", it.Queries,
			"new_results", len(fresh),
			"new_insights", len(insights),
			"confidence", st.Confidence,
		)

		if iter+1 >= cfg.MaxIterations {
			st.Reason = ReasonMaxIterations
			break
		}
		if st.Confidence >= cfg.ConfidenceTarget {
			st.Reason = ReasonConfidenceTarget
			break
		}
		if len(insights) == 0 {
			st.Reason = ReasonNoNewInsights
			break
		}
		st.Phase = PhaseFollowup
		next := followups(insights, st.asked, tok, cfg.FollowupQueries, cfg.FollowupTerms)
		if len(next) == 0 {
			st.Reason = ReasonNoFollowups
			break
		}
		queries = next
	}

	rep := finish(filesAnalyzed)
	if r.metrics != nil {
		r.metrics.ResearchDuration.Observe(time.Since(started).Seconds())
		r.metrics.IterationsPerRun.Observe(float64(rep.IterationsRun))
		r.metrics.ConfidenceScore.Observe(rep.ConfidenceScore)
	}
	r.countRun(string(rep.Status))
	return rep, nil
}

// Plan reports which strategies a run of raw over root would execute and
// why, without searching.
func (r *Runner) Plan(ctx context.Context, raw, root string, cfg config.ResearchConfig) (strategy.Decision, error) {
	cfg, err := Validate(cfg)
	if err != nil {
		return strategy.Decision{}, err
	}
	q, err := query.Parse(raw, r.Tokenizer())
	if err != nil {
		return strategy.Decision{}, err
	}
	override, err := r.registry.Resolve(cfg.EnabledStrategies)
	if err != nil {
		return strategy.Decision{}, err
	}
	if override != nil {
		return strategy.Decision{Strategies: override, Reasons: []string{"enabled explicitly"}}, nil
	}
	files, err := workspace.NewLister(r.workspace).List(ctx, root)
	if err != nil {
		return strategy.Decision{}, err
	}
	decision := strategy.Explain(q, workspace.Summarize(files))
	available, missing := r.registry.Available(decision.Strategies)
	if len(available) == 0 {
		return strategy.Decision{}, apperrors.InvalidConfig("none of the selected strategies are registered: %s", strings.Join(missing, ", "))
	}
	if len(missing) > 0 {
		decision.Strategies = available
		decision.Reasons = append(decision.Reasons, "not registered: "+strings.Join(missing, ", "))
	}
	return decision, nil
}

// Index lists and indexes root exactly as a run would.
func (r *Runner) Index(ctx context.Context, root string) (*idxcache.Entry, error) {
	files, err := workspace.NewLister(r.workspace).List(ctx, root)
	if err != nil {
		return nil, err
	}
	return r.loadIndex(ctx, root, files, r.Tokenizer())
}

// loadIndex reads the workspace and builds its term index, reusing a cached
// index when the workspace fingerprint is unchanged.
func (r *Runner) loadIndex(ctx context.Context, root string, files []workspace.FileInfo, tok *tokenizer.Tokenizer) (*idxcache.Entry, error) {
	start := time.Now()
	build := func() (*idxcache.Entry, error) {
		docs, skipped, err := workspace.NewLoader(r.workspace.Workers, r.index.SectionLines).Load(ctx, files)
		if err != nil {
			return nil, err
		}
		ix := index.Build(docs, tok)
		if r.metrics != nil {
			r.metrics.DocsIndexedTotal.Add(float64(ix.DocCount()))
			r.metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
		}
		return &idxcache.Entry{Index: ix, Skipped: skipped}, nil
	}
	if r.cache == nil {
		return build()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	salt := fmt.Sprintf("%s|%+v|%d", abs, tok.Options(), r.index.SectionLines)
	entry, hit, err := r.cache.GetOrBuild(workspace.Fingerprint(files, salt), build)
	if err != nil {
		return nil, err
	}
	if hit && r.metrics != nil {
		r.metrics.IndexCacheHitsTotal.Inc()
	}
	return entry, nil
}

type outcome struct {
	strategy string
	query    string
	results  []retrieval.SearchResult
	err      error
	duration time.Duration
}

// search runs every (query, strategy) pair concurrently and waits for all of
// them. Outcomes are returned in task order, independent of completion order.
func (r *Runner) search(ctx context.Context, queries []query.Query, ids []string, ix *index.TermIndex, settings strategy.Settings, cfg config.ResearchConfig) []outcome {
	type task struct {
		q  query.Query
		id string
	}
	var tasks []task
	for _, q := range queries {
		for _, id := range ids {
			tasks = append(tasks, task{q: q, id: id})
		}
	}
	outcomes := make([]outcome, len(tasks))

	var g errgroup.Group
	g.SetLimit(cfg.MaxParallelStrategies)
	for i, t := range tasks {
		s, ok := r.registry.Get(t.id)
		if !ok {
			outcomes[i] = outcome{strategy: t.id, query: t.q.Raw, err: fmt.Errorf("strategy %q is not registered", t.id)}
			continue
		}
		g.Go(func() error {
			start := time.Now()
			var found []retrieval.SearchResult
			err := resilience.WithTimeout(ctx, cfg.StrategyTimeout, t.id, func(ctx context.Context) error {
				res, err := s.Run(ctx, strategy.Input{Query: t.q, Index: ix, Settings: settings})
				if err != nil {
					return err
				}
				found = res
				return nil
			})
			outcomes[i] = outcome{strategy: t.id, query: t.q.Raw, err: err, duration: time.Since(start)}
			if err == nil {
				outcomes[i].results = found
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (r *Runner) recordOutcomes(stats map[string]*StrategyStat, outcomes []outcome) {
	for _, o := range outcomes {
		s, ok := stats[o.strategy]
		if !ok {
			s = &StrategyStat{Strategy: o.strategy}
			stats[o.strategy] = s
		}
		s.Runs++
		s.Results += len(o.results)
		s.DurationMS += o.duration.Milliseconds()
		if o.err != nil {
			s.Failures++
		}
		if r.metrics == nil {
			continue
		}
		r.metrics.StrategyLatency.WithLabelValues(o.strategy).Observe(o.duration.Seconds())
		r.metrics.StrategyResults.WithLabelValues(o.strategy).Add(float64(len(o.results)))
		if o.err != nil {
			r.metrics.StrategyFailures.WithLabelValues(o.strategy, failureReason(o.err)).Inc()
		}
	}
}

func (r *Runner) observe(ctx context.Context, rep *Report) {
	ctx = context.WithoutCancel(ctx)
	for _, o := range r.observers {
		o.RunCompleted(ctx, rep)
	}
}

func (r *Runner) countRun(status string) {
	if r.metrics != nil {
		r.metrics.ResearchRunsTotal.WithLabelValues(status).Inc()
	}
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func failureWarning(o outcome, iter int) Warning {
	if failureReason(o.err) == "timeout" {
		return Warning{
			Kind:      WarnStrategyTimeout,
			Source:    o.strategy,
			Message:   fmt.Sprintf("%v: %v", apperrors.ErrStrategyTimeout, o.err),
			Iteration: iter,
		}
	}
	return Warning{Kind: WarnStrategyError, Source: o.strategy, Message: o.err.Error(), Iteration: iter}
}

func skipWarning(s workspace.Skipped) Warning {
	kind := WarnUnreadableFile
	if errors.Is(s.Err, apperrors.ErrUnsupportedFormat) {
		kind = WarnUnsupportedFormat
	}
	return Warning{Kind: kind, Source: s.Path, Message: s.Err.Error()}
}
