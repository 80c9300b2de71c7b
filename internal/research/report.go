package research

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/retrieval"
)

type Status string

const (
	StatusCompleted             Status = "completed"
	StatusCompletedWithWarnings Status = "completed_with_warnings"
	StatusCancelled             Status = "cancelled"
)

const maxKeyInsights = 10

type TopResult struct {
	Path      string  `json:"path"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
	Strategy  string  `json:"strategy"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
}

type IterationSummary struct {
	Index       int      `json:"index"`
	Queries     []string `json:"queries"`
	Strategies  []string `json:"strategies"`
	NewResults  int      `json:"new_results"`
	NewInsights int      `json:"new_insights"`
	Confidence  float64  `json:"confidence"`
	DurationMS  int64    `json:"duration_ms"`
}

// StrategyStat aggregates one strategy's invocations over a run.
type StrategyStat struct {
	Strategy   string `json:"strategy"`
	Runs       int    `json:"runs"`
	Results    int    `json:"results"`
	Failures   int    `json:"failures"`
	DurationMS int64  `json:"duration_ms"`
}

// Report is the final, immutable outcome of a research run.
type Report struct {
	RunID             string             `json:"run_id"`
	Query             string             `json:"query"`
	Workspace         string             `json:"workspace"`
	Status            Status             `json:"status"`
	ConfidenceScore   float64            `json:"confidence_score"`
	TotalResults      int                `json:"total_results"`
	FilesAnalyzed     int                `json:"files_analyzed"`
	KeyInsights       []string           `json:"key_insights"`
	Insights          []analysis.Insight `json:"insights"`
	TopResults        []TopResult        `json:"top_results"`
	IterationsRun     int                `json:"iterations_run"`
	Iterations        []IterationSummary `json:"iterations"`
	Strategies        []StrategyStat     `json:"strategies"`
	Warnings          []Warning          `json:"warnings"`
	Recommendations   []string           `json:"recommendations"`
	TerminationReason string             `json:"termination_reason"`
	Body              string             `json:"body"`
	StartedAt         time.Time          `json:"started_at"`
	DurationMS        int64              `json:"duration_ms"`
}

// synthesize assembles the report from the final state.
func synthesize(runID, q, root string, st *State, filesAnalyzed, topN int, stats map[string]*StrategyStat, started time.Time) *Report {
	results := st.Results()
	insights := st.Insights()
	warnings := st.Warnings()

	status := StatusCompleted
	switch {
	case st.Reason == ReasonCancelled:
		status = StatusCancelled
	case len(warnings) > 0:
		status = StatusCompletedWithWarnings
	}

	rep := &Report{
		RunID:             runID,
		Query:             q,
		Workspace:         root,
		Status:            status,
		ConfidenceScore:   st.Confidence,
		TotalResults:      len(results),
		FilesAnalyzed:     filesAnalyzed,
		KeyInsights:       keyInsights(insights),
		Insights:          insights,
		TopResults:        topResults(results, topN),
		IterationsRun:     len(st.iterations),
		Iterations:        summaries(st.iterations),
		Strategies:        sortedStats(stats),
		Warnings:          warnings,
		TerminationReason: st.Reason,
		StartedAt:         started.UTC(),
		DurationMS:        time.Since(started).Milliseconds(),
	}
	if rep.Insights == nil {
		rep.Insights = []analysis.Insight{}
	}
	if rep.Warnings == nil {
		rep.Warnings = []Warning{}
	}
	rep.Recommendations = recommendations(rep)
	rep.Body = body(rep)
	return rep
}

func keyInsights(insights []analysis.Insight) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, in := range insights {
		if _, ok := seen[in.Text]; ok {
			continue
		}
		seen[in.Text] = struct{}{}
		out = append(out, in.Text)
		if len(out) == maxKeyInsights {
			break
		}
	}
	return out
}

func topResults(results []retrieval.SearchResult, n int) []TopResult {
	top := retrieval.TopN(results, n)
	out := make([]TopResult, 0, len(top))
	for _, r := range top {
		out = append(out, TopResult{
			Path:      r.Path,
			Score:     r.Score,
			Snippet:   r.Snippet,
			Strategy:  r.Strategy,
			StartLine: r.Span.StartLine,
			EndLine:   r.Span.EndLine,
		})
	}
	return out
}

func summaries(iterations []Iteration) []IterationSummary {
	out := make([]IterationSummary, 0, len(iterations))
	for _, it := range iterations {
		out = append(out, IterationSummary{
			Index:       it.Index,
			Queries:     it.Queries,
			Strategies:  it.Strategies,
			NewResults:  len(it.Results),
			NewInsights: len(it.Insights),
			Confidence:  it.Confidence,
			DurationMS:  it.Duration.Milliseconds(),
		})
	}
	return out
}

func sortedStats(stats map[string]*StrategyStat) []StrategyStat {
	out := make([]StrategyStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

func recommendations(rep *Report) []string {
	var out []string
	switch {
	case rep.TotalResults == 0:
		out = append(out, "No matches were found; try broader or alternative terms")
	case rep.ConfidenceScore < 0.5:
		out = append(out, "Confidence is low; refine the query with more specific terms")
	}
	if len(rep.TopResults) > 0 {
		out = append(out, fmt.Sprintf("Start with %s, the highest ranked match", rep.TopResults[0].Path))
	}
	for _, s := range rep.Strategies {
		if s.Failures > 0 {
			out = append(out, fmt.Sprintf("Strategy %s failed %d time(s); consider a longer strategy timeout", s.Strategy, s.Failures))
		}
	}
	if rep.Status == StatusCancelled {
		out = append(out, "The run was cancelled; rerun for complete results")
	}
	return out
}

func body(rep *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research: %s\n", rep.Query)
	fmt.Fprintf(&b, "Status: %s, confidence %.2f, %d results from %d files in %d iteration(s)\n",
		rep.Status, rep.ConfidenceScore, rep.TotalResults, rep.FilesAnalyzed, rep.IterationsRun)
	if len(rep.KeyInsights) > 0 {
		b.WriteString("\nKey insights:\n")
		for _, text := range rep.KeyInsights {
			fmt.Fprintf(&b, "- %s\n", text)
		}
	}
	if len(rep.TopResults) > 0 {
		b.WriteString("\nTop results:\n")
		for i, r := range rep.TopResults {
			fmt.Fprintf(&b, "%d. %s:%d-%d (%.2f) %s\n", i+1, r.Path, r.StartLine, r.EndLine, r.Score, r.Snippet)
		}
	}
	return b.String()
}
