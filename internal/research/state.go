package research

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/retrieval"
)

// Phase is a state of the research state machine.
type Phase int

const (
	PhasePlanning Phase = iota
	PhaseSearching
	PhaseAnalyzing
	PhaseFollowup
	PhaseSynthesizing
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePlanning:
		return "planning"
	case PhaseSearching:
		return "searching"
	case PhaseAnalyzing:
		return "analyzing"
	case PhaseFollowup:
		return "followup"
	case PhaseSynthesizing:
		return "synthesizing"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Termination reasons.
const (
	ReasonMaxIterations    = "max_iterations"
	ReasonConfidenceTarget = "confidence_target"
	ReasonNoNewInsights    = "no_new_insights"
	ReasonNoFollowups      = "no_followups"
	ReasonCancelled        = "cancelled"
)

// Warning kinds.
const (
	WarnUnreadableFile    = "unreadable_file"
	WarnUnsupportedFormat = "unsupported_format"
	WarnStrategyTimeout   = "strategy_timeout"
	WarnStrategyError     = "strategy_error"
	WarnStrategyMissing   = "strategy_missing"
)

// Warning is a non-fatal condition recorded on the report.
type Warning struct {
	Kind      string `json:"kind"`
	Source    string `json:"source"`
	Message   string `json:"message"`
	Iteration int    `json:"iteration"`
}

// Iteration is one completed search and analysis pass. It is never modified
// after it has been appended to the state.
type Iteration struct {
	Index      int
	Queries    []string
	Strategies []string
	Results    []retrieval.SearchResult
	Insights   []analysis.Insight
	Warnings   []Warning
	Confidence float64
	Duration   time.Duration
}

// State is the run's single mutable aggregate, owned by the controller.
type State struct {
	Iteration  int
	Phase      Phase
	Confidence float64
	Reason     string

	results    map[retrieval.Key]retrieval.SearchResult
	order      []retrieval.Key
	insights   map[string]struct{}
	insightLog []analysis.Insight
	asked      map[string]struct{}
	iterations []Iteration
	warnings   []Warning
}

func newState() *State {
	return &State{
		Phase:    PhasePlanning,
		results:  make(map[retrieval.Key]retrieval.SearchResult),
		insights: make(map[string]struct{}),
		asked:    make(map[string]struct{}),
	}
}

// newResults returns the entries of merged whose (DocID, Span) is not yet in
// the state, without modifying it.
func (s *State) newResults(merged []retrieval.SearchResult) []retrieval.SearchResult {
	var out []retrieval.SearchResult
	for _, r := range merged {
		if _, ok := s.results[r.Key()]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

// newInsights filters insights whose key is already known.
func (s *State) newInsights(insights []analysis.Insight) []analysis.Insight {
	var out []analysis.Insight
	seen := make(map[string]struct{})
	for _, in := range insights {
		if _, ok := s.insights[in.Key]; ok {
			continue
		}
		if _, ok := seen[in.Key]; ok {
			continue
		}
		seen[in.Key] = struct{}{}
		out = append(out, in)
	}
	return out
}

// commit folds a finished iteration into the state.
func (s *State) commit(it Iteration, asked []string) {
	for _, r := range it.Results {
		if _, ok := s.results[r.Key()]; ok {
			continue
		}
		s.results[r.Key()] = r
		s.order = append(s.order, r.Key())
	}
	for _, in := range it.Insights {
		s.insights[in.Key] = struct{}{}
		s.insightLog = append(s.insightLog, in)
	}
	for _, w := range asked {
		s.asked[w] = struct{}{}
	}
	s.warnings = append(s.warnings, it.Warnings...)
	if it.Confidence > s.Confidence {
		s.Confidence = it.Confidence
	}
	s.iterations = append(s.iterations, it)
	s.Iteration = it.Index + 1
}

func (s *State) warn(w Warning) {
	s.warnings = append(s.warnings, w)
}

// Results returns the cumulative unique results in insertion order.
func (s *State) Results() []retrieval.SearchResult {
	out := make([]retrieval.SearchResult, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.results[k])
	}
	return out
}

// withResults returns the cumulative results plus extra, for scoring a
// candidate iteration before it is committed.
func (s *State) withResults(extra []retrieval.SearchResult) []retrieval.SearchResult {
	return append(s.Results(), extra...)
}

func (s *State) Insights() []analysis.Insight {
	return append([]analysis.Insight(nil), s.insightLog...)
}

func (s *State) Iterations() []Iteration {
	return append([]Iteration(nil), s.iterations...)
}

func (s *State) Warnings() []Warning {
	return append([]Warning(nil), s.warnings...)
}
