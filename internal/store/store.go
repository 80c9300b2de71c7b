// Package store persists research reports so they can be fetched by run ID
// after the run that produced them has finished.
package store

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
)

// Summary is a list-view row of a stored report.
type Summary struct {
	RunID           string          `json:"run_id"`
	Query           string          `json:"query"`
	Workspace       string          `json:"workspace"`
	Status          research.Status `json:"status"`
	ConfidenceScore float64         `json:"confidence_score"`
	TotalResults    int             `json:"total_results"`
	StartedAt       time.Time       `json:"started_at"`
}

// Store saves and loads reports. Get returns an error wrapping
// ErrReportNotFound for unknown run IDs.
type Store interface {
	Save(ctx context.Context, rep *research.Report) error
	Get(ctx context.Context, runID string) (*research.Report, error)
	List(ctx context.Context, limit int) ([]Summary, error)
}

const defaultListLimit = 50

func summarize(rep *research.Report) Summary {
	return Summary{
		RunID:           rep.RunID,
		Query:           rep.Query,
		Workspace:       rep.Workspace,
		Status:          rep.Status,
		ConfidenceScore: rep.ConfidenceScore,
		TotalResults:    rep.TotalResults,
		StartedAt:       rep.StartedAt,
	}
}

// Memory is a process-local Store, used when no database is configured.
type Memory struct {
	mu      sync.RWMutex
	reports map[string]*research.Report
}

func NewMemory() *Memory {
	return &Memory{reports: make(map[string]*research.Report)}
}

func (m *Memory) Save(_ context.Context, rep *research.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[rep.RunID] = rep
	return nil
}

func (m *Memory) Get(_ context.Context, runID string) (*research.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rep, ok := m.reports[runID]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrReportNotFound, http.StatusNotFound, "run %s", runID)
	}
	return rep, nil
}

// List returns the newest reports first.
func (m *Memory) List(_ context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	out := make([]Summary, 0, len(m.reports))
	for _, rep := range m.reports {
		out = append(out, summarize(rep))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Recorder saves every completed run into a Store.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s, logger: slog.Default().With("component", "report-recorder")}
}

func (r *Recorder) RunCompleted(ctx context.Context, rep *research.Report) {
	if err := r.store.Save(ctx, rep); err != nil {
		r.logger.Error("failed to save report", "run_id", rep.RunID, "error", err)
	}
}
