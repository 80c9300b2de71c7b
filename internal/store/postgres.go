package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS research_reports (
    run_id        TEXT PRIMARY KEY,
    query         TEXT NOT NULL,
    workspace     TEXT NOT NULL,
    status        TEXT NOT NULL,
    confidence    DOUBLE PRECISION NOT NULL,
    total_results INTEGER NOT NULL,
    report        JSONB NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    saved_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS research_reports_started_at ON research_reports (started_at DESC);
`

// Postgres stores reports in the research_reports table.
type Postgres struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgres(db *postgres.Client) *Postgres {
	return &Postgres{
		db:     db,
		logger: slog.Default().With("component", "report-store"),
	}
}

// Migrate creates the reports table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating report store: %w", err)
	}
	return nil
}

// Save upserts rep by run ID.
func (p *Postgres) Save(ctx context.Context, rep *research.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	err = p.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO research_reports
			    (run_id, query, workspace, status, confidence, total_results, report, started_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (run_id) DO UPDATE SET
			    status = EXCLUDED.status,
			    confidence = EXCLUDED.confidence,
			    total_results = EXCLUDED.total_results,
			    report = EXCLUDED.report,
			    saved_at = NOW()`,
			rep.RunID, rep.Query, rep.Workspace, string(rep.Status),
			rep.ConfidenceScore, rep.TotalResults, data, rep.StartedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving report %s: %w", rep.RunID, err)
	}
	p.logger.Info("report saved", "run_id", rep.RunID, "status", rep.Status)
	return nil
}

func (p *Postgres) Get(ctx context.Context, runID string) (*research.Report, error) {
	var data []byte
	err := p.db.DB.QueryRowContext(ctx,
		`SELECT report FROM research_reports WHERE run_id = $1`, runID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrReportNotFound, http.StatusNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying report %s: %w", runID, err)
	}
	var rep research.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("unmarshaling report %s: %w", runID, err)
	}
	return &rep, nil
}

// List returns the newest reports first.
func (p *Postgres) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := p.db.DB.QueryContext(ctx, `
		SELECT run_id, query, workspace, status, confidence, total_results, started_at
		FROM research_reports
		ORDER BY started_at DESC, run_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var status string
		if err := rows.Scan(&s.RunID, &s.Query, &s.Workspace, &status, &s.ConfidenceScore, &s.TotalResults, &s.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		s.Status = research.Status(status)
		out = append(out, s)
	}
	return out, rows.Err()
}
