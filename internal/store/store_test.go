package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(id string, started time.Time) *research.Report {
	return &research.Report{
		RunID:           id,
		Query:           "authentication",
		Workspace:       "/ws",
		Status:          research.StatusCompleted,
		ConfidenceScore: 0.5,
		TotalResults:    3,
		StartedAt:       started,
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	older := report(uuid.NewString(), base)
	newer := report(uuid.NewString(), base.Add(time.Minute))
	require.NoError(t, s.Save(ctx, older))
	require.NoError(t, s.Save(ctx, newer))

	got, err := s.Get(ctx, older.RunID)
	require.NoError(t, err)
	assert.Equal(t, older.Query, got.Query)
	assert.Equal(t, older.ConfidenceScore, got.ConfidenceScore)

	_, err = s.Get(ctx, "no-such-run")
	assert.ErrorIs(t, err, apperrors.ErrReportNotFound)

	list, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	older.Status = research.StatusCompletedWithWarnings
	require.NoError(t, s.Save(ctx, older))
	got, err = s.Get(ctx, older.RunID)
	require.NoError(t, err)
	assert.Equal(t, research.StatusCompletedWithWarnings, got.Status)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	exerciseStore(t, s)

	list, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].StartedAt.After(list[1].StartedAt))
}

func TestRecorderSavesCompletedRuns(t *testing.T) {
	s := NewMemory()
	rep := report("run-1", time.Now())
	NewRecorder(s).RunCompleted(context.Background(), rep)

	got, err := s.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Same(t, rep, got)
}

// TestPostgresStore needs a reachable database, e.g.
// DR_TEST_POSTGRES=1 with the DR_POSTGRES_* variables pointing at it.
func TestPostgresStore(t *testing.T) {
	if os.Getenv("DR_TEST_POSTGRES") == "" {
		t.Skip("DR_TEST_POSTGRES not set")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	db, err := postgres.New(cfg.Postgres)
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)
	require.NoError(t, s.Migrate(context.Background()))
	exerciseStore(t, s)
}
