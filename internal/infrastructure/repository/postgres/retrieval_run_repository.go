package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

const schemaLockKey int64 = 2026101401

// RetrievalRunRepository is the append-only log of adaptive search runs.
type RetrievalRunRepository struct {
	db *sql.DB
}

func NewRetrievalRunRepository(db *sql.DB) *RetrievalRunRepository {
	return &RetrievalRunRepository{db: db}
}

func (r *RetrievalRunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/evalctl startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS retrieval_runs (
	id TEXT PRIMARY KEY,
	stakeholder_id TEXT NOT NULL,
	namespace TEXT NOT NULL,
	store_type TEXT NOT NULL,
	dynamic_k INTEGER NOT NULL,
	total_chunks INTEGER NOT NULL,
	returned INTEGER NOT NULL,
	achievement_rate DOUBLE PRECISION NOT NULL,
	failed_queries INTEGER NOT NULL DEFAULT 0,
	degraded TEXT NOT NULL DEFAULT '',
	queries JSONB NOT NULL DEFAULT '[]'::jsonb,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_retrieval_runs_achievement ON retrieval_runs(achievement_rate);
CREATE INDEX IF NOT EXISTS idx_retrieval_runs_created_at ON retrieval_runs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RetrievalRunRepository) SaveRun(ctx context.Context, run domain.RetrievalRun) error {
	if run.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save retrieval run", fmt.Errorf("run id is empty"))
	}
	queries := run.Queries
	if queries == nil {
		queries = []string{}
	}
	queriesJSON, err := json.Marshal(queries)
	if err != nil {
		return fmt.Errorf("marshal queries: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO retrieval_runs (
	id, stakeholder_id, namespace, store_type, dynamic_k, total_chunks, returned, achievement_rate,
	failed_queries, degraded, queries, duration_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO NOTHING
`,
		run.ID, run.StakeholderID, run.Namespace, run.StoreType, run.DynamicK, run.TotalChunks, run.Returned,
		run.AchievementRate, run.FailedQueries, run.Degraded, queriesJSON, run.DurationMS, run.CreatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "insert retrieval run", err)
	}
	return nil
}

// ListLowAchievement returns the newest runs whose returned/K ratio is below threshold.
// Runs on an empty corpus are excluded.
func (r *RetrievalRunRepository) ListLowAchievement(ctx context.Context, threshold float64, limit int) ([]domain.RetrievalRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, stakeholder_id, namespace, store_type, dynamic_k, total_chunks, returned, achievement_rate,
	failed_queries, degraded, queries, duration_ms, created_at
FROM retrieval_runs
WHERE achievement_rate < $1 AND total_chunks > 0
ORDER BY created_at DESC
LIMIT $2
`, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("list low achievement runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RetrievalRun, 0)
	for rows.Next() {
		var run domain.RetrievalRun
		var queriesRaw []byte
		if err := rows.Scan(
			&run.ID, &run.StakeholderID, &run.Namespace, &run.StoreType, &run.DynamicK, &run.TotalChunks,
			&run.Returned, &run.AchievementRate, &run.FailedQueries, &run.Degraded, &queriesRaw,
			&run.DurationMS, &run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan retrieval run: %w", err)
		}
		if err := json.Unmarshal(queriesRaw, &run.Queries); err != nil {
			return nil, fmt.Errorf("unmarshal queries: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retrieval runs: %w", err)
	}
	return out, nil
}
