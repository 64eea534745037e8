package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// JobRunStore implements domain.JobRunStore using PostgreSQL.
type JobRunStore struct {
	pool *pgxpool.Pool
}

// NewJobRunStore creates a new JobRunStore backed by the given connection pool.
func NewJobRunStore(pool *pgxpool.Pool) *JobRunStore {
	return &JobRunStore{pool: pool}
}

var _ domain.JobRunStore = (*JobRunStore)(nil)

// Record appends one job run.
func (s *JobRunStore) Record(ctx context.Context, run domain.JobRun) error {
	const query = `
		INSERT INTO job_runs (run_id, job, processed, updated, skipped, failed, error, started_at, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		run.RunID, run.Job, run.Processed, run.Updated, run.Skipped, run.Failed,
		run.Error, run.StartedAt, run.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres: record job run %s: %w", run.Job, err)
	}
	return nil
}

// ListRecent returns job runs newest first, optionally narrowed to one job.
func (s *JobRunStore) ListRecent(ctx context.Context, job string, opts domain.ListOpts) ([]domain.JobRun, error) {
	query := `SELECT id, run_id, job, processed, updated, skipped, failed, error, started_at, elapsed_ms
		FROM job_runs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if job != "" {
		query += fmt.Sprintf(" AND job = $%d", argIdx)
		args = append(args, job)
		argIdx++
	}

	query += " ORDER BY started_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list job runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.JobRun
	for rows.Next() {
		var r domain.JobRun
		var elapsedMS int64
		if err := rows.Scan(&r.ID, &r.RunID, &r.Job, &r.Processed, &r.Updated, &r.Skipped,
			&r.Failed, &r.Error, &r.StartedAt, &elapsedMS); err != nil {
			return nil, fmt.Errorf("postgres: scan job run: %w", err)
		}
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list job runs rows: %w", err)
	}
	return runs, nil
}
