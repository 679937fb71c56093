package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ganot/teamgraph/internal/jobs"
	"github.com/ganot/teamgraph/internal/repository"
)

// JobRepository implements jobs.Store for SQLite
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new JobRepository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Enqueue persists a pending job
func (r *JobRepository) Enqueue(ctx context.Context, job *jobs.Job) error {
	query := `
		INSERT INTO jobs (id, kind, payload, status, attempts, run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.Kind,
		string(job.Payload),
		job.Status,
		job.Attempts,
		job.RunAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Claim atomically hands the oldest runnable job of a kind to one
// worker. The conditional update on status guarantees that two workers
// racing for the same row see exactly one winner; the loser retries on
// the next candidate. Returns repository.ErrNotFound when nothing is
// runnable.
func (r *JobRepository) Claim(ctx context.Context, kind, workerID string, now time.Time) (*jobs.Job, error) {
	for {
		var id string
		err := r.db.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE kind = ? AND status = 'pending' AND run_at <= ?
			ORDER BY run_at ASC
			LIMIT 1
		`, kind, now).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select runnable job: %w", err)
		}

		result, err := r.db.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'running', claimed_by = ?, attempts = attempts + 1, updated_at = ?
			WHERE id = ? AND status = 'pending'
		`, workerID, now, id)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			// Another worker won the race; try the next candidate.
			continue
		}

		return r.get(ctx, id)
	}
}

// MarkDone marks a job completed
func (r *JobRepository) MarkDone(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, jobs.StatusDone, "")
}

// MarkFailed marks a job permanently failed
func (r *JobRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	return r.setStatus(ctx, id, jobs.StatusFailed, lastError)
}

// Reschedule returns a job to pending with a future run time
func (r *JobRepository) Reschedule(ctx context.Context, id string, runAt time.Time, lastError string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', run_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, runAt, lastError, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *JobRepository) setStatus(ctx context.Context, id string, status jobs.Status, lastError string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, last_error = NULLIF(?, ''), updated_at = ?
		WHERE id = ?
	`, status, lastError, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *JobRepository) get(ctx context.Context, id string) (*jobs.Job, error) {
	query := `
		SELECT id, kind, payload, status, attempts, run_at,
		       COALESCE(claimed_by, ''), COALESCE(last_error, ''),
		       created_at, updated_at
		FROM jobs
		WHERE id = ?
	`

	var job jobs.Job
	var payload string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.Kind,
		&payload,
		&job.Status,
		&job.Attempts,
		&job.RunAt,
		&job.ClaimedBy,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job.Payload = []byte(payload)
	return &job, nil
}
