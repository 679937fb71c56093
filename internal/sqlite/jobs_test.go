package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganot/teamgraph/internal/jobs"
	"github.com/ganot/teamgraph/internal/repository"
)

func enqueueTestJob(t *testing.T, repo *JobRepository, id, kind string, runAt time.Time) {
	t.Helper()
	err := repo.Enqueue(context.Background(), &jobs.Job{
		ID:        id,
		Kind:      kind,
		Payload:   []byte(`{"user_id":"u1"}`),
		Status:    jobs.StatusPending,
		RunAt:     runAt,
		CreatedAt: runAt,
		UpdatedAt: runAt,
	})
	require.NoError(t, err)
}

func TestJobRepository_ClaimOldestFirst(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewJobRepository(db)

	now := time.Now()
	enqueueTestJob(t, repo, "j2", jobs.KindSync, now.Add(-time.Minute))
	enqueueTestJob(t, repo, "j1", jobs.KindSync, now.Add(-2*time.Minute))
	enqueueTestJob(t, repo, "future", jobs.KindSync, now.Add(time.Hour))
	enqueueTestJob(t, repo, "other", jobs.KindWebhook, now.Add(-time.Minute))

	job, err := repo.Claim(ctx, jobs.KindSync, "w1", now)
	require.NoError(t, err)
	require.Equal(t, "j1", job.ID)
	require.Equal(t, jobs.StatusRunning, job.Status)
	require.Equal(t, "w1", job.ClaimedBy)
	require.Equal(t, 1, job.Attempts)

	job, err = repo.Claim(ctx, jobs.KindSync, "w2", now)
	require.NoError(t, err)
	require.Equal(t, "j2", job.ID)

	// Future job isn't runnable yet.
	_, err = repo.Claim(ctx, jobs.KindSync, "w1", now)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestJobRepository_ClaimIsExclusive(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewJobRepository(db)

	now := time.Now()
	enqueueTestJob(t, repo, "j1", jobs.KindSync, now)

	_, err := repo.Claim(ctx, jobs.KindSync, "w1", now)
	require.NoError(t, err)

	// The job is running, so a second claim finds nothing.
	_, err = repo.Claim(ctx, jobs.KindSync, "w2", now)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestJobRepository_RescheduleAndRetry(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewJobRepository(db)

	now := time.Now()
	enqueueTestJob(t, repo, "j1", jobs.KindWebhook, now)

	job, err := repo.Claim(ctx, jobs.KindWebhook, "w1", now)
	require.NoError(t, err)

	retryAt := now.Add(10 * time.Second)
	require.NoError(t, repo.Reschedule(ctx, job.ID, retryAt, "upstream timeout"))

	_, err = repo.Claim(ctx, jobs.KindWebhook, "w1", now)
	require.ErrorIs(t, err, repository.ErrNotFound, "not runnable until the backoff elapses")

	job, err = repo.Claim(ctx, jobs.KindWebhook, "w1", retryAt.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, job.Attempts)
	require.Equal(t, "upstream timeout", job.LastError)
}

func TestJobRepository_Terminal(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewJobRepository(db)

	now := time.Now()
	enqueueTestJob(t, repo, "j1", jobs.KindSync, now)
	enqueueTestJob(t, repo, "j2", jobs.KindSync, now)

	job, err := repo.Claim(ctx, jobs.KindSync, "w1", now)
	require.NoError(t, err)
	require.NoError(t, repo.MarkDone(ctx, job.ID))

	job, err = repo.Claim(ctx, jobs.KindSync, "w1", now)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, job.ID, "exhausted"))

	_, err = repo.Claim(ctx, jobs.KindSync, "w1", now)
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.ErrorIs(t, repo.MarkDone(ctx, "missing"), repository.ErrNotFound)
}
