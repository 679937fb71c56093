package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ganot/teamgraph/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Task kinds.
const (
	KindSync    = "sync"
	KindWebhook = "webhook"
)

// Job is one durable unit of async work. The payload carries the
// idempotency-relevant identifiers for its kind.
type Job struct {
	ID        string
	Kind      string
	Payload   []byte
	Status    Status
	Attempts  int
	RunAt     time.Time
	ClaimedBy string
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store provides durable job persistence. Claim must hand each job to
// exactly one worker across processes.
type Store interface {
	Enqueue(ctx context.Context, job *Job) error
	Claim(ctx context.Context, kind, workerID string, now time.Time) (*Job, error)
	MarkDone(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
}

// Handler processes a claimed job's payload.
type Handler func(ctx context.Context, payload []byte) error

// KindConfig is the retry policy and concurrency ceiling for one task
// kind. The ceiling is the sole external-API rate-limiting mechanism.
type KindConfig struct {
	Policy      *RetryPolicy
	Concurrency int64
}

type registration struct {
	config  KindConfig
	handler Handler
}

// Queue executes durable jobs with per-kind worker pools. Workers poll
// the store and claim jobs one at a time; a claim is a conditional
// update, so concurrent processes never execute the same job twice.
type Queue struct {
	store        Store
	workerID     string
	pollInterval time.Duration
	logger       *slog.Logger

	mu    sync.RWMutex
	kinds map[string]registration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a queue over the given store.
func NewQueue(store Store, pollInterval time.Duration, logger *slog.Logger) *Queue {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Queue{
		store:        store,
		workerID:     uuid.NewString(),
		pollInterval: pollInterval,
		logger:       logger,
		kinds:        make(map[string]registration),
	}
}

// Register binds a handler and config to a task kind. Must be called
// before Start.
func (q *Queue) Register(kind string, config KindConfig, handler Handler) {
	q.mu.Lock()
	q.kinds[kind] = registration{config: config, handler: handler}
	q.mu.Unlock()
}

// Enqueue persists a job for asynchronous execution and returns its ID.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload []byte) (string, error) {
	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		Status:    StatusPending,
		RunAt:     now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.store.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}
	return job.ID, nil
}

// Start launches one polling loop per registered kind.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)

	q.mu.RLock()
	defer q.mu.RUnlock()
	for kind, reg := range q.kinds {
		q.wg.Add(1)
		go q.runKind(kind, reg)
	}
}

// Stop cancels the polling loops and waits for in-flight handlers.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *Queue) runKind(kind string, reg registration) {
	defer q.wg.Done()

	concurrency := reg.config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(concurrency)

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain everything runnable before sleeping again.
		for {
			job, err := q.store.Claim(q.ctx, kind, q.workerID, time.Now())
			if err != nil {
				if !errors.Is(err, repository.ErrNotFound) && q.ctx.Err() == nil {
					q.logger.Error("job claim failed", "kind", kind, "error", err)
				}
				break
			}

			if err := sem.Acquire(q.ctx, 1); err != nil {
				return
			}
			q.wg.Add(1)
			go func(job *Job) {
				defer q.wg.Done()
				defer sem.Release(1)
				q.process(job, reg)
			}(job)
		}
	}
}

func (q *Queue) process(job *Job, reg registration) {
	err := reg.handler(q.ctx, job.Payload)
	if err == nil {
		if markErr := q.store.MarkDone(q.ctx, job.ID); markErr != nil {
			q.logger.Error("marking job done failed", "job", job.ID, "error", markErr)
		}
		return
	}

	policy := reg.config.Policy
	if policy == nil || policy.Exhausted(job.Attempts) {
		q.logger.Warn("job exhausted retries", "job", job.ID, "kind", job.Kind,
			"attempts", job.Attempts, "error", err)
		if markErr := q.store.MarkFailed(q.ctx, job.ID, err.Error()); markErr != nil {
			q.logger.Error("marking job failed failed", "job", job.ID, "error", markErr)
		}
		return
	}

	runAt := time.Now().Add(policy.NextDelay(job.Attempts))
	q.logger.Info("job failed, rescheduling", "job", job.ID, "kind", job.Kind,
		"attempts", job.Attempts, "next_run", runAt, "error", err)
	if markErr := q.store.Reschedule(q.ctx, job.ID, runAt, err.Error()); markErr != nil {
		q.logger.Error("rescheduling job failed", "job", job.ID, "error", markErr)
	}
}
