package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ganot/teamgraph/internal/domain/node"
	"github.com/ganot/teamgraph/internal/domain/platform"
	"github.com/ganot/teamgraph/internal/repository"
)

// WebhookEventRepository persists verified inbound webhook events.
type WebhookEventRepository struct {
	db *DB
}

// NewWebhookEventRepository creates a webhook event repository.
func NewWebhookEventRepository(db *DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Append stores a new pending event.
func (r *WebhookEventRepository) Append(ctx context.Context, event *platform.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (id, platform, event_type, team_id, payload, status, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		string(event.Platform),
		event.EventType,
		event.TeamID,
		string(event.Payload),
		string(platform.EventPending),
		time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to append webhook event: %w", err)
	}
	return nil
}

// Get loads one event by ID.
func (r *WebhookEventRepository) Get(ctx context.Context, id string) (*platform.WebhookEvent, error) {
	query := `
		SELECT id, platform, event_type, team_id, payload, status, attempts, last_error, created_at, processed_at
		FROM webhook_events
		WHERE id = ?
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var (
		event     platform.WebhookEvent
		plat      string
		state     string
		payload   string
		lastError sql.NullString
	)
	err := row.Scan(
		&event.ID,
		&plat,
		&event.EventType,
		&event.TeamID,
		&payload,
		&state,
		&event.Attempts,
		&lastError,
		&event.CreatedAt,
		&event.ProcessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}

	event.Platform = node.Platform(plat)
	event.Status = platform.EventState(state)
	event.Payload = []byte(payload)
	event.LastError = lastError.String
	return &event, nil
}

// MarkProcessed transitions an event to processed.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE webhook_events
		SET status = ?, processed_at = ?, attempts = attempts + 1
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query, string(platform.EventProcessed), at, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return requireRow(result)
}

// MarkFailed records a failed attempt and its error.
func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	query := `
		UPDATE webhook_events
		SET status = ?, last_error = ?, attempts = attempts + 1
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query, string(platform.EventFailed), lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event failed: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
