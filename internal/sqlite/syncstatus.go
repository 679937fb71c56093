package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ganot/teamgraph/internal/domain/node"
	"github.com/ganot/teamgraph/internal/domain/platform"
	"github.com/ganot/teamgraph/internal/repository"
)

// SyncStatusRepository persists sync bookkeeping keyed by
// (user, platform).
type SyncStatusRepository struct {
	db *DB
}

// NewSyncStatusRepository creates a sync status repository.
func NewSyncStatusRepository(db *DB) *SyncStatusRepository {
	return &SyncStatusRepository{db: db}
}

// Get returns the sync status for a (user, platform) pair.
func (r *SyncStatusRepository) Get(ctx context.Context, userID string, p node.Platform) (*platform.SyncStatus, error) {
	query := `
		SELECT user_id, platform, status, last_sync_at, next_sync_at, watermark, items_synced, errors, updated_at
		FROM sync_status
		WHERE user_id = ? AND platform = ?
	`
	row := r.db.QueryRowContext(ctx, query, userID, string(p))

	var (
		status    platform.SyncStatus
		plat      string
		state     string
		errorsRaw string
	)
	err := row.Scan(
		&status.UserID,
		&plat,
		&state,
		&status.LastSyncAt,
		&status.NextSyncAt,
		&status.Watermark,
		&status.ItemsSynced,
		&errorsRaw,
		&status.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}

	status.Platform = node.Platform(plat)
	status.Status = platform.SyncState(state)
	if err := json.Unmarshal([]byte(errorsRaw), &status.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode sync errors: %w", err)
	}
	return &status, nil
}

// Record upserts the sync status row for the status's (user, platform)
// pair.
func (r *SyncStatusRepository) Record(ctx context.Context, status *platform.SyncStatus) error {
	errorsRaw, err := json.Marshal(status.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode sync errors: %w", err)
	}
	if status.Errors == nil {
		errorsRaw = []byte("[]")
	}

	query := `
		INSERT INTO sync_status (user_id, platform, status, last_sync_at, next_sync_at, watermark, items_synced, errors, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, platform) DO UPDATE SET
			status = excluded.status,
			last_sync_at = excluded.last_sync_at,
			next_sync_at = excluded.next_sync_at,
			watermark = excluded.watermark,
			items_synced = excluded.items_synced,
			errors = excluded.errors,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		status.UserID,
		string(status.Platform),
		string(status.Status),
		status.LastSyncAt,
		status.NextSyncAt,
		status.Watermark,
		status.ItemsSynced,
		string(errorsRaw),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record sync status: %w", err)
	}
	return nil
}
