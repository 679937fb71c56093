package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ganot/teamgraph/internal/domain/session"
	"github.com/ganot/teamgraph/internal/repository"
)

// SessionRepository persists live-connection sessions.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a session repository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	state, err := json.Marshal(s.State)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	query := `
		INSERT INTO sessions (id, connection_id, user_id, team_id, state, last_activity, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		s.ConnectionID,
		s.UserID,
		s.TeamID,
		string(state),
		s.LastActivity,
		s.ExpiresAt,
		s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByConnection loads the session bound to a connection ID.
func (r *SessionRepository) GetByConnection(ctx context.Context, connectionID string) (*session.Session, error) {
	query := `
		SELECT id, connection_id, user_id, team_id, state, last_activity, expires_at, created_at
		FROM sessions
		WHERE connection_id = ?
	`
	row := r.db.QueryRowContext(ctx, query, connectionID)

	var (
		s     session.Session
		state string
	)
	err := row.Scan(
		&s.ID,
		&s.ConnectionID,
		&s.UserID,
		&s.TeamID,
		&state,
		&s.LastActivity,
		&s.ExpiresAt,
		&s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := json.Unmarshal([]byte(state), &s.State); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}
	return &s, nil
}

// Update persists the session's state, activity, and expiry.
func (r *SessionRepository) Update(ctx context.Context, s *session.Session) error {
	state, err := json.Marshal(s.State)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	query := `
		UPDATE sessions
		SET state = ?, last_activity = ?, expires_at = ?
		WHERE connection_id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		string(state),
		s.LastActivity,
		s.ExpiresAt,
		s.ConnectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return requireRow(result)
}

// Delete removes the session bound to a connection ID.
func (r *SessionRepository) Delete(ctx context.Context, connectionID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE connection_id = ?`, connectionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return requireRow(result)
}

// DeleteExpired removes sessions whose expiry has passed and returns
// their connection IDs so callers can evict cache entries.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT connection_id FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	defer rows.Close()

	var connectionIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired session: %w", err)
		}
		connectionIDs = append(connectionIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired sessions: %w", err)
	}

	if len(connectionIDs) == 0 {
		return nil, nil
	}
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= ?`, now); err != nil {
		return nil, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return connectionIDs, nil
}
