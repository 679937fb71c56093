package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ganot/teamgraph/internal/domain/node"
	"github.com/ganot/teamgraph/internal/repository"
)

// TeamRepository implements team persistence for SQLite
type TeamRepository struct {
	db *DB
}

// NewTeamRepository creates a new TeamRepository
func NewTeamRepository(db *DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// Create creates a new team
func (r *TeamRepository) Create(ctx context.Context, team *node.Team) error {
	query := `INSERT INTO teams (id, name, created_at) VALUES (?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, team.ID, team.Name, team.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

// Get retrieves a team by ID
func (r *TeamRepository) Get(ctx context.Context, id string) (*node.Team, error) {
	query := `SELECT id, name, created_at FROM teams WHERE id = ?`

	var team node.Team
	err := r.db.QueryRowContext(ctx, query, id).Scan(&team.ID, &team.Name, &team.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

// Delete removes a team. Context nodes cascade through the schema's
// foreign keys.
func (r *TeamRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
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
