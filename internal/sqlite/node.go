package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ganot/teamgraph/internal/domain/node"
	"github.com/ganot/teamgraph/internal/repository"
)

// NodeRepository implements context node persistence for SQLite
type NodeRepository struct {
	db *DB
}

// NewNodeRepository creates a new NodeRepository
func NewNodeRepository(db *DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// Upsert inserts a node or, when (platform, external_id) already exists,
// updates its content fields in place. The node's ID and timestamps are
// rewritten to the canonical stored values. Returns true when a new row
// was created.
func (r *NodeRepository) Upsert(ctx context.Context, n *node.ContextNode) (bool, error) {
	query := `
		INSERT INTO context_nodes (
			id, team_id, platform, external_id, node_type,
			title, content, url, author, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, external_id) DO UPDATE SET
			node_type = excluded.node_type,
			title = excluded.title,
			content = excluded.content,
			url = excluded.url,
			author = excluded.author,
			updated_at = excluded.updated_at
	`

	candidateID := n.ID
	_, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.TeamID,
		n.Platform,
		n.ExternalID,
		n.Type,
		n.Title,
		n.Content,
		n.URL,
		n.Author,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, repository.ErrForeignKeyViolation
		}
		return false, fmt.Errorf("failed to upsert node: %w", err)
	}

	stored, err := r.GetByExternalID(ctx, n.Platform, n.ExternalID)
	if err != nil {
		return false, fmt.Errorf("failed to reload upserted node: %w", err)
	}
	*n = *stored

	return stored.ID == candidateID, nil
}

// Get retrieves a node by ID within a team
func (r *NodeRepository) Get(ctx context.Context, teamID, id string) (*node.ContextNode, error) {
	query := nodeColumns + ` WHERE id = ? AND team_id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, teamID))
}

// GetByExternalID retrieves a node by its natural key
func (r *NodeRepository) GetByExternalID(ctx context.Context, platform node.Platform, externalID string) (*node.ContextNode, error) {
	query := nodeColumns + ` WHERE platform = ? AND external_id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, platform, externalID))
}

// GetMany retrieves nodes by ID, restricted to one team. IDs that don't
// exist or belong to another team are silently omitted.
func (r *NodeRepository) GetMany(ctx context.Context, teamID string, ids []string) ([]node.ContextNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, teamID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := nodeColumns + fmt.Sprintf(
		` WHERE team_id = ? AND id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get nodes: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// Recent returns the team's most recently updated nodes
func (r *NodeRepository) Recent(ctx context.Context, teamID string, limit int) ([]node.ContextNode, error) {
	query := nodeColumns + ` WHERE team_id = ? ORDER BY updated_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent nodes: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// AddRelationship creates a directed edge between two existing nodes.
// Returns repository.ErrForeignKeyViolation when either endpoint is
// missing, and silently succeeds when the identical edge already exists.
func (r *NodeRepository) AddRelationship(ctx context.Context, rel *node.Relationship) error {
	query := `
		INSERT INTO node_relationships (id, source_id, target_id, relation_type, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, target_id, relation_type) DO UPDATE SET
			weight = excluded.weight
	`

	_, err := r.db.ExecContext(ctx, query,
		rel.ID,
		rel.SourceID,
		rel.TargetID,
		rel.Type,
		rel.Weight,
		rel.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to add relationship: %w", err)
	}
	return nil
}

// RelationshipsFor returns edges touching any of the given nodes, with
// both endpoints restricted to the team.
func (r *NodeRepository) RelationshipsFor(ctx context.Context, teamID string, nodeIDs []string) ([]node.Relationship, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(nodeIDs))
	args := make([]interface{}, 0, 2*len(nodeIDs)+2)
	args = append(args, teamID, teamID)
	idArgs := make([]interface{}, len(nodeIDs))
	for i, id := range nodeIDs {
		placeholders[i] = "?"
		idArgs[i] = id
	}
	in := strings.Join(placeholders, ",")
	args = append(args, idArgs...)
	args = append(args, idArgs...)

	query := fmt.Sprintf(`
		SELECT rel.id, rel.source_id, rel.target_id, rel.relation_type, rel.weight, rel.created_at
		FROM node_relationships rel
		JOIN context_nodes src ON src.id = rel.source_id
		JOIN context_nodes dst ON dst.id = rel.target_id
		WHERE src.team_id = ? AND dst.team_id = ?
		  AND (rel.source_id IN (%s) OR rel.target_id IN (%s))
	`, in, in)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get relationships: %w", err)
	}
	defer rows.Close()

	var rels []node.Relationship
	for rows.Next() {
		var rel node.Relationship
		if err := rows.Scan(&rel.ID, &rel.SourceID, &rel.TargetID, &rel.Type, &rel.Weight, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationship rows: %w", err)
	}
	return rels, nil
}

// Metrics aggregates node counts by platform and type for one team
func (r *NodeRepository) Metrics(ctx context.Context, teamID string) (*node.Metrics, error) {
	query := `
		SELECT platform, node_type, COUNT(*)
		FROM context_nodes
		WHERE team_id = ?
		GROUP BY platform, node_type
	`

	rows, err := r.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate metrics: %w", err)
	}
	defer rows.Close()

	metrics := &node.Metrics{
		TeamID:     teamID,
		ByPlatform: make(map[node.Platform]int),
		ByType:     make(map[node.NodeType]int),
	}
	for rows.Next() {
		var platform node.Platform
		var nodeType node.NodeType
		var count int
		if err := rows.Scan(&platform, &nodeType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan metrics row: %w", err)
		}
		metrics.ByPlatform[platform] += count
		metrics.ByType[nodeType] += count
		metrics.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metrics rows: %w", err)
	}
	return metrics, nil
}

const nodeColumns = `
	SELECT id, team_id, platform, external_id, node_type,
	       title, content, url, author, created_at, updated_at
	FROM context_nodes`

func (r *NodeRepository) scanOne(row *sql.Row) (*node.ContextNode, error) {
	var n node.ContextNode
	err := row.Scan(
		&n.ID,
		&n.TeamID,
		&n.Platform,
		&n.ExternalID,
		&n.Type,
		&n.Title,
		&n.Content,
		&n.URL,
		&n.Author,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}
	return &n, nil
}

func (r *NodeRepository) scanAll(rows *sql.Rows) ([]node.ContextNode, error) {
	var nodes []node.ContextNode
	for rows.Next() {
		var n node.ContextNode
		err := rows.Scan(
			&n.ID,
			&n.TeamID,
			&n.Platform,
			&n.ExternalID,
			&n.Type,
			&n.Title,
			&n.Content,
			&n.URL,
			&n.Author,
			&n.CreatedAt,
			&n.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node rows: %w", err)
	}
	return nodes, nil
}
