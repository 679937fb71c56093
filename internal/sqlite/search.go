package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/ganot/teamgraph/internal/domain/node"
)

// SearchRepository implements full-text search over context nodes
type SearchRepository struct {
	db *DB
}

// NewSearchRepository creates a new SearchRepository
func NewSearchRepository(db *DB) *SearchRepository {
	return &SearchRepository{db: db}
}

// Search runs an FTS5 query when req.Query is set, otherwise a recency
// listing with the same filters. Rank is -bm25 for text matches (higher
// is better, always > 0 for a hit) and a constant 1.0 for listings.
func (r *SearchRepository) Search(ctx context.Context, teamID string, req node.SearchRequest) ([]node.SearchResult, error) {
	var query string
	args := []interface{}{}

	if req.Query != "" {
		query = `
			SELECT n.id, n.team_id, n.platform, n.external_id, n.node_type,
			       n.title, n.content, n.url, n.author, n.created_at, n.updated_at,
			       -bm25(context_nodes_fts) AS rank,
			       snippet(context_nodes_fts, 1, '[', ']', '…', 12) AS snippet
			FROM context_nodes_fts
			JOIN context_nodes n ON n.rowid = context_nodes_fts.rowid
			WHERE n.team_id = ? AND context_nodes_fts MATCH ?
		`
		args = append(args, teamID, ftsQuery(req.Query))
	} else {
		query = `
			SELECT n.id, n.team_id, n.platform, n.external_id, n.node_type,
			       n.title, n.content, n.url, n.author, n.created_at, n.updated_at,
			       1.0 AS rank,
			       '' AS snippet
			FROM context_nodes n
			WHERE n.team_id = ?
		`
		args = append(args, teamID)
	}

	conditions := []string{}

	if len(req.Platforms) > 0 {
		placeholders := make([]string, len(req.Platforms))
		for i, platform := range req.Platforms {
			placeholders[i] = "?"
			args = append(args, platform)
		}
		conditions = append(conditions, fmt.Sprintf("n.platform IN (%s)", strings.Join(placeholders, ",")))
	}

	if len(req.Types) > 0 {
		placeholders := make([]string, len(req.Types))
		for i, typ := range req.Types {
			placeholders[i] = "?"
			args = append(args, typ)
		}
		conditions = append(conditions, fmt.Sprintf("n.node_type IN (%s)", strings.Join(placeholders, ",")))
	}

	if req.Since != nil {
		conditions = append(conditions, "n.updated_at >= ?")
		args = append(args, *req.Since)
	}
	if req.Until != nil {
		conditions = append(conditions, "n.updated_at <= ?")
		args = append(args, *req.Until)
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	if req.Query != "" {
		query += " ORDER BY rank DESC"
	} else {
		query += " ORDER BY n.updated_at DESC"
	}

	if req.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, req.Limit)
	}
	if req.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, req.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search nodes: %w", err)
	}
	defer rows.Close()

	var results []node.SearchResult
	for rows.Next() {
		var result node.SearchResult
		err := rows.Scan(
			&result.Node.ID,
			&result.Node.TeamID,
			&result.Node.Platform,
			&result.Node.ExternalID,
			&result.Node.Type,
			&result.Node.Title,
			&result.Node.Content,
			&result.Node.URL,
			&result.Node.Author,
			&result.Node.CreatedAt,
			&result.Node.UpdatedAt,
			&result.Rank,
			&result.Snippet,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, nil
}

// ftsQuery quotes each term so user input can't inject FTS5 operators.
func ftsQuery(raw string) string {
	terms := strings.Fields(raw)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ReplaceAll(term, `"`, `""`)
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " ")
}
