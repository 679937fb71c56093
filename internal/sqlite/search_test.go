package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganot/teamgraph/internal/domain/node"
)

func seedSearchFixtures(t *testing.T, db *DB) {
	t.Helper()
	insertTeam(t, db, "t1", "Team One")
	insertTeam(t, db, "t2", "Team Two")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	insertNode(t, db, node.ContextNode{
		ID: "n1", TeamID: "t1", Platform: node.PlatformGitHub,
		ExternalID: "gh:issue:1", Type: node.TypeIssue,
		Title: "Bug in login", Content: "Users cannot log in after deploy",
		UpdatedAt: base,
	})
	insertNode(t, db, node.ContextNode{
		ID: "n2", TeamID: "t1", Platform: node.PlatformSlack,
		ExternalID: "slack:c1:1", Type: node.TypeMessage,
		Title: "deploy went out", Content: "login bug reports incoming",
		UpdatedAt: base.Add(time.Hour),
	})
	insertNode(t, db, node.ContextNode{
		ID: "n3", TeamID: "t2", Platform: node.PlatformGitHub,
		ExternalID: "gh:issue:2", Type: node.TypeIssue,
		Title: "Bug in checkout", Content: "other team's bug",
		UpdatedAt: base,
	})
}

func TestSearchRepository_FullText(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedSearchFixtures(t, db)

	repo := NewSearchRepository(db)
	results, err := repo.Search(ctx, "t1", node.SearchRequest{Query: "login"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		require.Equal(t, "t1", result.Node.TeamID, "results never cross the team boundary")
		require.Greater(t, result.Rank, 0.0)
	}
}

func TestSearchRepository_Filters(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedSearchFixtures(t, db)

	repo := NewSearchRepository(db)
	results, err := repo.Search(ctx, "t1", node.SearchRequest{
		Query:     "login",
		Platforms: []node.Platform{node.PlatformGitHub},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "n1", results[0].Node.ID)

	since := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	results, err = repo.Search(ctx, "t1", node.SearchRequest{
		Query: "login",
		Since: &since,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "n2", results[0].Node.ID)
}

func TestSearchRepository_EmptyQueryLists(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedSearchFixtures(t, db)

	repo := NewSearchRepository(db)
	results, err := repo.Search(ctx, "t1", node.SearchRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "n2", results[0].Node.ID, "listing is most-recent first")
	require.Equal(t, 1.0, results[0].Rank)
}

func TestSearchRepository_OperatorInjection(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedSearchFixtures(t, db)

	repo := NewSearchRepository(db)
	// FTS5 operator characters in user input are treated as literals,
	// not syntax.
	_, err := repo.Search(ctx, "t1", node.SearchRequest{Query: `login AND "unbalanced`})
	require.NoError(t, err)
}

func TestSearchRepository_NoMatches(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedSearchFixtures(t, db)

	repo := NewSearchRepository(db)
	results, err := repo.Search(ctx, "t1", node.SearchRequest{Query: "zzzzz"})
	require.NoError(t, err)
	require.Empty(t, results)
}
