package node

import "time"

// Platform identifies an external collaboration platform.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformSlack  Platform = "slack"
	PlatformLinear Platform = "linear"
)

// Valid reports whether the platform is one of the known variants.
func (p Platform) Valid() bool {
	switch p {
	case PlatformGitHub, PlatformSlack, PlatformLinear:
		return true
	}
	return false
}

// NodeType classifies a unit of platform activity.
type NodeType string

const (
	TypeIssue    NodeType = "issue"
	TypePR       NodeType = "pr"
	TypeCommit   NodeType = "commit"
	TypeComment  NodeType = "comment"
	TypeMessage  NodeType = "message"
	TypeDocument NodeType = "document"
	TypeTask     NodeType = "task"
	TypeChannel  NodeType = "channel"
	TypeUser     NodeType = "user"
)

// Team is the tenant boundary. A team exclusively owns its context nodes.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ContextNode is a normalized unit of platform activity in the unified
// graph. (Platform, ExternalID) is unique across all teams; re-ingestion
// updates the existing node rather than duplicating it.
type ContextNode struct {
	ID         string    `json:"id"`
	TeamID     string    `json:"team_id"`
	Platform   Platform  `json:"platform"`
	ExternalID string    `json:"external_id"`
	Type       NodeType  `json:"type"`
	Title      string    `json:"title"`
	Content    string    `json:"content,omitempty"`
	URL        string    `json:"url,omitempty"`
	Author     string    `json:"author,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RelationType classifies a directed edge between two context nodes.
type RelationType string

const (
	RelReferences RelationType = "references"
	RelRepliesTo  RelationType = "replies_to"
	RelMentions   RelationType = "mentions"
	RelBlocks     RelationType = "blocks"
	RelRelatesTo  RelationType = "relates_to"
)

// Relationship is a directed, typed, weighted edge between two nodes.
// Endpoints always reference existing nodes of the same team.
type Relationship struct {
	ID        string       `json:"id"`
	SourceID  string       `json:"source_id"`
	TargetID  string       `json:"target_id"`
	Type      RelationType `json:"type"`
	Weight    float64      `json:"weight"`
	CreatedAt time.Time    `json:"created_at"`
}

// SearchRequest filters a team-scoped search. An empty Query yields a
// recency listing with the same filters applied.
type SearchRequest struct {
	Query     string     `json:"query,omitempty"`
	Platforms []Platform `json:"platforms,omitempty"`
	Types     []NodeType `json:"types,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// SearchResult is a search hit with its touching relationships.
type SearchResult struct {
	Node          ContextNode    `json:"node"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Rank          float64        `json:"rank"`
	Snippet       string         `json:"snippet,omitempty"`
}

// Graph is a deduplicated node/edge set produced by traversal.
type Graph struct {
	TeamID string         `json:"team_id"`
	Nodes  []ContextNode  `json:"nodes"`
	Edges  []Relationship `json:"edges"`
	Stats  GraphStats     `json:"stats"`
}

// GraphStats summarizes the size and density of a traversed graph.
type GraphStats struct {
	NodeCount int     `json:"node_count"`
	EdgeCount int     `json:"edge_count"`
	Density   float64 `json:"density"`
}

// Metrics aggregates node counts for one team.
type Metrics struct {
	TeamID     string           `json:"team_id"`
	Total      int              `json:"total"`
	ByPlatform map[Platform]int `json:"by_platform"`
	ByType     map[NodeType]int `json:"by_type"`
}
