package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ganot/teamgraph/internal/bus"
	"github.com/ganot/teamgraph/internal/cache"
	"github.com/ganot/teamgraph/internal/domain/node"
	"github.com/ganot/teamgraph/internal/repository"
	"github.com/google/uuid"
)

const (
	searchCacheTTL  = 30 * time.Second
	metricsCacheTTL = time.Minute

	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Service is the context store: team-scoped graph reads and idempotent
// ingestion, with read-through caching and change broadcast.
type Service struct {
	teams  TeamRepository
	nodes  NodeRepository
	search SearchRepository
	cache  cache.Cache
	bus    bus.Bus
	logger *slog.Logger
}

// NewService creates a new graph service.
func NewService(
	teams TeamRepository,
	nodes NodeRepository,
	search SearchRepository,
	c cache.Cache,
	b bus.Bus,
	logger *slog.Logger,
) *Service {
	return &Service{
		teams:  teams,
		nodes:  nodes,
		search: search,
		cache:  c,
		bus:    b,
		logger: logger,
	}
}

// RelatedNode declares a relationship from a node being ingested to
// another node identified by its natural key.
type RelatedNode struct {
	ExternalID string            `json:"external_id"`
	Relation   node.RelationType `json:"relation"`
	Weight     float64           `json:"weight,omitempty"`
}

// CreateNodeRequest describes a node ingestion request.
type CreateNodeRequest struct {
	Platform   node.Platform `json:"platform"`
	ExternalID string        `json:"external_id"`
	Type       node.NodeType `json:"type"`
	Title      string        `json:"title"`
	Content    string        `json:"content,omitempty"`
	URL        string        `json:"url,omitempty"`
	Author     string        `json:"author,omitempty"`
	Related    []RelatedNode `json:"related,omitempty"`
}

// ChangeEvent is published on the team channel after every mutation.
type ChangeEvent struct {
	Type     string        `json:"type"`
	TeamID   string        `json:"team_id"`
	NodeID   string        `json:"node_id"`
	Platform node.Platform `json:"platform"`
	NodeType node.NodeType `json:"node_type"`
	Created  bool          `json:"created"`
}

// CreateTeam creates a new team.
func (s *Service) CreateTeam(ctx context.Context, name string) (*node.Team, error) {
	if name == "" {
		return nil, ErrInvalidInput
	}
	team := &node.Team{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.teams.Create(ctx, team); err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}
	return team, nil
}

// GetTeam returns a team by ID.
func (s *Service) GetTeam(ctx context.Context, id string) (*node.Team, error) {
	team, err := s.teams.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("getting team: %w", err)
	}
	return team, nil
}

// DeleteTeam removes a team and, through the store's cascade, all of
// its nodes and relationships.
func (s *Service) DeleteTeam(ctx context.Context, id string) error {
	if err := s.teams.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTeamNotFound
		}
		return fmt.Errorf("deleting team: %w", err)
	}
	s.invalidateTeam(ctx, id)
	return nil
}

// CreateNode upserts a node by (platform, externalID) and creates its
// declared relationships best-effort: a relationship whose target
// doesn't exist yet is skipped, since platform events may arrive out of
// order and a later ingestion will carry the same declaration again.
// Returns the stored node and whether it was newly created.
func (s *Service) CreateNode(ctx context.Context, teamID string, req CreateNodeRequest) (*node.ContextNode, bool, error) {
	if teamID == "" || req.ExternalID == "" || req.Title == "" || !req.Platform.Valid() {
		return nil, false, ErrInvalidInput
	}

	now := time.Now()
	n := &node.ContextNode{
		ID:         uuid.NewString(),
		TeamID:     teamID,
		Platform:   req.Platform,
		ExternalID: req.ExternalID,
		Type:       req.Type,
		Title:      req.Title,
		Content:    req.Content,
		URL:        req.URL,
		Author:     req.Author,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	created, err := s.nodes.Upsert(ctx, n)
	if err != nil {
		return nil, false, fmt.Errorf("upserting node: %w", err)
	}

	for _, related := range req.Related {
		if err := s.relate(ctx, n, related); err != nil {
			return nil, false, err
		}
	}

	s.invalidateTeam(ctx, teamID)
	s.publishChange(ctx, &ChangeEvent{
		Type:     "context.updated",
		TeamID:   teamID,
		NodeID:   n.ID,
		Platform: n.Platform,
		NodeType: n.Type,
		Created:  created,
	})

	return n, created, nil
}

// GetNode returns a node by ID within a team.
func (s *Service) GetNode(ctx context.Context, teamID, id string) (*node.ContextNode, error) {
	n, err := s.nodes.Get(ctx, teamID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("getting node: %w", err)
	}
	return n, nil
}

// Search runs a cached, team-scoped search. Results carry the
// relationships touching each hit. The cache entry is dropped on any
// team write, so a hit always equals what a live query would have
// produced at caching time.
func (s *Service) Search(ctx context.Context, teamID string, req node.SearchRequest) ([]node.SearchResult, error) {
	if teamID == "" {
		return nil, ErrInvalidInput
	}
	req = normalizeSearch(req)

	key, err := searchCacheKey(teamID, req)
	if err != nil {
		return nil, err
	}
	var cached []node.SearchResult
	if ok := s.cacheGet(ctx, key, &cached); ok {
		return cached, nil
	}

	results, err := s.search.Search(ctx, teamID, req)
	if err != nil {
		return nil, fmt.Errorf("searching nodes: %w", err)
	}

	if len(results) > 0 {
		ids := make([]string, len(results))
		for i := range results {
			ids[i] = results[i].Node.ID
		}
		rels, err := s.nodes.RelationshipsFor(ctx, teamID, ids)
		if err != nil {
			return nil, fmt.Errorf("loading relationships: %w", err)
		}
		byNode := make(map[string][]node.Relationship)
		for _, rel := range rels {
			byNode[rel.SourceID] = append(byNode[rel.SourceID], rel)
			if rel.TargetID != rel.SourceID {
				byNode[rel.TargetID] = append(byNode[rel.TargetID], rel)
			}
		}
		for i := range results {
			results[i].Relationships = byNode[results[i].Node.ID]
		}
	}

	s.cacheSet(ctx, key, results, searchCacheTTL)
	return results, nil
}

// Metrics returns cached aggregate counts for a team.
func (s *Service) Metrics(ctx context.Context, teamID string) (*node.Metrics, error) {
	if teamID == "" {
		return nil, ErrInvalidInput
	}

	key := teamKeyPrefix(teamID) + "metrics"
	var cached node.Metrics
	if ok := s.cacheGet(ctx, key, &cached); ok {
		return &cached, nil
	}

	metrics, err := s.nodes.Metrics(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("aggregating metrics: %w", err)
	}

	s.cacheSet(ctx, key, metrics, metricsCacheTTL)
	return metrics, nil
}

func (s *Service) relate(ctx context.Context, n *node.ContextNode, related RelatedNode) error {
	target, err := s.nodes.GetByExternalID(ctx, n.Platform, related.ExternalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("relationship target not ingested yet, skipping",
				"source", n.ExternalID, "target", related.ExternalID)
			return nil
		}
		return fmt.Errorf("resolving relationship target: %w", err)
	}
	if target.TeamID != n.TeamID {
		s.logger.Warn("relationship target belongs to another team, skipping",
			"source", n.ID, "target", target.ID)
		return nil
	}

	weight := related.Weight
	if weight == 0 {
		weight = 1.0
	}
	rel := &node.Relationship{
		ID:        uuid.NewString(),
		SourceID:  n.ID,
		TargetID:  target.ID,
		Type:      related.Relation,
		Weight:    weight,
		CreatedAt: time.Now(),
	}
	if err := s.nodes.AddRelationship(ctx, rel); err != nil {
		if errors.Is(err, repository.ErrForeignKeyViolation) {
			return nil
		}
		return fmt.Errorf("adding relationship: %w", err)
	}
	return nil
}

func (s *Service) invalidateTeam(ctx context.Context, teamID string) {
	if err := s.cache.DeleteByPrefix(ctx, teamKeyPrefix(teamID)); err != nil {
		s.logger.Warn("cache invalidation failed", "team", teamID, "error", err)
	}
}

func (s *Service) publishChange(ctx context.Context, event *ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("encoding change event failed", "error", err)
		return
	}
	if err := s.bus.Publish(ctx, bus.TeamChannel(event.TeamID), payload); err != nil {
		s.logger.Warn("publishing change event failed", "team", event.TeamID, "error", err)
	}
}

func (s *Service) cacheGet(ctx context.Context, key string, out interface{}) bool {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		_ = s.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (s *Service) cacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func normalizeSearch(req node.SearchRequest) node.SearchRequest {
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}
	if req.Limit > maxSearchLimit {
		req.Limit = maxSearchLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return req
}

func teamKeyPrefix(teamID string) string {
	return "team:" + teamID + ":"
}

func searchCacheKey(teamID string, req node.SearchRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding search key: %w", err)
	}
	sum := sha256.Sum256(data)
	return teamKeyPrefix(teamID) + "search:" + hex.EncodeToString(sum[:16]), nil
}
