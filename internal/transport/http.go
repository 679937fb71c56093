package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ganot/teamgraph/internal/domain/graph"
	"github.com/ganot/teamgraph/internal/domain/node"
	"github.com/ganot/teamgraph/internal/domain/platform"
	"github.com/ganot/teamgraph/internal/repository"
)

// maxWebhookBody caps how much of an inbound webhook body is read.
const maxWebhookBody = 1 << 20

// Server is the HTTP surface over the graph and platform services.
type Server struct {
	graph     *graph.Service
	platforms *platform.Manager
	logger    *slog.Logger
	router    chi.Router
}

// NewServer builds the HTTP server and its routes.
func NewServer(g *graph.Service, platforms *platform.Manager, logger *slog.Logger) *Server {
	s := &Server{
		graph:     g,
		platforms: platforms,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/teams", func(r chi.Router) {
		r.Post("/", s.handleCreateTeam)
		r.Route("/{teamID}", func(r chi.Router) {
			r.Get("/", s.handleGetTeam)
			r.Delete("/", s.handleDeleteTeam)
			r.Post("/nodes", s.handleCreateNode)
			r.Get("/nodes/{nodeID}", s.handleGetNode)
			r.Post("/search", s.handleSearch)
			r.Get("/graph", s.handleGraph)
			r.Get("/metrics", s.handleMetrics)
		})
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/connections", s.handleConnections)
		r.Post("/platforms/{platform}/sync", s.handleSync)
		r.Delete("/platforms/{platform}", s.handleDisconnect)
	})

	r.Get("/platforms/{platform}/authorize", s.handleAuthorize)
	r.Post("/webhooks/{platform}", s.handleWebhook)

	s.router = r
	return s
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	team, err := s.graph.CreateTeam(r.Context(), req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, team)
}

func (s *Server) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := s.graph.GetTeam(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, team)
}

func (s *Server) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := s.graph.DeleteTeam(r.Context(), chi.URLParam(r, "teamID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req graph.CreateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, isNew, err := s.graph.CreateNode(r.Context(), chi.URLParam(r, "teamID"), req)
	if err != nil {
		s.fail(w, err)
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	s.respond(w, status, created)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	n, err := s.graph.GetNode(r.Context(), chi.URLParam(r, "teamID"), chi.URLParam(r, "nodeID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, n)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req node.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.graph.Search(r.Context(), chi.URLParam(r, "teamID"), req)
	if err != nil {
		s.fail(w, err)
		return
	}

	size := req.Limit
	if size <= 0 {
		size = len(results)
	}
	s.respond(w, http.StatusOK, Paginate(results, size))
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	depth := graph.Depth(r.URL.Query().Get("depth"))
	if depth == "" {
		depth = graph.DepthShallow
	}

	g, err := s.graph.TeamGraph(r.Context(), chi.URLParam(r, "teamID"), depth)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, g)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.graph.Metrics(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, metrics)
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := s.platforms.ListConnections(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, connections)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))
	err := s.platforms.EnqueueSync(r.Context(),
		chi.URLParam(r, "userID"),
		node.Platform(chi.URLParam(r, "platform")),
		full)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	err := s.platforms.DisconnectPlatform(r.Context(),
		chi.URLParam(r, "userID"),
		node.Platform(chi.URLParam(r, "platform")))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	url, err := s.platforms.AuthorizeURL(
		node.Platform(chi.URLParam(r, "platform")),
		r.URL.Query().Get("state"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"url": url})
}

// handleWebhook verifies and enqueues an inbound webhook. Verification
// happens before anything is persisted; a bad signature is rejected with
// 401 and a verified call is acknowledged with 202 once its events are
// durably queued.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	accepted, err := s.platforms.HandleWebhook(r.Context(),
		node.Platform(chi.URLParam(r, "platform")),
		r.Header, body)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, platform.ErrInvalidSignature):
		s.respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, platform.ErrAuthExpired):
		s.respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, platform.ErrUnknownPlatform),
		errors.Is(err, graph.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, graph.ErrTeamNotFound),
		errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, repository.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]string{"error": message})
}

// NewHTTPServer wraps a handler in an http.Server with sane timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}
