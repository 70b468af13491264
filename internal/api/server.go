// Package api serves the tracker's HTTP interface.
package api

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"tfttracker/internal/auth"
	"tfttracker/internal/data"
	"tfttracker/internal/events"
	"tfttracker/internal/matchsync"
	"tfttracker/internal/riot"
	"tfttracker/internal/stats"
)

// RiotAccounts resolves Riot IDs to accounts
type RiotAccounts interface {
	ValidateRegion(region string) (string, error)
	GetAccountByRiotID(ctx context.Context, region, gameName, tagLine string) (*riot.AccountResponse, error)
}

// Deps are the collaborators the server is built from.
// Riot, Syncer and Hub may be nil; their routes then answer 503.
type Deps struct {
	Store      *data.Store
	Cache      data.Cache
	Tokens     *auth.TokenManager
	Riot       RiotAccounts
	Syncer     *matchsync.Syncer
	Hub        *events.Hub
	Aggregator *stats.Aggregator
	Logger     logrus.FieldLogger
}

// Server holds the HTTP handlers
type Server struct {
	store  *data.Store
	cache  data.Cache
	tokens *auth.TokenManager
	riot   RiotAccounts
	syncer *matchsync.Syncer
	hub    *events.Hub
	agg    *stats.Aggregator
	log    logrus.FieldLogger
}

// New creates a server from deps
func New(d Deps) *Server {
	s := &Server{
		store:  d.Store,
		cache:  d.Cache,
		tokens: d.Tokens,
		riot:   d.Riot,
		syncer: d.Syncer,
		hub:    d.Hub,
		agg:    d.Aggregator,
		log:    d.Logger,
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.cache == nil {
		s.cache = data.NewQueryCache(0)
	}
	if s.agg == nil {
		s.agg = stats.New(stats.NewNormalizer(stats.DefaultTraitPrefix))
	}
	return s
}

// Handler returns the routed handler wrapped in the standard middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return requestLogger(s.log)(recoverer(s.log)(mux))
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Auth
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)

	// Users
	mux.Handle("GET /users/me", s.authenticated(s.handleMe))

	// Admin
	mux.Handle("GET /admin/users", s.requireRole(data.RoleAdmin, s.handleListUsers))
	mux.Handle("DELETE /admin/users/{id}", s.requireRole(data.RoleAdmin, s.handleDeleteUser))
	mux.Handle("PUT /admin/users/{id}/role", s.requireRole(data.RoleAdmin, s.handleUpdateRole))

	// Manual games
	mux.Handle("POST /games", s.authenticated(s.handleCreateGame))
	mux.Handle("GET /games", s.authenticated(s.handleListGames))
	mux.Handle("GET /games/stats", s.authenticated(s.handleGameStats))
	mux.Handle("PUT /games/{id}", s.authenticated(s.handleUpdateGame))
	mux.Handle("DELETE /games/{id}", s.authenticated(s.handleDeleteGame))

	// Riot
	mux.Handle("PUT /riot/link", s.authenticated(s.handleLinkRiot))
	mux.Handle("GET /riot/matches", s.authenticated(s.handleRiotMatches))
	mux.Handle("POST /riot/sync", s.authenticated(s.handleSync))

	// Stored matches and statistics
	mux.Handle("GET /matches", s.authenticated(s.handleListMatches))
	mux.Handle("GET /matches/{match_id}", s.authenticated(s.handleGetMatch))
	mux.Handle("GET /stats/compositions", s.authenticated(s.handleCompositions))
	mux.Handle("GET /stats/units", s.authenticated(s.handleTopUnits))
	mux.Handle("GET /stats/traits", s.authenticated(s.handleTopTraits))

	// Live events
	mux.Handle("GET /ws", s.authenticated(s.handleWebSocket))

	// Paths used by earlier clients
	mux.Handle("POST /games/add", s.authenticated(s.handleCreateGame))
	mux.Handle("GET /games/history", s.authenticated(s.handleListGames))
	mux.Handle("PUT /games/{id}/update", s.authenticated(s.handleUpdateGame))
	mux.Handle("DELETE /games/{id}/delete", s.authenticated(s.handleDeleteGame))
	mux.Handle("PUT /riot/link-riot", s.authenticated(s.handleLinkRiot))
	mux.Handle("DELETE /admin/users/delete/{id}", s.requireRole(data.RoleAdmin, s.handleDeleteUser))
	mux.Handle("PUT /admin/users/update/{id}/role", s.requireRole(data.RoleAdmin, s.handleUpdateRole))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the GameTracker API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		s.log.WithError(err).Error("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
