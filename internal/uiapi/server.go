package uiapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/neilk/octowatch/internal/store"
	"github.com/neilk/octowatch/internal/track"
)

// Refresher is the part of the tick driver the API needs: a way to force a
// full re-fetch on the next cycle.
type Refresher interface {
	ForceRefresh()
}

// Server exposes the read-only entity state plus a force-refresh hook over
// HTTP.
type Server struct {
	registry  *track.Registry
	store     *store.Store
	refresher Refresher
	log       *zap.Logger
}

// NewServer creates the API server.
func NewServer(reg *track.Registry, st *store.Store, refresher Refresher, log *zap.Logger) *Server {
	return &Server{registry: reg, store: st, refresher: refresher, log: log}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/entities", s.handleEntities)
		r.Get("/entities/{id}/state", s.handleEntityState)
		r.Get("/entities/{id}/rates/{day}", s.handleEntityRates)
		r.Post("/refresh", s.handleRefresh)
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.registry.IDs())
}

func (s *Server) handleEntityState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	states, err := s.store.GetAll(id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if len(states) == 0 {
		s.respondError(w, http.StatusNotFound, nil)
		return
	}
	s.respondJSON(w, http.StatusOK, states)
}

func (s *Server) handleEntityRates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	day := chi.URLParam(r, "day")
	if _, err := time.Parse("2006-01-02", day); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	table, err := s.store.DayTable(id, day)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if table.Len() == 0 {
		s.respondError(w, http.StatusNotFound, nil)
		return
	}
	s.respondJSON(w, http.StatusOK, table)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refresher.ForceRefresh()
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encoding response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	s.respondJSON(w, status, map[string]string{"error": msg})
}
