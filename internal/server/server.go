package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/parleylabs/parley/internal/scenario"
	"github.com/parleylabs/parley/internal/state"
	"github.com/parleylabs/parley/internal/version"
)

// maxScenarioBytes bounds the accepted request body for starting a
// negotiation.
const maxScenarioBytes = 1 << 20

// Server is the HTTP front end for running negotiations.
type Server struct {
	manager *Manager
	store   state.Store
	router  chi.Router
}

// New creates the server and its routes.
func New(manager *Manager, store state.Store) *Server {
	s := &Server{
		manager: manager,
		store:   store,
		router:  chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api/negotiations", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Get("/{id}/events", s.handleEvents)
		r.Get("/{id}/decision", s.handleDecision)
	})
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe runs the server on addr until it fails.
func (s *Server) ListenAndServe(addr string) error {
	log.Printf("[server] listening on %s", addr)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpServer.ListenAndServe()
}

// handleStart accepts a scenario document (YAML or JSON) and launches a
// negotiation.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScenarioBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	scn, err := scenario.Parse(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	run, err := s.manager.Start(scn)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	log.Printf("[server] started negotiation %s (%s)", run.ID, scn.Name)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": run.ID})
}

// handleEvents streams a negotiation's lifecycle events as SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok := s.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown negotiation "+id)
		return
	}
	streamEvents(w, r, run)
}

// handleDecision returns the committed decision. The fetch is idempotent:
// repeated calls return the same decision.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	decision, err := s.store.GetDecision(id)
	if err != nil {
		var notFound *state.NotFoundError
		if errors.As(err, &notFound) {
			status := http.StatusNotFound
			if run, ok := s.manager.Get(id); ok && !run.Finished() {
				// Known but still negotiating.
				status = http.StatusConflict
			}
			writeError(w, status, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Get(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[server] encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
