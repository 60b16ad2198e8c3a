// Package server exposes the resolver over HTTP: single-place lookups, cache
// statistics, and run history.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/heritage-maps/gedmap-cli/internal/model"
	"github.com/heritage-maps/gedmap-cli/internal/resolver"
	"github.com/heritage-maps/gedmap-cli/internal/store"
)

// Server routes lookup requests to a shared resolver. The run store is
// optional; without it /api/v1/runs returns 404.
type Server struct {
	resolver *resolver.Resolver
	runs     *store.RunStore

	// mu serializes all resolver and cache access: the cache underneath
	// is a single-writer table, and lookups mutate it and the counters.
	mu sync.Mutex
}

func New(r *resolver.Resolver, runs *store.RunStore) *Server {
	return &Server{resolver: r, runs: runs}
}

// Router builds the chi mux for the server.
func (s *Server) Router() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.StripSlashes)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	router.Get("/healthz", s.handleHealth)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/lookup", s.handleLookup)
		r.Get("/cache/stats", s.handleCacheStats)
		if s.runs != nil {
			r.Get("/runs", s.handleRuns)
		}
	})

	return router
}

type lookupResponse struct {
	Place       string  `json:"place"`
	Found       bool    `json:"found"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	CountryName string  `json:"country_name,omitempty"`
	Continent   string  `json:"continent,omitempty"`
	DisplayName string  `json:"display_name,omitempty"`
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	place := r.URL.Query().Get("place")
	if place == "" {
		abort(w, http.StatusBadRequest, "missing place parameter")
		return
	}

	s.mu.Lock()
	loc := s.resolver.LookupLocation(r.Context(), place)
	s.mu.Unlock()

	resp := lookupResponse{Place: place}
	if loc != nil && loc.Coord != nil {
		resp.Found = true
		resp.Latitude = loc.Coord.Lat
		resp.Longitude = loc.Coord.Lon
		resp.CountryCode = loc.CountryCode
		resp.CountryName = loc.CountryName
		resp.Continent = loc.Continent
		resp.DisplayName = loc.Address
	}
	writeJSON(w, http.StatusOK, resp)
}

type cacheStatsResponse struct {
	Rows              int `json:"rows"`
	Positive          int `json:"positive"`
	Negative          int `json:"negative"`
	Expired           int `json:"expired"`
	LiveLookups       int `json:"live_lookups"`
	CacheHits         int `json:"cache_hits"`
	CacheNegativeHits int `json:"cache_negative_hits"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	cache := s.resolver.Cache()

	s.mu.Lock()
	rows := cache.Len()
	positive, negative, expired := cache.Stats()
	counters := s.resolver.Counters()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, cacheStatsResponse{
		Rows:              rows,
		Positive:          positive,
		Negative:          negative,
		Expired:           expired,
		LiveLookups:       counters.LiveLookups,
		CacheHits:         counters.CacheHits,
		CacheNegativeHits: counters.CacheNegativeHits,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			abort(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
	}

	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		zap.L().Error("server: list runs", zap.Error(err))
		abort(w, http.StatusInternalServerError, "run history unavailable")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: write response", zap.Error(err))
	}
}

func abort(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
