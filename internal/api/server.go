// Package api provides the engine's inspection HTTP API: read-only views
// over the batch registry and storage, plus the
// Prometheus /metrics endpoint (SPEC_FULL.md §4 "inspection surface").
//
// Grounded on the teacher's internal/api/server.go: the same chi router,
// middleware stack (RequestID, RealIP, Recoverer, Timeout, CORS), and
// promhttp.Handler() mount, re-pointed from model-serving endpoints to
// the engine's own batch/asset inspection routes.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/batch"
	"github.com/cjgribel/eeng-core/internal/infra/meta"
	"github.com/cjgribel/eeng-core/internal/infra/storage"
)

// Server is the engine's inspection HTTP API server.
type Server struct {
	batches        *batch.Registry
	storage        *storage.Storage
	reg            *meta.Registry
	metricsEnabled bool
}

// NewServer creates an inspection server over batches (the load/save/unload
// catalog) and storage (the live object pools, for asset lookup by GUID).
func NewServer(batches *batch.Registry, stg *storage.Storage, reg *meta.Registry) *Server {
	return &Server{batches: batches, storage: stg, reg: reg}
}

// EnableMetrics mounts the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with every inspection route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/batches", func(r chi.Router) {
		r.Get("/", s.handleListBatches)
		r.Get("/{id}", s.handleGetBatch)
	})

	r.Get("/assets/{guid}", s.handleGetAsset)

	if s.metricsEnabled {
		promH := promhttp.Handler()
		r.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			s.storage.RefreshMetrics(s.reg)
			promH.ServeHTTP(w, req)
		}))
	}

	return r
}

// handleListBatches returns every batch the registry knows about, along
// with its current lifecycle state.
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches := s.batches.List()
	out := make([]batchView, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchView(b))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetBatch returns one batch's full detail, including its live
// entity ids and asset closure.
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := parseGUID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return
	}
	b, ok := s.batches.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, toBatchView(*b))
}

// handleGetAsset reports whether an asset GUID is currently loaded in
// storage, across every registered pool.
func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(chi.URLParam(r, "guid"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset guid")
		return
	}
	for _, info := range s.reg.AllTypes() {
		if mh, ok := s.storage.HandleForGUIDAny(info.TypeId, guid); ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"guid":       guid.String(),
				"type":       info.IDString,
				"slot":       mh.Slot,
				"version":    mh.Version,
				"registered": true,
			})
			return
		}
	}
	writeError(w, http.StatusNotFound, "asset not loaded")
}

type batchView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Filename     string   `json:"filename"`
	State        string   `json:"state"`
	ErrorMessage string   `json:"error_message,omitempty"`
	LiveEntities int      `json:"live_entities"`
	AssetClosure []string `json:"asset_closure"`
}

func toBatchView(b batch.Batch) batchView {
	closure := make([]string, 0, len(b.AssetClosure))
	for _, g := range b.AssetClosure {
		closure = append(closure, g.String())
	}
	return batchView{
		ID:           b.ID.String(),
		Name:         b.Name,
		Filename:     b.Filename,
		State:        b.State.String(),
		ErrorMessage: b.ErrorMessage,
		LiveEntities: len(b.Live),
		AssetClosure: closure,
	}
}

func parseGUID(s string) (domain.GUID, bool) {
	g, err := domain.ParseGUID(s)
	if err != nil {
		return domain.InvalidGUID, false
	}
	return g, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
