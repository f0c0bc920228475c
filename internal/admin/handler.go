// Package admin serves the optional loopback ops surface: health,
// metrics, stored request records. It lives on its own port so the
// vendor route table stays untouched.
package admin

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/localforge/ollamabridge/internal/metrics"
	"github.com/localforge/ollamabridge/internal/middleware"
	"github.com/localforge/ollamabridge/internal/store"
)

const (
	defaultRequestLimit = 50
	maxRequestLimit     = 500
)

// Handler handles admin operations.
type Handler struct {
	stateFn      func() string
	upstreamAddr string
	startedAt    time.Time
	store        *store.Store
	metrics      *metrics.Metrics
	logger       *log.Logger
	token        string
}

// NewHandler creates a new admin handler. stateFn reports the proxy
// lifecycle state; store and metrics may be nil when disabled.
func NewHandler(stateFn func() string, upstreamAddr string, st *store.Store, m *metrics.Metrics, token string, logger *log.Logger) *Handler {
	return &Handler{
		stateFn:      stateFn,
		upstreamAddr: upstreamAddr,
		startedAt:    time.Now(),
		store:        st,
		metrics:      m,
		logger:       logger,
		token:        token,
	}
}

// Routes builds the admin mux wrapped in logging and the token guard.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/stats", h.Stats)
	mux.HandleFunc("/requests", h.Requests)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics.Handler())
	}

	guard := middleware.NewTokenMiddleware(h.token)
	logging := middleware.NewLoggingMiddleware(h.logger)
	return logging.LogRequest(guard.Require(mux))
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error": "method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]interface{}{
		"state":    h.stateFn(),
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
		"upstream": h.upstreamAddr,
	})
}

// Stats handles GET /stats with the store summary.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error": "method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		http.Error(w, `{"error": "request store is disabled"}`, http.StatusNotFound)
		return
	}

	sum, err := h.store.Summarize()
	if err != nil {
		h.logger.Printf("failed to summarize requests: %v", err)
		http.Error(w, `{"error": "failed to summarize requests"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, sum)
}

// Requests handles GET /requests?limit=n with recent request records.
func (h *Handler) Requests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error": "method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		http.Error(w, `{"error": "request store is disabled"}`, http.StatusNotFound)
		return
	}

	limit := defaultRequestLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, `{"error": "invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > maxRequestLimit {
		limit = maxRequestLimit
	}

	recs, err := h.store.Recent(limit)
	if err != nil {
		h.logger.Printf("failed to load recent requests: %v", err)
		http.Error(w, `{"error": "failed to load requests"}`, http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []store.RequestRecord{}
	}
	writeJSON(w, map[string]interface{}{"requests": recs})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
