package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/efebarandurmaz/tome/internal/cache"
	"github.com/efebarandurmaz/tome/internal/ingest"
	"github.com/efebarandurmaz/tome/internal/observability"
	"github.com/efebarandurmaz/tome/internal/search"
)

// Searcher executes retrieval queries.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// DocumentIndexer chunks, embeds and stores documents.
type DocumentIndexer interface {
	Index(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// API is the HTTP API server.
type API struct {
	searcher Searcher
	indexer  DocumentIndexer
	cache    *cache.Cache
	health   *Health
	log      zerolog.Logger

	httpServer *http.Server

	searches     *observability.Counter
	searchErrors *observability.Counter
	documents    *observability.Counter
	latency      *observability.Histogram
	metrics      *observability.MetricsRegistry
}

// NewAPI creates the API server. The cache is optional; cache endpoints
// return 404 when it is nil.
func NewAPI(searcher Searcher, indexer DocumentIndexer, c *cache.Cache, health *Health, metrics *observability.MetricsRegistry, log zerolog.Logger) *API {
	if metrics == nil {
		metrics = observability.NewMetricsRegistry()
	}
	return &API{
		searcher:     searcher,
		indexer:      indexer,
		cache:        c,
		health:       health,
		log:          log,
		metrics:      metrics,
		searches:     metrics.NewCounter("tome_searches_total", "Total search requests"),
		searchErrors: metrics.NewCounter("tome_search_errors_total", "Total failed search requests"),
		documents:    metrics.NewCounter("tome_documents_indexed_total", "Total documents indexed"),
		latency:      metrics.NewHistogram("tome_request_duration_seconds", "HTTP request latency", nil),
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handler returns the full route table.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", a.handleSearch)
	mux.HandleFunc("/v1/index", a.handleIndex)
	mux.HandleFunc("/v1/cache/stats", a.handleCacheStats)
	mux.HandleFunc("/v1/cache/sweep", a.handleCacheSweep)
	mux.HandleFunc("/v1/cache/clear", a.handleCacheClear)
	mux.Handle("/metrics", a.metrics.Handler())
	if a.health != nil {
		a.health.Register(mux)
	}
	return a.logRequests(mux)
}

// ListenAndServe starts the HTTP server.
func (a *API) ListenAndServe(addr string) error {
	if addr == "" {
		addr = ":8080"
	}
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
	return a.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (a *API) Shutdown(ctx context.Context) error {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Shutdown(ctx)
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	start := time.Now()
	defer a.latency.ObserveDuration(start)

	// Defaults applied before decode so absent fields keep them.
	req := search.Request{UseCache: true}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	a.searches.Inc()
	resp, err := a.searcher.Search(r.Context(), req)
	if err != nil {
		a.searchErrors.Inc()
		a.writeSearchError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	start := time.Now()
	defer a.latency.ObserveDuration(start)

	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	result, err := a.indexer.Index(r.Context(), req)
	if err != nil {
		a.log.Error().Err(err).Str("doc_id", req.DocID).Msg("index failed")
		a.writeError(w, http.StatusInternalServerError, "index_failed", err.Error())
		return
	}

	a.documents.Inc()
	a.writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if a.cache == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		a.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	a.writeJSON(w, http.StatusOK, a.cache.Stats())
}

func (a *API) handleCacheSweep(w http.ResponseWriter, r *http.Request) {
	if a.cache == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		a.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	removed := a.cache.SweepExpired()
	a.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (a *API) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if a.cache == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		a.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	a.cache.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrValidation):
		a.writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, search.ErrEmbedding):
		a.writeError(w, http.StatusBadGateway, "embedding_failed", err.Error())
	case errors.Is(err, search.ErrIndex):
		a.writeError(w, http.StatusBadGateway, "index_unavailable", err.Error())
	default:
		a.writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (a *API) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.log.Warn().Err(err).Msg("encode response")
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, code, msg string) {
	a.writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
