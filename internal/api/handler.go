// Package api exposes the read-only search endpoints over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"buscador/internal/metrics"
	"buscador/internal/storage"
)

// Version is the service version reported on the root endpoint.
const Version = "1.0.0"

// Handler provides HTTP access to the establecimientos repository.
//
// Handlers are strictly read-only: every request runs its queries against
// the repository and returns; there is no cross-request state here.
type Handler struct {
	Repo storage.Repository
}

// NewHandler constructs the API handler.
func NewHandler(repo storage.Repository) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The original deployment serves browser frontends from other origins,
	// so every response carries permissive CORS headers.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "*")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == "" {
		path = "/"
	}

	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()

	switch {
	case path == "/":
		h.get(sw, r, h.handleRoot)
	case path == "/api/establecimientos":
		h.get(sw, r, h.handleSearch)
	case path == "/api/provincias":
		h.get(sw, r, h.handleProvincias)
	case path == "/health":
		h.get(sw, r, h.handleHealth)
	default:
		http.NotFound(sw, r)
	}

	observeRequest(path, sw.status, time.Since(start))
}

// get rejects non-GET methods before dispatching; the API is read-only.
func (h *Handler) get(w http.ResponseWriter, r *http.Request, fn func(http.ResponseWriter, *http.Request)) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fn(w, r)
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Buscador de Establecimientos España API",
		"version": Version,
		"endpoints": map[string]string{
			"establecimientos": "/api/establecimientos",
			"provincias":       "/api/provincias",
			"health":           "/health",
		},
	})
}

// pagination is the metadata block returned alongside search results.
type pagination struct {
	Total    int64 `json:"total"`
	Skip     int   `json:"skip"`
	Limit    int   `json:"limit"`
	Returned int   `json:"returned"`
	HasMore  bool  `json:"has_more"`
	NextSkip *int  `json:"next_skip"`
}

type searchResponse struct {
	Establecimientos []storage.Establecimiento `json:"establecimientos"`
	Pagination       pagination                `json:"pagination"`
	Filters          map[string]*string        `json:"filters"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	skip, err := intParam(q, "skip", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "skip must be an integer")
		return
	}
	limit, err := intParam(q, "limit", storage.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	// Bounds are checked before any database call.
	if skip < 0 {
		writeError(w, http.StatusBadRequest, "skip must be >= 0")
		return
	}
	if limit < 1 || limit > storage.MaxLimit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", storage.MaxLimit))
		return
	}

	f := storage.SearchFilter{
		Search:    q.Get("search"),
		Provincia: q.Get("provincia"),
		Skip:      skip,
		Limit:     limit,
	}

	ctx := r.Context()

	rows, err := h.Repo.Search(ctx, f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error en la consulta a la base de datos: "+err.Error())
		return
	}
	total, err := h.Repo.Count(ctx, f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error en la consulta a la base de datos: "+err.Error())
		return
	}

	returned := len(rows)
	hasMore := int64(skip+returned) < total
	var nextSkip *int
	if hasMore {
		v := skip + limit
		nextSkip = &v
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Establecimientos: rows,
		Pagination: pagination{
			Total:    total,
			Skip:     skip,
			Limit:    limit,
			Returned: returned,
			HasMore:  hasMore,
			NextSkip: nextSkip,
		},
		Filters: map[string]*string{
			"search":    echoParam(q, "search"),
			"provincia": echoParam(q, "provincia"),
		},
	})
}

func (h *Handler) handleProvincias(w http.ResponseWriter, r *http.Request) {
	provincias, err := h.Repo.Provincias(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error en la consulta a la base de datos: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provincias": provincias,
		"total":      len(provincias),
	})
}

// handleHealth never fails the HTTP call: database trouble is reported in
// the body, not the status code.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.Repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "unhealthy",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"database": "connected",
		"message":  "API funcionando correctamente",
	})
}

// intParam parses an optional integer query parameter.
func intParam(q url.Values, key string, fallback int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// echoParam returns the raw parameter value for the filters echo block, or
// nil when the parameter was not supplied at all.
func echoParam(q url.Values, key string) *string {
	if !q.Has(key) {
		return nil
	}
	v := q.Get(key)
	return &v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError mirrors the original API's error body shape.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"detail": message})
}

// statusWriter captures the response status for instrumentation.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func observeRequest(path string, status int, elapsed time.Duration) {
	labels := metrics.Labels{"path": path, "status": strconv.Itoa(status)}
	metrics.IncCounter("http_requests_total", 1, labels)
	if status >= http.StatusInternalServerError {
		metrics.IncCounter("http_errors_total", 1, labels)
	}
	metrics.ObserveHistogram("http_request_duration_seconds", elapsed.Seconds(), labels)
}
