// Package server exposes run history over HTTP, read-only.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/signalnine/gradecheck/internal/history"
	"github.com/signalnine/gradecheck/internal/metrics"
	"github.com/signalnine/gradecheck/internal/report"
	"github.com/signalnine/gradecheck/internal/result"
)

const defaultLimit = 50

type Handler struct {
	store   *history.Store
	metrics *metrics.Metrics
}

// New builds the router. Every route is counted in m; m may be nil.
func New(store *history.Store, m *metrics.Metrics) http.Handler {
	h := &Handler{store: store, metrics: m}

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/healthz", m.WrapHandler("/healthz", http.HandlerFunc(h.Health)))
	r.Route("/runs", func(r chi.Router) {
		r.Method(http.MethodGet, "/", m.WrapHandler("/runs", http.HandlerFunc(h.ListRuns)))
		r.Route("/{runID}", func(r chi.Router) {
			r.Method(http.MethodGet, "/", m.WrapHandler("/runs/{runID}", http.HandlerFunc(h.GetRun)))
			r.Method(http.MethodGet, "/report", m.WrapHandler("/runs/{runID}/report", http.HandlerFunc(h.GetReport)))
		})
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRuns returns runs newest first, optionally filtered by ?target=.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	entries, err := h.store.List(r.Context(), r.URL.Query().Get("target"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// GetReport serves a run's stored report: markdown by default, the JSON
// document with ?format=json.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") == "json" {
		rep, err := report.Read(entry.RunDir)
		if err != nil {
			respondError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
		return
	}
	data, err := os.ReadFile(filepath.Join(entry.RunDir, result.ReportMarkdownFile))
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*history.Entry, bool) {
	entry, err := h.store.Get(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, history.ErrNotFound) {
		respondError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return entry, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
