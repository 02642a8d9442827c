package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/pagewatch/internal/pipeline"
	"github.com/FranksOps/pagewatch/internal/report"
	"github.com/FranksOps/pagewatch/internal/scraper"
	"github.com/FranksOps/pagewatch/internal/storage"
	"github.com/FranksOps/pagewatch/internal/target"
	"github.com/go-chi/chi/v5"
)

type crawlRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleURLs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "Missing id")
		return
	}

	t, err := s.registry.Lookup(req.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown URL id")
		return
	}

	entry, err := s.crawler.Run(r.Context(), t)
	if err != nil {
		var fe *scraper.FetchError
		switch {
		case errors.As(err, &fe):
			writeError(w, http.StatusBadGateway, fe.Error())
		case errors.Is(err, pipeline.ErrStore):
			s.logger.Error("crawl not persisted", "id", t.ID, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to save crawl result")
		default:
			s.logger.Error("crawl failed", "id", t.ID, "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.history.Read(r.Context(), chi.URLParam(r, "id"))

	q := r.URL.Query()
	if q.Get("order") != "asc" {
		entries = storage.Newest(entries)
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < len(entries) {
			entries = entries[:n]
		}
	}

	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary := report.GenerateSummary(s.history.Read(r.Context(), id))
	s.fillIdentity(&summary, id)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHistoryPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries := s.history.Read(r.Context(), id)
	summary := report.GenerateSummary(entries)
	s.fillIdentity(&summary, id)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteHTML(w, summary, storage.Newest(entries)); err != nil {
		s.logger.Error("render history page", "id", id, "err", err)
	}
}

// fillIdentity labels summaries of targets that have no history yet.
func (s *Server) fillIdentity(summary *report.Summary, id string) {
	if summary.ID != "" {
		return
	}
	summary.ID = id
	if t, err := s.registry.Lookup(id); err == nil {
		summary.URL, summary.Label = t.URL, t.Label
	} else if errors.Is(err, target.ErrUnknownTarget) {
		summary.Label = id
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
