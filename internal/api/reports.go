package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

const (
	defaultReportLimit = 50
	maxReportLimit     = 500
)

// ReportListResponse is the body of GET /api/v1/reports.
type ReportListResponse struct {
	Reports []*core.ReportRecord `json:"reports"`
	Count   int                  `json:"count"`
}

func (s *Server) reportStore(w http.ResponseWriter) core.ReportStore {
	store := s.guard.Store()
	if store == nil {
		respondError(w, http.StatusServiceUnavailable, "report persistence is disabled")
	}
	return store
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	store := s.reportStore(w)
	if store == nil {
		return
	}

	filter := core.ReportFilter{Limit: defaultReportLimit}
	if raw := r.URL.Query().Get("passed"); raw != "" {
		passed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "passed must be true or false")
			return
		}
		filter.Passed = &passed
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxReportLimit {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxReportLimit))
			return
		}
		filter.Limit = limit
	}

	reports, err := store.List(r.Context(), filter)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ReportListResponse{Reports: reports, Count: len(reports)})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	store := s.reportStore(w)
	if store == nil {
		return
	}
	rec, err := store.Get(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
