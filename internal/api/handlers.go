package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/EmpoweredVote/nyc311/internal/benchmark"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

type statsResponse struct {
	Statuses       int64 `json:"statuses"`
	ComplaintTypes int64 `json:"complaint_types"`
	Locations      int64 `json:"locations"`
	Complaints     int64 `json:"complaints"`
	Total          int64 `json:"total"`
}

func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.stats.Counts(r.Context())
	if err != nil {
		s.log.Error("count tables", "error", err)
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, statsResponse{
		Statuses:       c.Statuses,
		ComplaintTypes: c.ComplaintTypes,
		Locations:      c.Locations,
		Complaints:     c.Complaints,
		Total:          c.Total(),
	})
}

func (s *Server) ListReportsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}
	rows, err := s.reports.List(r.Context(), limit)
	if err != nil {
		s.log.Error("list reports", "error", err)
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []benchmark.ReportRow{}
	}
	writeJSON(w, rows)
}

func (s *Server) LatestReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.Latest(r.Context())
	s.writeReport(w, report, err)
}

func (s *Server) ReportHandler(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if _, err := uuid.Parse(runID); err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}
	report, err := s.reports.Get(r.Context(), runID)
	s.writeReport(w, report, err)
}

func (s *Server) writeReport(w http.ResponseWriter, report *benchmark.ComparisonReport, err error) {
	if errors.Is(err, benchmark.ErrReportNotFound) {
		http.Error(w, "Report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("load report", "error", err)
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
