// Package api serves table counts and benchmark reports to the dashboard.
package api

import (
	"context"
	"expvar"
	"net/http"

	"github.com/EmpoweredVote/nyc311/internal/benchmark"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/EmpoweredVote/nyc311/internal/middleware"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/go-chi/chi/v5"
)

type StatsSource interface {
	Counts(ctx context.Context) (schema.TableCounts, error)
}

type ReportSource interface {
	List(ctx context.Context, limit int) ([]benchmark.ReportRow, error)
	Get(ctx context.Context, runID string) (*benchmark.ComparisonReport, error)
	Latest(ctx context.Context) (*benchmark.ComparisonReport, error)
}

type Server struct {
	stats   StatsSource
	reports ReportSource
	log     *logger.Logger
}

func NewServer(stats StatsSource, reports ReportSource, log *logger.Logger) *Server {
	return &Server{stats: stats, reports: reports, log: log.With("component", "api")}
}

func (s *Server) SetupRoutes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(origins))
	r.Use(middleware.RequestLogger(s.log))

	r.Get("/", RootHandler)
	r.Get("/stats", s.StatsHandler)
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", s.ListReportsHandler)
		r.Get("/latest", s.LatestReportHandler)
		r.Get("/{run_id}", s.ReportHandler)
	})
	r.Handle("/debug/vars", expvar.Handler())

	return r
}
