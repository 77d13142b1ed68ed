// Package server exposes the election service as a JSON HTTP API.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/verte-zerg/electmap/internal/election"
	"github.com/verte-zerg/electmap/internal/model"
)

const (
	DefaultTitle       = "Election Map"
	DefaultStrokeWidth = 1.0
	DefaultListen      = ":5000"

	maxImportBytes = 32 << 20
)

// Service is the subset of the election service the API needs.
type Service interface {
	Results(ctx context.Context) (model.Results, error)
	District(ctx context.Context, districtID string) (model.DistrictDetail, error)
	UpdateDistrict(ctx context.Context, req election.UpdateRequest) (election.UpdateResult, error)
	Swing(ctx context.Context, req election.SwingRequest) (election.SwingResult, error)
	Import(ctx context.Context, r io.Reader) (election.ImportSummary, error)
	History(ctx context.Context, limit int) ([]model.Operation, error)
	SeatTimeline(ctx context.Context, partyID string) ([]model.SeatPoint, error)
}

// Options configures presentation defaults and logging.
type Options struct {
	Title       string
	StrokeWidth float64
	// LockTotal is used for swings that do not set lock_total.
	LockTotal bool
	Logger    *slog.Logger
}

// Server holds the handlers.
type Server struct {
	svc    Service
	opts   Options
	logger *slog.Logger
}

// New returns a Server. Empty options fall back to the defaults.
func New(svc Service, opts Options) *Server {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	if opts.StrokeWidth <= 0 {
		opts.StrokeWidth = DefaultStrokeWidth
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, opts: opts, logger: logger}
}

// Routes returns the router with all endpoints mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(WithLogging(s.logger))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/results", s.handleResults)
		r.Get("/district/{id}", s.handleDistrict)
		r.Post("/district/update", s.handleUpdateDistrict)
		r.Post("/swing", s.handleSwing)
		r.Post("/import", s.handleImport)
		r.Get("/history", s.handleHistory)
		r.Get("/parties/{id}/timeline", s.handleTimeline)
	})
	return r
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	WriteError(w, status, err.Error())
}
