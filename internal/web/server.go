// Package web serves the engine's operational HTTP surface: health,
// Prometheus metrics, and read-only status/availability APIs.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/campwatch/campwatch/internal/db"
	"github.com/campwatch/campwatch/internal/engine"
	"github.com/campwatch/campwatch/internal/metrics"
	"github.com/campwatch/campwatch/internal/upstream"
)

type Server struct {
	store   *db.Store
	engine  *engine.Engine
	gov     *engine.Governor
	session *upstream.Session
	addr    string
	logger  *slog.Logger
}

func NewServer(store *db.Store, eng *engine.Engine, gov *engine.Governor, session *upstream.Session, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, engine: eng, gov: gov, session: session, addr: addr, logger: logger}
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down web server")
		server.Shutdown(context.Background())
	}()

	s.logger.Info("starting web server", slog.String("addr", s.addr))
	return server.ListenAndServe()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/availability", s.handleAvailability)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB.PingContext(r.Context()); err != nil {
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type statusResponse struct {
	Engine        engine.Stats          `json:"engine"`
	Governor      engine.GovernorStats  `json:"governor"`
	Session       upstream.SessionStats `json:"session"`
	ActiveJobs    int64                 `json:"active_jobs"`
	ActiveScans   int64                 `json:"active_scans_today"`
	PollsToday    int64                 `json:"polls_today"`
	Notifications int64                 `json:"notifications_today"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	active, polls, notes, err := s.store.StatsToday(r.Context())
	if err != nil {
		s.logger.Error("stats query failed", slog.String("err", err.Error()))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	jobs, err := s.store.CountActiveJobs(r.Context())
	if err != nil {
		s.logger.Error("job count failed", slog.String("err", err.Error()))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		Engine:        s.engine.Stats(),
		Governor:      s.gov.Stats(),
		Session:       s.session.Stats(),
		ActiveJobs:    jobs,
		ActiveScans:   active,
		PollsToday:    polls,
		Notifications: notes,
	}
	writeJSON(w, resp, s.logger)
}

// handleAvailability serves the stored per-date counts:
// /api/availability?campground=232447&from=2026-07-01&to=2026-07-31
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	campground := q.Get("campground")
	if campground == "" {
		http.Error(w, "campground required", http.StatusBadRequest)
		return
	}
	from, err := time.Parse("2006-01-02", q.Get("from"))
	if err != nil {
		http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := time.Parse("2006-01-02", q.Get("to"))
	if err != nil {
		http.Error(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if to.Before(from) {
		http.Error(w, "to before from", http.StatusBadRequest)
		return
	}

	rows, err := s.store.ListAvailabilityByDate(r.Context(), campground, from, to)
	if err != nil {
		s.logger.Error("availability query failed", slog.String("err", err.Error()))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows, s.logger)
}

func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response failed", slog.String("err", err.Error()))
	}
}
