package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crawlq/internal/logging"
	"crawlq/internal/queue"
)

// StatusSource reports queue counts for /status.
type StatusSource interface {
	Health(ctx context.Context) (queue.HealthSummary, error)
}

// Server serves /healthz, /metrics, and /status.
type Server struct {
	metrics *Metrics
	status  StatusSource
	logger  *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// NewServer constructs a telemetry server. status may be nil.
func NewServer(metrics *Metrics, status StatusSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		metrics: metrics,
		status:  status,
		logger:  logging.NewComponentLogger(logger, "telemetry"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.metrics != nil {
		r.Mount("/metrics", s.metrics.Handler())
	}
	r.Get("/status", s.handleStatus)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	health, err := s.status.Health(r.Context())
	if err != nil {
		s.logger.Warn("status query failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_query_failed"),
			logging.String(logging.FieldErrorHint, "check the queue database"),
		)
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	s.metrics.SetQueue(health)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr uses port 0.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("telemetry server stopped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "telemetry_server_failed"),
			)
		}
	}()
	bound := listener.Addr().String()
	s.logger.Info("telemetry listening", logging.String("addr", bound))
	return bound, nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
