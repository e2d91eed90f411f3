package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/lumenpay/service/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP API in front of one session and its payment orchestrator.
type Server struct {
	addr     string
	session  SessionService
	payments PaymentService
	stream   *AttemptStream
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The stream is optional - if nil, the SSE endpoint won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, sess SessionService, payments PaymentService, stream *AttemptStream, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		session:  sess,
		payments: payments,
		stream:   stream,
		metrics:  m,
		logger:   logger,
	}
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, pattern)(h))
	}

	// Session routes
	route("POST /api/v1/session/connect", handleConnect(s.session, s.logger))
	route("GET /api/v1/session", handleGetSession(s.session))
	route("POST /api/v1/session/refresh", handleRefreshBalance(s.session, s.logger))

	// Payment routes
	route("POST /api/v1/payments", handleSendPayment(s.payments, s.logger))
	route("GET /api/v1/payments/current", handleCurrentAttempt(s.payments))

	if s.stream != nil {
		route("GET /api/v1/stream/attempts", handleStreamAttempts(s.stream, s.session, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("attempt stream not configured, streaming endpoint disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: wallet prompts and event streams hold responses open.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Disconnect stream clients first so Shutdown does not wait on them.
	if s.stream != nil {
		s.stream.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
