package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"sensorwatch/internal/config"
	"sensorwatch/internal/sensor"
	"sensorwatch/internal/service"
)

// Pipeline is the part of the service the HTTP layer drives.
type Pipeline interface {
	ProcessEvent(ctx context.Context, ev sensor.Event) service.BatchResult
	HandleCommand(ctx context.Context, text string) string
}

// ArmState reports the arming gate for health checks.
type ArmState interface {
	Armed() bool
}

// Server exposes the webhook, command, health and metrics endpoints.
type Server struct {
	cfg      config.ServerConfig
	pipeline Pipeline
	arm      ArmState
	metrics  http.Handler
	logger   zerolog.Logger
}

// New constructs a Server. metricsHandler may be nil.
func New(cfg config.ServerConfig, pipeline Pipeline, arm ArmState, metricsHandler http.Handler, logger zerolog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		arm:      arm,
		metrics:  metricsHandler,
		logger:   logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the request router.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/", s.handleEvent).Methods(http.MethodPost)
	r.HandleFunc("/events", s.handleEvent).Methods(http.MethodPost)
	r.HandleFunc("/command", s.handleCommand).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info().Msg("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return ctx.Err()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug().Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
