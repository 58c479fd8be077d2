package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sipsa-io/sipsa/internal/api/middleware"
	"github.com/sipsa-io/sipsa/internal/ingestion"
	"github.com/sipsa-io/sipsa/internal/storage"
)

type (
	// Executor runs one ingestion request asynchronously from the trigger
	// endpoint; implemented by ingestion.Job.
	Executor interface {
		Execute(ctx context.Context, req ingestion.Request) error
	}

	// AuditQueries is the read surface of the audit trail.
	AuditQueries interface {
		AuditTrailByRequestID(ctx context.Context, requestID string) ([]storage.AuditEvent, error)
		AuditTrailByRunID(ctx context.Context, runID int64) ([]storage.AuditEvent, error)
		RecentEvents(ctx context.Context) ([]storage.AuditEvent, error)
	}

	// RunQueries is the health view over runs.
	RunQueries interface {
		LatestRuns(ctx context.Context) ([]storage.Run, error)
	}

	// CiudadLister pages city price rows.
	CiudadLister interface {
		List(ctx context.Context, filter storage.CiudadFilter, limit, offset int) ([]storage.Ciudad, int64, error)
	}

	// ParcialLister pages municipal market rows.
	ParcialLister interface {
		List(ctx context.Context, filter storage.ParcialFilter, limit, offset int) ([]storage.Parcial, int64, error)
	}

	// SemanaLister pages weekly wholesale rows.
	SemanaLister interface {
		List(ctx context.Context, filter storage.SemanaFilter, limit, offset int) ([]storage.MayoristasSemanal, int64, error)
	}

	// MesLister pages monthly wholesale rows.
	MesLister interface {
		List(ctx context.Context, filter storage.MesFilter, limit, offset int) ([]storage.MayoristasMensual, int64, error)
	}

	// AbasLister pages monthly supply rows.
	AbasLister interface {
		List(ctx context.Context, filter storage.AbasFilter, limit, offset int) ([]storage.AbastecimientosMensual, int64, error)
	}

	// Pinger checks storage connectivity for the health endpoint.
	Pinger interface {
		PingContext(ctx context.Context) error
	}

	// Dependencies carries the collaborators the server routes to.
	Dependencies struct {
		Job      Executor
		Registry *ingestion.Registry
		Auditor  *ingestion.Auditor
		Audit    AuditQueries
		Runs     RunQueries
		Ciudad   CiudadLister
		Parcial  ParcialLister
		Semana   SemanaLister
		Mes      MesLister
		Abas     AbasLister
		DB       Pinger

		APIKeyStore storage.APIKeyStore    // nil disables authentication
		RateLimiter middleware.RateLimiter // nil disables rate limiting
	}

	// Server is the HTTP API server.
	Server struct {
		httpServer *http.Server
		logger     *slog.Logger
		config     *ServerConfig
		deps       *Dependencies
		loc        *time.Location
		startTime  time.Time
	}
)

// NewServer creates the HTTP server with structured logging and the
// middleware stack.
func NewServer(cfg *ServerConfig, deps *Dependencies) (*Server, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("unknown service time zone %q: %w", cfg.TimeZone, err)
	}

	server := &Server{
		logger: logger,
		config: cfg,
		deps:   deps,
		loc:    loc,
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	if deps.APIKeyStore != nil {
		logger.Info("API key authentication enabled for internal endpoints")
	} else {
		logger.Warn("API key authentication disabled - internal endpoints are open")
	}

	if deps.RateLimiter == nil {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	// Middleware executes in the order listed (top-to-bottom).
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithAPIKeyAuth(deps.APIKeyStore, logger),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithTimezone(),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting SIPSA API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server and its closable middleware.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if closer, ok := s.deps.RateLimiter.(interface{ Close() error }); ok && s.deps.RateLimiter != nil {
		if err := closer.Close(); err != nil {
			s.logger.Error("Failed to close rate limiter", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("Server shutdown completed")

	return nil
}
