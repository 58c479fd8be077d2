// Package scheduler drives time-based ingestion triggers.
//
// Three cron entries fire in the configured zone: the daily batch runs the
// city, municipal, and weekly methods sequentially, and two monthly entries
// run the wholesale-month and supply methods on their configured days. A
// failure in one daily method does not stop the next.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/sipsa-io/sipsa/internal/config"
	"github.com/sipsa-io/sipsa/internal/ingestion"
)

const (
	defaultDailyCron      = "20 14 * * *"
	defaultMonthlyMesCron = "0 6 8 * *"
	defaultMonthlyAbasCron = "0 6 10 * *"
)

// Config holds the cron expressions and zone for the triggers.
type Config struct {
	DailyCron       string
	MonthlyMesCron  string
	MonthlyAbasCron string
	Location        *time.Location
}

// LoadConfig loads scheduler configuration from environment variables.
func LoadConfig() (*Config, error) {
	zone := config.GetEnvStr("SIPSA_TIMEZONE", "America/Bogota")

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("unknown scheduler time zone %q: %w", zone, err)
	}

	return &Config{
		DailyCron:       config.GetEnvStr("SIPSA_CRON_DAILY", defaultDailyCron),
		MonthlyMesCron:  config.GetEnvStr("SIPSA_CRON_MONTHLY_MES", defaultMonthlyMesCron),
		MonthlyAbasCron: config.GetEnvStr("SIPSA_CRON_MONTHLY_ABAS", defaultMonthlyAbasCron),
		Location:        loc,
	}, nil
}

// Executor runs one ingestion request; implemented by ingestion.Job.
type Executor interface {
	Execute(ctx context.Context, req ingestion.Request) error
}

// Scheduler owns the cron runner and submits scheduled requests.
type Scheduler struct {
	cron   *cron.Cron
	job    Executor
	logger *slog.Logger
}

// New creates the scheduler and registers the three trigger entries.
func New(cfg *Config, job Executor) (*Scheduler, error) {
	scheduler := &Scheduler{
		cron: cron.New(cron.WithLocation(cfg.Location)),
		job:  job,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}

	if _, err := scheduler.cron.AddFunc(cfg.DailyCron, scheduler.runDailyWindow); err != nil {
		return nil, fmt.Errorf("invalid daily cron %q: %w", cfg.DailyCron, err)
	}

	if _, err := scheduler.cron.AddFunc(cfg.MonthlyMesCron, scheduler.runMonthlyMes); err != nil {
		return nil, fmt.Errorf("invalid monthly mes cron %q: %w", cfg.MonthlyMesCron, err)
	}

	if _, err := scheduler.cron.AddFunc(cfg.MonthlyAbasCron, scheduler.runMonthlyAbas); err != nil {
		return nil, fmt.Errorf("invalid monthly abas cron %q: %w", cfg.MonthlyAbasCron, err)
	}

	return scheduler, nil
}

// Start begins firing cron entries in the background.
func (s *Scheduler) Start() {
	s.logger.Info("Starting ingestion scheduler")
	s.cron.Start()
}

// Stop stops the cron runner and waits for in-flight entries.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Ingestion scheduler stopped")
}

// runDailyWindow fires the three daily methods in sequence.
func (s *Scheduler) runDailyWindow() {
	s.logger.Info("Triggering daily ingestion window")
	s.runSafely(ingestion.MethodCiudad)
	s.runSafely(ingestion.MethodParcial)
	s.runSafely(ingestion.MethodSemana)
}

// runMonthlyMes fires the monthly wholesale method.
func (s *Scheduler) runMonthlyMes() {
	s.logger.Info("Triggering monthly wholesale ingestion")
	s.runSafely(ingestion.MethodMes)
}

// runMonthlyAbas fires the monthly supply method.
func (s *Scheduler) runMonthlyAbas() {
	s.logger.Info("Triggering monthly supply ingestion")
	s.runSafely(ingestion.MethodAbas)
}

// runSafely submits one scheduled request; errors are logged so the next
// method in a batch still fires.
func (s *Scheduler) runSafely(methodName string) {
	requestID := uuid.NewString()

	s.logger.Info("Scheduler triggering method",
		slog.String("method", methodName),
		slog.String("request_id", requestID),
		slog.String("source", "SCHEDULED"),
	)

	if err := s.job.Execute(context.Background(), ingestion.ScheduledRequest(methodName, requestID)); err != nil {
		s.logger.Error("Scheduled ingestion failed",
			slog.String("method", methodName),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}
