package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sipsa-io/sipsa/internal/config"
	"github.com/sipsa-io/sipsa/internal/soap"
	"github.com/sipsa-io/sipsa/internal/soap/parser"
	"github.com/sipsa-io/sipsa/internal/storage"
)

type (
	// WindowPolicy validates execution moments; implemented by window.Policy.
	WindowPolicy interface {
		ValidateAndKey(methodName string, force bool, now time.Time) (string, error)
	}

	// ControlStore is the run/reject persistence surface the job needs;
	// implemented by storage.ControlStore.
	ControlStore interface {
		CreateOrRestartRun(ctx context.Context, req storage.CreateRunRequest) (int64, error)
		UpdateStatus(ctx context.Context, runID int64, status storage.RunStatus) error
		UpdateMetrics(ctx context.Context, runID int64, seen, inserted, updated, rejected int) error
		LogError(ctx context.Context, runID int64, message string, httpStatus *int, faultCode *string) error
		AppendRejects(ctx context.Context, runID int64, rejects []storage.RejectInput) error
		IsWindowComplete(ctx context.Context, methodName, windowKey string) (bool, error)
	}

	// Job orchestrates one ingestion execution: window gate, duplicate gate,
	// run lifecycle, handler dispatch, quality thresholds, and finalization.
	Job struct {
		policy   WindowPolicy
		control  ControlStore
		auditor  *Auditor
		registry *Registry
		cfg      *Config
		logger   *slog.Logger
		now      func() time.Time
	}
)

// NewJob creates the orchestrator.
func NewJob(policy WindowPolicy, control ControlStore, auditor *Auditor, registry *Registry, cfg *Config) *Job {
	return &Job{
		policy:   policy,
		control:  control,
		auditor:  auditor,
		registry: registry,
		cfg:      cfg,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
		now: time.Now,
	}
}

// Execute runs the ingestion state machine for one request.
//
// Skip outcomes (window violation, duplicate window) return nil after writing
// their audit event; a run that reached execution returns nil on SUCCEEDED
// and the causing error on FAILED.
func (j *Job) Execute(ctx context.Context, req Request) error {
	windowKey, err := j.policy.ValidateAndKey(req.MethodName, req.Force, j.now())
	if err != nil {
		j.logger.Warn("Skipping run outside window",
			slog.String("method", req.MethodName),
			slog.String("reason", err.Error()),
		)
		j.auditor.Log(ctx, eventSkippedWindow(req, err.Error()))

		return nil
	}

	if !req.Force {
		complete, err := j.control.IsWindowComplete(ctx, req.MethodName, windowKey)
		if err != nil {
			j.logger.Error("Failed to check window completion",
				slog.String("method", req.MethodName),
				slog.String("window_key", windowKey),
				slog.String("error", err.Error()),
			)

			return err
		}

		if complete {
			j.logger.Info("Run already succeeded, skipping",
				slog.String("method", req.MethodName),
				slog.String("window_key", windowKey),
			)
			j.auditor.Log(ctx, eventSkippedDuplicate(req, windowKey, ""))

			return nil
		}
	}

	runID, err := j.control.CreateOrRestartRun(ctx, storage.CreateRunRequest{
		MethodName:    req.MethodName,
		WindowKey:     windowKey,
		RequestID:     req.RequestID,
		RequestSource: req.Source,
		Force:         req.Force,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateRun) {
			j.logger.Info("Skipping duplicate run",
				slog.String("method", req.MethodName),
				slog.String("window_key", windowKey),
				slog.String("reason", err.Error()),
			)
			j.auditor.Log(ctx, eventSkippedDuplicate(req, windowKey, err.Error()))

			return nil
		}

		j.logger.Error("Failed to create run",
			slog.String("method", req.MethodName),
			slog.String("window_key", windowKey),
			slog.String("error", err.Error()),
		)

		return err
	}

	j.auditor.Log(ctx, eventStarted(req, runID, windowKey))

	runCtx := NewRunContext(runID, req, windowKey)

	runErr := j.run(ctx, req, runCtx)

	// Finalization happens regardless of outcome: metrics, the single reject
	// flush, and the closing audit event.
	if err := j.control.UpdateMetrics(ctx, runID, runCtx.Seen(), runCtx.Inserted(), runCtx.Updated(), runCtx.Rejected()); err != nil {
		j.logger.Error("Failed to update metrics",
			slog.Int64("run_id", runID),
			slog.String("error", err.Error()),
		)
	}

	j.persistRejects(ctx, runCtx)
	j.auditor.Log(ctx, eventMetricsUpdated(runCtx))

	return runErr
}

// run drives the RUNNING phase and terminal status transition.
func (j *Job) run(ctx context.Context, req Request, runCtx *RunContext) error {
	runID := runCtx.RunID

	if err := j.control.UpdateStatus(ctx, runID, storage.RunRunning); err != nil {
		j.logger.Error("Failed to mark run RUNNING",
			slog.Int64("run_id", runID),
			slog.String("error", err.Error()),
		)
	}

	j.auditor.Log(ctx, eventRunning(req, runID))
	j.logger.Info("Started ingestion job",
		slog.String("method", req.MethodName),
		slog.Int64("run_id", runID),
	)

	err := j.registry.Execute(ctx, req.MethodName, runCtx)
	if err == nil {
		err = j.validateThresholds(runCtx)
	}

	if err != nil {
		j.logger.Error("Ingestion job failed",
			slog.String("method", req.MethodName),
			slog.Int64("run_id", runID),
			slog.String("error", err.Error()),
		)

		httpStatus, faultCode := classifyError(err)

		if logErr := j.control.LogError(ctx, runID, err.Error(), httpStatus, faultCode); logErr != nil {
			j.logger.Error("Failed to record run error",
				slog.Int64("run_id", runID),
				slog.String("error", logErr.Error()),
			)
		}

		if statusErr := j.control.UpdateStatus(ctx, runID, storage.RunFailed); statusErr != nil {
			j.logger.Error("Failed to mark run FAILED",
				slog.Int64("run_id", runID),
				slog.String("error", statusErr.Error()),
			)
		}

		j.auditor.Log(ctx, eventFailed(req, runID, err.Error()))

		return err
	}

	if statusErr := j.control.UpdateStatus(ctx, runID, storage.RunSucceeded); statusErr != nil {
		j.logger.Error("Failed to mark run SUCCEEDED",
			slog.Int64("run_id", runID),
			slog.String("error", statusErr.Error()),
		)
	}

	j.auditor.Log(ctx, eventSucceeded(runCtx))
	j.logger.Info("Ingestion job succeeded",
		slog.String("method", req.MethodName),
		slog.Int64("run_id", runID),
		slog.String("stats", runCtx.LogSummary()),
	)

	return nil
}

// validateThresholds enforces the quality gates on a run that finished its
// stream: absolute reject count, then reject rate when any records were seen.
func (j *Job) validateThresholds(runCtx *RunContext) error {
	if runCtx.Rejected() > j.cfg.MaxRejectCount {
		return fmt.Errorf("%w: reject count %d above limit %d",
			ErrThresholdExceeded, runCtx.Rejected(), j.cfg.MaxRejectCount)
	}

	if runCtx.Seen() > 0 {
		rate := float64(runCtx.Rejected()) / float64(runCtx.Seen())
		if rate > j.cfg.MaxRejectRate {
			return fmt.Errorf("%w: reject rate %.4f above limit %.4f",
				ErrThresholdExceeded, rate, j.cfg.MaxRejectRate)
		}
	}

	return nil
}

// persistRejects flushes the accumulated rejects once, best-effort.
func (j *Job) persistRejects(ctx context.Context, runCtx *RunContext) {
	rejects := runCtx.Rejects()
	if len(rejects) == 0 {
		return
	}

	if err := j.control.AppendRejects(ctx, runCtx.RunID, rejects); err != nil {
		j.logger.Error("Failed to persist rejected records",
			slog.Int64("run_id", runCtx.RunID),
			slog.Int("count", len(rejects)),
			slog.String("error", err.Error()),
		)

		return
	}

	j.logger.Info("Persisted rejected records",
		slog.Int64("run_id", runCtx.RunID),
		slog.Int("count", len(rejects)),
	)
}

// classifyError extracts the last-error detail columns from the failure.
func classifyError(err error) (httpStatus *int, faultCode *string) {
	var external *soap.ExternalError
	if errors.As(err, &external) && external.HTTPStatus != 0 {
		status := external.HTTPStatus
		httpStatus = &status
	}

	var fault *parser.FaultError
	if errors.As(err, &fault) {
		code := fault.Message
		faultCode = &code
	}

	return httpStatus, faultCode
}
