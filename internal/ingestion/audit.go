package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sipsa-io/sipsa/internal/config"
	"github.com/sipsa-io/sipsa/internal/storage"
)

// Audit event types. The set is closed; the RECORD_*, ERROR_* and
// FORCE_RESTART members are reserved for per-record auditing.
const (
	EventRequestReceived           = "REQUEST_RECEIVED"
	EventRequestAccepted           = "REQUEST_ACCEPTED"
	EventRequestRejected           = "REQUEST_REJECTED"
	EventIngestionStarted          = "INGESTION_STARTED"
	EventIngestionRunning          = "INGESTION_RUNNING"
	EventIngestionSucceeded        = "INGESTION_SUCCEEDED"
	EventIngestionFailed           = "INGESTION_FAILED"
	EventIngestionSkippedWindow    = "INGESTION_SKIPPED_WINDOW"
	EventIngestionSkippedDuplicate = "INGESTION_SKIPPED_DUPLICATE"
	EventMetricsUpdated            = "METRICS_UPDATED"

	EventRecordInserted = "RECORD_INSERTED"
	EventRecordUpdated  = "RECORD_UPDATED"
	EventRecordRejected = "RECORD_REJECTED"
	EventErrorValidation = "ERROR_VALIDATION"
	EventErrorParse      = "ERROR_PARSE"
	EventErrorDatabase   = "ERROR_DATABASE"
	EventErrorSoap       = "ERROR_SOAP"
	EventErrorThreshold  = "ERROR_THRESHOLD"
	EventForceRestart    = "FORCE_RESTART"
)

type (
	// EventLogger persists audit events; implemented by storage.ControlStore.
	EventLogger interface {
		LogEvent(ctx context.Context, event storage.AuditEvent) error
	}

	// EventPublisher mirrors audit events to an external sink, best-effort.
	EventPublisher interface {
		Publish(ctx context.Context, event storage.AuditEvent)
	}

	// Auditor records audit events. Failures are logged and swallowed: the
	// audit subsystem must never break ingestion.
	Auditor struct {
		store     EventLogger
		publisher EventPublisher // optional
		logger    *slog.Logger
	}
)

// NewAuditor creates the audit recorder. publisher may be nil.
func NewAuditor(store EventLogger, publisher EventPublisher) *Auditor {
	return &Auditor{
		store:     store,
		publisher: publisher,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// Log persists one audit event and mirrors it to the publisher if configured.
func (a *Auditor) Log(ctx context.Context, event storage.AuditEvent) {
	if err := a.store.LogEvent(ctx, event); err != nil {
		a.logger.Error("Failed to log audit event",
			slog.String("request_id", event.RequestID),
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()),
		)
	}

	if a.publisher != nil {
		a.publisher.Publish(ctx, event)
	}
}

// Event constructors. Message formats follow the audit trail consumers.

func eventRequestReceived(requestID string, source storage.RequestSource, methodName string, force bool) storage.AuditEvent {
	return storage.AuditEvent{
		RequestID:     requestID,
		RequestSource: source,
		EventType:     EventRequestReceived,
		Message:       fmt.Sprintf("Method: %s, Force: %t", methodName, force),
	}
}

func eventRequestAccepted(requestID string, source storage.RequestSource, methodName string, force bool) storage.AuditEvent {
	return storage.AuditEvent{
		RequestID:     requestID,
		RequestSource: source,
		EventType:     EventRequestAccepted,
		Message:       fmt.Sprintf("Request accepted for async processing - Method: %s, Force: %t", methodName, force),
	}
}

func eventRequestRejected(requestID string, source storage.RequestSource, reason string) storage.AuditEvent {
	return storage.AuditEvent{
		RequestID:     requestID,
		RequestSource: source,
		EventType:     EventRequestRejected,
		Message:       reason,
	}
}

func eventSkippedWindow(req Request, reason string) storage.AuditEvent {
	return storage.AuditEvent{
		RequestID:     req.RequestID,
		RequestSource: req.Source,
		EventType:     EventIngestionSkippedWindow,
		Message:       "Method: " + req.MethodName + " - " + reason,
	}
}

func eventSkippedDuplicate(req Request, windowKey, reason string) storage.AuditEvent {
	message := "Method: " + req.MethodName + ", Window: " + windowKey
	if reason != "" {
		message += " - " + reason
	}

	return storage.AuditEvent{
		RequestID:     req.RequestID,
		RequestSource: req.Source,
		EventType:     EventIngestionSkippedDuplicate,
		Message:       message,
	}
}

func eventStarted(req Request, runID int64, windowKey string) storage.AuditEvent {
	return storage.AuditEvent{
		RequestID:     req.RequestID,
		RunID:         &runID,
		RequestSource: req.Source,
		EventType:     EventIngestionStarted,
		Message:       fmt.Sprintf("Method: %s, Window: %s, Force: %t", req.MethodName, windowKey, req.Force),
	}
}

func eventRunning(req Request, runID int64) storage.AuditEvent {
	return storage.AuditEvent{
		RequestID:     req.RequestID,
		RunID:         &runID,
		RequestSource: req.Source,
		EventType:     EventIngestionRunning,
		Message:       "Starting data ingestion for method: " + req.MethodName,
	}
}

func eventSucceeded(runCtx *RunContext) storage.AuditEvent {
	return storage.AuditEvent{
		RequestID:     runCtx.RequestID,
		RunID:         &runCtx.RunID,
		RequestSource: runCtx.Source,
		EventType:     EventIngestionSucceeded,
		Message: fmt.Sprintf("Completed successfully - Seen: %d, Inserted: %d, Updated: %d, Rejected: %d",
			runCtx.Seen(), runCtx.Inserted(), runCtx.Updated(), runCtx.Rejected()),
	}
}

func eventFailed(req Request, runID int64, errorMessage string) storage.AuditEvent {
	return storage.AuditEvent{
		RequestID:     req.RequestID,
		RunID:         &runID,
		RequestSource: req.Source,
		EventType:     EventIngestionFailed,
		Message:       "Error: " + errorMessage,
	}
}

func eventMetricsUpdated(runCtx *RunContext) storage.AuditEvent {
	return storage.AuditEvent{
		RequestID:     runCtx.RequestID,
		RunID:         &runCtx.RunID,
		RequestSource: runCtx.Source,
		EventType:     EventMetricsUpdated,
		Message: fmt.Sprintf("Final metrics - Seen: %d, Inserted: %d, Updated: %d, Rejected: %d",
			runCtx.Seen(), runCtx.Inserted(), runCtx.Updated(), runCtx.Rejected()),
	}
}

// RequestReceived audits the synchronous receipt of an API request.
func (a *Auditor) RequestReceived(ctx context.Context, requestID string, source storage.RequestSource, methodName string, force bool) {
	a.Log(ctx, eventRequestReceived(requestID, source, methodName, force))
}

// RequestAccepted audits the hand-off of a valid request to async execution.
func (a *Auditor) RequestAccepted(ctx context.Context, requestID string, source storage.RequestSource, methodName string, force bool) {
	a.Log(ctx, eventRequestAccepted(requestID, source, methodName, force))
}

// RequestRejected audits a request that failed validation.
func (a *Auditor) RequestRejected(ctx context.Context, requestID string, source storage.RequestSource, reason string) {
	a.Log(ctx, eventRequestRejected(requestID, source, reason))
}
