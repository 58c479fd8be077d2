package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/sipsa-io/sipsa/internal/config"
)

// Sentinel errors for run lifecycle operations. All three duplicate-run
// variants unwrap to ErrDuplicateRun so callers can treat them uniformly.
var (
	// ErrDuplicateRun is the umbrella for all "this window is taken" outcomes.
	ErrDuplicateRun = errors.New("duplicate run for method and window")

	// ErrRunAlreadySucceeded is returned when a non-forced run targets a
	// window that already completed successfully.
	ErrRunAlreadySucceeded = fmt.Errorf("%w: already succeeded", ErrDuplicateRun)

	// ErrRunInProgress is returned when a non-forced run targets a window
	// with an existing non-FAILED, non-SUCCEEDED run.
	ErrRunInProgress = fmt.Errorf("%w: run in progress", ErrDuplicateRun)

	// ErrRunAlreadyExists is returned when a concurrent insert lost the race
	// on the (method_name, window_key) unique constraint.
	ErrRunAlreadyExists = fmt.Errorf("%w: concurrent create", ErrDuplicateRun)

	// ErrRunNotFound is returned by audit queries for an unknown run.
	ErrRunNotFound = errors.New("run not found")
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// recentEventsLimit caps the recent-audit query.
const recentEventsLimit = 100

// CreateRunRequest carries the inputs of CreateOrRestartRun.
type CreateRunRequest struct {
	MethodName    string
	WindowKey     string
	RequestID     string
	RequestSource RequestSource
	Force         bool
}

// ControlStore persists runs, audit events, and rejects.
//
// Every operation opens its own top-level transaction (or runs as a single
// autocommit statement), independent of the ingestion's logical unit, so that
// a failed run cannot erase its own control trail.
type ControlStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewControlStore creates a PostgreSQL-backed control store.
func NewControlStore(conn *Connection) (*ControlStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &ControlStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// CreateOrRestartRun creates the run row for (methodName, windowKey), or
// resets an existing restartable row and reuses its runId.
//
// Rules for an existing row r:
//   - r.status = SUCCEEDED and !force  -> ErrRunAlreadySucceeded
//   - r.status != FAILED and !force    -> ErrRunInProgress
//   - otherwise reset: status STARTED, times/counters/errors cleared,
//     request fields replaced, same runId returned.
//
// Two callers racing on the same window are serialized by the unique
// constraint: the loser's insert surfaces as ErrRunAlreadyExists.
func (s *ControlStore) CreateOrRestartRun(ctx context.Context, req CreateRunRequest) (int64, error) {
	tx, err := s.conn.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin create-run transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	var (
		runID  int64
		status RunStatus
	)

	row := tx.QueryRowContext(ctx, `
		SELECT run_id, status
		FROM ingestion_runs
		WHERE method_name = $1 AND window_key = $2
		FOR UPDATE
	`, req.MethodName, req.WindowKey)

	err = row.Scan(&runID, &status)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		runID, err = s.insertRun(ctx, tx, req)
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, fmt.Errorf("failed to look up run %s/%s: %w", req.MethodName, req.WindowKey, err)
	default:
		if status == RunSucceeded && !req.Force {
			return 0, fmt.Errorf("run %d for %s/%s: %w", runID, req.MethodName, req.WindowKey, ErrRunAlreadySucceeded)
		}

		if status != RunFailed && !req.Force {
			return 0, fmt.Errorf("run %d for %s/%s has status %s: %w",
				runID, req.MethodName, req.WindowKey, status, ErrRunInProgress)
		}

		s.logger.Warn("Restarting existing run",
			slog.String("method", req.MethodName),
			slog.String("window_key", req.WindowKey),
			slog.Int64("run_id", runID),
		)

		if _, err := tx.ExecContext(ctx, `
			UPDATE ingestion_runs
			SET status = $2,
			    start_time = $3,
			    end_time = NULL,
			    records_seen = 0,
			    records_inserted = 0,
			    records_updated = 0,
			    reject_count = 0,
			    last_error_message = NULL,
			    http_status = NULL,
			    soap_fault_code = NULL,
			    request_id = $4,
			    request_source = $5
			WHERE run_id = $1
		`, runID, RunStarted, time.Now().UTC(), req.RequestID, req.RequestSource); err != nil {
			return 0, fmt.Errorf("failed to reset run %d: %w", runID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit create-run transaction: %w", err)
	}

	return runID, nil
}

// insertRun inserts a fresh STARTED row, translating a unique violation into
// ErrRunAlreadyExists.
func (s *ControlStore) insertRun(ctx context.Context, tx *sql.Tx, req CreateRunRequest) (int64, error) {
	var runID int64

	err := tx.QueryRowContext(ctx, `
		INSERT INTO ingestion_runs
			(method_name, window_key, request_id, request_source, status, start_time,
			 records_seen, records_inserted, records_updated, reject_count)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, 0)
		RETURNING run_id
	`, req.MethodName, req.WindowKey, req.RequestID, req.RequestSource, RunStarted, time.Now().UTC()).Scan(&runID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return 0, fmt.Errorf("run for %s/%s: %w", req.MethodName, req.WindowKey, ErrRunAlreadyExists)
		}

		return 0, fmt.Errorf("failed to insert run %s/%s: %w", req.MethodName, req.WindowKey, err)
	}

	return runID, nil
}

// UpdateStatus sets the run status; terminal statuses also stamp end_time.
func (s *ControlStore) UpdateStatus(ctx context.Context, runID int64, status RunStatus) error {
	var err error

	if status.IsTerminal() {
		_, err = s.conn.ExecContext(ctx, `
			UPDATE ingestion_runs SET status = $2, end_time = $3 WHERE run_id = $1
		`, runID, status, time.Now().UTC())
	} else {
		_, err = s.conn.ExecContext(ctx, `
			UPDATE ingestion_runs SET status = $2 WHERE run_id = $1
		`, runID, status)
	}

	if err != nil {
		return fmt.Errorf("failed to update status of run %d to %s: %w", runID, status, err)
	}

	return nil
}

// UpdateMetrics stores the final counters of a run.
func (s *ControlStore) UpdateMetrics(ctx context.Context, runID int64, seen, inserted, updated, rejected int) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE ingestion_runs
		SET records_seen = $2, records_inserted = $3, records_updated = $4, reject_count = $5
		WHERE run_id = $1
	`, runID, seen, inserted, updated, rejected)
	if err != nil {
		return fmt.Errorf("failed to update metrics of run %d: %w", runID, err)
	}

	return nil
}

// LogError stores the last-error fields of a run.
func (s *ControlStore) LogError(ctx context.Context, runID int64, message string, httpStatus *int, faultCode *string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE ingestion_runs
		SET last_error_message = $2, http_status = $3, soap_fault_code = $4
		WHERE run_id = $1
	`, runID, message, httpStatus, faultCode)
	if err != nil {
		return fmt.Errorf("failed to log error of run %d: %w", runID, err)
	}

	return nil
}

// AppendRejects persists the rejects accumulated during a run in one batch.
func (s *ControlStore) AppendRejects(ctx context.Context, runID int64, rejects []RejectInput) error {
	if len(rejects) == 0 {
		return nil
	}

	raw := make([]string, len(rejects))
	reasons := make([]string, len(rejects))
	parseFlags := make([]bool, len(rejects))

	for i, reject := range rejects {
		raw[i] = reject.RawData
		reasons[i] = reject.Reason
		parseFlags[i] = reject.IsParseError
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO ingestion_rejects (run_id, raw_data, reason, is_parse_error, created_at)
		SELECT $1, r.raw_data, r.reason, r.is_parse_error, $5
		FROM unnest($2::text[], $3::text[], $4::boolean[]) AS r(raw_data, reason, is_parse_error)
	`, runID, pq.Array(raw), pq.Array(reasons), pq.Array(parseFlags), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append %d rejects for run %d: %w", len(rejects), runID, err)
	}

	return nil
}

// CountRejects returns the number of persisted rejects for a run.
func (s *ControlStore) CountRejects(ctx context.Context, runID int64) (int, error) {
	var count int

	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ingestion_rejects WHERE run_id = $1
	`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rejects of run %d: %w", runID, err)
	}

	return count, nil
}

// IsWindowComplete reports whether a SUCCEEDED run exists for the window.
func (s *ControlStore) IsWindowComplete(ctx context.Context, methodName, windowKey string) (bool, error) {
	var count int

	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ingestion_runs
		WHERE method_name = $1 AND window_key = $2 AND status = $3
	`, methodName, windowKey, RunSucceeded).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check window %s/%s: %w", methodName, windowKey, err)
	}

	return count > 0, nil
}

// GetRun fetches a run by id.
func (s *ControlStore) GetRun(ctx context.Context, runID int64) (*Run, error) {
	run := &Run{}

	err := s.conn.QueryRowContext(ctx, `
		SELECT run_id, method_name, window_key, request_id, request_source, status,
		       start_time, end_time, records_seen, records_inserted, records_updated,
		       reject_count, last_error_message, http_status, soap_fault_code
		FROM ingestion_runs WHERE run_id = $1
	`, runID).Scan(
		&run.RunID, &run.MethodName, &run.WindowKey, &run.RequestID, &run.RequestSource,
		&run.Status, &run.StartTime, &run.EndTime, &run.RecordsSeen, &run.RecordsInserted,
		&run.RecordsUpdated, &run.RejectCount, &run.LastErrorMessage, &run.HTTPStatus,
		&run.SoapFaultCode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", runID, ErrRunNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch run %d: %w", runID, err)
	}

	return run, nil
}

// LatestRuns returns the most recent run per method name, for the health view.
func (s *ControlStore) LatestRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT DISTINCT ON (method_name)
		       run_id, method_name, window_key, request_id, request_source, status,
		       start_time, end_time, records_seen, records_inserted, records_updated,
		       reject_count, last_error_message, http_status, soap_fault_code
		FROM ingestion_runs
		ORDER BY method_name, start_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest runs: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var runs []Run

	for rows.Next() {
		var run Run

		if err := rows.Scan(
			&run.RunID, &run.MethodName, &run.WindowKey, &run.RequestID, &run.RequestSource,
			&run.Status, &run.StartTime, &run.EndTime, &run.RecordsSeen, &run.RecordsInserted,
			&run.RecordsUpdated, &run.RejectCount, &run.LastErrorMessage, &run.HTTPStatus,
			&run.SoapFaultCode,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// LogEvent appends one audit event. The audit table is append-only; rows are
// never modified or deleted.
func (s *ControlStore) LogEvent(ctx context.Context, event AuditEvent) error {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO ingestion_audit (run_id, request_id, request_source, event_type, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.RunID, event.RequestID, event.RequestSource, event.EventType, event.Message, occurredAt)
	if err != nil {
		return fmt.Errorf("failed to log audit event %s: %w", event.EventType, err)
	}

	return nil
}

// AuditTrailByRequestID returns all audit events of a request, oldest first.
func (s *ControlStore) AuditTrailByRequestID(ctx context.Context, requestID string) ([]AuditEvent, error) {
	return s.queryAudit(ctx, `
		SELECT audit_id, run_id, request_id, request_source, event_type, message, occurred_at
		FROM ingestion_audit
		WHERE request_id = $1
		ORDER BY occurred_at ASC, audit_id ASC
	`, requestID)
}

// AuditTrailByRunID returns all audit events of a run, oldest first.
func (s *ControlStore) AuditTrailByRunID(ctx context.Context, runID int64) ([]AuditEvent, error) {
	return s.queryAudit(ctx, `
		SELECT audit_id, run_id, request_id, request_source, event_type, message, occurred_at
		FROM ingestion_audit
		WHERE run_id = $1
		ORDER BY occurred_at ASC, audit_id ASC
	`, runID)
}

// RecentEvents returns the last 100 audit events, newest first.
func (s *ControlStore) RecentEvents(ctx context.Context) ([]AuditEvent, error) {
	return s.queryAudit(ctx, `
		SELECT audit_id, run_id, request_id, request_source, event_type, message, occurred_at
		FROM ingestion_audit
		ORDER BY occurred_at DESC, audit_id DESC
		LIMIT $1
	`, recentEventsLimit)
}

func (s *ControlStore) queryAudit(ctx context.Context, query string, args ...any) ([]AuditEvent, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var events []AuditEvent

	for rows.Next() {
		var event AuditEvent

		if err := rows.Scan(
			&event.AuditID, &event.RunID, &event.RequestID, &event.RequestSource,
			&event.EventType, &event.Message, &event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}

		events = append(events, event)
	}

	return events, rows.Err()
}
