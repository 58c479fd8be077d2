package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/sipsa-io/sipsa/internal/config"
)

func setupControlStore(t *testing.T) (*ControlStore, *Connection) {
	t.Helper()

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	conn := &Connection{DB: testDB.Connection}

	store, err := NewControlStore(conn)
	require.NoError(t, err)

	return store, conn
}

func TestCreateOrRestartRunLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, _ := setupControlStore(t)
	ctx := context.Background()

	req := CreateRunRequest{
		MethodName:    "promediosSipsaCiudad",
		WindowKey:     "2026-01-02",
		RequestID:     "req-1",
		RequestSource: SourceManual,
	}

	runID, err := store.CreateOrRestartRun(ctx, req)
	require.NoError(t, err)
	require.Positive(t, runID)

	// Same window without force while the run is STARTED.
	_, err = store.CreateOrRestartRun(ctx, req)
	require.ErrorIs(t, err, ErrRunInProgress)
	require.ErrorIs(t, err, ErrDuplicateRun)

	// After FAILED, a non-forced restart reuses the run id and resets it.
	require.NoError(t, store.UpdateStatus(ctx, runID, RunFailed))
	require.NoError(t, store.UpdateMetrics(ctx, runID, 100, 40, 0, 3))

	restartReq := req
	restartReq.RequestID = "req-2"

	restartedID, err := store.CreateOrRestartRun(ctx, restartReq)
	require.NoError(t, err)
	assert.Equal(t, runID, restartedID)

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunStarted, run.Status)
	assert.Equal(t, "req-2", run.RequestID)
	assert.Zero(t, run.RecordsSeen)
	assert.Zero(t, run.RecordsInserted)
	assert.Zero(t, run.RejectCount)
	assert.Nil(t, run.EndTime)
	assert.Nil(t, run.LastErrorMessage)

	// After SUCCEEDED, only force may restart.
	require.NoError(t, store.UpdateStatus(ctx, runID, RunSucceeded))

	_, err = store.CreateOrRestartRun(ctx, req)
	require.ErrorIs(t, err, ErrRunAlreadySucceeded)

	complete, err := store.IsWindowComplete(ctx, req.MethodName, req.WindowKey)
	require.NoError(t, err)
	assert.True(t, complete)

	forcedReq := req
	forcedReq.Force = true

	forcedID, err := store.CreateOrRestartRun(ctx, forcedReq)
	require.NoError(t, err)
	assert.Equal(t, runID, forcedID)
}

func TestCreateOrRestartRunConcurrent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, _ := setupControlStore(t)
	ctx := context.Background()

	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  int
	)

	for i := range workers {
		wg.Add(1)

		go func(worker int) {
			defer wg.Done()

			_, err := store.CreateOrRestartRun(ctx, CreateRunRequest{
				MethodName:    "promediosSipsaMesMadr",
				WindowKey:     "2026-02-08",
				RequestID:     "req-concurrent",
				RequestSource: SourceScheduled,
			})

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				successes++
			} else {
				require.ErrorIs(t, err, ErrDuplicateRun)
				failures++
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one caller may create the run")
	assert.Equal(t, workers-1, failures)
}

func TestUpdateStatusStampsEndTimeOnTerminal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, _ := setupControlStore(t)
	ctx := context.Background()

	runID, err := store.CreateOrRestartRun(ctx, CreateRunRequest{
		MethodName:    "promediosSipsaParcial",
		WindowKey:     "2026-01-03",
		RequestID:     "req-status",
		RequestSource: SourceManual,
	})
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ctx, runID, RunRunning))

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, run.Status)
	assert.Nil(t, run.EndTime)

	require.NoError(t, store.UpdateStatus(ctx, runID, RunSucceeded))

	run, err = store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, run.Status)
	require.NotNil(t, run.EndTime)
	assert.WithinDuration(t, time.Now(), *run.EndTime, time.Minute)
}

func TestAppendRejectsAndCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, _ := setupControlStore(t)
	ctx := context.Background()

	runID, err := store.CreateOrRestartRun(ctx, CreateRunRequest{
		MethodName:    "promediosSipsaSemanaMadr",
		WindowKey:     "2026-01-04",
		RequestID:     "req-rejects",
		RequestSource: SourceManual,
	})
	require.NoError(t, err)

	rejects := []RejectInput{
		{RawData: "artiId=null", Reason: "Missing required fields: artiId", IsParseError: false},
		{RawData: "fuenId=null", Reason: "Missing required fields: fuenId", IsParseError: false},
		{RawData: "promediosSipsaSemanaMadr", Reason: "record exceeds 100 child elements", IsParseError: true},
	}

	require.NoError(t, store.AppendRejects(ctx, runID, rejects))

	count, err := store.CountRejects(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, len(rejects), count)

	require.NoError(t, store.AppendRejects(ctx, runID, nil), "empty flush is a no-op")
}

func TestAuditTrailOrderingAndQueries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, _ := setupControlStore(t)
	ctx := context.Background()

	runID, err := store.CreateOrRestartRun(ctx, CreateRunRequest{
		MethodName:    "promediosSipsaCiudad",
		WindowKey:     "2026-01-05",
		RequestID:     "req-audit",
		RequestSource: SourceManual,
	})
	require.NoError(t, err)

	base := time.Now().UTC().Truncate(time.Millisecond)

	types := []string{"INGESTION_STARTED", "INGESTION_RUNNING", "INGESTION_SUCCEEDED", "METRICS_UPDATED"}
	for i, eventType := range types {
		require.NoError(t, store.LogEvent(ctx, AuditEvent{
			RunID:         &runID,
			RequestID:     "req-audit",
			RequestSource: SourceManual,
			EventType:     eventType,
			Message:       eventType,
			OccurredAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	trail, err := store.AuditTrailByRequestID(ctx, "req-audit")
	require.NoError(t, err)
	require.Len(t, trail, len(types))

	for i, event := range trail {
		assert.Equal(t, types[i], event.EventType, "events come back oldest first")
	}

	byRun, err := store.AuditTrailByRunID(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, byRun, len(types))

	recent, err := store.RecentEvents(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, "METRICS_UPDATED", recent[0].EventType, "recent events come back newest first")

	missing, err := store.AuditTrailByRequestID(ctx, "no-such-request")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLogErrorPersistsDetail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, _ := setupControlStore(t)
	ctx := context.Background()

	runID, err := store.CreateOrRestartRun(ctx, CreateRunRequest{
		MethodName:    "promedioAbasSipsaMesMadr",
		WindowKey:     "2026-02-10",
		RequestID:     "req-error",
		RequestSource: SourceScheduled,
	})
	require.NoError(t, err)

	httpStatus := 502
	faultCode := "Backend busy"
	require.NoError(t, store.LogError(ctx, runID, "SOAP fault in response: Backend busy", &httpStatus, &faultCode))

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, run.LastErrorMessage)
	assert.Contains(t, *run.LastErrorMessage, "Backend busy")
	require.NotNil(t, run.HTTPStatus)
	assert.Equal(t, 502, *run.HTTPStatus)
	require.NotNil(t, run.SoapFaultCode)
}
