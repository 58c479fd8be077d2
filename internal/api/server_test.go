package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipsa-io/sipsa/internal/ingestion"
	"github.com/sipsa-io/sipsa/internal/storage"
)

type fakeExecutor struct {
	mu       sync.Mutex
	requests []ingestion.Request
	done     chan struct{}
}

func (e *fakeExecutor) Execute(_ context.Context, req ingestion.Request) error {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	if e.done != nil {
		close(e.done)
	}

	return nil
}

type fakeEventLog struct {
	mu     sync.Mutex
	events []storage.AuditEvent
}

func (l *fakeEventLog) LogEvent(_ context.Context, event storage.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)

	return nil
}

func (l *fakeEventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	types := make([]string, len(l.events))
	for i, event := range l.events {
		types[i] = event.EventType
	}

	return types
}

type fakeAudit struct {
	byRequest map[string][]storage.AuditEvent
	byRun     map[int64][]storage.AuditEvent
	recent    []storage.AuditEvent
}

func (a *fakeAudit) AuditTrailByRequestID(_ context.Context, requestID string) ([]storage.AuditEvent, error) {
	return a.byRequest[requestID], nil
}

func (a *fakeAudit) AuditTrailByRunID(_ context.Context, runID int64) ([]storage.AuditEvent, error) {
	return a.byRun[runID], nil
}

func (a *fakeAudit) RecentEvents(_ context.Context) ([]storage.AuditEvent, error) {
	return a.recent, nil
}

type fakeRuns struct{ runs []storage.Run }

func (f *fakeRuns) LatestRuns(_ context.Context) ([]storage.Run, error) { return f.runs, nil }

type fakeCiudadLister struct {
	items []storage.Ciudad
	total int64

	gotFilter storage.CiudadFilter
	gotLimit  int
	gotOffset int
}

func (f *fakeCiudadLister) List(_ context.Context, filter storage.CiudadFilter, limit, offset int) ([]storage.Ciudad, int64, error) {
	f.gotFilter = filter
	f.gotLimit = limit
	f.gotOffset = offset

	return f.items, f.total, nil
}

type emptyParcialLister struct{}

func (emptyParcialLister) List(_ context.Context, _ storage.ParcialFilter, _, _ int) ([]storage.Parcial, int64, error) {
	return nil, 0, nil
}

type emptySemanaLister struct{}

func (emptySemanaLister) List(_ context.Context, _ storage.SemanaFilter, _, _ int) ([]storage.MayoristasSemanal, int64, error) {
	return nil, 0, nil
}

type emptyMesLister struct{}

func (emptyMesLister) List(_ context.Context, _ storage.MesFilter, _, _ int) ([]storage.MayoristasMensual, int64, error) {
	return nil, 0, nil
}

type emptyAbasLister struct{}

func (emptyAbasLister) List(_ context.Context, _ storage.AbasFilter, _, _ int) ([]storage.AbastecimientosMensual, int64, error) {
	return nil, 0, nil
}

type fakePinger struct{ err error }

func (f *fakePinger) PingContext(_ context.Context) error { return f.err }

type noopHandler struct{ name string }

func (h *noopHandler) MethodName() string { return h.name }

func (h *noopHandler) Execute(_ context.Context, _ *ingestion.RunContext) error { return nil }

func testServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            8080,
		Host:            "127.0.0.1",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        slog.LevelError,
		DefaultPageSize: 50,
		MaxPageSize:     500,
		TimeZone:        "UTC",

		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type"},
		CORSMaxAge:         defaultCORSMaxAge,
	}
}

type serverFixture struct {
	server   *httptest.Server
	executor *fakeExecutor
	eventLog *fakeEventLog
	audit    *fakeAudit
	ciudad   *fakeCiudadLister
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	executor := &fakeExecutor{}
	eventLog := &fakeEventLog{}
	audit := &fakeAudit{byRequest: map[string][]storage.AuditEvent{}, byRun: map[int64][]storage.AuditEvent{}}
	ciudad := &fakeCiudadLister{}

	registry := ingestion.NewRegistry(
		&noopHandler{name: ingestion.MethodCiudad},
		&noopHandler{name: ingestion.MethodParcial},
		&noopHandler{name: ingestion.MethodSemana},
		&noopHandler{name: ingestion.MethodMes},
		&noopHandler{name: ingestion.MethodAbas},
	)

	server, err := NewServer(testServerConfig(), &Dependencies{
		Job:      executor,
		Registry: registry,
		Auditor:  ingestion.NewAuditor(eventLog, nil),
		Audit:    audit,
		Runs:     &fakeRuns{},
		Ciudad:   ciudad,
		Parcial:  emptyParcialLister{},
		Semana:   emptySemanaLister{},
		Mes:      emptyMesLister{},
		Abas:     emptyAbasLister{},
		DB:       &fakePinger{},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(server.httpServer.Handler)
	t.Cleanup(ts.Close)

	return &serverFixture{
		server:   ts,
		executor: executor,
		eventLog: eventLog,
		audit:    audit,
		ciudad:   ciudad,
	}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any

	require.NoError(t, json.Unmarshal(body, &decoded))

	return decoded
}

func TestTriggerIngestionAccepted(t *testing.T) {
	fixture := newServerFixture(t)
	fixture.executor.done = make(chan struct{})

	resp, err := http.Post(
		fixture.server.URL+"/internal/ingestion/run?method=promediosSipsaCiudad&force=false", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ACCEPTED", body["status"])
	assert.Equal(t, "promediosSipsaCiudad", body["method"])
	assert.Equal(t, false, body["force"])
	assert.NotEmpty(t, body["requestId"])

	select {
	case <-fixture.executor.done:
	case <-time.After(2 * time.Second):
		t.Fatal("async execution never fired")
	}

	fixture.executor.mu.Lock()
	defer fixture.executor.mu.Unlock()

	require.Len(t, fixture.executor.requests, 1)
	assert.Equal(t, storage.SourceManual, fixture.executor.requests[0].Source)
	assert.Equal(t, body["requestId"], fixture.executor.requests[0].RequestID)

	assert.Contains(t, fixture.eventLog.types(), "REQUEST_RECEIVED")
	assert.Contains(t, fixture.eventLog.types(), "REQUEST_ACCEPTED")
}

func TestTriggerIngestionForced(t *testing.T) {
	fixture := newServerFixture(t)
	fixture.executor.done = make(chan struct{})

	resp, err := http.Post(
		fixture.server.URL+"/internal/ingestion/run?method=promediosSipsaParcial&force=true", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	_ = decodeBody(t, resp)

	<-fixture.executor.done

	fixture.executor.mu.Lock()
	defer fixture.executor.mu.Unlock()
	require.Len(t, fixture.executor.requests, 1)
	assert.True(t, fixture.executor.requests[0].Force)
}

func TestTriggerIngestionUnknownMethod(t *testing.T) {
	fixture := newServerFixture(t)

	resp, err := http.Post(fixture.server.URL+"/internal/ingestion/run?method=bogus", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "Invalid method")
	assert.NotEmpty(t, body["availableMethods"])
	assert.NotEmpty(t, body["requestId"])

	assert.Contains(t, fixture.eventLog.types(), "REQUEST_REJECTED")

	fixture.executor.mu.Lock()
	defer fixture.executor.mu.Unlock()
	assert.Empty(t, fixture.executor.requests, "rejected requests never execute")
}

func TestTriggerIngestionBlankMethod(t *testing.T) {
	fixture := newServerFixture(t)

	resp, err := http.Post(fixture.server.URL+"/internal/ingestion/run", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "required")
}

func TestListMethods(t *testing.T) {
	fixture := newServerFixture(t)

	resp, err := http.Get(fixture.server.URL + "/internal/ingestion/methods")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.EqualValues(t, 5, body["count"])
	assert.Len(t, body["methods"], 5)
}

func TestAuditByRequestNotFound(t *testing.T) {
	fixture := newServerFixture(t)

	resp, err := http.Get(fixture.server.URL + "/internal/audit/request/unknown")
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuditByRequestTrail(t *testing.T) {
	fixture := newServerFixture(t)

	now := time.Date(2026, 1, 2, 19, 25, 0, 0, time.UTC)
	runID := int64(7)
	fixture.audit.byRequest["req-1"] = []storage.AuditEvent{
		{AuditID: 1, RequestID: "req-1", RequestSource: storage.SourceManual, EventType: "INGESTION_STARTED", OccurredAt: now},
		{AuditID: 2, RunID: &runID, RequestID: "req-1", RequestSource: storage.SourceManual, EventType: "INGESTION_SUCCEEDED", OccurredAt: now.Add(time.Minute)},
	}

	resp, err := http.Get(fixture.server.URL + "/internal/audit/request/req-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.EqualValues(t, 2, body["eventCount"])
	assert.Equal(t, "req-1", body["requestId"])
	assert.NotEmpty(t, body["firstEvent"])
	assert.NotEmpty(t, body["lastEvent"])
	assert.Len(t, body["events"], 2)
}

func TestAuditByRunInvalidID(t *testing.T) {
	fixture := newServerFixture(t)

	resp, err := http.Get(fixture.server.URL + "/internal/audit/run/abc")
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListCiudadPagination(t *testing.T) {
	fixture := newServerFixture(t)

	when := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	price := decimal.NullDecimal{Decimal: decimal.RequireFromString("3250.50"), Valid: true}
	regID := int64(1001)
	fixture.ciudad.items = []storage.Ciudad{{
		ID: 1, RegID: &regID, Ciudad: "Bogotá, D.C.", Producto: "Papa criolla",
		FechaCaptura: &when, PrecioPromedio: price, FechaIngestion: when, IngestionRunID: 9,
	}}
	fixture.ciudad.total = 120

	resp, err := http.Get(fixture.server.URL + "/api/v1/sipsa/ciudad?page=2&pageSize=50&fecha=2026-01-02")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.EqualValues(t, 120, body["count"])
	assert.EqualValues(t, 3, body["pages"])
	assert.NotNil(t, body["next"])
	assert.NotNil(t, body["prev"])
	assert.Contains(t, body["next"], "page=3")
	assert.Contains(t, body["prev"], "page=1")

	results, ok := body["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)

	row, ok := results[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "3250.5", row["precioPromedio"])

	// The store received the half-open UTC day window and 1-based paging.
	assert.Equal(t, 50, fixture.ciudad.gotLimit)
	assert.Equal(t, 50, fixture.ciudad.gotOffset)
	require.NotNil(t, fixture.ciudad.gotFilter.FechaCaptura.From)
	require.NotNil(t, fixture.ciudad.gotFilter.FechaCaptura.To)
	assert.Equal(t, 24*time.Hour,
		fixture.ciudad.gotFilter.FechaCaptura.To.Sub(*fixture.ciudad.gotFilter.FechaCaptura.From))
}

func TestListCiudadInvalidDate(t *testing.T) {
	fixture := newServerFixture(t)

	resp, err := http.Get(fixture.server.URL + "/api/v1/sipsa/ciudad?fecha=02-01-2026")
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthUp(t *testing.T) {
	fixture := newServerFixture(t)

	resp, err := http.Get(fixture.server.URL + "/api/v1/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "UP", body["status"])
	assert.Equal(t, "UP", body["database"])
}

func TestCorrelationIDHeaderPropagated(t *testing.T) {
	fixture := newServerFixture(t)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet,
		fixture.server.URL+"/internal/ingestion/methods", nil)
	require.NoError(t, err)
	req.Header.Set("X-Correlation-ID", "corr-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, "corr-123", resp.Header.Get("X-Correlation-ID"))
}
