package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/sipsa-io/sipsa/internal/config"
)

// setupCuratedStores provisions a migrated database plus a run row the
// curated foreign keys can reference.
func setupCuratedStores(t *testing.T) (*Connection, int64) {
	t.Helper()

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	conn := &Connection{DB: testDB.Connection}

	control, err := NewControlStore(conn)
	require.NoError(t, err)

	runID, err := control.CreateOrRestartRun(ctx, CreateRunRequest{
		MethodName:    "upsert-test",
		WindowKey:     "2026-01-02",
		RequestID:     "req-upsert",
		RequestSource: SourceSystem,
	})
	require.NoError(t, err)

	return conn, runID
}

func ptrInt64(v int64) *int64 { return &v }

func ptrTime(t time.Time) *time.Time { return &t }

func dec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func ciudadRow(runID, regID, codProducto int64) *Ciudad {
	captura := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	return &Ciudad{
		RegID:          ptrInt64(regID),
		Ciudad:         "Bogotá, D.C.",
		CodProducto:    ptrInt64(codProducto),
		Producto:       "Papa criolla",
		FechaCaptura:   ptrTime(captura),
		PrecioPromedio: dec("3250.50"),
		IngestionRunID: runID,
	}
}

func TestCiudadFlushSkipsExistingKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	conn, runID := setupCuratedStores(t)
	ctx := context.Background()

	store, err := NewCiudadStore(conn)
	require.NoError(t, err)

	batch := []*Ciudad{
		ciudadRow(runID, 1, 10),
		ciudadRow(runID, 1, 11),
		ciudadRow(runID, 1, 10), // in-batch duplicate, last occurrence wins
	}

	metrics, err := store.Flush(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.Inserted)
	assert.Equal(t, 1, metrics.Skipped)

	// Applying the same batch again inserts nothing.
	again := []*Ciudad{
		ciudadRow(runID, 1, 10),
		ciudadRow(runID, 1, 11),
	}

	metrics, err = store.Flush(ctx, again)
	require.NoError(t, err)
	assert.Zero(t, metrics.Inserted)
	assert.Equal(t, 2, metrics.Skipped)

	var count int

	require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sipsa_ciudad").Scan(&count))
	assert.Equal(t, 2, count, "row count bounded by unique keys")
}

func TestCiudadFlushStampsIngestionTime(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	conn, runID := setupCuratedStores(t)
	ctx := context.Background()

	store, err := NewCiudadStore(conn)
	require.NoError(t, err)

	before := time.Now().UTC().Add(-time.Minute)

	_, err = store.Flush(ctx, []*Ciudad{ciudadRow(runID, 7, 70)})
	require.NoError(t, err)

	items, total, err := store.List(ctx, CiudadFilter{RegID: ptrInt64(7)}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.True(t, items[0].FechaIngestion.After(before), "fecha_ingestion stamped at flush time")
	assert.Equal(t, runID, items[0].IngestionRunID)
}

func TestParcialFlushHashKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	conn, runID := setupCuratedStores(t)
	ctx := context.Background()

	store, err := NewParcialStore(conn)
	require.NoError(t, err)

	hash := DedupHash("05001", "301", "2", "550", "2026-01-02T00:00:00-05:00", "Tomate chonto")
	row := &Parcial{
		KeyHash:        hash,
		MuniID:         "05001",
		FuenID:         ptrInt64(301),
		FutiID:         ptrInt64(2),
		IDArtiSemana:   ptrInt64(550),
		ArtiNombre:     "Tomate chonto",
		EnmaFecha:      ptrTime(time.Date(2026, 1, 2, 5, 0, 0, 0, time.UTC)),
		PromedioKg:     dec("2100.00"),
		IngestionRunID: runID,
	}

	metrics, err := store.Flush(ctx, []*Parcial{row})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Inserted)

	// Re-submitting identical business fields produces the same hash and skips.
	duplicate := *row
	metrics, err = store.Flush(ctx, []*Parcial{&duplicate})
	require.NoError(t, err)
	assert.Zero(t, metrics.Inserted)
	assert.Equal(t, 1, metrics.Skipped)
}

func semanaRow(runID int64, tmpID *int64, artiID, fuenID int64, fecha time.Time) *MayoristasSemanal {
	return &MayoristasSemanal{
		TmpMayoSemID:   tmpID,
		ArtiID:         ptrInt64(artiID),
		ArtiNombre:     "Arroz",
		FuenID:         ptrInt64(fuenID),
		FuenNombre:     "Central",
		FutiID:         ptrInt64(1),
		FechaIni:       ptrTime(fecha),
		PromedioKg:     dec("1900.00"),
		IngestionRunID: runID,
	}
}

func TestSemanaDualStrategyFlush(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	conn, runID := setupCuratedStores(t)
	ctx := context.Background()

	store, err := NewSemanaStore(conn)
	require.NoError(t, err)

	fecha := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	// Tmp branch: duplicate tmp ids in one batch keep the first occurrence.
	tmpBatch := []*MayoristasSemanal{
		semanaRow(runID, ptrInt64(900), 1, 2, fecha),
		semanaRow(runID, ptrInt64(900), 1, 2, fecha),
		semanaRow(runID, ptrInt64(901), 3, 4, fecha),
	}

	metrics, err := store.FlushTmp(ctx, tmpBatch)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.Inserted)
	assert.Equal(t, 1, metrics.Skipped)

	// Re-applying the tmp batch skips everything.
	metrics, err = store.FlushTmp(ctx, tmpBatch[:2])
	require.NoError(t, err)
	assert.Zero(t, metrics.Inserted)

	// Fallback branch keys on (artiId, fuenId, fechaIni).
	fallbackBatch := []*MayoristasSemanal{
		semanaRow(runID, nil, 10, 20, fecha),
		semanaRow(runID, nil, 10, 20, fecha.Add(24*time.Hour)),
	}

	metrics, err = store.FlushFallback(ctx, fallbackBatch)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.Inserted)

	metrics, err = store.FlushFallback(ctx, fallbackBatch[:1])
	require.NoError(t, err)
	assert.Zero(t, metrics.Inserted)
	assert.Equal(t, 1, metrics.Skipped)

	// A tmp row and a fallback row may share business fields.
	var count int

	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sipsa_mayoristas_semanal").Scan(&count))
	assert.Equal(t, 4, count)
}

func TestSemanaListDateWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	conn, runID := setupCuratedStores(t)
	ctx := context.Background()

	store, err := NewSemanaStore(conn)
	require.NoError(t, err)

	jan5 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	jan6 := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)

	_, err = store.FlushFallback(ctx, []*MayoristasSemanal{
		semanaRow(runID, nil, 1, 1, jan5),
		semanaRow(runID, nil, 2, 2, jan6),
	})
	require.NoError(t, err)

	// Half-open window covering only January 5.
	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	items, total, err := store.List(ctx, SemanaFilter{
		FechaIni: DateWindow{From: &from, To: &to},
	}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].ArtiID)
	assert.Equal(t, int64(1), *items[0].ArtiID)
}
