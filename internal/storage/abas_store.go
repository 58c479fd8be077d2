package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// AbasStore persists sipsa_abastecimientos_mensual rows with dual dedup
// strategies: tmp_abas_mes_id when present, (arti_id, fuen_id, fecha_mes_ini)
// otherwise.
type AbasStore struct {
	conn *Connection
}

// NewAbasStore creates the monthly supply store.
func NewAbasStore(conn *Connection) (*AbasStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &AbasStore{conn: conn}, nil
}

// FlushTmp applies a batch of records keyed by tmp_abas_mes_id; the first
// occurrence of a tmp id wins within the batch.
func (s *AbasStore) FlushTmp(ctx context.Context, batch []*AbastecimientosMensual) (UpsertMetrics, error) {
	var metrics UpsertMetrics

	if len(batch) == 0 {
		return metrics, nil
	}

	unique := make(map[int64]*AbastecimientosMensual, len(batch))
	order := make([]int64, 0, len(batch))

	for _, item := range batch {
		id := *item.TmpAbasMesID
		if _, seen := unique[id]; seen {
			metrics.Skipped++

			continue
		}

		unique[id] = item
		order = append(order, id)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT tmp_abas_mes_id FROM sipsa_abastecimientos_mensual
		WHERE tmp_abas_mes_id = ANY($1::bigint[])
	`, pq.Array(order))
	if err != nil {
		return metrics, fmt.Errorf("failed to probe existing abastecimientos tmp ids: %w", err)
	}

	existing, err := scanInt64Set(rows)
	if err != nil {
		return metrics, err
	}

	now := time.Now().UTC()
	toInsert := make([]*AbastecimientosMensual, 0, len(order))

	for _, id := range order {
		if existing[id] {
			metrics.Skipped++

			continue
		}

		item := unique[id]
		item.FechaIngestion = now
		toInsert = append(toInsert, item)
	}

	inserted, err := s.bulkInsert(ctx, toInsert)
	if err != nil {
		return metrics, err
	}

	metrics.Inserted = inserted
	metrics.Skipped += len(toInsert) - inserted

	return metrics, nil
}

// FlushFallback applies a batch of records without tmp ids, keyed by
// (arti_id, fuen_id, fecha_mes_ini); the last occurrence wins within the batch.
func (s *AbasStore) FlushFallback(ctx context.Context, batch []*AbastecimientosMensual) (UpsertMetrics, error) {
	var metrics UpsertMetrics

	if len(batch) == 0 {
		return metrics, nil
	}

	unique := make(map[fallbackKey]*AbastecimientosMensual, len(batch))
	order := make([]fallbackKey, 0, len(batch))

	for _, item := range batch {
		key := newFallbackKey(*item.ArtiID, *item.FuenID, *item.FechaMesIni)
		if _, seen := unique[key]; !seen {
			order = append(order, key)
		}

		unique[key] = item
	}

	metrics.Skipped = len(batch) - len(order)

	existing, err := probeFallbackKeys(ctx, s.conn, `
		SELECT arti_id, fuen_id, fecha_mes_ini FROM sipsa_abastecimientos_mensual
		WHERE tmp_abas_mes_id IS NULL AND (arti_id, fuen_id, fecha_mes_ini) IN (
			SELECT k.arti_id, k.fuen_id, k.fecha
			FROM unnest($1::bigint[], $2::bigint[], $3::timestamptz[]) AS k(arti_id, fuen_id, fecha)
		)
	`, order)
	if err != nil {
		return metrics, fmt.Errorf("failed to probe existing abastecimientos fallback keys: %w", err)
	}

	now := time.Now().UTC()
	toInsert := make([]*AbastecimientosMensual, 0, len(order))

	for _, key := range order {
		if existing[key] {
			metrics.Skipped++

			continue
		}

		item := unique[key]
		item.FechaIngestion = now
		toInsert = append(toInsert, item)
	}

	inserted, err := s.bulkInsert(ctx, toInsert)
	if err != nil {
		return metrics, err
	}

	metrics.Inserted = inserted
	metrics.Skipped += len(toInsert) - inserted

	return metrics, nil
}

func (s *AbasStore) bulkInsert(ctx context.Context, items []*AbastecimientosMensual) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	const cols = 12

	args := make([]any, 0, len(items)*cols)
	for _, item := range items {
		args = append(args,
			item.TmpAbasMesID, item.ArtiID, item.ArtiNombre, item.FuenID, item.FuenNombre,
			item.FutiID, item.FechaMesIni, item.FechaCreacion, item.CantidadTon,
			item.Enviado, item.FechaIngestion, item.IngestionRunID,
		)
	}

	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO sipsa_abastecimientos_mensual
			(tmp_abas_mes_id, arti_id, arti_nombre, fuen_id, fuen_nombre, futi_id,
			 fecha_mes_ini, fecha_creacion, cantidad_ton, enviado, fecha_ingestion,
			 ingestion_run_id)
		VALUES `+valuesPlaceholders(len(items), cols)+`
		ON CONFLICT DO NOTHING
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %d abastecimientos rows: %w", len(items), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read abastecimientos insert count: %w", err)
	}

	return int(affected), nil
}

// AbasFilter holds the optional read-side filters for monthly supply rows.
type AbasFilter struct {
	FechaMesIni DateWindow
	ArtiID      *int64
	FuenID      *int64
}

// List returns a page of monthly supply rows plus the total match count.
func (s *AbasStore) List(ctx context.Context, filter AbasFilter, limit, offset int) ([]AbastecimientosMensual, int64, error) {
	builder := &whereBuilder{}
	builder.addWindow("fecha_mes_ini", filter.FechaMesIni)
	builder.addInt64("arti_id", filter.ArtiID)
	builder.addInt64("fuen_id", filter.FuenID)

	where := builder.clause()

	var total int64

	countArgs := append([]any(nil), builder.args...)
	if err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sipsa_abastecimientos_mensual"+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count abastecimientos rows: %w", err)
	}

	query := `
		SELECT id, tmp_abas_mes_id, arti_id, arti_nombre, fuen_id, fuen_nombre, futi_id,
		       fecha_mes_ini, fecha_creacion, cantidad_ton, enviado, fecha_ingestion,
		       ingestion_run_id
		FROM sipsa_abastecimientos_mensual` + where + " ORDER BY fecha_mes_ini DESC, id" + builder.paging(limit, offset)

	rows, err := s.conn.QueryContext(ctx, query, builder.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list abastecimientos rows: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var items []AbastecimientosMensual

	for rows.Next() {
		var item AbastecimientosMensual

		if err := rows.Scan(
			&item.ID, &item.TmpAbasMesID, &item.ArtiID, &item.ArtiNombre, &item.FuenID,
			&item.FuenNombre, &item.FutiID, &item.FechaMesIni, &item.FechaCreacion,
			&item.CantidadTon, &item.Enviado, &item.FechaIngestion, &item.IngestionRunID,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan abastecimientos row: %w", err)
		}

		items = append(items, item)
	}

	return items, total, rows.Err()
}
